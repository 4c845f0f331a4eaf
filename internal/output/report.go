// Package output renders run results: the live progress line, the final
// report in text or JSON form, and the status snapshot file.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/gofrs/flock"

	"github.com/sgoran/roundtrip/internal/metrics"
)

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, stats metrics.Stats) {
	fmt.Fprintln(w, "\n--- Round Trip Results ---")
	fmt.Fprintf(w, "Unique Sent:       %d\n", stats.UniqueSent)
	fmt.Fprintf(w, "Send Attempts:     %d\n", stats.Sent)
	fmt.Fprintf(w, "Acked:             %d\n", stats.Acked)
	fmt.Fprintf(w, "Send Failures:     %d\n", stats.SendFailures)
	fmt.Fprintf(w, "Received:          %d\n", stats.Received)
	fmt.Fprintf(w, "Unique Received:   %d\n", stats.UniqueReceived)
	fmt.Fprintf(w, "Duplicates:        %d\n", stats.Duplicates)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Messages/sec:      %.2f\n", stats.MessagesPerSec)
	fmt.Fprintln(w, "\nAck Latency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinAckLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxAckLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50AckLatency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90AckLatency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99AckLatency)
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, stats metrics.Stats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

// WriteReportFile writes the JSON report to path, holding a file lock so
// concurrent runs pointed at the same path do not interleave writes.
func WriteReportFile(path string, stats metrics.Stats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock report file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}
	return nil
}
