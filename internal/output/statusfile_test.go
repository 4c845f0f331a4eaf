package output_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sgoran/roundtrip/internal/engine"
	"github.com/sgoran/roundtrip/internal/output"
)

func TestStatusFileSinkAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.jsonl")
	sink, err := output.NewStatusFileSink(path)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}

	sink.Push(engine.StatusData{TotalUniqueSent: 10, TotalReceived: 4})
	sink.Push(engine.StatusData{TotalUniqueSent: 25, TotalReceived: 25})
	if err := sink.Close(); err != nil {
		t.Fatalf("close sink: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open status file: %v", err)
	}
	defer file.Close()

	var lines []engine.StatusData
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var status engine.StatusData
		if err := json.Unmarshal(scanner.Bytes(), &status); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		lines = append(lines, status)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 status lines, got %d", len(lines))
	}
	if lines[1].TotalUniqueSent != 25 || lines[1].TotalReceived != 25 {
		t.Fatalf("unexpected final status: %+v", lines[1])
	}
}

func TestStatusFileSinkPushAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.jsonl")
	sink, err := output.NewStatusFileSink(path)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close sink: %v", err)
	}
	sink.Push(engine.StatusData{TotalUniqueSent: 1}) // must not panic
	if err := sink.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
