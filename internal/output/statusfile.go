package output

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/sgoran/roundtrip/internal/engine"
)

// StatusFileSink appends status snapshots as JSON lines to a file. Implements
// engine.StatusSink.
type StatusFileSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewStatusFileSink opens (or creates) the status file for appending.
func NewStatusFileSink(path string) (*StatusFileSink, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &StatusFileSink{file: file, enc: json.NewEncoder(file)}, nil
}

// Push appends one snapshot as a JSON line. Write errors are dropped: status
// reporting never interferes with the run itself.
func (s *StatusFileSink) Push(status engine.StatusData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return
	}
	_ = s.enc.Encode(status)
}

// Close flushes and closes the underlying file.
func (s *StatusFileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.enc = nil
	return err
}
