package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileSink appends records as JSON lines to a local file.
type FileSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewFileSink opens (or creates) the file at path for appending. Missing
// parent directories are created.
func NewFileSink(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("exchange: file: create dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("exchange: file: open: %w", err)
	}
	return &FileSink{path: path, f: f}, nil
}

// Name implements the sink naming used in metrics.
func (s *FileSink) Name() string { return "file" }

// Path returns the log file path.
func (s *FileSink) Path() string { return s.path }

// Write appends rec as a single line.
func (s *FileSink) Write(_ context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("exchange: file: marshal: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return fmt.Errorf("exchange: file: write: %w", os.ErrClosed)
	}
	if _, err := s.f.Write(data); err != nil {
		return fmt.Errorf("exchange: file: write: %w", err)
	}
	return nil
}

// Close closes the file. Further writes fail.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
