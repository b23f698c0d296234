package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileSink appends JSON lines to one file per calendar day, the
// activity_YYYYMMDD.log layout. It reopens the file when the day rolls
// over; entries within a day keep append order.
type FileSink struct {
	dir string

	mu      sync.Mutex
	day     string
	current *os.File
}

// NewFileSink creates the log directory if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create activity log dir: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Append writes one JSON line to today's partition.
func (s *FileSink) Append(ctx context.Context, entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	day := entry.At.UTC().Format("20060102")
	if day != s.day {
		if s.current != nil {
			_ = s.current.Close()
		}
		name := filepath.Join(s.dir, "activity_"+day+".log")
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return err
		}
		s.current = f
		s.day = day
	}

	_, err = s.current.Write(append(line, '\n'))
	return err
}

// Close releases the currently open partition.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	err := s.current.Close()
	s.current = nil
	s.day = ""
	return err
}

var _ Sink = (*FileSink)(nil)
