package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Store writes captured images to the configured upload directory, one
// subdirectory per account. The directory is created at construction,
// never lazily from request handling.
type Store struct {
	baseDir  string
	maxBytes int64
}

// NewStore prepares the upload directory.
func NewStore(baseDir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{baseDir: baseDir, maxBytes: maxBytes}, nil
}

// MaxBytes returns the configured upload cap.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Dir returns the base upload directory.
func (s *Store) Dir() string {
	return s.baseDir
}

// Save persists one capture and returns its path.
func (s *Store) Save(userID int64, data []byte, ext string) (string, error) {
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("capture exceeds %d bytes", s.maxBytes)
	}
	userDir := filepath.Join(s.baseDir, strconv.FormatInt(userID, 10))
	if err := os.MkdirAll(userDir, 0o750); err != nil {
		return "", err
	}
	name := "capture_" + time.Now().UTC().Format("20060102T150405.000000000") + ext
	path := filepath.Join(userDir, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", err
	}
	return path, nil
}
