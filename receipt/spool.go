package receipt

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	logInternal "github.com/AlexStarov/escpos-print-agent/log"
)

// Spool hands rendered pages to the printing system through files.
type Spool struct {
	Dir string
	// Retain keeps page files after submission instead of deleting them.
	Retain bool
}

// DefaultSpoolDir is used when no spool directory is configured.
func DefaultSpoolDir() string {
	return filepath.Join(os.TempDir(), "print-agent")
}

// Submit writes page to receipt_<unixnano>.png, closes it and calls
// submit with its path. Unless Retain is set the file is removed
// afterwards, whatever submit returned.
func (s *Spool) Submit(page image.Image, submit func(path string) error) error {
	path, err := s.write(page)
	if err != nil {
		return err
	}

	err = submit(path)

	if s.Retain {
		logInternal.Debug("page retained", zap.String("path", path))
		return err
	}
	if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		logInternal.Warn("remove page", zap.String("path", path), zap.Error(rmErr))
	}
	return err
}

func (s *Spool) write(page image.Image) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = DefaultSpoolDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("spool dir: %w", err)
	}

	f, path, err := createUnique(dir)
	if err != nil {
		return "", err
	}
	if err := imaging.Encode(f, page, imaging.PNG); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("encode page: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close page: %w", err)
	}
	return path, nil
}

// createUnique creates receipt_<unixnano>.png, stepping the timestamp
// when two pages land on the same nanosecond.
func createUnique(dir string) (*os.File, string, error) {
	ts := time.Now().UnixNano()
	for i := 0; i < 100; i++ {
		path := filepath.Join(dir, fmt.Sprintf("receipt_%d.png", ts+int64(i)))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("create page: %w", err)
		}
	}
	return nil, "", errors.New("create page: no free file name")
}
