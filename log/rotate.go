package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RotatingWriter appends to <dir>/<name>-<slot>.log where the slot is
// 0 for days 1-9, 1 for days 10-19 and 2 for the rest of the month. On
// entering a slot the file of the following slot is removed, so at most
// a month of logs is kept.
type RotatingWriter struct {
	dir  string
	name string
	now  func() time.Time

	mu   sync.Mutex
	slot int
	file *os.File
}

// NewRotatingWriter returns a writer rotating <dir>/<name>-N.log.
func NewRotatingWriter(dir, name string) *RotatingWriter {
	return &RotatingWriter{dir: dir, name: name, now: time.Now, slot: -1}
}

func daySlot(t time.Time) int {
	switch day := t.Day(); {
	case day <= 9:
		return 0
	case day <= 19:
		return 1
	default:
		return 2
	}
}

func (w *RotatingWriter) path(slot int) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%d.log", w.name, slot))
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if slot := daySlot(w.now()); slot != w.slot || w.file == nil {
		if err := w.rotate(slot); err != nil {
			return 0, err
		}
	}
	return w.file.Write(p)
}

func (w *RotatingWriter) rotate(slot int) error {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}

	stale := w.path((slot + 1) % 3)
	if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "log: remove %s: %v\n", stale, err)
	}

	f, err := os.OpenFile(w.path(slot), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	w.file, w.slot = f, slot
	return nil
}

func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close closes the current file. A later Write reopens it.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
