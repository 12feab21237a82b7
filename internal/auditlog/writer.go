// Package auditlog appends reply outcomes to daily JSONL files.
package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"shopbot/internal/model"
)

// Writer appends one JSON line per outcome to <dir>/replies_<date>.jsonl.
type Writer struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now}
}

// Path returns the file the writer appends to at t.
func (w *Writer) Path(t time.Time) string {
	return filepath.Join(w.dir, fmt.Sprintf("replies_%s.jsonl", t.UTC().Format("2006-01-02")))
}

func (w *Writer) Write(_ context.Context, out model.ReplyOutcome) error {
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.Path(w.now()), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(data, '\n'))
	return err
}
