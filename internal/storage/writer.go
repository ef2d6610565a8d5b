package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sjawhar/codereflex/internal/submission"
)

// Writer saves each submitted interview as a markdown report under dir.
type Writer struct {
	dir string
	mu  sync.Mutex
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Archive(_ context.Context, result submission.Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", w.dir, err)
	}

	// Write then rename so a concurrent reader never sees half a report.
	path := w.Path(result)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(result.FormatMarkdown()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// Path is the report location for result.
func (w *Writer) Path(result submission.Result) string {
	date := result.EndedAt.UTC().Format("2006-01-02")
	return filepath.Join(w.dir, date+"-"+result.InterviewID+".md")
}
