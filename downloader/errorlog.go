package downloader

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrorLogEntry records one failed chapter or image.
type ErrorLogEntry struct {
	Url   string
	Title string
	Order int
	Err   error
	At    time.Time
}

// ErrorLog is the ordered, run level list of per chapter failures.
type ErrorLog struct {
	mu      sync.Mutex
	entries []ErrorLogEntry
}

func (l *ErrorLog) add(e ErrorLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

func (l *ErrorLog) Entries() []ErrorLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ErrorLogEntry(nil), l.entries...)
}

func (l *ErrorLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// WriteTo writes one block per entry in the order failures happened.
func (l *ErrorLog) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	for _, e := range l.Entries() {
		fmt.Fprintf(&b, "[%s] chapter %d: %s\n", e.At.Format(time.RFC3339), e.Order+1, e.Title)
		fmt.Fprintf(&b, "  url: %s\n", e.Url)
		fmt.Fprintf(&b, "  error: %v\n\n", e.Err)
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// WriteFile writes the log to path. Nothing is written when the log is empty.
func (l *ErrorLog) WriteFile(path string) error {
	if l.Len() == 0 {
		return nil
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create error log: %w", err)
	}
	defer file.Close()
	if _, err := l.WriteTo(file); err != nil {
		return fmt.Errorf("failed to write error log: %w", err)
	}
	return nil
}
