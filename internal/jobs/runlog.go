package jobs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RunLog appends delivery attempts to a text file shared by every run in the
// process. Each line is written with a single call so lines from concurrent
// runs never split.
type RunLog struct {
	mu   sync.Mutex
	file *os.File
}

// OpenRunLog opens path for appending, creating it and its directory if needed.
func OpenRunLog(path string) (*RunLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	return &RunLog{file: f}, nil
}

// Begin writes the header line of a run.
func (l *RunLog) Begin(runID string, started time.Time) error {
	return l.write(fmt.Sprintf("=== Run %s started %s ===\n", runID, started.Format(time.RFC3339)))
}

// Append records one attempt.
func (l *RunLog) Append(e Entry) error {
	return l.write(e.String() + "\n")
}

func (l *RunLog) write(line string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("failed to append to run log: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *RunLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
