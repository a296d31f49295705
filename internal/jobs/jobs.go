// Package jobs holds the work that happens around a dispatch run rather than
// inside it: the durable run log, the admin summary email, archiving the run
// log to object storage and removing the run's staged uploads.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/courier/internal/email"
)

// Hook names, used in logs.
const (
	HookAdminSummary = "run:admin_summary"
	HookArchive      = "run:archive"
)

// Entry is one line of a run log.
type Entry struct {
	Recipient string
	Outcome   email.Outcome
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// String renders the entry as it appears in the durable log. Multi-line
// server replies are folded so each attempt stays on one line.
func (e Entry) String() string {
	return lineBreaks.Replace(e.Recipient + " - " + e.Outcome.String())
}

// RunRecord is the finished state of one run handed to post-run hooks.
type RunRecord struct {
	RunID      string
	Test       bool
	StartedAt  time.Time
	FinishedAt time.Time
	Entries    []Entry

	// Transport and From are the sender's own SMTP session settings, reused
	// for notifications about the run.
	Transport email.Transport
	From      string
}

// Succeeded counts delivered entries.
func (r *RunRecord) Succeeded() int {
	n := 0
	for _, e := range r.Entries {
		if e.Outcome.OK() {
			n++
		}
	}
	return n
}

// Failed counts entries that were not delivered.
func (r *RunRecord) Failed() int {
	return len(r.Entries) - r.Succeeded()
}

// Duration is the wall-clock length of the run.
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Hook is a best-effort action run after a dispatch finishes.
type Hook interface {
	Name() string
	Run(ctx context.Context, rec *RunRecord) error
}

// hookTimeout bounds each hook so a stuck notification cannot hold the response.
const hookTimeout = 60 * time.Second

// RunHooks executes hooks in order. Failures, including panics, are logged
// and never returned: the caller's result does not depend on them.
func RunHooks(ctx context.Context, hooks []Hook, rec *RunRecord, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	// Hooks run after the request may have been cancelled; they still get their own budget.
	base := context.WithoutCancel(ctx)

	for _, h := range hooks {
		if h == nil {
			continue
		}
		if err := runHook(base, h, rec); err != nil {
			logger.Warn("post-run hook failed",
				"hook", h.Name(),
				"run_id", rec.RunID,
				"error", err,
			)
			continue
		}
		logger.Debug("post-run hook completed", "hook", h.Name(), "run_id", rec.RunID)
	}
}

func runHook(ctx context.Context, h Hook, rec *RunRecord) (err error) {
	ctx, cancel := context.WithTimeout(ctx, hookTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Run(ctx, rec)
}
