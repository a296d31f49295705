package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/courier/internal/storage"
)

// Archiver copies each finished run's log to a Storage backend as
// runs/<yyyy>/<mm>/<run id>.log with a JSON summary beside it.
type Archiver struct {
	store storage.Storage
}

// NewArchiver creates an archiver writing to store.
func NewArchiver(store storage.Storage) *Archiver {
	return &Archiver{store: store}
}

func (a *Archiver) Name() string { return HookArchive }

// archiveSummary is the JSON document stored next to the log.
type archiveSummary struct {
	RunID      string          `json:"run_id"`
	Test       bool            `json:"test"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Total      int             `json:"total"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	Failures   []archiveFailed `json:"failures,omitempty"`
}

type archiveFailed struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// Key returns the storage key prefix for rec, without extension.
func Key(rec *RunRecord) string {
	return fmt.Sprintf("runs/%s/%s", rec.StartedAt.UTC().Format("2006/01"), rec.RunID)
}

// Run uploads the log and summary.
func (a *Archiver) Run(ctx context.Context, rec *RunRecord) error {
	var log strings.Builder
	fmt.Fprintf(&log, "=== Run %s started %s ===\n", rec.RunID, rec.StartedAt.Format(time.RFC3339))
	for _, e := range rec.Entries {
		log.WriteString(e.String())
		log.WriteByte('\n')
	}

	key := Key(rec)
	if _, err := a.store.Put(ctx, key+".log", strings.NewReader(log.String()), "text/plain; charset=utf-8"); err != nil {
		return fmt.Errorf("failed to archive run log: %w", err)
	}

	summary := archiveSummary{
		RunID:      rec.RunID,
		Test:       rec.Test,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
		Total:      len(rec.Entries),
		Succeeded:  rec.Succeeded(),
		Failed:     rec.Failed(),
	}
	for _, e := range rec.Entries {
		if !e.Outcome.OK() {
			summary.Failures = append(summary.Failures, archiveFailed{Email: e.Recipient, Error: e.Outcome.Reason})
		}
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}
	if _, err := a.store.Put(ctx, key+".json", strings.NewReader(string(data)), "application/json"); err != nil {
		return fmt.Errorf("failed to archive run summary: %w", err)
	}
	return nil
}
