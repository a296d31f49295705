package service

import (
	"fmt"

	"github.com/dukerupert/courier/internal/jobs"
)

// FailedEmail is one undelivered recipient in a report.
type FailedEmail struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// Report is the caller-visible result of a run.
type Report struct {
	Success      bool          `json:"success"`
	EmailCount   int           `json:"email_count"`
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	FailedEmails []FailedEmail `json:"failed_emails"`
	TotalTime    string        `json:"total_time"`
	AverageSpeed string        `json:"average_speed"`
	RunID        string        `json:"run_id"`
}

// NewReport aggregates a finished run. The run succeeds if at least one
// message was delivered. Average speed counts successful sends only.
func NewReport(rec *jobs.RunRecord) *Report {
	r := &Report{
		RunID:        rec.RunID,
		EmailCount:   len(rec.Entries),
		FailedEmails: []FailedEmail{},
	}

	for _, e := range rec.Entries {
		if e.Outcome.OK() {
			r.SuccessCount++
			continue
		}
		r.FailureCount++
		r.FailedEmails = append(r.FailedEmails, FailedEmail{Email: e.Recipient, Error: e.Outcome.Reason})
	}
	r.Success = r.SuccessCount > 0

	secs := rec.Duration().Seconds()
	var speed float64
	if secs > 0 {
		speed = float64(r.SuccessCount) / secs * 60
	}
	r.TotalTime = fmt.Sprintf("%.1f seconds", secs)
	r.AverageSpeed = fmt.Sprintf("%.1f emails/minute", speed)

	return r
}
