package worker

import "fmt"

// EventStatus is the lifecycle state a progress event reports.
type EventStatus string

const (
	EventQueued EventStatus = "Queued"
	EventSent   EventStatus = "Sent"
	EventFailed EventStatus = "Failed"
)

// Event is one progress update for a subscribed client. Field names match
// what the browser UI renders.
type Event struct {
	RunID                  string      `json:"runId,omitempty"`
	Status                 EventStatus `json:"status"`
	Email                  string      `json:"email"`
	SentEmails             int         `json:"sentEmails"`
	TotalEmails            int         `json:"totalEmails"`
	Percentage             float64     `json:"percentage"`
	Message                string      `json:"message"`
	EstimatedTimeRemaining string      `json:"estimatedTimeRemaining"`
	Speed                  string      `json:"speed,omitempty"`
	AvgTimePerEmail        string      `json:"avgTimePerEmail,omitempty"`
}

// Terminal reports whether the event closes out a recipient.
func (e Event) Terminal() bool {
	return e.Status == EventSent || e.Status == EventFailed
}

// ProgressSink receives progress events as a run advances.
// Publish is called from more than one goroutine and must not block for long.
type ProgressSink interface {
	Publish(event Event)
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(event Event) { f(event) }

type discardSink struct{}

func (discardSink) Publish(Event) {}

func queuedEvent(runID string, task Task, total int) Event {
	return Event{
		RunID:                  runID,
		Status:                 EventQueued,
		Email:                  task.Recipient,
		SentEmails:             task.Index,
		TotalEmails:            total,
		Percentage:             percentage(task.Index, total),
		Message:                fmt.Sprintf("Queuing email to %s", task.Recipient),
		EstimatedTimeRemaining: "Calculating...",
	}
}

func completionEvent(runID string, res Result, snap Snapshot) Event {
	ev := Event{
		RunID:                  runID,
		Email:                  res.Task.Recipient,
		SentEmails:             snap.Completed,
		TotalEmails:            snap.Total,
		Percentage:             snap.Percentage(),
		EstimatedTimeRemaining: FormatETA(snap.ETA),
		Speed:                  fmt.Sprintf("%.1f emails/minute", snap.Throughput),
		AvgTimePerEmail:        fmt.Sprintf("%.1f seconds", snap.AvgPerEmail),
	}
	if res.Outcome.OK() {
		ev.Status = EventSent
		ev.Message = fmt.Sprintf("Email sent to %s", res.Task.Recipient)
	} else {
		ev.Status = EventFailed
		ev.Message = fmt.Sprintf("Failed to send email to %s : %s", res.Task.Recipient, res.Outcome.Reason)
	}
	return ev
}

func percentage(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
