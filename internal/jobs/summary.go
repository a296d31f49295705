package jobs

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/dukerupert/courier/internal/email"
)

//go:embed templates/summary.html
var summaryHTML string

//go:embed templates/summary.txt
var summaryText string

var (
	summaryHTMLTmpl = htmltemplate.Must(htmltemplate.New("summary").Parse(summaryHTML))
	summaryTextTmpl = texttemplate.Must(texttemplate.New("summary").Parse(summaryText))
)

// ErrNoTransport is returned when a run record carries no transport to notify with.
var ErrNoTransport = errors.New("run record has no transport")

// AdminNotifier emails a summary of each run to an administrator.
type AdminNotifier struct {
	to string
}

// NewAdminNotifier creates a notifier that mails to.
func NewAdminNotifier(to string) *AdminNotifier {
	return &AdminNotifier{to: to}
}

func (n *AdminNotifier) Name() string { return HookAdminSummary }

// summaryData is the view passed to the summary templates.
type summaryData struct {
	RunID     string
	Test      bool
	Started   string
	Duration  string
	Total     int
	Succeeded int
	Failed    int
	Entries   []Entry
}

// Run sends the summary through the sender's own transport.
func (n *AdminNotifier) Run(ctx context.Context, rec *RunRecord) error {
	if rec.Transport == nil {
		return ErrNoTransport
	}

	msg, err := n.Build(rec)
	if err != nil {
		return err
	}

	if outcome := rec.Transport.Deliver(ctx, msg); !outcome.OK() {
		return fmt.Errorf("admin summary to %s: %s", n.to, outcome.Reason)
	}
	return nil
}

// Build renders the summary message for rec.
func (n *AdminNotifier) Build(rec *RunRecord) (*email.Email, error) {
	data := summaryData{
		RunID:     rec.RunID,
		Test:      rec.Test,
		Started:   rec.StartedAt.Format("2006-01-02 15:04:05 MST"),
		Duration:  fmt.Sprintf("%.1f seconds", rec.Duration().Seconds()),
		Total:     len(rec.Entries),
		Succeeded: rec.Succeeded(),
		Failed:    rec.Failed(),
		Entries:   rec.Entries,
	}

	var htmlBuf, textBuf bytes.Buffer
	if err := summaryHTMLTmpl.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render summary html: %w", err)
	}
	if err := summaryTextTmpl.Execute(&textBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render summary text: %w", err)
	}

	subject := fmt.Sprintf("Bulk email summary: %d of %d sent", data.Succeeded, data.Total)
	if rec.Test {
		subject = "[Test] " + subject
	}

	return &email.Email{
		To:       []string{n.to},
		From:     rec.From,
		Subject:  subject,
		HTMLBody: htmlBuf.String(),
		TextBody: textBuf.String(),
		Headers:  map[string]string{"X-Courier-Run": rec.RunID},
	}, nil
}
