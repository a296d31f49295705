package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/courier/internal/domain"
	"github.com/dukerupert/courier/internal/email"
	"github.com/dukerupert/courier/internal/jobs"
	"github.com/dukerupert/courier/internal/storage"
	"github.com/dukerupert/courier/internal/telemetry"
	"github.com/dukerupert/courier/internal/worker"
)

// runNamespace seeds the per-run namespace that makes Content-IDs stable
// within a run.
var runNamespace = uuid.MustParse("6f1c7a52-3d1e-4b8e-9a57-0c2f4e1b9d3a")

// TransportFactory opens a transport for one run's SMTP settings.
type TransportFactory func(cfg email.SMTPConfig) email.Transport

// Request is one bulk send as received from a client.
type Request struct {
	// RunID names the progress stream and workspace. Generated when empty.
	RunID string

	SMTP email.SMTPConfig

	// Rows are the recipient rows; each must carry an "email" field.
	Rows []email.Row

	// TestRecipient, when set, receives every row's message instead of the
	// row's own address.
	TestRecipient string

	SubjectTemplate string
	BodyTemplate    string
	Attachments     []string
	Posters         []string
	PosterURL       string

	// Workspace holds the staged uploads and is removed when Run returns.
	Workspace *storage.RunDir
}

// DispatcherConfig holds the run-independent settings of a Dispatcher.
type DispatcherConfig struct {
	Concurrency int
	StatsOrder  worker.StatsOrder

	// RunLog receives one line per attempt. Optional.
	RunLog *jobs.RunLog
	// Hooks run after every completed run. Optional.
	Hooks []jobs.Hook
	// Metrics is optional.
	Metrics *telemetry.DispatchMetrics
}

// Dispatcher runs bulk sends end to end: pre-flight checks, the bounded send
// pool, aggregation and post-run hooks.
type Dispatcher struct {
	config     DispatcherConfig
	transports TransportFactory
	sink       worker.ProgressSink
	logger     *slog.Logger
	now        func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(config DispatcherConfig, transports TransportFactory, sink worker.ProgressSink, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		config:     config,
		transports: transports,
		sink:       sink,
		logger:     logger,
		now:        time.Now,
	}
}

// Run executes req and returns its report. Errors are returned only for
// pre-flight failures, in which case nothing was sent. Per-recipient failures
// are part of the report. The request workspace is removed on every path.
func (d *Dispatcher) Run(ctx context.Context, req Request) (*Report, error) {
	defer jobs.CleanupWorkspace(req.Workspace, d.logger)

	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	logger := d.logger.With("run_id", req.RunID)

	tasks, err := d.preflight(req)
	if err != nil {
		d.config.Metrics.RunFinished("aborted", 0)
		logger.Warn("dispatch aborted before sending", "error", err)
		return nil, err
	}

	d.config.Metrics.RunStarted(len(tasks))
	started := d.now()

	transport := d.transports(req.SMTP)
	builder := email.NewBuilder(uuid.NewSHA1(runNamespace, []byte(req.RunID)))

	rec := &jobs.RunRecord{
		RunID:     req.RunID,
		Test:      req.TestRecipient != "",
		StartedAt: started,
		Entries:   make([]jobs.Entry, 0, len(tasks)),
		Transport: transport,
		From:      req.SMTP.From,
	}

	if err := d.config.RunLog.Begin(req.RunID, started); err != nil {
		logger.Error("failed to write run log header", "error", err)
	}

	exec := worker.ExecutorFunc(func(ctx context.Context, task worker.Task) email.Outcome {
		msg, missing, err := builder.Build(email.BuildInput{
			From:        req.SMTP.From,
			To:          task.Recipient,
			Subject:     task.Subject,
			Body:        task.Body,
			Attachments: task.Attachments,
			Posters:     task.Posters,
			PosterURL:   task.PosterURL,
		})
		for _, m := range missing {
			d.config.Metrics.MissingAttachment()
			logger.Warn("file not found, skipped",
				"kind", m.Kind,
				"path", m.Path,
				"recipient", task.Recipient,
			)
		}
		if err != nil {
			return email.Failed(err.Error())
		}
		return transport.Deliver(ctx, msg)
	})

	scheduler := worker.NewScheduler(exec, d.sink, worker.Config{
		RunID:          req.RunID,
		MaxConcurrency: d.config.Concurrency,
		StatsOrder:     d.config.StatsOrder,
		Metrics:        d.config.Metrics,
	}, logger)

	scheduler.Run(ctx, tasks, func(r worker.Result) {
		entry := jobs.Entry{Recipient: r.Task.Recipient, Outcome: r.Outcome}
		rec.Entries = append(rec.Entries, entry)
		if err := d.config.RunLog.Append(entry); err != nil {
			logger.Error("failed to append run log", "error", err)
		}
	})

	rec.FinishedAt = d.now()
	report := NewReport(rec)
	d.config.Metrics.RunFinished(runResult(report), rec.Duration())

	logger.Info("dispatch complete",
		"total", report.EmailCount,
		"sent", report.SuccessCount,
		"failed", report.FailureCount,
		"total_time", report.TotalTime,
	)

	jobs.RunHooks(ctx, d.config.Hooks, rec, logger)

	return report, nil
}

// preflight validates req and renders every message. Any error here means
// no message will be sent.
func (d *Dispatcher) preflight(req Request) ([]worker.Task, error) {
	const op = "dispatch.preflight"

	if err := validateSMTP(req.SMTP); err != nil {
		return nil, err
	}
	if len(req.Rows) == 0 {
		return nil, ErrNoRecipients
	}
	if req.TestRecipient != "" {
		if _, err := mail.ParseAddress(req.TestRecipient); err != nil {
			return nil, ErrInvalidTestEmail
		}
	}

	// Fail on the template itself before looking at any row.
	if _, err := email.Fields(req.SubjectTemplate); err != nil {
		return nil, templateError(op, "subject", err)
	}
	if _, err := email.Fields(req.BodyTemplate); err != nil {
		return nil, templateError(op, "body", err)
	}

	tasks := make([]worker.Task, 0, len(req.Rows))
	for i, row := range req.Rows {
		subject, err := email.Render(req.SubjectTemplate, row)
		if err != nil {
			return nil, templateError(op, "subject", withRow(err, i))
		}
		body, err := email.Render(req.BodyTemplate, row)
		if err != nil {
			return nil, templateError(op, "body", withRow(err, i))
		}

		recipient := strings.TrimSpace(row["email"])
		if req.TestRecipient != "" {
			recipient = req.TestRecipient
		}
		if recipient == "" {
			return nil, domain.Invalid(op, fmt.Sprintf("Row %d has no email address", i+1))
		}

		tasks = append(tasks, worker.Task{
			Index:       i,
			Recipient:   recipient,
			Subject:     subject,
			Body:        body,
			Attachments: req.Attachments,
			Posters:     req.Posters,
			PosterURL:   req.PosterURL,
		})
	}

	return tasks, nil
}

func validateSMTP(cfg email.SMTPConfig) error {
	const op = "dispatch.preflight"

	var err error
	if strings.TrimSpace(cfg.Host) == "" {
		err = domain.AddFieldError(err, "smtp_server", "SMTP server is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		err = domain.AddFieldError(err, "port", "Port must be between 1 and 65535")
	}
	if cfg.Username == "" {
		err = domain.AddFieldError(err, "sender_email", "Sender email is required")
	}
	if cfg.From == "" {
		err = domain.AddFieldError(err, "smtp_from", "From address is required")
	} else if _, perr := mail.ParseAddress(cfg.From); perr != nil {
		err = domain.AddFieldError(err, "smtp_from", "From address is not a valid email address")
	}
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			ve.Op = op
		}
	}
	return err
}

// withRow stamps the 0-based row index on a template error.
func withRow(err error, row int) error {
	var tmplErr *email.TemplateError
	if errors.As(err, &tmplErr) {
		tmplErr.Row = row
	}
	return err
}

func templateError(op, which string, err error) error {
	var tmplErr *email.TemplateError
	if !errors.As(err, &tmplErr) {
		return domain.Internal(err, op, "Failed to render template")
	}
	if tmplErr.Field != "" {
		msg := fmt.Sprintf("The %s template uses {%s}, which is not a column in the spreadsheet", which, tmplErr.Field)
		if tmplErr.Row >= 0 {
			msg = fmt.Sprintf("%s (row %d)", msg, tmplErr.Row+1)
		}
		return domain.Unprocessable(err, op, msg)
	}
	return domain.Unprocessable(err, op, fmt.Sprintf("The %s template is malformed: %s", which, tmplErr.Detail))
}

func runResult(r *Report) string {
	switch {
	case r.FailureCount == 0:
		return "all_sent"
	case r.SuccessCount == 0:
		return "all_failed"
	default:
		return "partial"
	}
}
