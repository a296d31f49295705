package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dukerupert/courier/internal/domain"
	"github.com/dukerupert/courier/internal/email"
	"github.com/dukerupert/courier/internal/jobs"
	"github.com/dukerupert/courier/internal/service"
	"github.com/dukerupert/courier/internal/spreadsheet"
	"github.com/dukerupert/courier/internal/storage"
)

// Dispatcher runs one bulk send.
type Dispatcher interface {
	Run(ctx context.Context, req service.Request) (*service.Report, error)
}

// SendConfig holds the request-independent settings of the send handlers.
type SendConfig struct {
	// MaxUploadMB bounds the whole multipart body. Zero means 64.
	MaxUploadMB int64

	SMTPTimeout       time.Duration
	SMTPAllowInsecure bool
}

// SendHandler serves the bulk and single test send endpoints.
type SendHandler struct {
	dispatcher Dispatcher
	workspace  *storage.Workspace
	config     SendConfig
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewSendHandler creates a send handler.
func NewSendHandler(dispatcher Dispatcher, workspace *storage.Workspace, config SendConfig, logger *slog.Logger) *SendHandler {
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SendHandler{
		dispatcher: dispatcher,
		workspace:  workspace,
		config:     config,
		validate:   newValidator(),
		logger:     logger,
	}
}

// SendEmail handles POST /send-email: one message per spreadsheet row, or
// every row's message to test_email when is_test is "true".
func (h *SendHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	const op = "handler.SendEmail"

	if err := h.parseMultipart(w, r); err != nil {
		respondError(w, r, err)
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	form, err := parseSendForm(r, h.validate)
	if err != nil {
		respondError(w, r, err)
		return
	}

	rows, err := readSheet(r, op)
	if err != nil {
		respondError(w, r, err)
		return
	}

	req, err := h.stage(r, form)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer jobs.CleanupWorkspace(req.Workspace, h.logger)

	req.Rows = rows
	if form.IsTest {
		req.TestRecipient = form.TestEmail
	}

	h.dispatch(w, r, req)
}

// SendTestEmail handles POST /send-test-email: one message rendered from the
// field.<name> form values and sent to test_email.
func (h *SendHandler) SendTestEmail(w http.ResponseWriter, r *http.Request) {
	if err := h.parseMultipart(w, r); err != nil {
		respondError(w, r, err)
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	form, err := parseSendForm(r, h.validate)
	if err == nil && form.TestEmail == "" {
		err = domain.NewValidationError("handler.SendTestEmail", "test_email", "This field is required")
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	req, err := h.stage(r, form)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer jobs.CleanupWorkspace(req.Workspace, h.logger)

	req.Rows = []email.Row{testRow(r, form.TestEmail)}
	req.TestRecipient = form.TestEmail

	h.dispatch(w, r, req)
}

func (h *SendHandler) dispatch(w http.ResponseWriter, r *http.Request, req service.Request) {
	h.logger.Info("dispatch requested",
		"run_id", req.RunID,
		"recipients", len(req.Rows),
		"attachments", len(req.Attachments),
		"posters", len(req.Posters),
		"test", req.TestRecipient != "",
	)

	report, err := h.dispatcher.Run(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// parseMultipart bounds and parses the request body. Url-encoded bodies are
// accepted too, for requests without files.
func (h *SendHandler) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	const op = "handler.parseMultipart"

	limit := h.config.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	err := r.ParseMultipartForm(32 << 20)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err == nil {
		return nil
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domain.Invalid(op, fmt.Sprintf("Upload exceeds %d MB", h.config.MaxUploadMB))
	}
	return domain.WrapError(err, domain.EINVALID, op, "Could not read the request form")
}

// stage opens the run workspace and saves the uploaded files into it.
func (h *SendHandler) stage(r *http.Request, form sendForm) (service.Request, error) {
	runID := form.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	dir, err := h.workspace.Open(runID)
	if err != nil {
		return service.Request{}, err
	}

	attachments, skipped, err := stageFiles(r, "attachments", attachmentExts, dir)
	if err != nil {
		jobs.CleanupWorkspace(dir, h.logger)
		return service.Request{}, domain.Internal(err, "handler.stage", "failed to stage attachments")
	}
	h.logSkipped(runID, "attachment", skipped)

	posters, skipped, err := stageFiles(r, "posters", posterExts, dir)
	if err != nil {
		jobs.CleanupWorkspace(dir, h.logger)
		return service.Request{}, domain.Internal(err, "handler.stage", "failed to stage posters")
	}
	h.logSkipped(runID, "poster", skipped)

	return service.Request{
		RunID: runID,
		SMTP: email.SMTPConfig{
			Host:          form.SMTPServer,
			Port:          form.Port,
			Username:      form.SenderEmail,
			Password:      form.SenderPassword,
			From:          form.SMTPFrom,
			Timeout:       h.config.SMTPTimeout,
			AllowInsecure: h.config.SMTPAllowInsecure,
		},
		SubjectTemplate: form.SubjectTemplate,
		BodyTemplate:    form.BodyTemplate,
		Attachments:     attachments,
		Posters:         posters,
		PosterURL:       form.PosterURL,
		Workspace:       dir,
	}, nil
}

func (h *SendHandler) logSkipped(runID, kind string, names []string) {
	for _, name := range names {
		h.logger.Warn("upload skipped, unsupported file type",
			"run_id", runID,
			"kind", kind,
			"filename", name,
		)
	}
}

// readSheet parses the excelFile upload.
func readSheet(r *http.Request, op string) ([]email.Row, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File["excelFile"]) == 0 {
		return nil, domain.NewValidationError(op, "excelFile", "A spreadsheet is required")
	}
	fh := r.MultipartForm.File["excelFile"][0]

	f, err := fh.Open()
	if err != nil {
		return nil, domain.Internal(err, op, "failed to open spreadsheet upload")
	}
	defer f.Close()

	return spreadsheet.Read(fh.Filename, f)
}

// testRow builds the single row of a test send from field.<name> values.
func testRow(r *http.Request, recipient string) email.Row {
	row := email.Row{spreadsheet.EmailColumn: recipient}
	for key, values := range r.Form {
		name, ok := strings.CutPrefix(key, "field.")
		if !ok || name == "" || len(values) == 0 {
			continue
		}
		row[name] = values[0]
	}
	return row
}
