package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/courier/internal/domain"
	"github.com/dukerupert/courier/internal/email"
)

// ConnectionTester dials an SMTP server and authenticates without sending.
type ConnectionTester func(ctx context.Context, host string, port int, username, password string, allowInsecure bool) error

// SMTPCheckHandler serves GET /smtp/check.
type SMTPCheckHandler struct {
	test          ConnectionTester
	allowInsecure bool
	timeout       time.Duration
	logger        *slog.Logger
}

// NewSMTPCheckHandler creates a check handler. A nil tester uses
// email.TestSMTPConnection.
func NewSMTPCheckHandler(test ConnectionTester, allowInsecure bool, logger *slog.Logger) *SMTPCheckHandler {
	if test == nil {
		test = email.TestSMTPConnection
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPCheckHandler{
		test:          test,
		allowInsecure: allowInsecure,
		timeout:       15 * time.Second,
		logger:        logger,
	}
}

type smtpCheckResponse struct {
	Success bool   `json:"success"`
	Server  string `json:"server"`
	Port    int    `json:"port"`
}

func (h *SMTPCheckHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handler.SMTPCheck"

	q := r.URL.Query()
	host := strings.TrimSpace(q.Get("smtp_server"))
	username := strings.TrimSpace(q.Get("sender_email"))

	var verr error
	if host == "" {
		verr = domain.AddFieldError(verr, "smtp_server", "This field is required")
	}
	port, err := strconv.Atoi(q.Get("port"))
	if err != nil || port < 1 || port > 65535 {
		verr = domain.AddFieldError(verr, "port", "Port must be between 1 and 65535")
	}
	if verr != nil {
		ValidationErrorResponse(w, r, verr)
		return
	}

	// Credentials are optional; without them only the dial and TLS are checked.
	password := r.Header.Get("X-SMTP-Password")

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.test(ctx, host, port, username, password, h.allowInsecure); err != nil {
		h.logger.Warn("smtp check failed", "server", host, "port", port, "error", err)
		ErrorResponse(w, r, domain.Unavailable(err, op,
			"Could not connect to the SMTP server: "+email.ClassifyError(err)))
		return
	}

	writeJSON(w, http.StatusOK, smtpCheckResponse{Success: true, Server: host, Port: port})
}
