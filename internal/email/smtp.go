package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

// SMTPConfig holds SMTP connection parameters.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string // default sender address
	FromName string // optional sender display name

	// Timeout bounds dialing and every SMTP command. Zero means 30s.
	Timeout time.Duration

	// AllowInsecure downgrades STARTTLS from mandatory to opportunistic,
	// for local relays such as Mailpit that do not offer TLS.
	AllowInsecure bool
}

// SMTPSender implements Transport using go-mail.
// Every Deliver call dials its own connection and closes it before returning:
//   - STARTTLS is negotiated before AUTH (implicit TLS on port 465)
//   - AUTH mechanism is discovered from the server's EHLO response
//   - failures are folded into the returned Outcome
type SMTPSender struct {
	config *SMTPConfig
	logger *slog.Logger
}

// NewSMTPSender creates a new SMTP transport using go-mail.
func NewSMTPSender(config SMTPConfig, logger *slog.Logger) *SMTPSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPSender{
		config: &config,
		logger: logger,
	}
}

// Deliver sends a single message and reports the outcome.
func (s *SMTPSender) Deliver(ctx context.Context, email *Email) Outcome {
	msg, err := s.buildMsg(email)
	if err != nil {
		s.logger.Warn("smtp: message rejected before dial", "to", email.To, "error", err)
		return Failed(err.Error())
	}

	client, err := mail.NewClient(s.config.Host, s.buildClientOptions()...)
	if err != nil {
		return Failed(fmt.Sprintf("failed to create SMTP client: %v", err))
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		reason := ClassifyError(err)
		s.logger.Error("smtp: failed to send email",
			"to", email.To,
			"host", s.config.Host,
			"port", s.config.Port,
			"reason", reason,
			"error", err,
		)
		return Failed(reason)
	}

	s.logger.Debug("smtp: email sent", "to", email.To)
	return Sent()
}

// buildMsg encodes an Email as a go-mail message.
func (s *SMTPSender) buildMsg(email *Email) (*mail.Msg, error) {
	msg := mail.NewMsg()

	from := email.From
	if from == "" {
		from = s.config.From
	}
	if s.config.FromName != "" && !strings.Contains(from, "<") {
		if err := msg.FromFormat(s.config.FromName, from); err != nil {
			return nil, fmt.Errorf("%s: %w", ErrInvalidFromAddress.Message, err)
		}
	} else if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("%s: %w", ErrInvalidFromAddress.Message, err)
	}

	if err := msg.To(email.To...); err != nil {
		return nil, fmt.Errorf("%s: %w", ErrInvalidToAddress.Message, err)
	}

	msg.Subject(email.Subject)

	// Prefer HTML with text fallback, or just text
	if email.HTMLBody != "" && email.TextBody != "" {
		msg.SetBodyString(mail.TypeTextPlain, email.TextBody)
		msg.AddAlternativeString(mail.TypeTextHTML, email.HTMLBody)
	} else if email.HTMLBody != "" {
		msg.SetBodyString(mail.TypeTextHTML, email.HTMLBody)
	} else {
		msg.SetBodyString(mail.TypeTextPlain, email.TextBody)
	}

	for key, value := range email.Headers {
		msg.SetGenHeader(mail.Header(key), value)
	}

	for _, att := range email.Attachments {
		if err := msg.AttachReader(att.Filename, bytes.NewReader(att.Content),
			mail.WithFileContentType(mail.ContentType(att.ContentType))); err != nil {
			return nil, fmt.Errorf("failed to attach file %s: %w", att.Filename, err)
		}
	}

	for _, img := range email.Inline {
		if err := msg.EmbedReader(img.Filename, bytes.NewReader(img.Content),
			mail.WithFileContentType(mail.ContentType(img.ContentType)),
			mail.WithFileContentID(img.ContentID)); err != nil {
			return nil, fmt.Errorf("failed to embed image %s: %w", img.Filename, err)
		}
	}

	return msg, nil
}

// buildClientOptions returns go-mail client options based on configuration.
func (s *SMTPSender) buildClientOptions() []mail.Option {
	return clientOptions(s.config.Port, s.config.Username, s.config.Password, s.config.Timeout, s.config.AllowInsecure)
}

func clientOptions(port int, username, password string, timeout time.Duration, allowInsecure bool) []mail.Option {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTimeout(timeout),
	}

	switch {
	case port == 465:
		// Implicit TLS (SMTPS)
		opts = append(opts, mail.WithSSL())
	case allowInsecure:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	if username != "" && password != "" {
		opts = append(opts,
			mail.WithUsername(username),
			mail.WithPassword(password),
			mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
		)
	}

	return opts
}

// ClassifyError maps a transport error to an outcome reason: ReasonConnect
// when the server could not be reached, ReasonAuth when it rejected the
// credentials, and the error text otherwise.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ReasonConnect
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return ReasonConnect
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		switch protoErr.Code {
		case 530, 534, 535, 538:
			return ReasonAuth
		}
	}

	text := err.Error()
	lower := strings.ToLower(text)
	if strings.Contains(lower, "smtp auth") || strings.Contains(lower, "authentication failed") {
		return ReasonAuth
	}

	return text
}

// TestConnection verifies SMTP connectivity and authentication without sending email.
func (s *SMTPSender) TestConnection(ctx context.Context) error {
	return TestSMTPConnection(ctx, s.config.Host, s.config.Port, s.config.Username, s.config.Password, s.config.AllowInsecure)
}

// TestSMTPConnection verifies SMTP connectivity and authentication.
func TestSMTPConnection(ctx context.Context, host string, port int, username, password string, allowInsecure bool) error {
	opts := clientOptions(port, username, password, 10*time.Second, allowInsecure)

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if err := client.DialWithContext(ctx); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer client.Close()

	return nil
}
