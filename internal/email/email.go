package email

import "context"

// Email represents an email message to be sent.
type Email struct {
	To          []string          // Recipient email addresses
	From        string            // Sender address, optionally "Name <addr>"
	Subject     string            // Email subject
	TextBody    string            // Plain text alternative
	HTMLBody    string            // HTML body
	Attachments []Attachment      // Downloadable file parts
	Inline      []Attachment      // Inline parts referenced from HTMLBody by Content-ID
	Headers     map[string]string // Custom headers (optional)
}

// Attachment represents a file part of an email.
type Attachment struct {
	Filename    string // Name of the file
	ContentType string // MIME type
	ContentID   string // Set for inline parts only
	Content     []byte // File content
}

// Status is the terminal state of one delivery attempt.
type Status string

const (
	StatusSent   Status = "Sent"
	StatusFailed Status = "Failed"
)

// Well-known failure reasons. Other failures carry the transport diagnostic text.
const (
	ReasonAuth      = "auth"
	ReasonConnect   = "connect"
	ReasonCancelled = "cancelled"
)

// Outcome is the result of delivering one message. A zero Outcome is not valid;
// use Sent or Failed.
type Outcome struct {
	Status Status
	Reason string // empty when Status is StatusSent
}

// Sent returns a successful outcome.
func Sent() Outcome {
	return Outcome{Status: StatusSent}
}

// Failed returns a failed outcome carrying reason.
func Failed(reason string) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason}
}

// OK reports whether the message was accepted by the server.
func (o Outcome) OK() bool {
	return o.Status == StatusSent
}

func (o Outcome) String() string {
	if o.OK() {
		return string(StatusSent)
	}
	return string(StatusFailed) + ": " + o.Reason
}

//go:generate mockgen -source=email.go -destination=mock/transport.go -package=mock

// Transport delivers one fully built message.
// Implementations never return errors: every failure is folded into the Outcome.
type Transport interface {
	Deliver(ctx context.Context, email *Email) Outcome
}
