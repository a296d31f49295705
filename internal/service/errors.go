package service

import (
	"github.com/dukerupert/courier/internal/domain"
)

// Pre-flight errors - nothing has been sent when these are returned
var (
	ErrNoRecipients     = domain.Errorf(domain.EINVALID, "dispatch.preflight", "No recipients to send to")
	ErrInvalidTestEmail = domain.NewValidationError("dispatch.preflight", "test_email", "Enter a valid email address")
)
