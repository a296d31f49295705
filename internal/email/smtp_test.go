package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "dial refused",
			err:  fmt.Errorf("dial failed: %w", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}),
			want: ReasonConnect,
		},
		{
			name: "dns failure",
			err:  &net.DNSError{Err: "no such host", Name: "smtp.invalid", IsNotFound: true},
			want: ReasonConnect,
		},
		{
			name: "server rejected credentials",
			err:  fmt.Errorf("SMTP AUTH failed: %w", &textproto.Error{Code: 535, Msg: "5.7.8 Username and Password not accepted"}),
			want: ReasonAuth,
		},
		{
			name: "auth failure without protocol error",
			err:  errors.New("smtp auth failed: unsupported mechanism"),
			want: ReasonAuth,
		},
		{
			name: "read after connect is not a connect failure",
			err:  &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")},
			want: "read tcp: connection reset by peer",
		},
		{
			name: "recipient rejected",
			err:  &textproto.Error{Code: 550, Msg: "mailbox unavailable"},
			want: "550 mailbox unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

// closedPort returns a localhost port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestSMTPSender_Deliver_Unreachable(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{
		Host:     "127.0.0.1",
		Port:     closedPort(t),
		Username: "user@example.com",
		Password: "secret",
		From:     "user@example.com",
		Timeout:  2 * time.Second,
	}, nil)

	outcome := sender.Deliver(context.Background(), &Email{
		To:       []string{"a@x.com"},
		Subject:  "Hello",
		HTMLBody: "<p>Hi</p>",
		TextBody: "Hi",
	})

	assert.False(t, outcome.OK())
	assert.Equal(t, ReasonConnect, outcome.Reason)
}

func TestSMTPSender_Deliver_InvalidRecipient(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: closedPort(t), From: "user@example.com"}, nil)

	outcome := sender.Deliver(context.Background(), &Email{To: []string{"not an address"}, TextBody: "Hi"})

	assert.False(t, outcome.OK())
	assert.Contains(t, outcome.Reason, ErrInvalidToAddress.Message)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "Sent", Sent().String())
	assert.Equal(t, "Failed: connect", Failed(ReasonConnect).String())
}
