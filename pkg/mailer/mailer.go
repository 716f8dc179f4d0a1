package mailer

import (
	"fmt"
	"strings"
)

// Message is a fully rendered email ready to hand to a backend.
type Message struct {
	FromEmail string
	FromName  string
	ReplyTo   string
	To        string
	Subject   string
	TextBody  string
	HTMLBody  string

	// Headers carries extra top-level headers, e.g. List-Unsubscribe.
	Headers map[string]string
}

// SendInfo reports what the backend knows about a transmitted message.
type SendInfo struct {
	// MessageID is the provider-side identifier later echoed back by
	// webhook events. Empty when the backend has none.
	MessageID string

	// RecipientStatus is the per-recipient status an API backend reports
	// synchronously ("invalid", "rejected", "failed", ...). Empty for
	// transports with no per-recipient feedback.
	RecipientStatus string
}

// Backend is a transport that delivers rendered messages. Open establishes
// the underlying connection; Send may only be called between a successful
// Open and Close. Backends are not safe for concurrent use, each sender
// owns its own instance.
type Backend interface {
	Open() error
	Send(msg *Message) (*SendInfo, error)
	Close() error
}

// NewBackend creates a backend by name. Supported names are "smtp" and
// "console".
func NewBackend(name string, config *Config) (Backend, error) {
	switch strings.ToLower(name) {
	case "smtp":
		return NewSMTPBackend(config), nil
	case "console":
		return NewConsoleBackend(), nil
	default:
		return nil, fmt.Errorf("unknown email backend %q", name)
	}
}

// Config holds the transport settings shared by backends.
type Config struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPUseTLS   bool
}
