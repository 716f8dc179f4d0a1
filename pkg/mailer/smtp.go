package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
)

// SMTPBackend delivers messages over a persistent SMTP connection.
type SMTPBackend struct {
	config *Config
	client *mail.Client
}

// NewSMTPBackend creates an SMTP backend. The connection is established
// on Open, not here.
func NewSMTPBackend(config *Config) *SMTPBackend {
	return &SMTPBackend{config: config}
}

// Open dials the SMTP server and leaves the session ready for Send.
func (b *SMTPBackend) Open() error {
	if b.client != nil {
		return nil
	}

	clientOptions := []mail.Option{
		mail.WithPort(b.config.SMTPPort),
		mail.WithTimeout(30 * time.Second),
	}
	if b.config.SMTPUseTLS {
		clientOptions = append(clientOptions, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		clientOptions = append(clientOptions, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	// Unauthenticated relays (local postfix, port 25) are allowed.
	if b.config.SMTPUsername != "" && b.config.SMTPPassword != "" {
		clientOptions = append(clientOptions,
			mail.WithUsername(b.config.SMTPUsername),
			mail.WithPassword(b.config.SMTPPassword),
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
		)
	}

	client, err := mail.NewClient(b.config.SMTPHost, clientOptions...)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	if err := client.DialWithContext(context.Background()); err != nil {
		return fmt.Errorf("failed to dial SMTP server: %w", err)
	}

	b.client = client
	return nil
}

// Send transmits one message on the open connection.
func (b *SMTPBackend) Send(msg *Message) (*SendInfo, error) {
	if b.client == nil {
		return nil, errors.New("SMTP backend is not open")
	}

	m, messageID, err := buildMsg(msg)
	if err != nil {
		return nil, err
	}

	if err := b.client.Send(m); err != nil {
		return nil, classifySendError(msg.To, err)
	}
	return &SendInfo{MessageID: messageID}, nil
}

// Close terminates the SMTP session. Closing an unopened backend is a no-op.
func (b *SMTPBackend) Close() error {
	if b.client == nil {
		return nil
	}
	client := b.client
	b.client = nil
	if err := client.Close(); err != nil {
		return fmt.Errorf("failed to close SMTP connection: %w", err)
	}
	return nil
}

func buildMsg(msg *Message) (*mail.Msg, string, error) {
	m := mail.NewMsg(mail.WithNoDefaultUserAgent())

	if msg.FromName != "" {
		if err := m.FromFormat(msg.FromName, msg.FromEmail); err != nil {
			return nil, "", fmt.Errorf("invalid sender: %w", err)
		}
	} else {
		if err := m.From(msg.FromEmail); err != nil {
			return nil, "", fmt.Errorf("invalid sender: %w", err)
		}
	}
	if err := m.To(msg.To); err != nil {
		return nil, "", fmt.Errorf("invalid recipient: %w", err)
	}
	if msg.ReplyTo != "" {
		if err := m.ReplyTo(msg.ReplyTo); err != nil {
			return nil, "", fmt.Errorf("invalid reply-to: %w", err)
		}
	}

	m.Subject(msg.Subject)
	switch {
	case msg.TextBody == "" && msg.HTMLBody != "":
		m.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)
	default:
		m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
	}
	for key, value := range msg.Headers {
		m.SetGenHeader(mail.Header(key), value)
	}

	messageID := uuid.New().String()
	m.SetMessageIDWithValue(messageID)
	return m, messageID, nil
}

// classifySendError maps transport failures onto the retry semantics the
// connection manager understands.
func classifySendError(recipient string, err error) error {
	var sendErr *mail.SendError
	if errors.As(err, &sendErr) {
		switch sendErr.Reason {
		case mail.ErrSMTPRcptTo:
			return &RecipientRefusedError{Recipient: recipient, Err: err}
		case mail.ErrConnCheck:
			return &DisconnectedError{Err: err}
		}
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) {
		return &DisconnectedError{Err: err}
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return &DisconnectedError{Err: err}
	}
	return err
}
