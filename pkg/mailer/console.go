package mailer

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
)

// ConsoleBackend is a development backend that prints messages instead of
// sending them.
type ConsoleBackend struct {
	out io.Writer
}

// NewConsoleBackend creates a console backend writing to stdout.
func NewConsoleBackend() *ConsoleBackend {
	return &ConsoleBackend{out: os.Stdout}
}

func (b *ConsoleBackend) Open() error { return nil }

func (b *ConsoleBackend) Send(msg *Message) (*SendInfo, error) {
	fmt.Fprintln(b.out, "==============================================================")
	fmt.Fprintf(b.out, "From: %s <%s>\n", msg.FromName, msg.FromEmail)
	if msg.ReplyTo != "" {
		fmt.Fprintf(b.out, "Reply-To: %s\n", msg.ReplyTo)
	}
	fmt.Fprintf(b.out, "To: %s\n", msg.To)
	fmt.Fprintf(b.out, "Subject: %s\n\n", msg.Subject)
	fmt.Fprintln(b.out, msg.TextBody)
	fmt.Fprintln(b.out, "==============================================================")
	return &SendInfo{MessageID: uuid.New().String()}, nil
}

func (b *ConsoleBackend) Close() error { return nil }
