package mailer

import (
	"errors"
	"fmt"
)

// RecipientRefusedError means the server rejected the recipient address.
// The message must not be retried.
type RecipientRefusedError struct {
	Recipient string
	Err       error
}

func (e *RecipientRefusedError) Error() string {
	return fmt.Sprintf("recipient refused: %s: %v", e.Recipient, e.Err)
}

func (e *RecipientRefusedError) Unwrap() error { return e.Err }

// DisconnectedError means the server dropped the connection mid-session.
// The connection must be reopened before the message is retried.
type DisconnectedError struct {
	Err error
}

func (e *DisconnectedError) Error() string {
	return fmt.Sprintf("server disconnected: %v", e.Err)
}

func (e *DisconnectedError) Unwrap() error { return e.Err }

// IsRecipientRefused reports whether err marks a permanently refused
// recipient.
func IsRecipientRefused(err error) bool {
	var refused *RecipientRefusedError
	return errors.As(err, &refused)
}

// IsDisconnected reports whether err marks a dropped connection.
func IsDisconnected(err error) bool {
	var disconnected *DisconnectedError
	return errors.As(err, &disconnected)
}
