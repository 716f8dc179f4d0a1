package mailer

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/nuntius-io/nuntius/pkg/logger"
)

const (
	// maxSendAttempts bounds how often one message is retried across
	// reconnects before the send is given up as an error.
	maxSendAttempts = 5

	// maxBackoff caps the delay between consecutive connection attempts.
	maxBackoff = 30 * time.Second
)

// ErrQuit is returned when a blocked operation is abandoned because the
// owner signalled shutdown.
var ErrQuit = errors.New("mailer: quit requested")

// ConnectionManager wraps a backend with reconnect and retry behaviour.
// It keeps the connection open across messages, reopens it when the server
// disconnects, and recycles it after a fixed number of messages so that
// relays which cap messages per session do not fail mid-campaign.
//
// A manager belongs to a single goroutine.
type ConnectionManager struct {
	backend     Backend
	maxMessages int
	logger      logger.Logger
	quit        <-chan struct{}

	open bool
	sent int

	sleep  func(time.Duration)
	randFn func() float64
}

// NewConnectionManager creates a manager around backend. maxMessages is the
// number of messages sent on one connection before it is recycled; zero or
// negative means no recycling. Closing quit aborts any backoff wait.
func NewConnectionManager(backend Backend, maxMessages int, log logger.Logger, quit <-chan struct{}) *ConnectionManager {
	return &ConnectionManager{
		backend:     backend,
		maxMessages: maxMessages,
		logger:      log,
		quit:        quit,
		sleep:       time.Sleep,
		randFn:      rand.Float64,
	}
}

// ensureOpen opens the backend, retrying with randomised exponential
// backoff until it succeeds or quit is signalled.
func (c *ConnectionManager) ensureOpen() error {
	if c.open {
		return nil
	}
	for attempt := 0; ; attempt++ {
		select {
		case <-c.quit:
			return ErrQuit
		default:
		}

		err := c.backend.Open()
		if err == nil {
			c.open = true
			c.sent = 0
			return nil
		}

		delay := c.backoff(attempt)
		c.logger.WithField("error", err.Error()).
			WithField("retry_in", delay.String()).
			Warn("Failed to open email connection")
		c.sleep(delay)
	}
}

// backoff picks a randomised exponential delay for the given zero-based
// attempt, capped at maxBackoff.
func (c *ConnectionManager) backoff(attempt int) time.Duration {
	return time.Duration(c.randFn() * math.Min(
		math.Pow(2, float64(attempt))*float64(time.Second),
		float64(maxBackoff),
	))
}

// Send delivers one message, transparently reopening the connection when
// the server drops it. A RecipientRefusedError is returned immediately and
// never retried. Other failures are retried up to maxSendAttempts times
// with randomised exponential backoff between attempts.
func (c *ConnectionManager) Send(msg *Message) (*SendInfo, error) {
	var lastErr error
	for attempt := 0; attempt < maxSendAttempts; attempt++ {
		if err := c.ensureOpen(); err != nil {
			return nil, err
		}

		if c.maxMessages > 0 && c.sent >= c.maxMessages {
			c.closeQuietly()
			if err := c.ensureOpen(); err != nil {
				return nil, err
			}
		}

		info, err := c.backend.Send(msg)
		if err == nil {
			c.sent++
			return info, nil
		}
		if IsRecipientRefused(err) {
			return nil, err
		}

		lastErr = err
		if IsDisconnected(err) {
			c.logger.WithField("error", err.Error()).
				Warn("Email connection lost, reconnecting")
			c.closeQuietly()
			continue
		}
		if attempt+1 < maxSendAttempts {
			select {
			case <-c.quit:
				return nil, ErrQuit
			default:
			}
			delay := c.backoff(attempt)
			c.logger.WithField("error", err.Error()).
				WithField("attempt", attempt+1).
				WithField("retry_in", delay.String()).
				Warn("Failed to send message")
			c.sleep(delay)
		} else {
			c.logger.WithField("error", err.Error()).
				WithField("attempt", attempt+1).
				Warn("Failed to send message")
		}
	}
	return nil, lastErr
}

// Close shuts the underlying connection down.
func (c *ConnectionManager) Close() error {
	if !c.open {
		return nil
	}
	c.open = false
	c.sent = 0
	return c.backend.Close()
}

func (c *ConnectionManager) closeQuietly() {
	if err := c.Close(); err != nil {
		c.logger.WithField("error", err.Error()).Warn("Failed to close email connection")
	}
}
