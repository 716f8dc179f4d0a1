package mailer

import (
	"errors"
	"time"

	pkgmailer "github.com/nuntius-io/nuntius/pkg/mailer"
)

// ErrQueueClosed is returned by Put when the shutdown signal fired while
// waiting for space.
var ErrQueueClosed = errors.New("work queue: shutdown requested")

// ErrQueueDrained is returned by Get when the shutdown signal fired and no
// work is left.
var ErrQueueDrained = errors.New("work queue: drained")

// Item is one unit of work handed from a dispatcher to a sender.
type Item struct {
	Message    *pkgmailer.Message
	RecordID   int64
	CampaignID int64
}

// Queue is the bounded work queue between dispatchers and senders. The
// bound back-pressures dispatchers so a fast segment scan cannot run ahead
// of the sending rate.
type Queue struct {
	items        chan Item
	pollInterval time.Duration
}

// NewQueue creates a queue holding at most capacity items.
func NewQueue(capacity int, pollInterval time.Duration) *Queue {
	return &Queue{
		items:        make(chan Item, capacity),
		pollInterval: pollInterval,
	}
}

// Put enqueues one item, blocking on back-pressure. It returns
// ErrQueueClosed when quit fires before space opens up.
func (q *Queue) Put(item Item, quit <-chan struct{}) error {
	select {
	case q.items <- item:
		return nil
	default:
	}
	select {
	case q.items <- item:
		return nil
	case <-quit:
		return ErrQueueClosed
	}
}

// Get dequeues one item. When quit fires, remaining items are still handed
// out until the queue is empty, then Get returns ErrQueueDrained.
func (q *Queue) Get(quit <-chan struct{}) (Item, error) {
	for {
		select {
		case item := <-q.items:
			return item, nil
		default:
		}

		timer := time.NewTimer(q.pollInterval)
		select {
		case item := <-q.items:
			timer.Stop()
			return item, nil
		case <-quit:
			timer.Stop()
			select {
			case item := <-q.items:
				return item, nil
			default:
				return Item{}, ErrQueueDrained
			}
		case <-timer.C:
		}
	}
}

// Len returns the number of queued items.
func (q *Queue) Len() int { return len(q.items) }

// Cap returns the queue bound.
func (q *Queue) Cap() int { return cap(q.items) }
