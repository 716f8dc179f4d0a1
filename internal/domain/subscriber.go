package domain

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

// SubscriberStatus is the delivery standing of one address.
type SubscriberStatus int

const (
	SubscriberStatusSubscribed   SubscriberStatus = 1
	SubscriberStatusUnsubscribed SubscriberStatus = 2
	SubscriberStatusBounced      SubscriberStatus = 3
	SubscriberStatusComplained   SubscriberStatus = 4
)

func (s SubscriberStatus) String() string {
	switch s {
	case SubscriberStatusSubscribed:
		return "subscribed"
	case SubscriberStatusUnsubscribed:
		return "unsubscribed"
	case SubscriberStatusBounced:
		return "bounced"
	case SubscriberStatusComplained:
		return "complained"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Attributes is the free-form key to string map exposed to templates.
type Attributes map[string]string

// Value implements the driver.Valuer interface for database storage
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return json.Marshal(Attributes{})
	}
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface for database retrieval
func (a *Attributes) Scan(value interface{}) error {
	if value == nil {
		*a = Attributes{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return sql.ErrNoRows
	}
	cloned := bytes.Clone(b)
	return json.Unmarshal(cloned, a)
}

// Subscriber is one deliverable address with its template variables.
type Subscriber struct {
	ID         int64            `json:"id"`
	Email      string           `json:"email"`
	Status     SubscriberStatus `json:"status"`
	Attributes Attributes       `json:"attributes"`
}

// TemplateContext builds the variable map handed to the renderer: the
// attribute map plus the subscriber email. The email key always wins.
func (s *Subscriber) TemplateContext() map[string]interface{} {
	ctx := make(map[string]interface{}, len(s.Attributes)+1)
	for k, v := range s.Attributes {
		ctx[k] = v
	}
	ctx["email"] = s.Email
	return ctx
}

// SubscriberRepository defines methods for subscriber access. The concrete
// implementation is pluggable and selected at boot by configuration.
type SubscriberRepository interface {
	// GetByID retrieves one subscriber
	GetByID(ctx context.Context, id int64) (*Subscriber, error)

	// GetByEmail retrieves one subscriber by its unique email
	GetByEmail(ctx context.Context, email string) (*Subscriber, error)

	// SetStatusByEmail updates the delivery standing of an address.
	// Unknown addresses are ignored.
	SetStatusByEmail(ctx context.Context, email string, status SubscriberStatus) error

	// ForEachEligible streams the subscribers of a segment (all subscribers
	// when segmentID is nil) that have no send record for the campaign with
	// a result other than Pending. The callback returning an error stops
	// the stream.
	ForEachEligible(ctx context.Context, campaignID int64, segmentID *int64, fn func(*Subscriber) error) error

	// CountEligible returns the size of the ForEachEligible sequence
	CountEligible(ctx context.Context, campaignID int64, segmentID *int64) (int64, error)
}

// SubscriberRepositoryConstructor builds a repository over an open database
// handle.
type SubscriberRepositoryConstructor func(db *sql.DB) SubscriberRepository

var subscriberRepositories = map[string]SubscriberRepositoryConstructor{}

// RegisterSubscriberRepository makes a repository constructor selectable by
// name through configuration.
func RegisterSubscriberRepository(name string, constructor SubscriberRepositoryConstructor) {
	subscriberRepositories[name] = constructor
}

// NewSubscriberRepository resolves a registered constructor by name.
func NewSubscriberRepository(name string, db *sql.DB) (SubscriberRepository, error) {
	constructor, ok := subscriberRepositories[name]
	if !ok {
		names := make([]string, 0, len(subscriberRepositories))
		for n := range subscriberRepositories {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown subscriber model %q, registered: %v", name, names)
	}
	return constructor(db), nil
}
