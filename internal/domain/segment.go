package domain

import "context"

// Segment is a named, enumerable subset of subscribers. A campaign with a
// nil segment targets all subscribers.
type Segment struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	UTMTerm string `json:"utm_term"`
}

// SegmentRepository defines methods for segment access
type SegmentRepository interface {
	// GetByID retrieves one segment
	GetByID(ctx context.Context, id int64) (*Segment, error)
}
