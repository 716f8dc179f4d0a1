package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nuntius-io/nuntius/internal/domain"
)

// SegmentRepository implements domain.SegmentRepository
type SegmentRepository struct {
	db *sql.DB
}

// NewSegmentRepository creates a new segment repository
func NewSegmentRepository(db *sql.DB) *SegmentRepository {
	return &SegmentRepository{db: db}
}

// GetByID retrieves one segment
func (r *SegmentRepository) GetByID(ctx context.Context, id int64) (*domain.Segment, error) {
	segment := &domain.Segment{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, utm_term FROM segments WHERE id = $1`, id).
		Scan(&segment.ID, &segment.Name, &segment.UTMTerm)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "segment", ID: fmt.Sprintf("%d", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get segment: %w", err)
	}
	return segment, nil
}
