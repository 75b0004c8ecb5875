package usecase

import (
	"context"
	"fmt"
	"time"

	"MotionPull/internal/domain/models"
	domrepo "MotionPull/internal/domain/repository"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 1000
)

// ActivityQuery answers read requests for classified windows.
type ActivityQuery struct {
	store domrepo.RecordStore
}

func NewActivityQuery(store domrepo.RecordStore) *ActivityQuery {
	return &ActivityQuery{store: store}
}

// Latest returns the newest record for resourceID or domrepo.ErrRecordNotFound.
func (q *ActivityQuery) Latest(ctx context.Context, resourceID string) (*models.ClassificationRecord, error) {
	if resourceID == "" {
		return nil, fmt.Errorf("resource id required")
	}
	return q.store.Latest(ctx, resourceID)
}

// History returns records in [from, to], newest first.
func (q *ActivityQuery) History(ctx context.Context, resourceID string, from, to time.Time, limit int) ([]*models.ClassificationRecord, error) {
	if resourceID == "" {
		return nil, fmt.Errorf("resource id required")
	}
	if from.After(to) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	records, err := q.store.Query(ctx, resourceID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	return records, nil
}

// Health checks the record store.
func (q *ActivityQuery) Health(ctx context.Context) error {
	return q.store.Health(ctx)
}
