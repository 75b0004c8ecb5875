package repository

import (
	"context"
	"errors"
	"time"

	"MotionPull/internal/domain/models"

	"google.golang.org/protobuf/types/known/structpb"
)

var ErrRecordNotFound = errors.New("record not found")

// Predictor submits exactly one instance and returns exactly one validated
// prediction (a numeric score list).
type Predictor interface {
	Predict(ctx context.Context, instance *structpb.Value) (*structpb.Value, error)
	Close() error
}

type RecordStore interface {
	Store(ctx context.Context, r *models.ClassificationRecord) error
	StoreBatch(ctx context.Context, records []*models.ClassificationRecord) error
	Latest(ctx context.Context, resourceID string) (*models.ClassificationRecord, error)
	Query(ctx context.Context, resourceID string, from, to time.Time, limit int) ([]*models.ClassificationRecord, error)
	Health(ctx context.Context) error
	Close() error
}

type RecordPublisher interface {
	Publish(ctx context.Context, r *models.ClassificationRecord) error
	Close() error
}

// Broadcaster pushes new records to live subscribers. It never blocks on
// slow subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, r *models.ClassificationRecord)
}

type Metrics interface {
	RecordClassification(label string, score float64)
	RecordIngest(outcome string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
