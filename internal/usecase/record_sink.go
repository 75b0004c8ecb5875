package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MotionPull/internal/domain/models"
	domrepo "MotionPull/internal/domain/repository"
	applogger "MotionPull/pkg/logger"
)

const (
	BackendClickHouse = "clickhouse"
	BackendKafka      = "kafka"

	// PersistRecordJobType is the queue message type for deferred persistence.
	PersistRecordJobType = "persist_record"
)

type retryQueue interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// RecordSink routes records to the configured backend. When a retry queue is
// attached, records that fail to persist are enqueued instead of dropped.
type RecordSink struct {
	backend string
	store   domrepo.RecordStore
	pub     domrepo.RecordPublisher
	retry   retryQueue
	metrics domrepo.Metrics
	logger  *applogger.Logger
}

type SinkOption func(*RecordSink)

func WithRetryQueue(q retryQueue) SinkOption {
	return func(s *RecordSink) { s.retry = q }
}

func NewRecordSink(
	backend string,
	store domrepo.RecordStore,
	pub domrepo.RecordPublisher,
	metrics domrepo.Metrics,
	logger *applogger.Logger,
	opts ...SinkOption,
) *RecordSink {
	s := &RecordSink{
		backend: backend,
		store:   store,
		pub:     pub,
		metrics: metrics,
		logger:  logger.With(applogger.String("component", "record_sink")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the configured backend name.
func (s *RecordSink) Backend() string { return s.backend }

func (s *RecordSink) Persist(ctx context.Context, r *models.ClassificationRecord) error {
	err := s.deliver(ctx, r)
	if err == nil {
		return nil
	}
	s.metrics.RecordError(StagePersist)
	if s.retry == nil {
		return err
	}

	if qerr := s.retry.Enqueue(ctx, PersistRecordJobType, r); qerr != nil {
		return errors.Join(err, fmt.Errorf("enqueue retry: %w", qerr))
	}
	s.logger.Warn("record queued for retry",
		applogger.String("resource", r.ResourceID),
		applogger.Error(err))
	return nil
}

// deliver writes r to the backend without falling back to the queue.
func (s *RecordSink) deliver(ctx context.Context, r *models.ClassificationRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}

	start := time.Now()
	var err error

	switch s.backend {
	case BackendKafka:
		if s.pub == nil {
			err = fmt.Errorf("kafka publisher not configured")
			break
		}
		err = s.pub.Publish(ctx, r)
	case BackendClickHouse:
		err = s.store.Store(ctx, r)
	default:
		err = fmt.Errorf("unknown backend: %s", s.backend)
	}

	if err != nil {
		return fmt.Errorf("persist record: %w", err)
	}
	s.metrics.RecordLatency("persist_"+s.backend, time.Since(start).Seconds())
	return nil
}

// Close closes the publisher and the store.
func (s *RecordSink) Close() {
	if s.pub != nil {
		if err := s.pub.Close(); err != nil {
			s.logger.Warn("close publisher", applogger.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("close store", applogger.Error(err))
		}
	}
}
