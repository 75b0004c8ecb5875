package usecase

import (
	"context"
	"fmt"
	"time"

	"MotionPull/internal/codec"
	"MotionPull/internal/domain/models"
	domrepo "MotionPull/internal/domain/repository"
	applogger "MotionPull/pkg/logger"
)

// Steps of a classification, used in errors and metrics.
const (
	StageDecode  = "decode"
	StagePredict = "predict"
	StageResult  = "result"
	StagePersist = "persist"
)

// ClassifyError reports which step failed for which resource.
type ClassifyError struct {
	Stage      string
	ResourceID string
	Err        error
}

func (e *ClassifyError) Error() string {
	return fmt.Sprintf("classify %s: %s: %v", e.ResourceID, e.Stage, e.Err)
}

func (e *ClassifyError) Unwrap() error { return e.Err }

type recordSink interface {
	Persist(ctx context.Context, r *models.ClassificationRecord) error
}

// Classifier turns one telemetry payload into a persisted classification
// record. It returns typed errors and never decides on acknowledgement.
type Classifier struct {
	predictor domrepo.Predictor
	vocab     codec.Vocabulary
	sink      recordSink
	feed      domrepo.Broadcaster
	metrics   domrepo.Metrics
	logger    *applogger.Logger
	now       func() time.Time
}

type ClassifierOption func(*Classifier)

// WithBroadcaster pushes every persisted record to b.
func WithBroadcaster(b domrepo.Broadcaster) ClassifierOption {
	return func(c *Classifier) { c.feed = b }
}

func WithClock(now func() time.Time) ClassifierOption {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

func NewClassifier(
	predictor domrepo.Predictor,
	vocab codec.Vocabulary,
	sink recordSink,
	metrics domrepo.Metrics,
	logger *applogger.Logger,
	opts ...ClassifierOption,
) *Classifier {
	if len(vocab) == 0 {
		vocab = codec.DefaultVocabulary
	}
	c := &Classifier{
		predictor: predictor,
		vocab:     vocab,
		sink:      sink,
		metrics:   metrics,
		logger:    logger.With(applogger.String("component", "classifier")),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify decodes payload, asks the predictor for activity scores and hands
// the resulting record to the sink. On a persist failure the record is still
// returned together with the error.
func (c *Classifier) Classify(ctx context.Context, resourceID, payload string) (*models.ClassificationRecord, error) {
	start := time.Now()

	batch, err := codec.DecodeBase64Batch(payload)
	if err != nil {
		return nil, c.fail(StageDecode, resourceID, err)
	}

	predictStart := time.Now()
	prediction, err := c.predictor.Predict(ctx, codec.EncodeInstance(batch))
	c.metrics.RecordLatency(StagePredict, time.Since(predictStart).Seconds())
	if err != nil {
		return nil, c.fail(StagePredict, resourceID, err)
	}

	scores, err := codec.DecodeScores(prediction, c.vocab)
	if err != nil {
		return nil, c.fail(StageResult, resourceID, err)
	}

	record := models.NewClassificationRecord(c.now(), resourceID, scores, batch)
	if top, ok := record.TopActivity(); ok {
		c.metrics.RecordClassification(top.Label, top.Value)
		c.logger.Debug("window classified",
			applogger.String("resource", resourceID),
			applogger.String("activity", top.Label),
			applogger.Float64("score", top.Value))
	}

	if err := c.sink.Persist(ctx, record); err != nil {
		return record, c.fail(StagePersist, resourceID, err)
	}
	if c.feed != nil {
		c.feed.Broadcast(ctx, record)
	}

	c.metrics.RecordLatency("classify", time.Since(start).Seconds())
	return record, nil
}

func (c *Classifier) fail(stage, resourceID string, err error) error {
	c.metrics.RecordError(stage)
	return &ClassifyError{Stage: stage, ResourceID: resourceID, Err: err}
}
