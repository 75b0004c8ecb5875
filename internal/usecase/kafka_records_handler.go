package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"MotionPull/internal/domain/models"
	domrepo "MotionPull/internal/domain/repository"
	pkgkafka "MotionPull/pkg/kafka"
)

// KafkaRecordsHandler consumes published classification records and stores them.
type KafkaRecordsHandler struct {
	topic   string
	store   domrepo.RecordStore
	metrics domrepo.Metrics
}

func NewKafkaRecordsHandler(topic string, store domrepo.RecordStore, metrics domrepo.Metrics) *KafkaRecordsHandler {
	return &KafkaRecordsHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaRecordsHandler) Topic() string { return h.topic }

func (h *KafkaRecordsHandler) Handle(ctx context.Context, b []byte) error {
	var r models.ClassificationRecord
	if err := json.Unmarshal(b, &r); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("unmarshal record: %w", err)
	}
	if r.ResourceID == "" || len(r.ActivityPrediction) == 0 {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("record without resource id or scores")
	}

	// end to end lag from classification to storage
	h.metrics.RecordLatency("ingest_e2e", time.Since(r.CreatedAt()).Seconds())

	start := time.Now()
	err := h.store.Store(ctx, &r)
	h.metrics.RecordLatency("ch_insert", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaRecordsHandler)(nil)
