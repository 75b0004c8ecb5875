package repository

import (
	"context"

	"MotionPull/internal/domain/models"
	domrepo "MotionPull/internal/domain/repository"
)

type producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaRecordPublisher publishes records keyed by resource id so one
// device's records stay ordered on one partition.
type KafkaRecordPublisher struct {
	producer producer
	topic    string
}

func NewKafkaRecordPublisher(p producer, topic string) *KafkaRecordPublisher {
	return &KafkaRecordPublisher{producer: p, topic: topic}
}

func (p *KafkaRecordPublisher) Publish(ctx context.Context, r *models.ClassificationRecord) error {
	return p.producer.Publish(ctx, p.topic, []byte(r.ResourceID), r)
}

// Topic is where records are published.
func (p *KafkaRecordPublisher) Topic() string { return p.topic }

func (p *KafkaRecordPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.RecordPublisher = (*KafkaRecordPublisher)(nil)
