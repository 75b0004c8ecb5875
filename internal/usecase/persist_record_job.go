package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"MotionPull/internal/domain/models"
	"MotionPull/pkg/queue"
)

// PersistRecordJob retries records the sink could not persist inline.
type PersistRecordJob struct {
	sink *RecordSink
}

func NewPersistRecordJob(sink *RecordSink) *PersistRecordJob {
	return &PersistRecordJob{sink: sink}
}

func (j *PersistRecordJob) Name() string { return "persist-record" }

func (j *PersistRecordJob) Type() string { return PersistRecordJobType }

func (j *PersistRecordJob) Handle(ctx context.Context, payload json.RawMessage) error {
	r, err := queue.DecodePayload[models.ClassificationRecord](payload)
	if err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return j.sink.deliver(ctx, r)
}

var _ queue.Job = (*PersistRecordJob)(nil)
