package models

import (
	"time"

	"MotionPull/internal/codec"
)

// SensorReading is one sample flattened for storage.
type SensorReading struct {
	AccelX int16   `json:"accel_x"`
	AccelY int16   `json:"accel_y"`
	AccelZ int16   `json:"accel_z"`
	GyroX  float32 `json:"gyro_x"`
	GyroY  float32 `json:"gyro_y"`
	GyroZ  float32 `json:"gyro_z"`
}

// ClassificationRecord is what gets persisted for every classified window.
type ClassificationRecord struct {
	Created            int64                `json:"created"` // unix ms
	ResourceID         string               `json:"resourceId"`
	ActivityPrediction []codec.LabeledScore `json:"activityPrediction"`
	SensorData         []SensorReading      `json:"sensorData"`
}

// NewClassificationRecord builds a record from a decoded window and its scores.
func NewClassificationRecord(created time.Time, resourceID string, scores []codec.LabeledScore, batch *codec.SampleBatch) *ClassificationRecord {
	readings := make([]SensorReading, len(batch))
	for i, s := range batch {
		readings[i] = SensorReading{
			AccelX: s.AccelX,
			AccelY: s.AccelY,
			AccelZ: s.AccelZ,
			GyroX:  s.GyroX,
			GyroY:  s.GyroY,
			GyroZ:  s.GyroZ,
		}
	}
	return &ClassificationRecord{
		Created:            created.UnixMilli(),
		ResourceID:         resourceID,
		ActivityPrediction: scores,
		SensorData:         readings,
	}
}

// CreatedAt returns Created as a time.
func (r *ClassificationRecord) CreatedAt() time.Time {
	return time.UnixMilli(r.Created)
}

// TopActivity returns the label with the highest score.
func (r *ClassificationRecord) TopActivity() (codec.LabeledScore, bool) {
	return codec.MostLikely(r.ActivityPrediction)
}
