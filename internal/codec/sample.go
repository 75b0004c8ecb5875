// Package codec converts device telemetry into prediction instances and
// prediction responses back into labeled activity scores.
//
// A telemetry block is a sequence of 18-byte little-endian records:
//
//	[0,2)   accel-x  int16
//	[2,4)   accel-y  int16
//	[4,6)   accel-z  int16
//	[6,10)  gyro-x   float32
//	[10,14) gyro-y   float32
//	[14,18) gyro-z   float32
//
// The classifier consumes windows of exactly WindowSize records.
package codec

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// RecordSize is the encoded size of one sample.
	RecordSize = 18
	// WindowSize is the number of samples the classifier expects per instance.
	WindowSize = 128
	// FieldsPerSample is the number of numeric leaves per encoded sample.
	FieldsPerSample = 6
)

// Sample is one decoded motion record.
type Sample struct {
	AccelX int16
	AccelY int16
	AccelZ int16
	GyroX  float32
	GyroY  float32
	GyroZ  float32
}

// Values returns the sample fields in wire order.
func (s Sample) Values() [FieldsPerSample]float64 {
	return [FieldsPerSample]float64{
		float64(s.AccelX),
		float64(s.AccelY),
		float64(s.AccelZ),
		float64(s.GyroX),
		float64(s.GyroY),
		float64(s.GyroZ),
	}
}

// SampleBatch is one classifier window in arrival order.
type SampleBatch [WindowSize]Sample

// NewSampleBatch copies samples into a batch. Any count other than
// WindowSize is rejected.
func NewSampleBatch(samples []Sample) (*SampleBatch, error) {
	if len(samples) != WindowSize {
		return nil, &BatchSizeError{Got: len(samples), Want: WindowSize}
	}
	var b SampleBatch
	copy(b[:], samples)
	return &b, nil
}

// DecodeRecord decodes a single record. rec must hold at least RecordSize bytes.
//
// Zero, negative zero and NaN readings all decode to 0. A legitimate zero
// reading cannot be told apart from a degenerate one. Infinite readings are
// left as is; DecodeSamples rejects them.
func DecodeRecord(rec []byte) Sample {
	_ = rec[RecordSize-1]
	return Sample{
		AccelX: int16(binary.LittleEndian.Uint16(rec[0:2])),
		AccelY: int16(binary.LittleEndian.Uint16(rec[2:4])),
		AccelZ: int16(binary.LittleEndian.Uint16(rec[4:6])),
		GyroX:  coerceFloat(math.Float32frombits(binary.LittleEndian.Uint32(rec[6:10]))),
		GyroY:  coerceFloat(math.Float32frombits(binary.LittleEndian.Uint32(rec[10:14]))),
		GyroZ:  coerceFloat(math.Float32frombits(binary.LittleEndian.Uint32(rec[14:18]))),
	}
}

// DecodeSamples decodes every record in buf, in order. The whole buffer is
// rejected when its length is not a multiple of RecordSize or when any gyro
// reading is infinite.
func DecodeSamples(buf []byte) ([]Sample, error) {
	if len(buf)%RecordSize != 0 {
		return nil, &LengthError{Len: len(buf), RecordSize: RecordSize}
	}
	out := make([]Sample, len(buf)/RecordSize)
	for i := range out {
		off := i * RecordSize
		out[i] = DecodeRecord(buf[off : off+RecordSize])
		if field := infiniteGyro(out[i]); field != "" {
			return nil, &NonFiniteError{Record: i, Field: field}
		}
	}
	return out, nil
}

func infiniteGyro(s Sample) string {
	switch {
	case math.IsInf(float64(s.GyroX), 0):
		return "gyro_x"
	case math.IsInf(float64(s.GyroY), 0):
		return "gyro_y"
	case math.IsInf(float64(s.GyroZ), 0):
		return "gyro_z"
	}
	return ""
}

// DecodeBatch decodes buf into exactly one classifier window.
func DecodeBatch(buf []byte) (*SampleBatch, error) {
	samples, err := DecodeSamples(buf)
	if err != nil {
		return nil, err
	}
	return NewSampleBatch(samples)
}

// DecodeBase64Batch decodes a base64 (standard alphabet) telemetry payload
// into one classifier window.
func DecodeBase64Batch(payload string) (*SampleBatch, error) {
	buf, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return DecodeBatch(buf)
}

// EncodeRecord writes s into rec using the telemetry layout. It is the
// inverse of DecodeRecord for non-degenerate values.
func EncodeRecord(rec []byte, s Sample) {
	_ = rec[RecordSize-1]
	binary.LittleEndian.PutUint16(rec[0:2], uint16(s.AccelX))
	binary.LittleEndian.PutUint16(rec[2:4], uint16(s.AccelY))
	binary.LittleEndian.PutUint16(rec[4:6], uint16(s.AccelZ))
	binary.LittleEndian.PutUint32(rec[6:10], math.Float32bits(s.GyroX))
	binary.LittleEndian.PutUint32(rec[10:14], math.Float32bits(s.GyroY))
	binary.LittleEndian.PutUint32(rec[14:18], math.Float32bits(s.GyroZ))
}

// EncodeSamples serializes samples back into a telemetry block.
func EncodeSamples(samples []Sample) []byte {
	buf := make([]byte, len(samples)*RecordSize)
	for i, s := range samples {
		EncodeRecord(buf[i*RecordSize:(i+1)*RecordSize], s)
	}
	return buf
}

func coerceFloat(v float32) float32 {
	if v == 0 || v != v {
		return 0
	}
	return v
}
