package codec

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedLength = errors.New("codec: malformed telemetry length")
	ErrInvalidEncoding = errors.New("codec: invalid base64 payload")
	ErrBatchSize       = errors.New("codec: batch size mismatch")
	ErrResponseShape   = errors.New("codec: unexpected response shape")
	ErrNonFinite       = errors.New("codec: non-finite gyro reading")
)

// LengthError reports a telemetry buffer that does not split into whole records.
type LengthError struct {
	Len        int
	RecordSize int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("codec: buffer length %d is not a multiple of %d (trailing %d bytes)",
		e.Len, e.RecordSize, e.Len%e.RecordSize)
}

func (e *LengthError) Is(target error) bool { return target == ErrMalformedLength }

// NonFiniteError reports an infinite gyro reading. The prediction transport
// cannot carry it, so the whole window is rejected.
type NonFiniteError struct {
	Record int
	Field  string
}

func (e *NonFiniteError) Error() string {
	return fmt.Sprintf("codec: record %d has infinite %s", e.Record, e.Field)
}

func (e *NonFiniteError) Is(target error) bool { return target == ErrNonFinite }

// BatchSizeError reports a decoded sample count other than the window size.
type BatchSizeError struct {
	Got  int
	Want int
}

func (e *BatchSizeError) Error() string {
	return fmt.Sprintf("codec: got %d samples, want exactly %d", e.Got, e.Want)
}

func (e *BatchSizeError) Is(target error) bool { return target == ErrBatchSize }

// ResponseShapeError reports a prediction response that does not match the
// expected nested list structure.
type ResponseShapeError struct {
	Reason string
	Got    int
	Want   int
}

func (e *ResponseShapeError) Error() string {
	if e.Want > 0 {
		return fmt.Sprintf("codec: %s (got %d, want %d)", e.Reason, e.Got, e.Want)
	}
	return "codec: " + e.Reason
}

func (e *ResponseShapeError) Is(target error) bool { return target == ErrResponseShape }
