package queue

import (
	"context"
	"encoding/json"
	"testing"

	"MotionPull/pkg/logger"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type persistArgs struct {
	ResourceID string `json:"resource_id"`
	Created    int64  `json:"created"`
}

type nopJob struct{}

func (nopJob) Name() string                                  { return "nop" }
func (nopJob) Type() string                                  { return "nop" }
func (nopJob) Handle(context.Context, json.RawMessage) error { return nil }

func TestDecodePayload(t *testing.T) {
	got, err := DecodePayload[persistArgs](json.RawMessage(`{"resource_id":"/dev/1","created":42}`))
	require.NoError(t, err)
	assert.Equal(t, persistArgs{ResourceID: "/dev/1", Created: 42}, *got)

	_, err = DecodePayload[persistArgs](nil)
	assert.Error(t, err)

	_, err = DecodePayload[persistArgs](json.RawMessage(`[`))
	assert.Error(t, err)
}

func TestMessageEnvelopeKeepsRawPayload(t *testing.T) {
	msg := Message{ID: "1", Type: "persist_record", Payload: json.RawMessage(`{"resource_id":"/dev/1"}`)}
	b, err := json.Marshal(msg)
	require.NoError(t, err)

	var back Message
	require.NoError(t, json.Unmarshal(b, &back))
	assert.JSONEq(t, `{"resource_id":"/dev/1"}`, string(back.Payload))
}

func TestKeysUsePrefix(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	q := NewRedisQueue(logger.NewNop(), nil, client, WithKeyPrefix("test:q"))
	assert.Equal(t, "test:q:messages", q.queueKey())
	assert.Equal(t, "test:q:retry", q.retryKey())
	assert.Equal(t, "test:q:dlq", q.deadLetterKey())
	assert.Equal(t, 1, q.config.Workers)
}

func TestEnqueueRequiresRunningQueue(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	q := NewRedisQueue(logger.NewNop(), nil, client)
	q.RegisterJob(nopJob{})
	assert.Error(t, q.Enqueue(context.Background(), "nop", struct{}{}))
}
