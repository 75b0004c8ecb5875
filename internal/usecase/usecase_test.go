package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"MotionPull/internal/codec"
	"MotionPull/internal/domain/models"
	domrepo "MotionPull/internal/domain/repository"
	applogger "MotionPull/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeMetrics struct {
	mu              sync.Mutex
	errors          map[string]int
	classifications map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{errors: map[string]int{}, classifications: map[string]int{}}
}

func (m *fakeMetrics) RecordClassification(label string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classifications[label]++
}

func (m *fakeMetrics) RecordIngest(string) {}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) RecordLatency(string, float64) {}

type fakePredictor struct {
	scores   []interface{}
	err      error
	instance *structpb.Value
}

func (p *fakePredictor) Predict(_ context.Context, instance *structpb.Value) (*structpb.Value, error) {
	p.instance = instance
	if p.err != nil {
		return nil, p.err
	}
	l, err := structpb.NewList(p.scores)
	if err != nil {
		return nil, err
	}
	return structpb.NewListValue(l), nil
}

func (p *fakePredictor) Close() error { return nil }

type fakeStore struct {
	domrepo.RecordStore
	mu      sync.Mutex
	err     error
	stored  []*models.ClassificationRecord
	records []*models.ClassificationRecord
	from    time.Time
	limit   int
}

func (s *fakeStore) Store(_ context.Context, r *models.ClassificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, r)
	return nil
}

func (s *fakeStore) Latest(_ context.Context, resourceID string) (*models.ClassificationRecord, error) {
	for _, r := range s.records {
		if r.ResourceID == resourceID {
			return r, nil
		}
	}
	return nil, domrepo.ErrRecordNotFound
}

func (s *fakeStore) Query(_ context.Context, _ string, from, _ time.Time, limit int) ([]*models.ClassificationRecord, error) {
	s.from, s.limit = from, limit
	return s.records, nil
}

func (s *fakeStore) Close() error { return nil }

type fakePublisher struct {
	published []*models.ClassificationRecord
	closed    bool
}

func (p *fakePublisher) Publish(_ context.Context, r *models.ClassificationRecord) error {
	p.published = append(p.published, r)
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

type fakeQueue struct {
	msgType string
	payload interface{}
	err     error
}

func (q *fakeQueue) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	q.msgType, q.payload = msgType, payload
	return q.err
}

type fakeFeed struct {
	records []*models.ClassificationRecord
}

func (f *fakeFeed) Broadcast(_ context.Context, r *models.ClassificationRecord) {
	f.records = append(f.records, r)
}

func windowSamples() []codec.Sample {
	samples := make([]codec.Sample, codec.WindowSize)
	for i := range samples {
		v := int16(i)
		g := float32(i) * 0.5
		samples[i] = codec.Sample{AccelX: v, AccelY: v, AccelZ: v, GyroX: g, GyroY: g, GyroZ: g}
	}
	return samples
}

func windowPayload() string {
	return base64.StdEncoding.EncodeToString(codec.EncodeSamples(windowSamples()))
}

func infinitePayload() string {
	samples := windowSamples()
	samples[3].GyroX = float32(math.Inf(1))
	return base64.StdEncoding.EncodeToString(codec.EncodeSamples(samples))
}

var fixedNow = time.Date(2021, 5, 4, 10, 0, 0, 0, time.UTC)

func newTestClassifier(p domrepo.Predictor, sink recordSink, m *fakeMetrics, opts ...ClassifierOption) *Classifier {
	opts = append(opts, WithClock(func() time.Time { return fixedNow }))
	return NewClassifier(p, codec.DefaultVocabulary, sink, m, applogger.NewNop(), opts...)
}

func TestClassifyPersistsAndBroadcasts(t *testing.T) {
	store := &fakeStore{}
	m := newFakeMetrics()
	sink := NewRecordSink(BackendClickHouse, store, nil, m, applogger.NewNop())
	feed := &fakeFeed{}
	p := &fakePredictor{scores: []interface{}{0.1, 0.05, 0.05, 0.1, 0.6, 0.1}}

	c := newTestClassifier(p, sink, m, WithBroadcaster(feed))
	r, err := c.Classify(context.Background(), "/dev/1", windowPayload())
	require.NoError(t, err)

	assert.Equal(t, fixedNow.UnixMilli(), r.Created)
	assert.Equal(t, "/dev/1", r.ResourceID)
	require.Len(t, r.SensorData, codec.WindowSize)
	assert.Equal(t, models.SensorReading{AccelX: 3, AccelY: 3, AccelZ: 3, GyroX: 1.5, GyroY: 1.5, GyroZ: 1.5}, r.SensorData[3])

	top, ok := r.TopActivity()
	require.True(t, ok)
	assert.Equal(t, "STANDING", top.Label)

	assert.Len(t, p.instance.GetListValue().GetValues(), codec.WindowSize)
	assert.Equal(t, []*models.ClassificationRecord{r}, store.stored)
	assert.Equal(t, []*models.ClassificationRecord{r}, feed.records)
	assert.Equal(t, 1, m.classifications["STANDING"])
}

func TestClassifyStageErrors(t *testing.T) {
	good := []interface{}{0.1, 0.1, 0.1, 0.1, 0.5, 0.1}
	short := base64.StdEncoding.EncodeToString(make([]byte, codec.RecordSize*10))
	ragged := base64.StdEncoding.EncodeToString(make([]byte, 20))

	cases := []struct {
		name     string
		payload  string
		pred     *fakePredictor
		stage    string
		sentinel error
	}{
		{"bad base64", "***", &fakePredictor{scores: good}, StageDecode, codec.ErrInvalidEncoding},
		{"ragged length", ragged, &fakePredictor{scores: good}, StageDecode, codec.ErrMalformedLength},
		{"short window", short, &fakePredictor{scores: good}, StageDecode, codec.ErrBatchSize},
		{"infinite gyro", infinitePayload(), &fakePredictor{scores: good}, StageDecode, codec.ErrNonFinite},
		{"predict failure", windowPayload(), &fakePredictor{err: errors.New("unavailable")}, StagePredict, nil},
		{"five scores", windowPayload(), &fakePredictor{scores: good[:5]}, StageResult, codec.ErrResponseShape},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{}
			m := newFakeMetrics()
			c := newTestClassifier(tc.pred, NewRecordSink(BackendClickHouse, store, nil, m, applogger.NewNop()), m)

			r, err := c.Classify(context.Background(), "/dev/1", tc.payload)
			assert.Nil(t, r)

			var ce *ClassifyError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.stage, ce.Stage)
			assert.Equal(t, "/dev/1", ce.ResourceID)
			if tc.sentinel != nil {
				assert.ErrorIs(t, err, tc.sentinel)
			}
			assert.Empty(t, store.stored)
			assert.Equal(t, 1, m.errors[tc.stage])
		})
	}
}

func TestClassifyPersistFailureKeepsRecord(t *testing.T) {
	store := &fakeStore{err: errors.New("clickhouse down")}
	m := newFakeMetrics()
	feed := &fakeFeed{}
	c := newTestClassifier(&fakePredictor{scores: []interface{}{1, 0, 0, 0, 0, 0}},
		NewRecordSink(BackendClickHouse, store, nil, m, applogger.NewNop()), m, WithBroadcaster(feed))

	r, err := c.Classify(context.Background(), "/dev/2", windowPayload())
	require.NotNil(t, r)
	var ce *ClassifyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StagePersist, ce.Stage)
	assert.Empty(t, feed.records)
}

func TestRecordSinkRoutesByBackend(t *testing.T) {
	ctx := context.Background()
	r := &models.ClassificationRecord{ResourceID: "/dev/1"}

	store, pub := &fakeStore{}, &fakePublisher{}
	require.NoError(t, NewRecordSink(BackendKafka, store, pub, newFakeMetrics(), applogger.NewNop()).Persist(ctx, r))
	assert.Len(t, pub.published, 1)
	assert.Empty(t, store.stored)

	store, pub = &fakeStore{}, &fakePublisher{}
	require.NoError(t, NewRecordSink(BackendClickHouse, store, pub, newFakeMetrics(), applogger.NewNop()).Persist(ctx, r))
	assert.Empty(t, pub.published)
	assert.Len(t, store.stored, 1)

	err := NewRecordSink("firestore", store, pub, newFakeMetrics(), applogger.NewNop()).Persist(ctx, r)
	assert.ErrorContains(t, err, "unknown backend")

	err = NewRecordSink(BackendKafka, store, nil, newFakeMetrics(), applogger.NewNop()).Persist(ctx, r)
	assert.Error(t, err)
}

func TestRecordSinkFallsBackToRetryQueue(t *testing.T) {
	ctx := context.Background()
	r := &models.ClassificationRecord{ResourceID: "/dev/1"}
	store := &fakeStore{err: errors.New("timeout")}
	q := &fakeQueue{}
	m := newFakeMetrics()

	sink := NewRecordSink(BackendClickHouse, store, nil, m, applogger.NewNop(), WithRetryQueue(q))
	require.NoError(t, sink.Persist(ctx, r))
	assert.Equal(t, PersistRecordJobType, q.msgType)
	assert.Same(t, r, q.payload)
	assert.Equal(t, 1, m.errors[StagePersist])

	q.err = errors.New("redis down")
	err := sink.Persist(ctx, r)
	assert.ErrorContains(t, err, "timeout")
	assert.ErrorContains(t, err, "redis down")
}

func TestPersistRecordJobDeliversWithoutRequeue(t *testing.T) {
	store := &fakeStore{}
	q := &fakeQueue{}
	job := NewPersistRecordJob(NewRecordSink(BackendClickHouse, store, nil, newFakeMetrics(), applogger.NewNop(), WithRetryQueue(q)))
	assert.Equal(t, PersistRecordJobType, job.Type())

	payload, err := json.Marshal(&models.ClassificationRecord{Created: 1, ResourceID: "/dev/3"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), payload))
	require.Len(t, store.stored, 1)
	assert.Equal(t, "/dev/3", store.stored[0].ResourceID)

	store.err = errors.New("still down")
	assert.Error(t, job.Handle(context.Background(), payload))
	assert.Empty(t, q.msgType, "failed retries go back through the queue's own retry path")

	assert.Error(t, job.Handle(context.Background(), nil))
}

func TestKafkaRecordsHandler(t *testing.T) {
	store := &fakeStore{}
	m := newFakeMetrics()
	h := NewKafkaRecordsHandler("activity.records", store, m)
	assert.Equal(t, "activity.records", h.Topic())

	b, err := json.Marshal(&models.ClassificationRecord{
		Created:            time.Now().UnixMilli(),
		ResourceID:         "/dev/4",
		ActivityPrediction: []codec.LabeledScore{{Label: "WALKING", Value: 1}},
	})
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), b))
	require.Len(t, store.stored, 1)

	assert.Error(t, h.Handle(context.Background(), []byte("{")))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"resourceId":"/dev/4"}`)))
	assert.Equal(t, 1, m.errors["consumer_unmarshal"])
	assert.Equal(t, 1, m.errors["consumer_invalid"])
}

func TestActivityQuery(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{records: []*models.ClassificationRecord{{ResourceID: "/dev/5"}}}
	q := NewActivityQuery(store)

	r, err := q.Latest(ctx, "/dev/5")
	require.NoError(t, err)
	assert.Equal(t, "/dev/5", r.ResourceID)

	_, err = q.Latest(ctx, "/dev/6")
	assert.ErrorIs(t, err, domrepo.ErrRecordNotFound)

	now := time.Now()
	_, err = q.History(ctx, "/dev/5", now.Add(-time.Hour), now, 5000)
	require.NoError(t, err)
	assert.Equal(t, MaxHistoryLimit, store.limit)

	_, err = q.History(ctx, "/dev/5", now.Add(-time.Hour), now, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultHistoryLimit, store.limit)

	_, err = q.History(ctx, "/dev/5", now, now.Add(-time.Hour), 10)
	assert.Error(t, err)
}
