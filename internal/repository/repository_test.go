package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"MotionPull/internal/codec"
	"MotionPull/internal/domain/models"
	domrepo "MotionPull/internal/domain/repository"
	"MotionPull/pkg/cache"
	applogger "MotionPull/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(resourceID string, created time.Time, top int) *models.ClassificationRecord {
	scores := make([]codec.LabeledScore, len(codec.DefaultVocabulary))
	for i, label := range codec.DefaultVocabulary {
		scores[i] = codec.LabeledScore{Label: label, Value: 0.02}
	}
	scores[top].Value = 0.9

	samples := make([]codec.Sample, codec.WindowSize)
	for i := range samples {
		samples[i] = codec.Sample{AccelX: int16(i), AccelY: int16(-i), AccelZ: 1, GyroX: 0.5, GyroY: -0.5, GyroZ: float32(i)}
	}
	batch, _ := codec.NewSampleBatch(samples)
	return models.NewClassificationRecord(created, resourceID, scores, batch)
}

func TestRowConversionRoundTrip(t *testing.T) {
	created := time.Date(2021, 3, 1, 12, 0, 0, 123*int(time.Millisecond), time.UTC)
	r := sampleRecord("/dev/1", created, int(codec.Standing))

	row := toRow(r)
	assert.Equal(t, "STANDING", row.TopLabel)
	assert.Equal(t, 0.9, row.TopScore)
	assert.Len(t, row.AccelX, codec.WindowSize)
	assert.Equal(t, int16(-7), row.AccelY[7])

	back, err := fromRow(row)
	require.NoError(t, err)
	assert.Equal(t, r, back)
	assert.Len(t, recordToRow(r), 12)
}

func TestFromRowRejectsRaggedColumns(t *testing.T) {
	row := toRow(sampleRecord("/dev/1", time.Now(), 0))
	row.GyroZ = row.GyroZ[:10]
	_, err := fromRow(row)
	assert.Error(t, err)

	row = toRow(sampleRecord("/dev/1", time.Now(), 0))
	row.Scores = row.Scores[:5]
	_, err = fromRow(row)
	assert.Error(t, err)
}

func TestRecordSchemaNamesTable(t *testing.T) {
	stmts := RecordSchema("activity_records")
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS activity_records")
	assert.Contains(t, stmts[0], "ORDER BY (resource_id, created)")
}

type fakeProducer struct {
	topic string
	key   []byte
	value interface{}
}

func (p *fakeProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.topic, p.key, p.value = topic, key, value
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func TestKafkaRecordPublisherKeysByResource(t *testing.T) {
	fp := &fakeProducer{}
	pub := NewKafkaRecordPublisher(fp, "activity.records")
	r := sampleRecord("/dev/9", time.Now(), 0)

	require.NoError(t, pub.Publish(context.Background(), r))
	assert.Equal(t, "activity.records", fp.topic)
	assert.Equal(t, "/dev/9", string(fp.key))

	b, err := json.Marshal(fp.value)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"resourceId":"/dev/9"`)
}

type memStore struct {
	domrepo.RecordStore
	records []*models.ClassificationRecord
	latest  int
}

func (m *memStore) Store(_ context.Context, r *models.ClassificationRecord) error {
	m.records = append(m.records, r)
	return nil
}

func (m *memStore) StoreBatch(ctx context.Context, rs []*models.ClassificationRecord) error {
	m.records = append(m.records, rs...)
	return nil
}

func (m *memStore) Latest(_ context.Context, resourceID string) (*models.ClassificationRecord, error) {
	m.latest++
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].ResourceID == resourceID {
			return m.records[i], nil
		}
	}
	return nil, domrepo.ErrRecordNotFound
}

func TestCachedRecordStoreServesLatestFromCache(t *testing.T) {
	ctx := context.Background()
	backing := &memStore{}
	mc := cache.NewMemoryCache()
	defer mc.Close()
	s := NewCachedRecordStore(backing, mc, time.Minute, applogger.NewNop())

	now := time.Now()
	newer := sampleRecord("/dev/1", now, 1)
	older := sampleRecord("/dev/1", now.Add(-time.Minute), 2)

	require.NoError(t, s.Store(ctx, newer))
	require.NoError(t, s.Store(ctx, older))

	got, err := s.Latest(ctx, "/dev/1")
	require.NoError(t, err)
	assert.Equal(t, newer.Created, got.Created, "an older write does not replace the cached record")
	assert.Equal(t, 0, backing.latest)
}

func TestCachedRecordStoreFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	backing := &memStore{}
	mc := cache.NewMemoryCache()
	defer mc.Close()
	s := NewCachedRecordStore(backing, mc, time.Minute, applogger.NewNop())

	r := sampleRecord("/dev/2", time.Now(), 0)
	backing.records = append(backing.records, r)

	got, err := s.Latest(ctx, "/dev/2")
	require.NoError(t, err)
	assert.Equal(t, r.Created, got.Created)
	assert.Equal(t, 1, backing.latest)

	_, err = s.Latest(ctx, "/dev/2")
	require.NoError(t, err)
	assert.Equal(t, 1, backing.latest, "second read is cached")

	_, err = s.Latest(ctx, "/dev/unknown")
	assert.True(t, errors.Is(err, domrepo.ErrRecordNotFound))
}
