package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"MotionPull/internal/codec"
	"MotionPull/internal/domain/models"
	domrepo "MotionPull/internal/domain/repository"
	"MotionPull/internal/service/ratelimit"
	"MotionPull/internal/usecase"
	"MotionPull/pkg/cache"
	applogger "MotionPull/pkg/logger"
	"MotionPull/pkg/queue"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopMetrics struct {
	mu     sync.Mutex
	ingest map[string]int
}

func (m *nopMetrics) RecordClassification(string, float64) {}
func (m *nopMetrics) RecordError(string)                   {}
func (m *nopMetrics) RecordLatency(string, float64)        {}

func (m *nopMetrics) RecordIngest(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ingest == nil {
		m.ingest = map[string]int{}
	}
	m.ingest[outcome]++
}

type fakeClassifier struct {
	calls []string
	errs  map[string]error
}

func (f *fakeClassifier) Classify(_ context.Context, resourceID, _ string) (*models.ClassificationRecord, error) {
	f.calls = append(f.calls, resourceID)
	if err := f.errs[resourceID]; err != nil {
		return nil, err
	}
	return &models.ClassificationRecord{
		ResourceID:         resourceID,
		ActivityPrediction: []codec.LabeledScore{{Label: "WALKING", Value: 0.2}, {Label: "LAYING", Value: 0.8}},
	}, nil
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func serve(t *testing.T, h interface{ RegisterRoutes(*echo.Echo) }, method, target, body string) (int, envelope) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func ackOf(t *testing.T, env envelope) models.AckResponse {
	t.Helper()
	var ack models.AckResponse
	require.NoError(t, json.Unmarshal(env.Data, &ack))
	return ack
}

func TestNotificationsProcessesEveryNotification(t *testing.T) {
	fc := &fakeClassifier{errs: map[string]error{
		"/dev/bad": &usecase.ClassifyError{Stage: usecase.StageDecode, ResourceID: "/dev/bad", Err: codec.ErrMalformedLength},
	}}
	m := &nopMetrics{}
	h := NewNotificationsEchoHandler(applogger.NewNop(), fc, m)

	code, env := serve(t, h, http.MethodPost, "/notifications",
		`{"notifications":[{"payload":"AA==","path":"/dev/1"},{"payload":"AA==","path":"/dev/bad"}]}`)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, http.StatusOK, env.Status)
	ack := ackOf(t, env)
	assert.True(t, ack.Acknowledged)
	assert.Equal(t, "1 of 2 notifications failed", ack.Message)
	require.Len(t, ack.Results, 2)
	assert.Equal(t, models.StatusClassified, ack.Results[0].Status)
	assert.Equal(t, "LAYING", ack.Results[0].Activity)
	assert.Equal(t, models.StatusFailed, ack.Results[1].Status)
	assert.Contains(t, ack.Results[1].Error, "malformed")
	assert.Equal(t, []string{"/dev/1", "/dev/bad"}, fc.calls)
	assert.Equal(t, 1, m.ingest[models.StatusFailed])
}

func TestNotificationsAcknowledgesInvalidBody(t *testing.T) {
	fc := &fakeClassifier{}
	h := NewNotificationsEchoHandler(applogger.NewNop(), fc, &nopMetrics{})

	for _, body := range []string{`{"notifications":[]}`, `{"notifications":`, `{"notifications":[{"path":"/dev/1"}]}`} {
		code, env := serve(t, h, http.MethodPost, "/notifications", body)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, http.StatusOK, env.Status)

		ack := ackOf(t, env)
		assert.True(t, ack.Acknowledged)
		assert.Equal(t, "invalid request", ack.Message)
		assert.NotNil(t, ack.Errors)
	}
	assert.Empty(t, fc.calls)
}

func TestNotificationsCustomAckPolicy(t *testing.T) {
	fc := &fakeClassifier{}
	h := NewNotificationsEchoHandler(applogger.NewNop(), fc, &nopMetrics{},
		WithAckPolicy(func(results []models.NotificationResult) *models.AckResponse {
			return &models.AckResponse{Acknowledged: true, Message: "custom", Results: results}
		}))

	_, env := serve(t, h, http.MethodPost, "/notifications", `{"notifications":[{"payload":"AA==","path":"/dev/1"}]}`)

	ack := ackOf(t, env)
	assert.Equal(t, "custom", ack.Message)
	require.Len(t, ack.Results, 1)
	assert.Equal(t, models.StatusClassified, ack.Results[0].Status)
}

func TestNotificationsDedupeAndThrottle(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	fc := &fakeClassifier{errs: map[string]error{
		"/dev/flaky": &usecase.ClassifyError{Stage: usecase.StagePredict, ResourceID: "/dev/flaky", Err: errors.New("unavailable")},
	}}
	h := NewNotificationsEchoHandler(applogger.NewNop(), fc, &nopMetrics{},
		WithDedupe(mc, time.Minute),
		WithLimiter(ratelimit.New(0.001, 1)))

	body := `{"notifications":[
		{"payload":"AA==","path":"/dev/1"},
		{"payload":"AA==","path":"/dev/1"},
		{"payload":"AQ==","path":"/dev/1"},
		{"payload":"AA==","path":"/dev/flaky"}
	]}`
	_, env := serve(t, h, http.MethodPost, "/notifications", body)
	ack := ackOf(t, env)
	require.Len(t, ack.Results, 4)
	assert.Equal(t, models.StatusClassified, ack.Results[0].Status)
	assert.Equal(t, models.StatusDuplicate, ack.Results[1].Status)
	assert.Equal(t, models.StatusThrottled, ack.Results[2].Status)
	assert.Equal(t, models.StatusFailed, ack.Results[3].Status)

	// predict failures release the dedupe lock so a resend is retried
	ok, err := mc.TryLock(context.Background(), cache.GenerateKey("dedupe", cache.HashKey("/dev/flaky", "AA==")), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

type recordStore struct {
	domrepo.RecordStore
	records   []*models.ClassificationRecord
	healthErr error
	limit     int
	from, to  time.Time
}

func (s *recordStore) Latest(_ context.Context, id string) (*models.ClassificationRecord, error) {
	for _, r := range s.records {
		if r.ResourceID == id {
			return r, nil
		}
	}
	return nil, domrepo.ErrRecordNotFound
}

func (s *recordStore) Query(_ context.Context, _ string, from, to time.Time, limit int) ([]*models.ClassificationRecord, error) {
	s.from, s.to, s.limit = from, to, limit
	return s.records, nil
}

func (s *recordStore) Health(context.Context) error { return s.healthErr }

type stubQueue struct{ stats queue.Stats }

func (q stubQueue) Stats(context.Context) (queue.Stats, error) { return q.stats, nil }

func TestActivityLatest(t *testing.T) {
	store := &recordStore{records: []*models.ClassificationRecord{{Created: 7, ResourceID: "/dev/1"}}}
	h := NewActivityEchoHandler(applogger.NewNop(), usecase.NewActivityQuery(store), 0, nil)

	_, env := serve(t, h, http.MethodGet, "/api/activity/%2Fdev%2F1/latest", "")
	assert.Equal(t, http.StatusOK, env.Status)
	var r models.ClassificationRecord
	require.NoError(t, json.Unmarshal(env.Data, &r))
	assert.Equal(t, int64(7), r.Created)

	code, env := serve(t, h, http.MethodGet, "/api/activity/unknown/latest", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, http.StatusNotFound, env.Status)
}

func TestActivityHistory(t *testing.T) {
	store := &recordStore{records: []*models.ClassificationRecord{{ResourceID: "dev1"}, {ResourceID: "dev1"}}}
	h := NewActivityEchoHandler(applogger.NewNop(), usecase.NewActivityQuery(store), time.Hour, nil)

	_, env := serve(t, h, http.MethodGet, "/api/activity/dev1?from=2021-01-01T00:00:00Z&to=2021-01-02T00:00:00Z", "")
	assert.Equal(t, http.StatusOK, env.Status)
	var list struct {
		Rows  []models.ClassificationRecord `json:"rows"`
		Total int64                         `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(2), list.Total)
	assert.Equal(t, 50, store.limit)
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), store.from.UTC())

	_, env = serve(t, h, http.MethodGet, "/api/activity/dev1?limit=20", "")
	assert.Equal(t, http.StatusOK, env.Status)
	assert.Equal(t, 20, store.limit)
	assert.InDelta(t, time.Hour.Seconds(), store.to.Sub(store.from).Seconds(), 1)

	_, env = serve(t, h, http.MethodGet, "/api/activity/dev1?limit=5000", "")
	assert.Equal(t, http.StatusBadRequest, env.Status)

	_, env = serve(t, h, http.MethodGet, "/api/activity/dev1?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestHealth(t *testing.T) {
	store := &recordStore{}
	h := NewActivityEchoHandler(applogger.NewNop(), usecase.NewActivityQuery(store), 0, stubQueue{stats: queue.Stats{Pending: 3}})

	_, env := serve(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, env.Status)
	var report healthReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, "ok", report.Status)
	require.NotNil(t, report.Queue)
	assert.Equal(t, int64(3), report.Queue.Pending)

	store.healthErr = errors.New("connection refused")
	_, env = serve(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, env.Status)
}
