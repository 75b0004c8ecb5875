package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
environment: test
backend:
  type: clickhouse
predictor:
  project: demo-project
  endpoint_id: "5919453944597184512"
clickhouse:
  host: localhost
  port: 9000
  database: motion
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "europe-west4", c.Predictor.Location)
	assert.Equal(t, "https://europe-west4-aiplatform.googleapis.com", c.Predictor.BaseURL)
	assert.Equal(t, 10*time.Second, c.Predictor.Timeout)
	assert.Equal(t, "activity_records", c.ClickHouse.Table)
	assert.Equal(t, "/ws/activity", c.LiveFeed.Path)
	assert.False(t, c.KafkaEnabled())
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"missing environment": `
backend: {type: clickhouse}
predictor: {project: p, endpoint_id: e}
clickhouse: {host: h}
`,
		"bad backend": `
environment: test
backend: {type: firestore}
predictor: {project: p, endpoint_id: e}
clickhouse: {host: h}
`,
		"kafka without brokers": `
environment: test
backend: {type: kafka}
predictor: {project: p, endpoint_id: e}
clickhouse: {host: h}
`,
		"missing endpoint": `
environment: test
backend: {type: clickhouse}
predictor: {project: p}
clickhouse: {host: h}
`,
		"blank label": `
environment: test
backend: {type: clickhouse}
predictor: {project: p, endpoint_id: e, labels: [STILL, "  "]}
clickhouse: {host: h}
`,
		"duplicate label": `
environment: test
backend: {type: clickhouse}
predictor: {project: p, endpoint_id: e, labels: [STILL, MOVING, STILL]}
clickhouse: {host: h}
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseAcceptsLabelOverride(t *testing.T) {
	c, err := Parse([]byte(`
environment: test
backend: {type: clickhouse}
predictor: {project: p, endpoint_id: e, labels: [STILL, MOVING]}
clickhouse: {host: h}
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"STILL", "MOVING"}, c.Predictor.Labels)
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	env := map[string]string{
		"BACKEND":       "kafka",
		"KAFKA_BROKERS": "k1:9092,k2:9092",
		"KAFKA_TOPIC":   "activity.records",
		"REDIS_HOST":    "redis",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "kafka", c.Backend.Type)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Redis.Enabled)
	assert.NoError(t, c.Validate())
}
