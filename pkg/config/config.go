package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"MotionPull/pkg/util"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		SlowThreshold   time.Duration `yaml:"slow_threshold"`
	} `yaml:"server"`
	Logger struct {
		Level     string        `yaml:"level"`
		Format    string        `yaml:"format"`
		Output    string        `yaml:"output"`
		LogsTopic string        `yaml:"logs_topic"`
		Flush     time.Duration `yaml:"flush_interval"`
		MaxUnique int           `yaml:"max_unique"`
	} `yaml:"logger"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Backend struct {
		Type string `yaml:"type"`
	} `yaml:"backend"`
	Predictor struct {
		BaseURL     string        `yaml:"base_url"`
		Project     string        `yaml:"project"`
		Location    string        `yaml:"location"`
		EndpointID  string        `yaml:"endpoint_id"`
		AccessToken string        `yaml:"access_token"`
		Timeout     time.Duration `yaml:"timeout"`
		Labels      []string      `yaml:"labels"`
	} `yaml:"predictor"`
	Ingest struct {
		MaxRPS    float64       `yaml:"max_rps"`
		Burst     float64       `yaml:"burst"`
		DedupeTTL time.Duration `yaml:"dedupe_ttl"`
	} `yaml:"ingest"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		Table            string        `yaml:"table"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Cache struct {
		LatestTTL     time.Duration `yaml:"latest_ttl"`
		MemoryMaxSize int           `yaml:"memory_max_size"`
	} `yaml:"cache"`
	Queue struct {
		Workers    int           `yaml:"workers"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
	} `yaml:"queue"`
	LiveFeed struct {
		Enabled      bool          `yaml:"enabled"`
		Path         string        `yaml:"path"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		PingInterval time.Duration `yaml:"ping_interval"`
		SendBuffer   int           `yaml:"send_buffer"`
	} `yaml:"livefeed"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, fills defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("PREDICTOR_PROJECT"); v != "" {
		c.Predictor.Project = v
	}
	if v := getenv("PREDICTOR_LOCATION"); v != "" {
		c.Predictor.Location = v
	}
	if v := getenv("PREDICTOR_ENDPOINT_ID"); v != "" {
		c.Predictor.EndpointID = v
	}
	if v := getenv("PREDICTOR_TOKEN"); v != "" {
		c.Predictor.AccessToken = v
	}
	if v := getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "json"
	}
	if c.Logger.Output == "" {
		c.Logger.Output = "stdout"
	}
	if c.Predictor.Location == "" {
		c.Predictor.Location = "europe-west4"
	}
	if c.Predictor.BaseURL == "" {
		c.Predictor.BaseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com", c.Predictor.Location)
	}
	if c.Predictor.Timeout <= 0 {
		c.Predictor.Timeout = 10 * time.Second
	}
	if c.ClickHouse.Table == "" {
		c.ClickHouse.Table = "activity_records"
	}
	if c.Cache.LatestTTL <= 0 {
		c.Cache.LatestTTL = 10 * time.Minute
	}
	if c.LiveFeed.Path == "" {
		c.LiveFeed.Path = "/ws/activity"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Backend.Type == "" {
		return fmt.Errorf("backend.type is required")
	}
	if c.Backend.Type != "kafka" && c.Backend.Type != "clickhouse" {
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if c.Backend.Type == "kafka" && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka.brokers and kafka.topic are required for kafka backend")
	}
	if c.Predictor.Project == "" {
		return fmt.Errorf("predictor.project is required")
	}
	if c.Predictor.EndpointID == "" {
		return fmt.Errorf("predictor.endpoint_id is required")
	}
	if err := validateLabels(c.Predictor.Labels); err != nil {
		return err
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	if c.Ingest.MaxRPS < 0 || c.Ingest.Burst < 0 {
		return fmt.Errorf("ingest.max_rps and ingest.burst must not be negative")
	}
	return nil
}

// validateLabels checks a configured vocabulary override. An empty list keeps
// the built-in vocabulary.
func validateLabels(labels []string) error {
	seen := make(map[string]struct{}, len(labels))
	for i, l := range labels {
		if strings.TrimSpace(l) == "" {
			return fmt.Errorf("predictor.labels[%d] is blank", i)
		}
		if _, dup := seen[l]; dup {
			return fmt.Errorf("predictor.labels has duplicate %q", l)
		}
		seen[l] = struct{}{}
	}
	return nil
}

// KafkaEnabled reports whether any Kafka brokers are configured.
func (c *Config) KafkaEnabled() bool { return len(c.Kafka.Brokers) > 0 }
