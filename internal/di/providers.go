package di

import (
	"context"
	"fmt"
	"time"

	"MotionPull/internal/domain/repository"
	"MotionPull/internal/handler/api"
	internalrepo "MotionPull/internal/repository"
	"MotionPull/internal/service/livefeed"
	"MotionPull/internal/service/ratelimit"
	"MotionPull/internal/services/prediction"
	"MotionPull/internal/usecase"
	"MotionPull/pkg/cache"
	pkgch "MotionPull/pkg/clickhouse"
	"MotionPull/pkg/config"
	xhttp "MotionPull/pkg/http"
	pkgkafka "MotionPull/pkg/kafka"
	applogger "MotionPull/pkg/logger"
	"MotionPull/pkg/metrics"
	"MotionPull/pkg/queue"
	"MotionPull/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegistry creates the Prometheus registry served on the metrics path.
func ProvideRegistry() *prometheus.Registry {
	return metrics.NewRegistry()
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.New(reg)
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideRedisCache connects to Redis when enabled. It returns nil otherwise.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache layers a local LRU over Redis, or uses the LRU alone.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize))
	}
	return cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize),
		cache.WithLayeredMemoryTTL(cfg.Cache.LatestTTL),
	)
}

// ProvideRecordStore creates the ClickHouse record table and fronts it with
// the latest-record cache.
func ProvideRecordStore(ch *pkgch.Client, c cache.Service, cfg *config.Config, l *applogger.Logger) (repository.RecordStore, error) {
	store := internalrepo.NewCHRecordStore(ch, cfg.ClickHouse.Table, l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return internalrepo.NewCachedRecordStore(store, c, cfg.Cache.LatestTTL, l), nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil without brokers.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if !cfg.KafkaEnabled() {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideRecordPublisher creates the Kafka record publisher, or nil.
func ProvideRecordPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.RecordPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaRecordPublisher(producer, cfg.Kafka.Topic)
}

// ProvideKafkaConsumer creates the record consumer for the kafka backend.
func ProvideKafkaConsumer(cfg *config.Config, reg *prometheus.Registry, m repository.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Backend.Type != usecase.BackendKafka {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerRegisterer(reg),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		Err: func(context.Context, string, kafka.Message, []byte, error) {
			m.RecordError("consumer_exhausted")
		},
	})
	return consumer, nil
}

// ProvideKafkaRecordsHandler stores records read from the records topic.
func ProvideKafkaRecordsHandler(store repository.RecordStore, m repository.Metrics, cfg *config.Config) *usecase.KafkaRecordsHandler {
	return usecase.NewKafkaRecordsHandler(cfg.Kafka.Topic, store, m)
}

// ProvideRetryQueue creates the persistence retry queue when Redis is enabled.
func ProvideRetryQueue(cfg *config.Config, rc *cache.RedisCache, l *applogger.Logger) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	return queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
}

// ProvidePredictor creates the pooled prediction client.
func ProvidePredictor(cfg *config.Config) *prediction.VertexPredictor {
	return prediction.NewVertexPredictor(cfg)
}

// ProvideLiveFeed creates the websocket hub, or nil when disabled.
func ProvideLiveFeed(cfg *config.Config, l *applogger.Logger, reg *prometheus.Registry) *livefeed.Hub {
	if !cfg.LiveFeed.Enabled {
		return nil
	}
	return livefeed.NewHub(livefeed.Config{
		Path:         cfg.LiveFeed.Path,
		WriteTimeout: cfg.LiveFeed.WriteTimeout,
		PingInterval: cfg.LiveFeed.PingInterval,
		SendBuffer:   cfg.LiveFeed.SendBuffer,
	}, l, reg)
}

// ProvideRecordSink routes records to the configured backend and registers
// the retry job when a queue is available.
func ProvideRecordSink(
	cfg *config.Config,
	store repository.RecordStore,
	pub repository.RecordPublisher,
	q *queue.RedisQueue,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.RecordSink {
	var opts []usecase.SinkOption
	if q != nil {
		opts = append(opts, usecase.WithRetryQueue(q))
	}
	sink := usecase.NewRecordSink(cfg.Backend.Type, store, pub, m, l, opts...)
	if q != nil {
		q.RegisterJob(usecase.NewPersistRecordJob(sink))
	}
	return sink
}

// ProvideClassifier creates the classification use case.
func ProvideClassifier(
	p *prediction.VertexPredictor,
	sink *usecase.RecordSink,
	hub *livefeed.Hub,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Classifier {
	var opts []usecase.ClassifierOption
	if hub != nil {
		opts = append(opts, usecase.WithBroadcaster(hub))
	}
	return usecase.NewClassifier(p, p.Vocabulary(), sink, m, l, opts...)
}

// ProvideActivityQuery creates the read use case.
func ProvideActivityQuery(store repository.RecordStore) *usecase.ActivityQuery {
	return usecase.NewActivityQuery(store)
}

// ProvideLimiter creates the per-resource ingest limiter.
func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Ingest.MaxRPS, cfg.Ingest.Burst)
}

// ProvideNotificationsHandler creates the ingest endpoint.
func ProvideNotificationsHandler(
	cfg *config.Config,
	l *applogger.Logger,
	c *usecase.Classifier,
	m repository.Metrics,
	limiter *ratelimit.Limiter,
	dedupe cache.Service,
) *api.NotificationsEchoHandler {
	return api.NewNotificationsEchoHandler(l, c, m,
		api.WithLimiter(limiter),
		api.WithDedupe(dedupe, cfg.Ingest.DedupeTTL),
	)
}

// ProvideActivityHandler creates the query and health endpoints.
func ProvideActivityHandler(l *applogger.Logger, q *usecase.ActivityQuery, rq *queue.RedisQueue) *api.ActivityEchoHandler {
	if rq == nil {
		return api.NewActivityEchoHandler(l, q, 0, nil)
	}
	return api.NewActivityEchoHandler(l, q, 0, rq)
}

// ProvideHTTPServer creates the Echo server with every route group.
func ProvideHTTPServer(
	cfg *config.Config,
	l *applogger.Logger,
	reg *prometheus.Registry,
	notifications *api.NotificationsEchoHandler,
	activity *api.ActivityEchoHandler,
	hub *livefeed.Hub,
) *xhttp.Server {
	handlers := []xhttp.Handler{notifications, activity}
	if hub != nil {
		handlers = append(handlers, hub)
	}

	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg, reg))
	}
	return xhttp.NewServer(l, handlers, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	chClient *pkgch.Client,
	c cache.Service,
	producer *pkgkafka.Producer,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaRecordsHandler,
	rq *queue.RedisQueue,
	sink *usecase.RecordSink,
	p *prediction.VertexPredictor,
	hub *livefeed.Hub,
	limiter *ratelimit.Limiter,
) *server.App {
	if producer != nil && cfg.Logger.LogsTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logger.Flush,
			CountThreshold: cfg.Logger.MaxUnique,
			Topic:          cfg.Logger.LogsTopic,
			Publisher:      producer,
		})
	}

	app := server.New(cfg, l, httpServer, sink, p, limiter)
	if consumer != nil {
		app.WithConsumer(consumer, kh)
	}
	if rq != nil {
		app.WithQueue(rq)
	}
	if hub != nil {
		app.WithLiveFeed(hub)
	}
	// the cache owns the Redis client, so it closes after the queue stops
	app.WithClosers(
		server.Closer{Name: "cache", Close: c.Close},
		server.Closer{Name: "clickhouse", Close: chClient.Close},
	)
	return app
}
