package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MotionPull/internal/service/livefeed"
	"MotionPull/internal/service/ratelimit"
	"MotionPull/internal/services/prediction"
	"MotionPull/internal/usecase"
	"MotionPull/pkg/config"
	xhttp "MotionPull/pkg/http"
	pkgkafka "MotionPull/pkg/kafka"
	applogger "MotionPull/pkg/logger"
	"MotionPull/pkg/queue"
)

const limiterIdle = 10 * time.Minute

// Closer releases one infrastructure client at shutdown.
type Closer struct {
	Name  string
	Close func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	httpServer *xhttp.Server
	sink       *usecase.RecordSink
	predictor  *prediction.VertexPredictor
	limiter    *ratelimit.Limiter
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	queue      *queue.RedisQueue
	hub        *livefeed.Hub
	closers    []Closer
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	httpServer *xhttp.Server,
	sink *usecase.RecordSink,
	predictor *prediction.VertexPredictor,
	limiter *ratelimit.Limiter,
) *App {
	return &App{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		sink:       sink,
		predictor:  predictor,
		limiter:    limiter,
	}
}

// WithConsumer runs consumer with kh while the app is up.
func (a *App) WithConsumer(consumer *pkgkafka.Consumer, kh pkgkafka.MessageHandler) {
	a.consumer, a.kh = consumer, kh
}

func (a *App) WithQueue(q *queue.RedisQueue) { a.queue = q }

func (a *App) WithLiveFeed(h *livefeed.Hub) { a.hub = h }

// WithClosers adds clients closed last, in order.
func (a *App) WithClosers(c ...Closer) { a.closers = append(a.closers, c...) }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			// the sink reports enqueue failures per record
			a.logger.Error("retry queue start failed", applogger.Error(err))
		}
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.logger.Error("kafka consumer start failed", applogger.Error(err))
			return a.shutdown(context.Background())
		}
		a.logger.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}

	a.logger.Info("motionpull started",
		applogger.String("backend", a.sink.Backend()),
		applogger.Strings("brokers", a.cfg.Kafka.Brokers),
		applogger.Bool("livefeed", a.hub != nil),
		applogger.Int("port", a.cfg.Server.Port))

	go a.pruneLimiter(ctx)

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	return a.shutdown(context.Background())
}

func (a *App) pruneLimiter(ctx context.Context) {
	if !a.limiter.Enabled() {
		return
	}
	ticker := time.NewTicker(limiterIdle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.limiter.Prune(limiterIdle); n > 0 {
				a.logger.Debug("pruned idle rate limit buckets", applogger.Int("count", n))
			}
		}
	}
}

// shutdown stops intake first, then workers, then closes clients.
func (a *App) shutdown(ctx context.Context) error {
	a.logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}
	if a.hub != nil {
		_ = a.hub.Close()
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.queue != nil {
		if err := a.queue.Stop(shutdownCtx); err != nil {
			a.logger.Warn("retry queue stop error", applogger.Error(err))
		}
	}

	// flush aggregated errors while the producer is still open
	a.logger.RemoveCollector()

	a.sink.Close()
	if err := a.predictor.Close(); err != nil {
		a.logger.Warn("predictor close error", applogger.Error(err))
	}

	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("close error", applogger.String("client", c.Name), applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
