//go:build wireinject
// +build wireinject

package di

import (
	"MotionPull/pkg/config"
	"MotionPull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRetryQueue,
		ProvidePredictor,
		ProvideLiveFeed,

		// Repositories
		ProvideRecordStore,
		ProvideRecordPublisher,

		// Use cases
		ProvideRecordSink,
		ProvideClassifier,
		ProvideActivityQuery,
		ProvideKafkaRecordsHandler,
		ProvideLimiter,

		// HTTP
		ProvideNotificationsHandler,
		ProvideActivityHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
