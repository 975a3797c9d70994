//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"LineGuard/pkg/config"
	"LineGuard/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application
// together with a cleanup that releases every opened resource.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,
		ProvideStreamMetrics,

		// Infrastructure clients
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideCSVSource,
		ProvideDatasetSource,
		ProvideDatasetWriter,
		ProvideTimeSeriesStore,
		ProvideBundleStore,
		ProvideRunRegistry,
		ProvideRunRegistryPort,
		ProvideEventPublisher,
		ProvideEventPipeline,

		// Use cases
		ProvideTrainingParams,
		ProvideTrainer,
		ProvidePredictor,
		ProvideWindowValidation,
		ProvideSimulator,
		ProvideDatasetUpload,
		ProvideScoringHandler,
		ProvideKafkaConsumer,

		// Transport
		ProvideLimiter,
		ProvidePipelineHandler,
		ProvideHealthHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
