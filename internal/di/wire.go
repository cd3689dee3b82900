//go:build wireinject
// +build wireinject

package di

import (
	"NiftyPulse/pkg/config"
	"NiftyPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideMarket,
		ProvideClock,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvidePostgresClient,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideTickStore,
		ProvideSignalStore,
		ProvideBroadcaster,
		ProvideMarketStream,

		// Use cases
		ProvideTickPipeline,
		ProvideSessionRegistry,
		ProvideActiveSignals,
		ProvideSignalGenerator,
		ProvideMonitor,
		ProvideSignalService,
		ProvideKafkaTicksHandler,
		ProvideTickCollector,
		ProvideTickRetention,

		// Transport and application server
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
