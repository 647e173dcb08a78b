//go:build wireinject
// +build wireinject

package di

import (
	"TradePull/pkg/config"
	"TradePull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideClickHouseClient,
		ProvideEventPublisher,

		// Record stores
		ProvideCredentialStore,
		ProvideInstanceStore,
		ProvideUserStore,
		ProvideHistoryProvider,

		// Feed
		ProvideDecoder,
		ProvideRegistry,
		ProvideFeedTransport,
		ProvideFeedConnection,

		// Broker collaborators
		ProvideAuthClient,
		ProvideOrderGateway,

		// Background tasks
		ProvideScheduler,
		ProvideStoreBackoff,
		ProvideTokenRefresher,
		ProvideHealthMonitor,

		// Strategy runtime
		ProvideSandboxEngine,
		ProvideRuntimeManager,

		// HTTP surface
		ProvideHandlers,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
