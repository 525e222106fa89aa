//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"TradeBot/pkg/config"
	applogger "TradeBot/pkg/logger"
	"TradeBot/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideMetrics,
	ProvideRedisClient,
	ProvideCache,
	ProvideHeartbeatStore,
	ProvideKafkaProducer,
	ProvideEventPublisher,
	ProvideNotifier,
)

var supervisorSet = wire.NewSet(
	ProvideLedger,
	ProvideHeartbeatRecorder,
	ProvideRegistry,
	ProvideAgentRunner,
	ProvideStrategyExecutor,
	ProvideHealthAggregator,
	ProvideHeartbeatRetention,
)

var tradingSet = wire.NewSet(
	ProvidePriceBook,
	ProvideMarketData,
	ProvideBroker,
	ProvideOrderQueue,
	ProvideQueueMonitor,
	ProvideTradingLoop,
	ProvidePriceCollector,
	ProvideFillsConsumer,
	ProvideFillsHandler,
)

// InitializeApp builds the application from config. The cleanup closes
// infrastructure and must run after App.Run returns.
func InitializeApp(ctx context.Context, cfg *config.Config, l *applogger.Logger) (*server.App, func(), error) {
	wire.Build(
		infraSet,
		supervisorSet,
		tradingSet,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
