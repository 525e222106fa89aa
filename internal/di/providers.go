package di

import (
	"context"
	"fmt"
	"time"

	"TradeBot/internal/agent/builtin"
	"TradeBot/internal/domain/models"
	drepo "TradeBot/internal/domain/repository"
	"TradeBot/internal/handler/api"
	"TradeBot/internal/heartbeat"
	"TradeBot/internal/middleware"
	"TradeBot/internal/registry"
	"TradeBot/internal/repository"
	"TradeBot/internal/service/broker"
	"TradeBot/internal/service/marketdata"
	"TradeBot/internal/service/notify"
	"TradeBot/internal/service/ratelimit"
	"TradeBot/internal/service/risk"
	"TradeBot/internal/usecase"
	pkgcache "TradeBot/pkg/cache"
	pkgch "TradeBot/pkg/clickhouse"
	"TradeBot/pkg/config"
	xhttp "TradeBot/pkg/http"
	pkgkafka "TradeBot/pkg/kafka"
	applogger "TradeBot/pkg/logger"
	"TradeBot/pkg/metrics"
	"TradeBot/pkg/postgres"
	"TradeBot/pkg/queue"
	"TradeBot/pkg/server"

	"github.com/redis/go-redis/v9"
)

const (
	streamReconnectDelay = 5 * time.Second
	streamPingInterval   = 30 * time.Second
	streamMaxRPS         = 20
	logFlushInterval     = 30 * time.Second
)

// OrderQueue carries order intents from the trading loop to the order job.
type OrderQueue interface {
	queue.QueueService
	queue.StatsReporter
	server.Service
}

func ProvideMetrics() drepo.Metrics {
	return metrics.New(nil)
}

// ProvideRedisClient returns nil when no component needs Redis.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if cfg.Cache.Backend == "memory" {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return client, func() { _ = client.Close() }, nil
}

func ProvideCache(cfg *config.Config, client *redis.Client) (pkgcache.Service, func(), error) {
	var c pkgcache.Service
	switch cfg.Cache.Backend {
	case "redis":
		c = pkgcache.NewRedisCacheFromClient(client, cfg.Redis.Prefix)
	case "layered":
		c = pkgcache.NewLayeredCache(pkgcache.NewRedisCacheFromClient(client, cfg.Redis.Prefix),
			pkgcache.WithLayeredMemoryTTL(cfg.MarketData.CacheTTL))
	default:
		c = pkgcache.NewMemoryCache()
	}
	// The redis client is closed by its own cleanup.
	if cfg.Cache.Backend == "memory" {
		return c, func() { _ = c.Close() }, nil
	}
	return c, func() {}, nil
}

// ProvideHeartbeatStore opens the configured heartbeat mirror. It returns nil for sink "none".
func ProvideHeartbeatStore(ctx context.Context, cfg *config.Config) (drepo.HeartbeatStore, func(), error) {
	switch cfg.Heartbeat.Sink {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.Option{
			DSN:          cfg.Postgres.DSN,
			Host:         cfg.Postgres.Host,
			Port:         cfg.Postgres.Port,
			User:         cfg.Postgres.User,
			Password:     cfg.Postgres.Password,
			Database:     cfg.Postgres.Database,
			SSLMode:      cfg.Postgres.SSLMode,
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("heartbeat sink: %w", err)
		}
		store := repository.NewPostgresHeartbeats(pg.DB())
		if err := store.Init(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("heartbeat sink: %w", err)
		}
		return store, func() { _ = pg.Close() }, nil

	case "clickhouse":
		ch, err := pkgch.NewClient(ctx,
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, 30*time.Second),
			pkgch.WithAsyncInsert(true, false),
			pkgch.WithMaxConnections(5, 2),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("heartbeat sink: %w", err)
		}
		store := repository.NewClickHouseHeartbeats(ch.DB())
		if err := ch.InitSchema(ctx, store.Schema()); err != nil {
			_ = ch.Close()
			return nil, nil, fmt.Errorf("heartbeat sink: %w", err)
		}
		return store, func() { _ = ch.Close() }, nil
	}
	return nil, func() {}, nil
}

// ProvideKafkaProducer returns nil when Kafka is disabled. When enabled it also
// ships aggregated error logs to the logs topic.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerLogger(l),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	if cfg.Kafka.Topics.Logs != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval: logFlushInterval,
			Topic:        cfg.Kafka.Topics.Logs,
			Levels:       []string{"error", "warn"},
			Publisher:    producer,
		})
	}
	cleanup := func() {
		l.RemoveCollector()
		_ = producer.Close()
	}
	return producer, cleanup, nil
}

func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) *repository.EventPublisher {
	if producer == nil {
		return nil
	}
	return repository.NewEventPublisher(producer, cfg.Kafka.Topics.Signals, cfg.Kafka.Topics.Heartbeats)
}

func ProvideNotifier(cfg *config.Config, l *applogger.Logger) *notify.Multi {
	return notify.New(l, cfg.Alerts.SlackWebhookURL, cfg.Alerts.DiscordWebhookURL)
}

func ProvideLedger(cfg *config.Config, n *notify.Multi, m drepo.Metrics, l *applogger.Logger) *heartbeat.Ledger {
	opts := []heartbeat.Option{
		heartbeat.WithTimeout(cfg.Heartbeat.Timeout),
		heartbeat.WithCheckInterval(cfg.Heartbeat.CheckInterval),
		heartbeat.WithLogger(l),
		heartbeat.WithMetrics(m),
	}
	if n.Enabled() {
		opts = append(opts, heartbeat.WithNotifier(n))
	}
	return heartbeat.NewLedger(opts...)
}

func ProvideHeartbeatRecorder(
	ledger *heartbeat.Ledger,
	store drepo.HeartbeatStore,
	pub *repository.EventPublisher,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.HeartbeatRecorder {
	opts := []usecase.RecorderOption{
		usecase.WithRecorderMetrics(m),
		usecase.WithRecorderLogger(l),
	}
	if store != nil {
		opts = append(opts, usecase.WithHeartbeatSink(store))
	}
	if pub != nil {
		opts = append(opts, usecase.WithHeartbeatPublisher(pub))
	}
	return usecase.NewHeartbeatRecorder(ledger, opts...)
}

// ProvideRegistry registers the built-in agents, then any plugin directory and installer.
func ProvideRegistry(cfg *config.Config, m drepo.Metrics, l *applogger.Logger) *registry.Registry {
	opts := []registry.Option{registry.WithLogger(l), registry.WithMetrics(m)}
	if cfg.Registry.PluginDir != "" {
		opts = append(opts, registry.WithSource(registry.NewPluginSource(cfg.Registry.PluginDir)))
	}
	if cfg.Registry.AutoInstall {
		l.Warn("strategy auto-install enabled", applogger.Strings("command", cfg.Registry.InstallCommand))
		opts = append(opts, registry.WithAutoInstall(registry.CommandInstaller{
			Command: cfg.Registry.InstallCommand,
			Timeout: cfg.Registry.InstallTimeout,
		}))
	}
	reg := registry.New(opts...)
	builtin.Register(reg, l)
	return reg
}

func ProvideAgentRunner(hb *usecase.HeartbeatRecorder, cfg *config.Config, m drepo.Metrics, l *applogger.Logger) *usecase.AgentRunner {
	return usecase.NewAgentRunner(hb,
		usecase.WithAgentTimeout(cfg.Execution.Timeout),
		usecase.WithRunnerLogger(l),
		usecase.WithRunnerMetrics(m),
	)
}

func ProvideStrategyExecutor(
	reg *registry.Registry,
	runner *usecase.AgentRunner,
	hb *usecase.HeartbeatRecorder,
	cfg *config.Config,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.StrategyExecutor {
	return usecase.NewStrategyExecutor(reg, runner, hb,
		usecase.WithMaxConcurrent(cfg.Execution.MaxConcurrent),
		usecase.WithExecutorLogger(l),
		usecase.WithExecutorMetrics(m),
	)
}

func ProvideHealthAggregator(hb *usecase.HeartbeatRecorder, store drepo.HeartbeatStore, cfg *config.Config, l *applogger.Logger) *usecase.HealthAggregator {
	opts := []usecase.HealthOption{
		usecase.WithStaleAfter(cfg.Heartbeat.StaleAfter),
		usecase.WithHealthCacheTTL(cfg.Health.CacheTTL),
		usecase.WithHealthLogger(l),
	}
	if store != nil {
		opts = append(opts, usecase.WithRemoteHeartbeats(store))
	}
	return usecase.NewHealthAggregator(hb, opts...)
}

func ProvidePriceBook() *marketdata.PriceBook {
	return marketdata.NewPriceBook()
}

// ProvideMarketData orders sources Finnhub, Twelve Data, then Yahoo, skipping keyless ones.
func ProvideMarketData(cfg *config.Config, c pkgcache.Service, book *marketdata.PriceBook, m drepo.Metrics, l *applogger.Logger) (*marketdata.Provider, error) {
	md := cfg.MarketData
	var sources []marketdata.Source
	if md.Finnhub.APIKey != "" {
		sources = append(sources, marketdata.NewFinnhub(md.Finnhub.APIKey, md.Finnhub.BaseURL))
	}
	if md.TwelveData.APIKey != "" {
		sources = append(sources, marketdata.NewTwelveData(md.TwelveData.APIKey, md.TwelveData.BaseURL))
	}
	if !md.Yahoo.Disabled {
		sources = append(sources, marketdata.NewYahoo())
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("market data: no source configured")
	}
	return marketdata.NewProvider(sources,
		marketdata.WithCache(c, md.CacheTTL),
		marketdata.WithRateLimit(ratelimit.New(), marketdata.RateLimit{
			Capacity:     md.RateLimit.Capacity,
			RefillPerSec: md.RateLimit.RefillPerSec,
		}),
		marketdata.WithHistoryDays(md.HistoryDays),
		marketdata.WithPriceBook(book),
		marketdata.WithProviderLogger(l),
		marketdata.WithProviderMetrics(m),
	), nil
}

func ProvideBroker(cfg *config.Config) *broker.Paper {
	return broker.NewPaper(cfg.Broker.StartingCash)
}

// ProvideOrderQueue returns nil when order routing is disabled. Redis backs the
// queue whenever the cache uses Redis; otherwise it stays in process and
// orders.mode must be both.
func ProvideOrderQueue(
	cfg *config.Config,
	client *redis.Client,
	c pkgcache.Service,
	exec *usecase.StrategyExecutor,
	b *broker.Paper,
	n *notify.Multi,
	m drepo.Metrics,
	l *applogger.Logger,
) (OrderQueue, error) {
	if !cfg.Orders.Enabled {
		return nil, nil
	}
	sizer := risk.NewSizer(risk.Config{
		Capital:       cfg.Risk.Capital,
		RiskPerTrade:  cfg.Risk.RiskPerTrade,
		StopLossPct:   cfg.Risk.StopLossPct,
		TakeProfitPct: cfg.Risk.TakeProfitPct,
	})
	opts := []usecase.OrderJobOption{
		usecase.WithOrderLocks(c),
		usecase.WithOrderLogger(l),
		usecase.WithOrderMetrics(m),
	}
	if n.Enabled() {
		opts = append(opts, usecase.WithFillAlerts(n))
	}
	job := usecase.NewOrderJob(sizer, b, exec.RiskLimits, exec, opts...)

	qcfg := &queue.QueueConfig{
		Workers:    cfg.Orders.Workers,
		RetryLimit: cfg.Orders.RetryLimit,
		RetryDelay: cfg.Orders.RetryDelay,
	}
	if client == nil {
		return queue.NewMemoryQueue(l, qcfg, job), nil
	}
	mode, err := queue.ParseMode(cfg.Orders.Mode)
	if err != nil {
		return nil, err
	}
	q := queue.NewRedisQueue(l, qcfg, client,
		queue.WithMode(mode),
		queue.WithKeyPrefix(cfg.Orders.QueuePrefix),
	)
	q.RegisterJob(job)
	return q, nil
}

// ProvideQueueMonitor exports order queue depth; nil when orders are disabled.
func ProvideQueueMonitor(cfg *config.Config, orders OrderQueue, m drepo.Metrics, l *applogger.Logger) *usecase.QueueMonitor {
	if orders == nil {
		return nil
	}
	return usecase.NewQueueMonitor("orders", orders, cfg.Orders.StatsInterval, m, l)
}

// ProvideHeartbeatRetention returns nil unless the heartbeat store supports pruning.
func ProvideHeartbeatRetention(cfg *config.Config, store drepo.HeartbeatStore, l *applogger.Logger) *usecase.HeartbeatRetention {
	p, ok := store.(drepo.HeartbeatPruner)
	if !ok {
		return nil
	}
	return usecase.NewHeartbeatRetention(p, cfg.Heartbeat.Retention, cfg.Heartbeat.PruneInterval, l)
}

func ProvideTradingLoop(
	cfg *config.Config,
	md *marketdata.Provider,
	exec *usecase.StrategyExecutor,
	pub *repository.EventPublisher,
	orders OrderQueue,
	b *broker.Paper,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.TradingLoop {
	opts := []usecase.LoopOption{
		usecase.WithPositions(b),
		usecase.WithLoopLogger(l),
		usecase.WithLoopMetrics(m),
	}
	if pub != nil {
		opts = append(opts, usecase.WithSignalPublisher(pub))
	}
	// A consumer-only process leaves intake to the producers.
	if orders != nil && cfg.Orders.Mode != "consumer" {
		opts = append(opts, usecase.WithOrderQueue(orders))
	}
	return usecase.NewTradingLoop(md, exec, cfg.MarketData.Symbols, cfg.Execution.Interval, opts...)
}

// ProvidePriceCollector returns nil unless the Finnhub stream is enabled and keyed.
func ProvidePriceCollector(cfg *config.Config, book *marketdata.PriceBook, m drepo.Metrics, l *applogger.Logger) *usecase.PriceCollector {
	fh := cfg.MarketData.Finnhub
	if !fh.Stream || fh.APIKey == "" {
		return nil
	}
	stream := marketdata.NewStream(fh.APIKey, fh.WebSocketURL, cfg.MarketData.Symbols, streamReconnectDelay, streamPingInterval, l)
	throttle := middleware.NewTradeThrottle(book, m, middleware.WithMaxRPS(streamMaxRPS))
	return usecase.NewPriceCollector(stream, throttle, m, l)
}

// ProvideFillsConsumer returns nil when Kafka is disabled.
func ProvideFillsConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.Topics.Fills == "" {
		return nil, nil
	}
	c, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return c, nil
}

func ProvideFillsHandler(cfg *config.Config, exec *usecase.StrategyExecutor, m drepo.Metrics) *usecase.FillsHandler {
	return usecase.NewFillsHandler(cfg.Kafka.Topics.Fills, exec, m)
}

func ProvideHTTPServer(
	cfg *config.Config,
	health *usecase.HealthAggregator,
	ledger *heartbeat.Ledger,
	exec *usecase.StrategyExecutor,
	orders OrderQueue,
	l *applogger.Logger,
) *xhttp.Server {
	h := api.NewHandler(health, ledger, exec, l)
	if orders != nil {
		h = h.WithQueueStats(orders)
	}
	return xhttp.NewServer(h, l,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	)
}

// startupStrategies pushes the configured risk limits once the agents are loaded.
type startupStrategies struct {
	*usecase.StrategyExecutor
	limits models.RiskLimits
}

func (s startupStrategies) Load(ctx context.Context, specs []models.StrategySpec) error {
	if err := s.StrategyExecutor.Load(ctx, specs); err != nil {
		return err
	}
	s.UpdateRiskLimits(ctx, s.limits)
	return nil
}

func strategySpecs(cfg *config.Config) []models.StrategySpec {
	specs := make([]models.StrategySpec, 0, len(cfg.Strategies))
	for _, s := range cfg.Specs() {
		specs = append(specs, models.StrategySpec{Name: s.Name, Path: s.Path, Params: s.Params})
	}
	return specs
}

func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	exec *usecase.StrategyExecutor,
	ledger *heartbeat.Ledger,
	loop *usecase.TradingLoop,
	collector *usecase.PriceCollector,
	consumer *pkgkafka.Consumer,
	fills *usecase.FillsHandler,
	orders OrderQueue,
	monitor *usecase.QueueMonitor,
	retention *usecase.HeartbeatRetention,
	srv *xhttp.Server,
) *server.App {
	rl := cfg.RiskLimits
	strategies := startupStrategies{
		StrategyExecutor: exec,
		limits: models.RiskLimits{
			MaxPositionSize: rl.MaxPositionSize,
			MaxDailyLoss:    rl.MaxDailyLoss,
			MaxLeverage:     rl.MaxLeverage,
			AllowedSymbols:  rl.AllowedSymbols,
		},
	}

	opts := []server.Option{
		server.WithLogger(l),
		server.WithHTTPServer(srv),
		server.WithRunner("heartbeat sweep", ledger),
		server.WithRunner("trading loop", loop),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	}
	if orders != nil {
		opts = append(opts, server.WithService("order queue", orders))
	}
	if monitor != nil {
		opts = append(opts, server.WithRunner("order queue monitor", monitor))
	}
	if retention != nil {
		opts = append(opts, server.WithRunner("heartbeat retention", retention))
	}
	if consumer != nil {
		opts = append(opts, server.WithFillsConsumer(consumer, fills))
	}
	if collector != nil {
		opts = append(opts, server.WithCollector(collector))
	}
	return server.New(strategies, strategySpecs(cfg), opts...)
}
