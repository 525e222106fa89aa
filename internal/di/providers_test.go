package di

import (
	"context"
	"path/filepath"
	"testing"

	"TradeBot/internal/domain/models"
	"TradeBot/internal/repository"
	"TradeBot/pkg/config"
	applogger "TradeBot/pkg/logger"
	"TradeBot/pkg/metrics"
	"TradeBot/pkg/queue"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.WriteSample(path))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestStrategySpecs(t *testing.T) {
	cfg := sampleConfig(t)
	specs := strategySpecs(cfg)
	require.Len(t, specs, 3)
	assert.Equal(t, models.StrategySpec{
		Name:   "SMA_Cross",
		Path:   "tradebot.agents.sma_agent:SMAAgent",
		Params: cfg.Strategies[0].Params,
	}, specs[0])

	specs[0].Name = "changed"
	assert.Equal(t, "SMA_Cross", cfg.Strategies[0].Name)
}

func TestProvideRegistry_ResolvesSamplePaths(t *testing.T) {
	cfg := sampleConfig(t)
	reg := ProvideRegistry(cfg, metrics.Nop{}, applogger.NewNop())
	for _, s := range cfg.Strategies {
		res, err := reg.Resolve(context.Background(), s.Path)
		require.NoError(t, err, s.Path)
		assert.NotNil(t, res.Factory)
	}
}

func TestProvideOptionalInfra_Disabled(t *testing.T) {
	cfg := sampleConfig(t)
	l := applogger.NewNop()

	client, cleanup, err := ProvideRedisClient(cfg)
	require.NoError(t, err)
	assert.Nil(t, client)
	cleanup()

	store, cleanup, err := ProvideHeartbeatStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, store)
	cleanup()

	producer, cleanup, err := ProvideKafkaProducer(cfg, l)
	require.NoError(t, err)
	assert.Nil(t, producer)
	cleanup()
	assert.Nil(t, ProvideEventPublisher(producer, cfg))

	consumer, err := ProvideFillsConsumer(cfg, l)
	require.NoError(t, err)
	assert.Nil(t, consumer)

	assert.Nil(t, ProvidePriceCollector(cfg, ProvidePriceBook(), metrics.Nop{}, l))
}

func TestProvideOrderQueue(t *testing.T) {
	cfg := sampleConfig(t)
	l := applogger.NewNop()
	m := metrics.Nop{}

	c, cleanup, err := ProvideCache(cfg, nil)
	require.NoError(t, err)
	defer cleanup()

	n := ProvideNotifier(cfg, l)
	hb := ProvideHeartbeatRecorder(ProvideLedger(cfg, n, m, l), nil, nil, m, l)
	exec := ProvideStrategyExecutor(ProvideRegistry(cfg, m, l), ProvideAgentRunner(hb, cfg, m, l), hb, cfg, m, l)
	b := ProvideBroker(cfg)

	q, err := ProvideOrderQueue(cfg, nil, c, exec, b, n, m, l)
	require.NoError(t, err)
	assert.Nil(t, q)
	assert.Nil(t, ProvideQueueMonitor(cfg, q, m, l))

	cfg.Orders.Enabled = true
	q, err = ProvideOrderQueue(cfg, nil, c, exec, b, n, m, l)
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.IsType(t, &queue.MemoryQueue{}, q)
	assert.NotNil(t, ProvideQueueMonitor(cfg, q, m, l))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg.Orders.Mode = "producer"
	q, err = ProvideOrderQueue(cfg, client, c, exec, b, n, m, l)
	require.NoError(t, err)
	rq, ok := q.(*queue.RedisQueue)
	require.True(t, ok)
	require.NoError(t, rq.Start())
	defer rq.Stop(context.Background())
	assert.NoError(t, rq.PublishMessage(context.Background(), "unregistered", "x"),
		"producer-only queues accept types they cannot run")

	cfg.Orders.Mode = "sideways"
	_, err = ProvideOrderQueue(cfg, client, c, exec, b, n, m, l)
	assert.Error(t, err)
}

func TestProvideHeartbeatRetention(t *testing.T) {
	cfg := sampleConfig(t)
	l := applogger.NewNop()

	assert.Nil(t, ProvideHeartbeatRetention(cfg, nil, l))
	assert.Nil(t, ProvideHeartbeatRetention(cfg, repository.NewClickHouseHeartbeats(nil), l),
		"clickhouse expires rows through its table TTL")
	assert.NotNil(t, ProvideHeartbeatRetention(cfg, repository.NewPostgresHeartbeats(nil), l))
}
