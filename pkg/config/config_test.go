package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
environment: test
strategies:
  - name: sma
    path: tradebot.agents.sma_agent:SMAAgent
    params:
      fast_period: 5
`

func TestParse_AppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, 10, c.Execution.MaxConcurrent)
	assert.Equal(t, 30*time.Second, c.Execution.Timeout)
	assert.Equal(t, 10*time.Minute, c.Heartbeat.Timeout)
	assert.Equal(t, c.Heartbeat.Timeout, c.Heartbeat.StaleAfter)
	assert.Equal(t, 30*time.Second, c.Health.CacheTTL)
	assert.Equal(t, 59*time.Second, c.MarketData.CacheTTL)
	assert.Equal(t, "none", c.Heartbeat.Sink)
	assert.Equal(t, "tradebot.signals", c.Kafka.Topics.Signals)
	assert.Equal(t, 0.01, c.Risk.RiskPerTrade)
	assert.False(t, c.Registry.AutoInstall)
	assert.Equal(t, 720*time.Hour, c.Heartbeat.Retention)
	assert.Equal(t, time.Hour, c.Heartbeat.PruneInterval)
	assert.Equal(t, "both", c.Orders.Mode)
	assert.Equal(t, 3, c.Orders.RetryLimit)
	assert.Equal(t, 5*time.Second, c.Orders.RetryDelay)
	assert.Equal(t, 30*time.Second, c.Orders.StatsInterval)
	require.Len(t, c.Specs(), 1)
	assert.EqualValues(t, 5, c.Specs()[0].Params["fast_period"])
}

func TestParse_ExplicitStaleAfterKept(t *testing.T) {
	c, err := Parse([]byte(minimal + "heartbeat:\n  stale_after: 5m\n"))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, c.Heartbeat.StaleAfter)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"no strategies":         "environment: test\n",
		"bad sink":              minimal + "heartbeat:\n  sink: mongo\n",
		"install without cmd":   minimal + "registry:\n  auto_install: true\n",
		"kafka without broker":  minimal + "kafka:\n  enabled: true\n",
		"bad log level":         minimal + "logger:\n  level: loud\n",
		"bad queue mode":        minimal + "cache:\n  backend: redis\norders:\n  mode: sideways\n",
		"split queue in memory": minimal + "orders:\n  mode: consumer\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_SplitQueueWithRedis(t *testing.T) {
	c, err := Parse([]byte(minimal + "cache:\n  backend: redis\norders:\n  mode: producer\n"))
	require.NoError(t, err)
	assert.Equal(t, "producer", c.Orders.Mode)
}

func TestLoadWithEnv_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o644))

	t.Setenv("SYMBOLS", "AAPL, MSFT,")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TRADEBOT_AUTO_INSTALL", "false")
	t.Setenv("FINNHUB_API_KEY", "secret")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, c.MarketData.Symbols)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "secret", c.MarketData.Finnhub.APIKey)
}

func TestWriteSample_RoundTripsThroughLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yaml")
	require.NoError(t, WriteSample(path))

	c, err := Load(path)
	require.NoError(t, err)
	require.Len(t, c.Strategies, 3)
	assert.Equal(t, "SMA_Cross", c.Strategies[0].Name)
	assert.Equal(t, 10, c.Execution.MaxConcurrent)
	assert.Equal(t, []string{"AAPL", "GOOGL", "MSFT", "TSLA"}, c.RiskLimits.AllowedSymbols)
}
