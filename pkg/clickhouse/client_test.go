package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildDSN(t *testing.T) {
	cfg := defaultConfig()
	WithHost("ch")(cfg)
	WithDatabase("tradebot")(cfg)
	WithCredentials("bot", "secret")(cfg)
	WithAsyncInsert(true, false)(cfg)

	assert.Equal(t,
		"clickhouse://bot:secret@ch:9000/tradebot?async_insert=1&dial_timeout=5s&read_timeout=10s&wait_for_async_insert=0",
		buildDSN(cfg))

	WithHTTP(true)(cfg)
	WithPort(8123)(cfg)
	assert.Contains(t, buildDSN(cfg), "http://bot:secret@ch:8123/tradebot?")
}

func TestNewClient_RequiresHost(t *testing.T) {
	_, err := NewClient(context.Background())
	assert.ErrorIs(t, err, ErrNoHost)
}
