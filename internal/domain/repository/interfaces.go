package repository

import (
	"context"
	"time"

	"TradeBot/internal/domain/models"
)

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Trade, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// MarketData builds snapshots for the trading loop.
type MarketData interface {
	Snapshot(ctx context.Context, symbols []string, positions map[string]float64) (models.Snapshot, error)
}

type SignalPublisher interface {
	PublishSignals(ctx context.Context, signals []models.Signal) error
}

type HeartbeatPublisher interface {
	PublishHeartbeat(ctx context.Context, ev models.HeartbeatEvent) error
}

// HeartbeatSink mirrors heartbeats to a remote store.
type HeartbeatSink interface {
	Write(ctx context.Context, ev models.HeartbeatEvent) error
}

// HeartbeatReader returns the newest heartbeat per agent from the remote mirror.
type HeartbeatReader interface {
	Latest(ctx context.Context) ([]models.HeartbeatEvent, error)
}

type HeartbeatStore interface {
	Init(ctx context.Context) error
	HeartbeatSink
	HeartbeatReader
	Close() error
}

type Notifier interface {
	Send(ctx context.Context, alert models.Alert) error
}

type Broker interface {
	Submit(ctx context.Context, order models.Order) (models.Fill, error)
	Positions(ctx context.Context) (map[string]float64, error)
}

type Metrics interface {
	RecordAgentRun(agent, status string, seconds float64)
	RecordSignals(agent string, n int)
	RecordHeartbeat(agent, status string)
	RecordHeartbeatMissed(agent string)
	RecordResolve(outcome string)
	RecordOrder(symbol, side, status string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordQueueDepth(queue, state string, n int64)
}

// HeartbeatPruner deletes mirrored heartbeats older than a cutoff.
type HeartbeatPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}
