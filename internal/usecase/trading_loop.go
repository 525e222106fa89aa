package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"TradeBot/internal/agent/technical"
	"TradeBot/internal/domain/models"
	drepo "TradeBot/internal/domain/repository"
	applogger "TradeBot/pkg/logger"
	"TradeBot/pkg/metrics"
	"TradeBot/pkg/queue"
)

const atrPeriod = 14

// CycleReport summarises one trading cycle.
type CycleReport struct {
	Timestamp time.Time `json:"timestamp"`
	Agents    int       `json:"agents"`
	Failed    int       `json:"failed"`
	Signals   int       `json:"signals"`
	Orders    int       `json:"orders"`
}

type LoopOption func(*TradingLoop)

func WithSignalPublisher(p drepo.SignalPublisher) LoopOption {
	return func(l *TradingLoop) { l.signals = p }
}

// WithOrderQueue enables order routing; without it signals are only published.
func WithOrderQueue(q queue.QueueService) LoopOption {
	return func(l *TradingLoop) { l.orders = q }
}

func WithPositions(b drepo.Broker) LoopOption {
	return func(l *TradingLoop) { l.broker = b }
}

func WithLoopLogger(lg *applogger.Logger) LoopOption {
	return func(l *TradingLoop) { l.log = lg }
}

func WithLoopMetrics(m drepo.Metrics) LoopOption {
	return func(l *TradingLoop) { l.metrics = m }
}

// TradingLoop drives the executor: build a snapshot, run every agent, then
// publish the signals and queue the actionable ones as order intents.
type TradingLoop struct {
	market   drepo.MarketData
	exec     *StrategyExecutor
	symbols  []string
	interval time.Duration
	signals  drepo.SignalPublisher
	orders   queue.QueueService
	broker   drepo.Broker
	log      *applogger.Logger
	metrics  drepo.Metrics
}

func NewTradingLoop(market drepo.MarketData, exec *StrategyExecutor, symbols []string, interval time.Duration, opts ...LoopOption) *TradingLoop {
	l := &TradingLoop{
		market:   market,
		exec:     exec,
		symbols:  symbols,
		interval: interval,
		log:      applogger.NewNop(),
		metrics:  metrics.Nop{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RunOnce executes a single cycle.
func (l *TradingLoop) RunOnce(ctx context.Context) (CycleReport, error) {
	var positions map[string]float64
	if l.broker != nil {
		p, err := l.broker.Positions(ctx)
		if err != nil {
			return CycleReport{}, fmt.Errorf("positions: %w", err)
		}
		positions = p
	}

	start := time.Now()
	snap, err := l.market.Snapshot(ctx, l.symbols, positions)
	l.metrics.RecordLatency("snapshot_seconds", time.Since(start).Seconds())
	if err != nil {
		l.metrics.RecordError("snapshot")
		return CycleReport{}, fmt.Errorf("snapshot: %w", err)
	}

	results := l.exec.ExecuteDetailed(ctx, snap)
	report := CycleReport{Timestamp: snap.Timestamp, Agents: len(results)}

	names := make([]string, 0, len(results))
	for name, r := range results {
		if !r.OK() {
			report.Failed++
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var actionable []models.Signal
	for _, name := range names {
		for _, s := range results[name].Signals {
			report.Signals++
			if s.Action != models.ActionHold {
				actionable = append(actionable, s)
			}
		}
	}

	if l.signals != nil && len(actionable) > 0 {
		if err := l.signals.PublishSignals(ctx, actionable); err != nil {
			l.metrics.RecordError("signal_publish")
			l.log.Warn("publish signals failed", applogger.Error(err))
		}
	}

	if l.orders != nil {
		for _, s := range actionable {
			intent := intentFor(s, snap)
			if err := l.orders.PublishMessage(ctx, OrderIntentType, intent); err != nil {
				l.metrics.RecordError("order_enqueue")
				l.log.Warn("enqueue order failed", applogger.String("symbol", s.Symbol), applogger.Error(err))
				continue
			}
			report.Orders++
		}
	}

	l.log.Info("trading cycle complete",
		applogger.Int("agents", report.Agents),
		applogger.Int("failed", report.Failed),
		applogger.Int("signals", report.Signals),
		applogger.Int("orders", report.Orders))
	return report, nil
}

func intentFor(s models.Signal, snap models.Snapshot) models.OrderIntent {
	series := snap.Prices[s.Symbol]
	return models.OrderIntent{
		Signal: s,
		Price:  series.Last,
		ATR:    technical.ATR(series.Bars, atrPeriod),
	}
}

// Run cycles every interval until ctx ends. Failed cycles are logged and skipped.
func (l *TradingLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		if _, err := l.RunOnce(ctx); err != nil && ctx.Err() == nil {
			l.log.Error("trading cycle failed", applogger.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
