package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TradeBot/internal/domain/models"
	drepo "TradeBot/internal/domain/repository"
	"TradeBot/internal/service/broker"
	"TradeBot/internal/service/risk"
	pkgcache "TradeBot/pkg/cache"
	applogger "TradeBot/pkg/logger"
	"TradeBot/pkg/metrics"
	"TradeBot/pkg/queue"
)

const (
	OrderIntentType = "order_intent"
	orderLockTTL    = 10 * time.Minute
)

// FillAlerter reports executed orders to operators.
type FillAlerter interface {
	NotifyFill(ctx context.Context, f models.Fill) error
}

type OrderJobOption func(*OrderJob)

// WithOrderLocks dedupes redelivered intents through the cache's lock primitive.
func WithOrderLocks(c pkgcache.Service) OrderJobOption {
	return func(j *OrderJob) { j.locks = c }
}

func WithFillAlerts(a FillAlerter) OrderJobOption {
	return func(j *OrderJob) { j.alerts = a }
}

func WithOrderLogger(l *applogger.Logger) OrderJobOption {
	return func(j *OrderJob) { j.log = l }
}

func WithOrderMetrics(m drepo.Metrics) OrderJobOption {
	return func(j *OrderJob) { j.metrics = m }
}

// OrderJob sizes queued order intents, routes them to the broker and
// hands the resulting fills back to the agents.
type OrderJob struct {
	sizer   *risk.Sizer
	broker  drepo.Broker
	limits  func() models.RiskLimits
	agents  FillNotifier
	locks   pkgcache.Service
	alerts  FillAlerter
	log     *applogger.Logger
	metrics drepo.Metrics
}

func NewOrderJob(sizer *risk.Sizer, b drepo.Broker, limits func() models.RiskLimits, agents FillNotifier, opts ...OrderJobOption) *OrderJob {
	j := &OrderJob{
		sizer:   sizer,
		broker:  b,
		limits:  limits,
		agents:  agents,
		log:     applogger.NewNop(),
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *OrderJob) Name() string { return "order-router" }
func (j *OrderJob) Type() string { return OrderIntentType }

// Handle returns an error only for failures worth retrying.
func (j *OrderJob) Handle(ctx context.Context, payload interface{}) error {
	intent, err := queue.ParsePayload[models.OrderIntent](payload)
	if err != nil {
		j.metrics.RecordError("order_payload")
		j.log.Error("invalid order intent", applogger.Error(err))
		return nil
	}
	sig := intent.Signal

	key := orderKey(sig)
	if j.locks != nil {
		ok, err := j.locks.TryLock(ctx, key, orderLockTTL)
		if err != nil {
			return fmt.Errorf("order lock: %w", err)
		}
		if !ok {
			j.log.Debug("duplicate order intent dropped", applogger.String("key", key))
			return nil
		}
	}

	fill, err := j.route(ctx, *intent)
	if err != nil {
		if j.locks != nil {
			_ = j.locks.Unlock(ctx, key)
		}
		return err
	}
	if fill == nil {
		return nil
	}

	j.agents.NotifyFills(ctx, []models.Fill{*fill})
	if j.alerts != nil {
		if err := j.alerts.NotifyFill(ctx, *fill); err != nil {
			j.log.Warn("fill alert failed", applogger.Error(err))
		}
	}
	return nil
}

// route returns a nil fill when the intent is rejected for good.
func (j *OrderJob) route(ctx context.Context, intent models.OrderIntent) (*models.Fill, error) {
	sig := intent.Signal
	positions, err := j.broker.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}

	qty, err := j.sizer.Size(intent, j.limits(), positions[sig.Symbol])
	if err != nil {
		j.reject(sig, err)
		return nil, nil
	}

	order := models.Order{
		Symbol:   sig.Symbol,
		Side:     sig.Action,
		Quantity: qty,
		Price:    intent.Price,
		Strategy: sig.Strategy,
	}
	fill, err := j.broker.Submit(ctx, order)
	if err != nil {
		if errors.Is(err, broker.ErrInsufficientCash) || errors.Is(err, broker.ErrInsufficientPosition) || errors.Is(err, broker.ErrInvalidOrder) {
			j.reject(sig, err)
			return nil, nil
		}
		j.metrics.RecordOrder(sig.Symbol, string(sig.Action), "error")
		return nil, fmt.Errorf("submit %s %s: %w", sig.Action, sig.Symbol, err)
	}

	j.metrics.RecordOrder(sig.Symbol, string(sig.Action), "filled")
	j.log.Info("order filled",
		applogger.String("strategy", sig.Strategy),
		applogger.String("symbol", fill.Symbol),
		applogger.String("side", string(fill.Side)),
		applogger.Float64("qty", fill.Quantity),
		applogger.Float64("price", fill.Price),
		applogger.Float64("stop_loss", j.sizer.StopLoss(fill.Price, fill.Side)),
		applogger.Float64("take_profit", j.sizer.TakeProfit(fill.Price, fill.Side)))
	return &fill, nil
}

func (j *OrderJob) reject(sig models.Signal, err error) {
	j.metrics.RecordOrder(sig.Symbol, string(sig.Action), "rejected")
	j.log.Info("order rejected",
		applogger.String("strategy", sig.Strategy),
		applogger.String("symbol", sig.Symbol),
		applogger.Error(err))
}

func orderKey(sig models.Signal) string {
	return pkgcache.GenerateKeyWithParams("order", sig.Strategy, sig.Symbol, sig.Action, sig.Timestamp.UnixNano())
}

var _ queue.Job = (*OrderJob)(nil)
