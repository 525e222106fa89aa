// Package sma implements a moving-average crossover agent.
package sma

import (
	"context"
	"fmt"
	"math"
	"sort"

	"TradeBot/internal/agent"
	"TradeBot/internal/domain/models"
	applogger "TradeBot/pkg/logger"
)

const defaultMaxPosition = 10000

type Params struct {
	FastPeriod      int     `yaml:"fast_period" default:"10" validate:"min=1"`
	SlowPeriod      int     `yaml:"slow_period" default:"20" validate:"gtfield=FastPeriod"`
	MinDataPoints   int     `yaml:"min_data_points" default:"50" validate:"min=1"`
	PositionSizePct float64 `yaml:"position_size_pct" default:"0.1" validate:"gt=0,lte=1"`
}

type Agent struct {
	*agent.Base
	params Params
	log    *applogger.Logger
}

var _ agent.Agent = (*Agent)(nil)

// Factory returns the registry constructor for this agent.
func Factory(l *applogger.Logger) agent.Factory {
	return func(name string, params map[string]any) (agent.Agent, error) {
		var p Params
		if err := agent.DecodeParams(params, &p); err != nil {
			return nil, err
		}
		return New(name, p, l), nil
	}
}

func New(name string, p Params, l *applogger.Logger) *Agent {
	if l == nil {
		l = applogger.NewNop()
	}
	return &Agent{
		Base:   agent.NewBase(name),
		params: p,
		log:    l.With(applogger.String("agent", name)),
	}
}

func (a *Agent) GenerateSignals(ctx context.Context, snap models.Snapshot) ([]models.Signal, error) {
	symbols := make([]string, 0, len(snap.Prices))
	for s := range snap.Prices {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	signals := make([]models.Signal, 0)
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if sig, ok := a.signalFor(symbol, snap.Prices[symbol], snap.Position(symbol)); ok {
			signals = append(signals, sig)
		}
	}
	return signals, nil
}

func (a *Agent) signalFor(symbol string, series models.PriceSeries, position float64) (models.Signal, bool) {
	closes := series.Closes()
	if len(closes) < a.params.MinDataPoints || len(closes) < a.params.SlowPeriod || len(closes) < a.params.FastPeriod {
		return models.Signal{}, false
	}

	fast := Average(closes, a.params.FastPeriod)
	slow := Average(closes, a.params.SlowPeriod)
	prevFast, prevSlow := fast, slow
	if len(closes) > a.params.FastPeriod {
		prevFast = Average(closes[:len(closes)-1], a.params.FastPeriod)
	}
	if len(closes) > a.params.SlowPeriod {
		prevSlow = Average(closes[:len(closes)-1], a.params.SlowPeriod)
	}
	price := closes[len(closes)-1]

	bullish := prevFast <= prevSlow && fast > slow
	bearish := prevFast >= prevSlow && fast < slow

	maxPosition := a.RiskLimits().MaxPositionSize
	if maxPosition <= 0 {
		maxPosition = defaultMaxPosition
	}
	target := math.Min(maxPosition*a.params.PositionSizePct, maxPosition)

	meta := map[string]any{
		"fast_sma":      fast,
		"slow_sma":      slow,
		"current_price": price,
		"strategy":      "sma_crossover",
	}

	switch {
	case bullish && position <= 0:
		return models.Signal{
			Symbol:     symbol,
			Action:     models.ActionBuy,
			Quantity:   target - position,
			Confidence: Confidence(fast, slow),
			Reasoning:  fmt.Sprintf("Fast SMA (%.2f) crossed above Slow SMA (%.2f)", fast, slow),
			Metadata:   meta,
		}, true
	case bearish && position > 0:
		return models.Signal{
			Symbol:     symbol,
			Action:     models.ActionSell,
			Quantity:   position,
			Confidence: Confidence(fast, slow),
			Reasoning:  fmt.Sprintf("Fast SMA (%.2f) crossed below Slow SMA (%.2f)", fast, slow),
			Metadata:   meta,
		}, true
	}
	return models.Signal{}, false
}

func (a *Agent) OnFill(_ context.Context, fill models.Fill) error {
	a.log.Info("fill received",
		applogger.String("symbol", fill.Symbol),
		applogger.String("side", string(fill.Side)),
		applogger.Float64("quantity", fill.Quantity),
		applogger.Float64("price", fill.Price),
	)
	return nil
}

func (a *Agent) OnLimitUpdate(ctx context.Context, limits models.RiskLimits) error {
	a.log.Info("risk limits updated", applogger.Float64("max_position_size", limits.MaxPositionSize))
	return a.Base.OnLimitUpdate(ctx, limits)
}

func (a *Agent) GetStatus() map[string]any {
	st := a.Base.GetStatus()
	st["fast_period"] = a.params.FastPeriod
	st["slow_period"] = a.params.SlowPeriod
	st["min_data_points"] = a.params.MinDataPoints
	st["position_size_pct"] = a.params.PositionSizePct
	return st
}

// Average is the simple mean of the last period values.
func Average(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// Confidence grows with the gap between the averages, capped at 1.
func Confidence(fast, slow float64) float64 {
	if fast == 0 || slow == 0 {
		return 0.5
	}
	return math.Min(0.5+math.Abs(fast-slow)/slow*10, 1.0)
}
