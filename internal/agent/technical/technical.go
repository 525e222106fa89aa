// Package technical implements an ensemble agent over trend, mean reversion,
// momentum, volatility and statistical indicators.
package technical

import (
	"context"
	"fmt"
	"math"
	"sort"

	"TradeBot/internal/agent"
	"TradeBot/internal/domain/models"
	applogger "TradeBot/pkg/logger"
)

const (
	bullish = "bullish"
	bearish = "bearish"
	neutral = "neutral"
)

var weights = map[string]float64{
	"trend":          0.25,
	"mean_reversion": 0.20,
	"momentum":       0.25,
	"volatility":     0.15,
	"stat_arb":       0.15,
}

type Params struct {
	MinDataPoints   int     `yaml:"min_data_points" default:"60" validate:"min=2"`
	PositionSizePct float64 `yaml:"position_size_pct" default:"0.1" validate:"gt=0,lte=1"`
	Threshold       float64 `yaml:"signal_threshold" default:"0.2" validate:"gt=0,lt=1"`
}

// Reading is the verdict of one sub-strategy.
type Reading struct {
	Signal     string             `json:"signal"`
	Confidence float64            `json:"confidence"`
	Metrics    map[string]float64 `json:"metrics"`
}

type Agent struct {
	*agent.Base
	params Params
	log    *applogger.Logger
}

var _ agent.Agent = (*Agent)(nil)

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
	return &Agent{Base: agent.NewBase(name), params: p, log: l.With(applogger.String("agent", name))}
}

func (a *Agent) GenerateSignals(ctx context.Context, snap models.Snapshot) ([]models.Signal, error) {
	symbols := make([]string, 0, len(snap.Prices))
	for s := range snap.Prices {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	maxPosition := a.RiskLimits().MaxPositionSize
	if maxPosition <= 0 {
		maxPosition = 10000
	}
	target := math.Min(maxPosition*a.params.PositionSizePct, maxPosition)

	signals := make([]models.Signal, 0)
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bars := snap.Prices[symbol].Bars
		if len(bars) < a.params.MinDataPoints {
			continue
		}

		readings := Analyze(bars)
		combined := Combine(readings, a.params.Threshold)
		position := snap.Position(symbol)

		meta := map[string]any{"strategy": "technical_ensemble", "readings": readings}
		switch {
		case combined.Signal == bullish && position <= 0:
			signals = append(signals, models.Signal{
				Symbol:     symbol,
				Action:     models.ActionBuy,
				Quantity:   target - position,
				Confidence: combined.Confidence,
				Reasoning:  reasoning(combined, readings),
				Metadata:   meta,
			})
		case combined.Signal == bearish && position > 0:
			signals = append(signals, models.Signal{
				Symbol:     symbol,
				Action:     models.ActionSell,
				Quantity:   position,
				Confidence: combined.Confidence,
				Reasoning:  reasoning(combined, readings),
				Metadata:   meta,
			})
		}
	}
	return signals, nil
}

func (a *Agent) OnFill(_ context.Context, fill models.Fill) error {
	a.log.Info("fill received", applogger.String("symbol", fill.Symbol), applogger.Float64("quantity", fill.Quantity))
	return nil
}

func (a *Agent) GetStatus() map[string]any {
	st := a.Base.GetStatus()
	st["min_data_points"] = a.params.MinDataPoints
	st["signal_threshold"] = a.params.Threshold
	return st
}

func reasoning(c Reading, r map[string]Reading) string {
	return fmt.Sprintf("ensemble %s (%.0f%%): trend=%s mean_reversion=%s momentum=%s volatility=%s stat_arb=%s",
		c.Signal, c.Confidence*100,
		r["trend"].Signal, r["mean_reversion"].Signal, r["momentum"].Signal, r["volatility"].Signal, r["stat_arb"].Signal)
}

// Analyze runs every sub-strategy over the bars, oldest first.
func Analyze(bars []models.Bar) map[string]Reading {
	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}
	returns := Returns(closes)

	return map[string]Reading{
		"trend":          trendReading(closes, bars),
		"mean_reversion": meanReversionReading(closes),
		"momentum":       momentumReading(returns, volumes),
		"volatility":     volatilityReading(returns, bars, closes),
		"stat_arb":       statArbReading(returns, closes),
	}
}

// Combine folds readings into one verdict weighted by strategy weight and confidence.
func Combine(readings map[string]Reading, threshold float64) Reading {
	var weighted, total float64
	for name, r := range readings {
		w := weights[name]
		v := 0.0
		switch r.Signal {
		case bullish:
			v = 1
		case bearish:
			v = -1
		}
		weighted += v * w * r.Confidence
		total += w * r.Confidence
	}
	score := 0.0
	if total > 0 {
		score = weighted / total
	}
	out := Reading{Signal: neutral, Confidence: math.Abs(score), Metrics: map[string]float64{"score": score}}
	switch {
	case score > threshold:
		out.Signal = bullish
	case score < -threshold:
		out.Signal = bearish
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(v, 1))
}

func neutralReading(metrics map[string]float64) Reading {
	return Reading{Signal: neutral, Confidence: 0.5, Metrics: metrics}
}

func trendReading(closes []float64, bars []models.Bar) Reading {
	adx := ADX(bars, 14)
	if !valid(adx) || len(closes) < 2 {
		return neutralReading(nil)
	}
	e8, e21, e55 := last(EMA(closes, 8)), last(EMA(closes, 21)), last(EMA(closes, 55))
	short := e8 > e21
	medium := e21 > e55
	strength := adx / 100
	m := map[string]float64{"adx": adx, "trend_strength": strength}

	switch {
	case short && medium:
		return Reading{Signal: bullish, Confidence: clamp01(strength), Metrics: m}
	case !short && !medium:
		return Reading{Signal: bearish, Confidence: clamp01(strength), Metrics: m}
	}
	return neutralReading(m)
}

func meanReversionReading(closes []float64) Reading {
	w50, ok := tail(closes, 50)
	if !ok {
		return neutralReading(nil)
	}
	w20, _ := tail(closes, 20)
	price := last(closes)

	std50 := sampleStd(w50)
	sma20, std20 := mean(w20), sampleStd(w20)
	upper, lower := sma20+2*std20, sma20-2*std20
	if std50 == 0 || upper == lower {
		return neutralReading(nil)
	}
	z := (price - mean(w50)) / std50
	pos := (price - lower) / (upper - lower)
	m := map[string]float64{"z_score": z, "price_vs_bb": pos, "rsi_14": RSI(closes, 14), "rsi_28": RSI(closes, 28)}

	switch {
	case z < -2 && pos < 0.2:
		return Reading{Signal: bullish, Confidence: clamp01(math.Abs(z) / 4), Metrics: m}
	case z > 2 && pos > 0.8:
		return Reading{Signal: bearish, Confidence: clamp01(math.Abs(z) / 4), Metrics: m}
	}
	return neutralReading(m)
}

func sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}

func momentumReading(returns, volumes []float64) Reading {
	r126, ok := tail(returns, 126)
	if !ok {
		return neutralReading(nil)
	}
	r63, _ := tail(returns, 63)
	r21, _ := tail(returns, 21)
	m1, m3, m6 := sum(r21), sum(r63), sum(r126)

	volMomentum := 1.0
	if v21, ok := tail(volumes, 21); ok {
		if ma := mean(v21); ma > 0 {
			volMomentum = last(volumes) / ma
		}
	}
	score := 0.4*m1 + 0.3*m3 + 0.3*m6
	m := map[string]float64{"momentum_1m": m1, "momentum_3m": m3, "momentum_6m": m6, "volume_momentum": volMomentum}

	confirmed := volMomentum > 1.0
	switch {
	case score > 0.05 && confirmed:
		return Reading{Signal: bullish, Confidence: clamp01(math.Abs(score) * 5), Metrics: m}
	case score < -0.05 && confirmed:
		return Reading{Signal: bearish, Confidence: clamp01(math.Abs(score) * 5), Metrics: m}
	}
	return neutralReading(m)
}

func volatilityReading(returns []float64, bars []models.Bar, closes []float64) Reading {
	hv := rollingStd(returns, 21)
	window, ok := tail(hv, 63)
	if !ok {
		return neutralReading(nil)
	}
	annual := math.Sqrt(252)
	current := last(hv) * annual
	ma := mean(window) * annual
	sd := sampleStd(window) * annual

	regime := 1.0
	if ma > 0 {
		regime = current / ma
	}
	z := 0.0
	if sd > 0 {
		z = (current - ma) / sd
	}
	atrRatio := 0.0
	if p := last(closes); p > 0 {
		atrRatio = ATR(bars, 14) / p
	}
	m := map[string]float64{"historical_volatility": current, "volatility_regime": regime, "volatility_z_score": z, "atr_ratio": atrRatio}

	switch {
	case regime < 0.8 && z < -1:
		return Reading{Signal: bullish, Confidence: clamp01(math.Abs(z) / 3), Metrics: m}
	case regime > 1.2 && z > 1:
		return Reading{Signal: bearish, Confidence: clamp01(math.Abs(z) / 3), Metrics: m}
	}
	return neutralReading(m)
}

func statArbReading(returns, closes []float64) Reading {
	r63, ok := tail(returns, 63)
	if !ok {
		return neutralReading(nil)
	}
	skew := Skew(r63)
	if !valid(skew) {
		return neutralReading(nil)
	}
	hurst := Hurst(closes, 20)
	m := map[string]float64{"hurst_exponent": hurst, "skewness": skew}

	switch {
	case hurst < 0.4 && skew > 1:
		return Reading{Signal: bullish, Confidence: clamp01((0.5 - hurst) * 2), Metrics: m}
	case hurst < 0.4 && skew < -1:
		return Reading{Signal: bearish, Confidence: clamp01((0.5 - hurst) * 2), Metrics: m}
	}
	return neutralReading(m)
}
