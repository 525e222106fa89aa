// Package risk sizes orders from volatility and the current limits.
package risk

import (
	"errors"
	"fmt"

	"TradeBot/internal/domain/models"
	domsvc "TradeBot/internal/domain/service"

	"github.com/shopspring/decimal"
)

var (
	ErrSymbolNotAllowed = errors.New("symbol not allowed")
	ErrZeroSize         = errors.New("order size is zero")
	ErrNoPrice          = errors.New("no price")
)

type Config struct {
	Capital       float64
	RiskPerTrade  float64
	StopLossPct   float64
	TakeProfitPct float64
}

// Sizer risks a fixed share of capital per trade with the stop at 2 ATR.
type Sizer struct {
	capital       decimal.Decimal
	riskPerTrade  decimal.Decimal
	stopLossPct   decimal.Decimal
	takeProfitPct decimal.Decimal
}

func NewSizer(cfg Config) *Sizer {
	return &Sizer{
		capital:       decimal.NewFromFloat(cfg.Capital),
		riskPerTrade:  decimal.NewFromFloat(cfg.RiskPerTrade),
		stopLossPct:   decimal.NewFromFloat(cfg.StopLossPct),
		takeProfitPct: decimal.NewFromFloat(cfg.TakeProfitPct),
	}
}

var two = decimal.NewFromInt(2)

// PositionSize is floor(capital*risk_per_trade / (2*atr)), zero when atr is not positive.
func (s *Sizer) PositionSize(capital, atr float64) int64 {
	perShare := decimal.NewFromFloat(atr).Mul(two)
	if !perShare.IsPositive() {
		return 0
	}
	qty := decimal.NewFromFloat(capital).Mul(s.riskPerTrade).Div(perShare).Floor()
	if qty.IsNegative() {
		return 0
	}
	return qty.IntPart()
}

// Size returns the share quantity to send for intent. Buys are volatility sized and
// capped by the signal quantity and by the room left under MaxPositionSize. Sells never
// exceed the held position.
func (s *Sizer) Size(intent models.OrderIntent, limits models.RiskLimits, position float64) (float64, error) {
	sig := intent.Signal
	if !limits.Allows(sig.Symbol) {
		return 0, fmt.Errorf("%w: %s", ErrSymbolNotAllowed, sig.Symbol)
	}
	if intent.Price <= 0 {
		return 0, fmt.Errorf("%w for %s", ErrNoPrice, sig.Symbol)
	}

	want := decimal.NewFromFloat(sig.Quantity)
	held := decimal.NewFromFloat(position)
	var qty decimal.Decimal

	switch sig.Action {
	case models.ActionSell:
		qty = want
		if !qty.IsPositive() || qty.GreaterThan(held) {
			qty = held
		}
	case models.ActionBuy:
		qty = want
		if sized := s.PositionSize(s.capital.InexactFloat64(), intent.ATR); sized > 0 {
			v := decimal.NewFromInt(sized)
			if !qty.IsPositive() || v.LessThan(qty) {
				qty = v
			}
		}
		if limits.MaxPositionSize > 0 {
			room := decimal.NewFromFloat(limits.MaxPositionSize).Sub(held)
			if room.LessThan(qty) {
				qty = room
			}
		}
	default:
		return 0, fmt.Errorf("%w: action %q", ErrZeroSize, sig.Action)
	}

	qty = qty.Floor()
	if !qty.IsPositive() {
		return 0, fmt.Errorf("%w: %s %s", ErrZeroSize, sig.Action, sig.Symbol)
	}
	return qty.InexactFloat64(), nil
}

func (s *Sizer) StopLoss(entry float64, side models.Action) float64 {
	return s.offset(entry, s.stopLossPct, side == models.ActionSell)
}

func (s *Sizer) TakeProfit(entry float64, side models.Action) float64 {
	return s.offset(entry, s.takeProfitPct, side != models.ActionSell)
}

func (s *Sizer) offset(entry float64, pct decimal.Decimal, up bool) float64 {
	e := decimal.NewFromFloat(entry)
	d := e.Mul(pct)
	if up {
		return e.Add(d).Round(4).InexactFloat64()
	}
	return e.Sub(d).Round(4).InexactFloat64()
}

var (
	_ domsvc.PositionSizer = (*Sizer)(nil)
	_ domsvc.StopLevels    = (*Sizer)(nil)
)
