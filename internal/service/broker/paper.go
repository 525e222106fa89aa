// Package broker routes orders. Paper fills immediately at the order price.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"TradeBot/internal/domain/models"
	drepo "TradeBot/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientCash     = errors.New("insufficient cash")
	ErrInsufficientPosition = errors.New("insufficient position")
	ErrInvalidOrder         = errors.New("invalid order")
)

type Paper struct {
	mu        sync.Mutex
	cash      decimal.Decimal
	positions map[string]decimal.Decimal
	now       func() time.Time
}

func NewPaper(startingCash float64) *Paper {
	return &Paper{
		cash:      decimal.NewFromFloat(startingCash),
		positions: make(map[string]decimal.Decimal),
		now:       time.Now,
	}
}

// WithClock swaps the fill timestamp source and returns p.
func (p *Paper) WithClock(now func() time.Time) *Paper {
	p.now = now
	return p
}

func (p *Paper) Submit(_ context.Context, o models.Order) (models.Fill, error) {
	if o.Quantity <= 0 || o.Price <= 0 || o.Symbol == "" {
		return models.Fill{}, fmt.Errorf("%w: %s %g@%g", ErrInvalidOrder, o.Symbol, o.Quantity, o.Price)
	}
	qty := decimal.NewFromFloat(o.Quantity)
	notional := qty.Mul(decimal.NewFromFloat(o.Price))

	p.mu.Lock()
	defer p.mu.Unlock()

	held := p.positions[o.Symbol]
	switch o.Side {
	case models.ActionBuy:
		if notional.GreaterThan(p.cash) {
			return models.Fill{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientCash, notional.StringFixed(2), p.cash.StringFixed(2))
		}
		p.cash = p.cash.Sub(notional)
		p.positions[o.Symbol] = held.Add(qty)
	case models.ActionSell:
		if qty.GreaterThan(held) {
			return models.Fill{}, fmt.Errorf("%w: %s holds %s", ErrInsufficientPosition, o.Symbol, held.String())
		}
		p.cash = p.cash.Add(notional)
		if left := held.Sub(qty); left.IsZero() {
			delete(p.positions, o.Symbol)
		} else {
			p.positions[o.Symbol] = left
		}
	default:
		return models.Fill{}, fmt.Errorf("%w: side %q", ErrInvalidOrder, o.Side)
	}

	id := o.ID
	if id == "" {
		id = uuid.NewString()
	}
	return models.Fill{
		OrderID:   id,
		Symbol:    o.Symbol,
		Side:      o.Side,
		Quantity:  o.Quantity,
		Price:     o.Price,
		Timestamp: p.now(),
	}, nil
}

func (p *Paper) Positions(context.Context) (map[string]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]float64, len(p.positions))
	for sym, q := range p.positions {
		out[sym] = q.InexactFloat64()
	}
	return out, nil
}

func (p *Paper) Cash() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash.InexactFloat64()
}

var _ drepo.Broker = (*Paper)(nil)
