// Package middleware holds filters that sit between the market stream and its consumers.
package middleware

import (
	"errors"
	"sync"
	"time"

	"TradeBot/internal/domain/models"
	drepo "TradeBot/internal/domain/repository"
	"TradeBot/pkg/metrics"
)

var (
	errEmptySymbol  = errors.New("symbol empty")
	errBadTimestamp = errors.New("timestamp invalid")
	errBadPrice     = errors.New("non-positive price or negative volume")
)

// Downstream is anything that accepts live prints, such as the price book.
type Downstream interface {
	Update(t models.Trade)
}

type ThrottleOption func(*TradeThrottle)

// WithMaxRPS caps accepted prints per symbol per second. Zero disables throttling.
func WithMaxRPS(n int) ThrottleOption {
	return func(p *TradeThrottle) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithTransform rewrites each print before validation, e.g. to map exchange symbols.
func WithTransform(fn func(models.Trade) models.Trade) ThrottleOption {
	return func(p *TradeThrottle) { p.transform = fn }
}

func WithThrottleClock(now func() time.Time) ThrottleOption {
	return func(p *TradeThrottle) { p.now = now }
}

// TradeThrottle validates live prints and drops bursts above maxRPS per symbol.
// Snapshots only need the latest price, so dropped prints lose nothing the next
// accepted print does not replace.
type TradeThrottle struct {
	next      Downstream
	metrics   drepo.Metrics
	maxRPS    int
	transform func(models.Trade) models.Trade
	now       func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func NewTradeThrottle(next Downstream, m drepo.Metrics, opts ...ThrottleOption) *TradeThrottle {
	if m == nil {
		m = metrics.Nop{}
	}
	p := &TradeThrottle{
		next:     next,
		metrics:  m,
		maxRPS:   20,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *TradeThrottle) Update(t models.Trade) {
	if p.transform != nil {
		t = p.transform(t)
	}
	if err := validateTrade(t); err != nil {
		p.metrics.RecordError("throttle_invalid")
		return
	}
	if !p.allow(t.Symbol, p.now()) {
		p.metrics.RecordError("throttle_dropped")
		return
	}
	p.next.Update(t)
}

func validateTrade(t models.Trade) error {
	switch {
	case t.Symbol == "":
		return errEmptySymbol
	case t.Timestamp.IsZero():
		return errBadTimestamp
	case t.Price <= 0 || t.Volume < 0:
		return errBadPrice
	}
	return nil
}

func (p *TradeThrottle) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastSeen[symbol]
	if ok && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
