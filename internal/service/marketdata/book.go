package marketdata

import (
	"sync"
	"time"

	"TradeBot/internal/domain/models"
)

type tick struct {
	price float64
	at    time.Time
}

// PriceBook keeps the newest streamed price per symbol.
type PriceBook struct {
	mu   sync.RWMutex
	last map[string]tick
}

func NewPriceBook() *PriceBook {
	return &PriceBook{last: make(map[string]tick)}
}

// Update ignores prints older than what is already held.
func (b *PriceBook) Update(t models.Trade) {
	if t.Symbol == "" || t.Price <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.last[t.Symbol]; ok && t.Timestamp.Before(cur.at) {
		return
	}
	b.last[t.Symbol] = tick{price: t.Price, at: t.Timestamp}
}

func (b *PriceBook) Last(symbol string) (float64, time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.last[symbol]
	return t.price, t.at, ok
}
