// Package marketdata fetches quotes and daily bars and assembles snapshots.
package marketdata

import (
	"context"
	"errors"
	"strings"
	"time"

	"TradeBot/internal/domain/models"
)

var ErrNoData = errors.New("no data")

// Source is one upstream quote and history provider.
type Source interface {
	Name() string
	Quote(ctx context.Context, symbol string) (float64, error)
	Bars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error)
}

// forexSymbol maps EUR/USD style pairs to the OANDA:EUR_USD form Finnhub expects.
func forexSymbol(symbol string) string {
	base, quote, ok := strings.Cut(symbol, "/")
	if !ok {
		return symbol
	}
	return "OANDA:" + base + "_" + quote
}
