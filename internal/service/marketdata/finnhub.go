package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"TradeBot/internal/domain/models"
	xhttp "TradeBot/pkg/http"
)

const DefaultFinnhubURL = "https://finnhub.io/api/v1"

type Finnhub struct {
	apiKey string
	client *xhttp.Client
}

func NewFinnhub(apiKey, baseURL string) *Finnhub {
	if baseURL == "" {
		baseURL = DefaultFinnhubURL
	}
	return &Finnhub{
		apiKey: apiKey,
		client: xhttp.NewClient(
			xhttp.WithBaseURL(baseURL),
			xhttp.WithTimeout(10*time.Second),
			xhttp.WithRetry(2, 500*time.Millisecond),
		),
	}
}

func (f *Finnhub) Name() string { return "finnhub" }

type fhQuote struct {
	C  float64 `json:"c"`
	H  float64 `json:"h"`
	L  float64 `json:"l"`
	O  float64 `json:"o"`
	PC float64 `json:"pc"`
	T  int64   `json:"t"`
}

func (f *Finnhub) Quote(ctx context.Context, symbol string) (float64, error) {
	var q fhQuote
	err := f.client.GetJSON(ctx, "/quote", map[string]string{
		"symbol": forexSymbol(symbol),
		"token":  f.apiKey,
	}, &q)
	if err != nil {
		return 0, fmt.Errorf("finnhub quote %s: %w", symbol, err)
	}
	if q.C == 0 {
		return 0, fmt.Errorf("finnhub quote %s: %w", symbol, ErrNoData)
	}
	return q.C, nil
}

type fhCandles struct {
	C []float64 `json:"c"`
	H []float64 `json:"h"`
	L []float64 `json:"l"`
	O []float64 `json:"o"`
	T []int64   `json:"t"`
	V []float64 `json:"v"`
	S string    `json:"s"`
}

func (f *Finnhub) Bars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	var c fhCandles
	err := f.client.GetJSON(ctx, "/stock/candle", map[string]string{
		"symbol":     forexSymbol(symbol),
		"resolution": "D",
		"from":       strconv.FormatInt(from.Unix(), 10),
		"to":         strconv.FormatInt(to.Unix(), 10),
		"token":      f.apiKey,
	}, &c)
	if err != nil {
		return nil, fmt.Errorf("finnhub candles %s: %w", symbol, err)
	}
	if c.S != "ok" || len(c.C) == 0 {
		return nil, fmt.Errorf("finnhub candles %s: %w (status %q)", symbol, ErrNoData, c.S)
	}
	n := len(c.C)
	if len(c.T) != n || len(c.O) != n || len(c.H) != n || len(c.L) != n {
		return nil, fmt.Errorf("finnhub candles %s: ragged arrays", symbol)
	}
	bars := make([]models.Bar, n)
	for i := range bars {
		bars[i] = models.Bar{
			Timestamp: time.Unix(c.T[i], 0).UTC(),
			Open:      c.O[i],
			High:      c.H[i],
			Low:       c.L[i],
			Close:     c.C[i],
		}
		if i < len(c.V) {
			bars[i].Volume = c.V[i]
		}
	}
	return bars, nil
}
