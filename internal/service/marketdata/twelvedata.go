package marketdata

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"TradeBot/internal/domain/models"
	xhttp "TradeBot/pkg/http"
)

const DefaultTwelveDataURL = "https://api.twelvedata.com"

type TwelveData struct {
	apiKey string
	client *xhttp.Client
}

func NewTwelveData(apiKey, baseURL string) *TwelveData {
	if baseURL == "" {
		baseURL = DefaultTwelveDataURL
	}
	return &TwelveData{
		apiKey: apiKey,
		client: xhttp.NewClient(xhttp.WithBaseURL(baseURL), xhttp.WithTimeout(10*time.Second)),
	}
}

func (t *TwelveData) Name() string { return "twelvedata" }

type tdValue struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

type tdSeries struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Values  []tdValue `json:"values"`
}

type tdPrice struct {
	Price   string `json:"price"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (t *TwelveData) Quote(ctx context.Context, symbol string) (float64, error) {
	var p tdPrice
	if err := t.client.GetJSON(ctx, "/price", map[string]string{"symbol": symbol, "apikey": t.apiKey}, &p); err != nil {
		return 0, fmt.Errorf("twelvedata price %s: %w", symbol, err)
	}
	if p.Status == "error" {
		return 0, fmt.Errorf("twelvedata price %s: %s", symbol, p.Message)
	}
	v, err := strconv.ParseFloat(p.Price, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("twelvedata price %s: %w", symbol, ErrNoData)
	}
	return v, nil
}

// Bars returns daily bars oldest first.
func (t *TwelveData) Bars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	days := int(to.Sub(from).Hours()/24) + 1
	var s tdSeries
	err := t.client.GetJSON(ctx, "/time_series", map[string]string{
		"symbol":     symbol,
		"interval":   "1day",
		"outputsize": strconv.Itoa(days),
		"apikey":     t.apiKey,
	}, &s)
	if err != nil {
		return nil, fmt.Errorf("twelvedata series %s: %w", symbol, err)
	}
	if s.Status == "error" {
		return nil, fmt.Errorf("twelvedata series %s: %s", symbol, s.Message)
	}

	bars := make([]models.Bar, 0, len(s.Values))
	for _, v := range s.Values {
		ts, err := time.Parse("2006-01-02", v.Datetime)
		if err != nil {
			ts, err = time.Parse("2006-01-02 15:04:05", v.Datetime)
			if err != nil {
				continue
			}
		}
		if ts.Before(from.Truncate(24*time.Hour)) || ts.After(to) {
			continue
		}
		bars = append(bars, models.Bar{
			Timestamp: ts,
			Open:      parseFloat(v.Open),
			High:      parseFloat(v.High),
			Low:       parseFloat(v.Low),
			Close:     parseFloat(v.Close),
			Volume:    parseFloat(v.Volume),
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("twelvedata series %s: %w", symbol, ErrNoData)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
