package marketdata

import (
	"context"
	"fmt"
	"time"

	"TradeBot/internal/domain/models"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
)

// Yahoo needs no API key. The finance-go calls are not cancellable, so ctx is
// only checked before each request.
type Yahoo struct{}

func NewYahoo() *Yahoo { return &Yahoo{} }

func (Yahoo) Name() string { return "yahoo" }

func (Yahoo) Quote(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	q, err := quote.Get(symbol)
	if err != nil {
		return 0, fmt.Errorf("yahoo quote %s: %w", symbol, err)
	}
	if q == nil || q.RegularMarketPrice == 0 {
		return 0, fmt.Errorf("yahoo quote %s: %w", symbol, ErrNoData)
	}
	return q.RegularMarketPrice, nil
}

func (Yahoo) Bars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	iter := chart.Get(&chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&from),
		End:      datetime.New(&to),
		Interval: datetime.OneDay,
	})

	var bars []models.Bar
	for iter.Next() {
		b := iter.Bar()
		bars = append(bars, models.Bar{
			Timestamp: time.Unix(int64(b.Timestamp), 0).UTC(),
			Open:      b.Open.InexactFloat64(),
			High:      b.High.InexactFloat64(),
			Low:       b.Low.InexactFloat64(),
			Close:     b.Close.InexactFloat64(),
			Volume:    float64(b.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, ErrNoData)
	}
	return bars, nil
}
