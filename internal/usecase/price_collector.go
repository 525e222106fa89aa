package usecase

import (
	"context"

	"TradeBot/internal/domain/models"
	drepo "TradeBot/internal/domain/repository"
	applogger "TradeBot/pkg/logger"
	"TradeBot/pkg/metrics"
)

// PriceBook receives live prints from the collector.
type PriceBook interface {
	Update(t models.Trade)
}

// PriceCollector feeds live trades from a market stream into a price book.
type PriceCollector struct {
	stream  drepo.MarketStream
	book    PriceBook
	metrics drepo.Metrics
	log     *applogger.Logger
}

func NewPriceCollector(stream drepo.MarketStream, book PriceBook, m drepo.Metrics, l *applogger.Logger) *PriceCollector {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &PriceCollector{stream: stream, book: book, metrics: m, log: l}
}

func (c *PriceCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects and consumes in the background until ctx ends.
func (c *PriceCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	trCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, trCh, errCh)
	return nil
}

func (c *PriceCollector) consume(ctx context.Context, trCh <-chan *models.Trade, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			c.metrics.RecordError("stream")
			c.log.Warn("market stream error", applogger.Error(err))
		case t, ok := <-trCh:
			if !ok {
				if !c.reconnect(ctx) {
					return
				}
				trCh, errCh = c.stream.Read(ctx)
				continue
			}
			if t == nil {
				continue
			}
			c.book.Update(*t)
			c.metrics.RecordLastPrice(t.Symbol, t.Price)
		}
	}
}

// reconnect retries until it succeeds or ctx ends.
func (c *PriceCollector) reconnect(ctx context.Context) bool {
	for ctx.Err() == nil {
		err := c.stream.Reconnect(ctx)
		if err == nil {
			c.log.Info("market stream reconnected")
			return true
		}
		c.metrics.RecordError("stream_reconnect")
		c.log.Warn("market stream reconnect failed", applogger.Error(err))
	}
	return false
}

func (c *PriceCollector) Shutdown(context.Context) error {
	return c.stream.Close()
}
