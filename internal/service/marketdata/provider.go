package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"TradeBot/internal/domain/models"
	drepo "TradeBot/internal/domain/repository"
	"TradeBot/internal/service/ratelimit"
	pkgcache "TradeBot/pkg/cache"
	applogger "TradeBot/pkg/logger"
	"TradeBot/pkg/metrics"
)

const (
	DefaultCacheTTL    = 59 * time.Second
	DefaultHistoryDays = 180
	liveQuoteMaxAge    = time.Minute
)

type RateLimit struct {
	Capacity     float64
	RefillPerSec float64
}

type ProviderOption func(*Provider)

func WithCache(c pkgcache.Service, ttl time.Duration) ProviderOption {
	return func(p *Provider) {
		p.cache = c
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

func WithRateLimit(l *ratelimit.Limiter, rl RateLimit) ProviderOption {
	return func(p *Provider) {
		p.limiter = l
		p.rl = rl
	}
}

func WithHistoryDays(days int) ProviderOption {
	return func(p *Provider) {
		if days > 0 {
			p.historyDays = days
		}
	}
}

// WithPriceBook lets fresh streamed prices override the polled last price.
func WithPriceBook(b *PriceBook) ProviderOption {
	return func(p *Provider) { p.book = b }
}

func WithProviderLogger(l *applogger.Logger) ProviderOption {
	return func(p *Provider) { p.log = l }
}

func WithProviderMetrics(m drepo.Metrics) ProviderOption {
	return func(p *Provider) { p.metrics = m }
}

func WithProviderClock(now func() time.Time) ProviderOption {
	return func(p *Provider) { p.now = now }
}

// Provider builds snapshots from the first source that answers for each symbol.
type Provider struct {
	sources     []Source
	cache       pkgcache.Service
	ttl         time.Duration
	limiter     *ratelimit.Limiter
	rl          RateLimit
	historyDays int
	book        *PriceBook
	log         *applogger.Logger
	metrics     drepo.Metrics
	now         func() time.Time
}

func NewProvider(sources []Source, opts ...ProviderOption) *Provider {
	p := &Provider{
		sources:     sources,
		ttl:         DefaultCacheTTL,
		historyDays: DefaultHistoryDays,
		log:         applogger.NewNop(),
		metrics:     metrics.Nop{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Series returns the cached or freshly fetched series for symbol.
func (p *Provider) Series(ctx context.Context, symbol string) (models.PriceSeries, error) {
	if p.cache == nil {
		return p.fetch(ctx, symbol)
	}
	key := pkgcache.GenerateKeyWithParams("series", symbol, p.historyDays)
	return pkgcache.GetOrLoad(ctx, p.cache, key, p.ttl, func(ctx context.Context) (models.PriceSeries, error) {
		return p.fetch(ctx, symbol)
	})
}

func (p *Provider) fetch(ctx context.Context, symbol string) (models.PriceSeries, error) {
	if len(p.sources) == 0 {
		return models.PriceSeries{}, fmt.Errorf("%s: no market data sources configured", symbol)
	}
	to := p.now()
	from := to.AddDate(0, 0, -p.historyDays)

	var errs []error
	for _, src := range p.sources {
		start := time.Now()
		s, err := p.fromSource(ctx, src, symbol, from, to)
		p.metrics.RecordLatency("marketdata_"+src.Name(), time.Since(start).Seconds())
		if err == nil {
			p.metrics.RecordLastPrice(symbol, s.Last)
			return s, nil
		}
		if ctx.Err() != nil {
			return models.PriceSeries{}, ctx.Err()
		}
		p.metrics.RecordError("marketdata_" + src.Name())
		p.log.Debug("market data source failed",
			applogger.String("source", src.Name()),
			applogger.String("symbol", symbol),
			applogger.Error(err))
		errs = append(errs, err)
	}
	return models.PriceSeries{}, errors.Join(errs...)
}

func (p *Provider) fromSource(ctx context.Context, src Source, symbol string, from, to time.Time) (models.PriceSeries, error) {
	if err := p.wait(ctx, src); err != nil {
		return models.PriceSeries{}, err
	}
	bars, err := src.Bars(ctx, symbol, from, to)
	if err != nil {
		return models.PriceSeries{}, err
	}
	if len(bars) == 0 {
		return models.PriceSeries{}, fmt.Errorf("%s %s: %w", src.Name(), symbol, ErrNoData)
	}

	if err := p.wait(ctx, src); err != nil {
		return models.PriceSeries{}, err
	}
	// A failed quote falls back to the last close.
	last, err := src.Quote(ctx, symbol)
	if err != nil {
		last = bars[len(bars)-1].Close
	}
	return models.PriceSeries{Last: last, Bars: bars}, nil
}

func (p *Provider) wait(ctx context.Context, src Source) error {
	if p.limiter == nil || p.rl.Capacity <= 0 {
		return nil
	}
	return p.limiter.Wait(ctx, src.Name(), p.rl.Capacity, p.rl.RefillPerSec)
}

// Snapshot fetches every symbol concurrently. Symbols with no data are left out;
// the call fails only when none of them could be fetched.
func (p *Provider) Snapshot(ctx context.Context, symbols []string, positions map[string]float64) (models.Snapshot, error) {
	now := p.now()
	snap := models.Snapshot{
		Prices:    make(map[string]models.PriceSeries, len(symbols)),
		Positions: make(map[string]float64, len(positions)),
		Timestamp: now,
	}
	for k, v := range positions {
		snap.Positions[k] = v
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs []error
	)
	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			s, err := p.Series(ctx, sym)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				p.log.Warn("symbol skipped in snapshot", applogger.String("symbol", sym), applogger.Error(err))
				return
			}
			if p.book != nil {
				if live, at, ok := p.book.Last(sym); ok && now.Sub(at) <= liveQuoteMaxAge {
					s.Last = live
				}
			}
			snap.Prices[sym] = s
		}(sym)
	}
	wg.Wait()

	if len(symbols) > 0 && len(snap.Prices) == 0 {
		return snap, fmt.Errorf("snapshot: no symbol could be fetched: %w", errors.Join(errs...))
	}
	return snap, nil
}

var _ drepo.MarketData = (*Provider)(nil)
