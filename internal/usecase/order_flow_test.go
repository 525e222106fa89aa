package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"TradeBot/internal/domain/models"
	"TradeBot/internal/service/broker"
	"TradeBot/internal/service/risk"
	pkgcache "TradeBot/pkg/cache"
	"TradeBot/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fillSink struct {
	mu    sync.Mutex
	fills []models.Fill
}

func (f *fillSink) NotifyFills(_ context.Context, fills []models.Fill) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fills = append(f.fills, fills...)
}

func (f *fillSink) NotifyFill(ctx context.Context, fill models.Fill) error {
	f.NotifyFills(ctx, []models.Fill{fill})
	return errors.New("webhook down")
}

func (f *fillSink) all() []models.Fill {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Fill, len(f.fills))
	copy(out, f.fills)
	return out
}

func newOrderJob(t *testing.T, limits models.RiskLimits, agents *fillSink, opts ...OrderJobOption) (*OrderJob, *broker.Paper) {
	t.Helper()
	paper := broker.NewPaper(10_000)
	sizer := risk.NewSizer(risk.Config{Capital: 100_000, RiskPerTrade: 0.01, StopLossPct: 0.02, TakeProfitPct: 0.05})
	return NewOrderJob(sizer, paper, func() models.RiskLimits { return limits }, agents, opts...), paper
}

func buyIntent(sym string, qty float64) models.OrderIntent {
	return models.OrderIntent{
		Signal: models.Signal{Symbol: sym, Action: models.ActionBuy, Quantity: qty, Strategy: "sma", Timestamp: time.Unix(100, 0)},
		Price:  100,
		ATR:    5,
	}
}

func TestOrderJob_FillsAndNotifies(t *testing.T) {
	agents := &fillSink{}
	alerts := &fillSink{}
	job, paper := newOrderJob(t, models.RiskLimits{}, agents, WithFillAlerts(alerts))

	require.NoError(t, job.Handle(context.Background(), buyIntent("AAPL", 10)))

	fills := agents.all()
	require.Len(t, fills, 1)
	assert.Equal(t, 10.0, fills[0].Quantity)
	assert.Equal(t, models.ActionBuy, fills[0].Side)
	assert.Len(t, alerts.all(), 1)

	pos, _ := paper.Positions(context.Background())
	assert.Equal(t, 10.0, pos["AAPL"])
	assert.Equal(t, 9_000.0, paper.Cash())
}

func TestOrderJob_DuplicateIntentFilledOnce(t *testing.T) {
	mc := pkgcache.NewMemoryCache()
	defer mc.Close()
	agents := &fillSink{}
	job, paper := newOrderJob(t, models.RiskLimits{}, agents, WithOrderLocks(mc))

	intent := buyIntent("AAPL", 10)
	require.NoError(t, job.Handle(context.Background(), intent))
	require.NoError(t, job.Handle(context.Background(), map[string]interface{}{
		"signal": map[string]interface{}{
			"symbol": "AAPL", "action": "buy", "quantity": 10.0, "strategy": "sma",
			"timestamp": intent.Signal.Timestamp.Format(time.RFC3339Nano),
		},
		"price": 100.0, "atr": 5.0,
	}))

	assert.Len(t, agents.all(), 1)
	pos, _ := paper.Positions(context.Background())
	assert.Equal(t, 10.0, pos["AAPL"])
}

func TestOrderJob_RejectionsAreNotRetried(t *testing.T) {
	agents := &fillSink{}
	job, _ := newOrderJob(t, models.RiskLimits{AllowedSymbols: []string{"AAPL"}}, agents)

	assert.NoError(t, job.Handle(context.Background(), buyIntent("TSLA", 1)))
	expensive := buyIntent("AAPL", 500)
	expensive.Price = 1_000
	assert.NoError(t, job.Handle(context.Background(), expensive))
	sell := buyIntent("AAPL", 5)
	sell.Signal.Action = models.ActionSell
	assert.NoError(t, job.Handle(context.Background(), sell))
	assert.NoError(t, job.Handle(context.Background(), "garbage"))

	assert.Empty(t, agents.all())
}

func TestOrderJob_MaxPositionSizeCapsBuy(t *testing.T) {
	agents := &fillSink{}
	job, _ := newOrderJob(t, models.RiskLimits{MaxPositionSize: 4}, agents)
	require.NoError(t, job.Handle(context.Background(), buyIntent("AAPL", 10)))
	fills := agents.all()
	require.Len(t, fills, 1)
	assert.Equal(t, 4.0, fills[0].Quantity)
}

type fakeMarket struct {
	snap  models.Snapshot
	err   error
	calls atomic.Int32
}

func (m *fakeMarket) Snapshot(_ context.Context, _ []string, positions map[string]float64) (models.Snapshot, error) {
	m.calls.Add(1)
	s := m.snap
	s.Positions = positions
	return s, m.err
}

type signalLog struct {
	mu      sync.Mutex
	batches [][]models.Signal
}

func (s *signalLog) PublishSignals(_ context.Context, sigs []models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, sigs)
	return nil
}

func trendingBars(n int) []models.Bar {
	out := make([]models.Bar, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = models.Bar{Open: c, High: c + 1, Low: c - 1, Close: c}
	}
	return out
}

func TestTradingLoop_EndToEndThroughQueue(t *testing.T) {
	f := newFixture(t, "buyer", "holder", "broken")
	f.agents["buyer"].signals = []models.Signal{{Symbol: "AAPL", Action: models.ActionBuy, Quantity: 3}}
	f.agents["holder"].signals = []models.Signal{{Symbol: "AAPL", Action: models.ActionHold}}
	f.agents["broken"].err = &ValueError{Msg: "bad"}
	require.NoError(t, f.exec.Load(context.Background(), specs("buyer", "holder", "broken")))

	job, paper := newOrderJob(t, models.RiskLimits{}, &fillSink{})
	job.agents = f.exec
	q := queue.NewMemoryQueue(nil, &queue.QueueConfig{Workers: 1}, job)
	require.NoError(t, q.Start())

	market := &fakeMarket{snap: models.Snapshot{
		Prices:    map[string]models.PriceSeries{"AAPL": {Last: 120, Bars: trendingBars(30)}},
		Timestamp: f.clk.Now(),
	}}
	published := &signalLog{}
	loop := NewTradingLoop(market, f.exec, []string{"AAPL"}, time.Minute,
		WithPositions(paper), WithOrderQueue(q), WithSignalPublisher(published))

	report, err := loop.RunOnce(context.Background())
	require.NoError(t, err)
	require.NoError(t, q.Stop(context.Background()))

	assert.Equal(t, 3, report.Agents)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Signals)
	assert.Equal(t, 1, report.Orders)

	require.Len(t, published.batches, 1)
	assert.Equal(t, "buyer", published.batches[0][0].Strategy)

	pos, _ := paper.Positions(context.Background())
	assert.Equal(t, 3.0, pos["AAPL"])
	assert.Len(t, f.agents["buyer"].fills, 1)
	assert.Len(t, f.agents["holder"].fills, 1)
}

func TestTradingLoop_SnapshotFailure(t *testing.T) {
	f := newFixture(t, "a")
	require.NoError(t, f.exec.Load(context.Background(), specs("a")))
	loop := NewTradingLoop(&fakeMarket{err: errors.New("feed down")}, f.exec, nil, time.Minute)
	_, err := loop.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestTradingLoop_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t, "a")
	require.NoError(t, f.exec.Load(context.Background(), specs("a")))
	market := &fakeMarket{snap: models.Snapshot{Timestamp: f.clk.Now()}}
	loop := NewTradingLoop(market, f.exec, nil, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	require.Eventually(t, func() bool { return market.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}
