package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"TradeBot/internal/agent"
	"TradeBot/internal/domain/models"
	"TradeBot/internal/heartbeat"
)

type scriptedAgent struct {
	*agent.Base
	signals []models.Signal
	err     error
	panicV  any
	block   bool
	run     func(ctx context.Context) ([]models.Signal, error)

	mu     sync.Mutex
	fills  []models.Fill
	limits []models.RiskLimits
}

func newScripted(name string) *scriptedAgent {
	return &scriptedAgent{Base: agent.NewBase(name)}
}

func (s *scriptedAgent) GenerateSignals(ctx context.Context, _ models.Snapshot) ([]models.Signal, error) {
	if s.panicV != nil {
		panic(s.panicV)
	}
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.run != nil {
		return s.run(ctx)
	}
	out := make([]models.Signal, len(s.signals))
	copy(out, s.signals)
	return out, s.err
}

func (s *scriptedAgent) OnFill(_ context.Context, f models.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fills = append(s.fills, f)
	if s.panicV != nil {
		panic(s.panicV)
	}
	return s.err
}

func (s *scriptedAgent) OnLimitUpdate(ctx context.Context, l models.RiskLimits) error {
	s.mu.Lock()
	s.limits = append(s.limits, l)
	s.mu.Unlock()
	if s.panicV != nil {
		panic(s.panicV)
	}
	return s.Base.OnLimitUpdate(ctx, l)
}

func (s *scriptedAgent) GetStatus() map[string]any {
	if s.panicV != nil {
		panic(s.panicV)
	}
	return s.Base.GetStatus()
}

// ValueError mirrors a typed data error an agent might raise.
type ValueError struct{ Msg string }

func (e *ValueError) Error() string { return e.Msg }

var errSink = errors.New("db down")

type memSink struct {
	mu      sync.Mutex
	events  []models.HeartbeatEvent
	ctxErrs []error
	err     error
}

func (m *memSink) Write(ctx context.Context, ev models.HeartbeatEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	return m.err
}

func (m *memSink) Latest(context.Context) ([]models.HeartbeatEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	latest := map[string]models.HeartbeatEvent{}
	for _, ev := range m.events {
		latest[ev.AgentName] = ev
	}
	out := make([]models.HeartbeatEvent, 0, len(latest))
	for _, ev := range latest {
		out = append(out, ev)
	}
	return out, nil
}

func (m *memSink) statuses(name string) []models.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.HealthStatus
	for _, ev := range m.events {
		if ev.AgentName == name {
			out = append(out, ev.Status)
		}
	}
	return out
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newRecorder(sink *memSink, clk *testClock) *HeartbeatRecorder {
	ledger := heartbeat.NewLedger(heartbeat.WithClock(clk.Now), heartbeat.WithTimeout(10*time.Minute))
	opts := []RecorderOption{WithRecorderClock(clk.Now)}
	if sink != nil {
		opts = append(opts, WithHeartbeatSink(sink))
	}
	return NewHeartbeatRecorder(ledger, opts...)
}
