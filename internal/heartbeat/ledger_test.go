package heartbeat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type missedCall struct {
	name      string
	last, now time.Time
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []missedCall
	err   error
}

func (r *recordingNotifier) HeartbeatMissed(_ context.Context, name string, last, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, missedCall{name, last, now})
	return r.err
}

func newLedger(c *fakeClock, n Notifier) *Ledger {
	return NewLedger(WithClock(c.Now), WithTimeout(10*time.Minute), WithNotifier(n))
}

func TestBeat_ResetsEntry(t *testing.T) {
	c := newClock()
	l := newLedger(c, nil)

	l.Beat("sma")
	c.Advance(11 * time.Minute)
	l.Sweep(context.Background())

	rec, ok := l.Get("sma")
	require.True(t, ok)
	assert.Equal(t, 1, rec.MissedCount)
	assert.False(t, rec.IsActive)

	l.Beat("sma")
	rec, _ = l.Get("sma")
	assert.Equal(t, 0, rec.MissedCount)
	assert.True(t, rec.IsActive)
	assert.Equal(t, c.Now(), rec.LastHeartbeat)
}

func TestSweep_NotifiesOncePerSilenceEpisode(t *testing.T) {
	c := newClock()
	n := &recordingNotifier{}
	l := newLedger(c, n)

	l.Beat("S")
	start := c.Now()
	c.Advance(11 * time.Minute)

	assert.Equal(t, []string{"S"}, l.Sweep(context.Background()))
	require.Len(t, n.calls, 1)
	assert.Equal(t, "S", n.calls[0].name)
	assert.Equal(t, start, n.calls[0].last)
	assert.Equal(t, start.Add(11*time.Minute), n.calls[0].now)

	c.Advance(time.Minute)
	assert.Empty(t, l.Sweep(context.Background()))
	assert.Len(t, n.calls, 1)

	rec, _ := l.Get("S")
	assert.Equal(t, 1, rec.MissedCount)
	assert.False(t, rec.IsActive)

	// A new episode after recovery notifies again.
	l.Beat("S")
	c.Advance(11 * time.Minute)
	l.Sweep(context.Background())
	assert.Len(t, n.calls, 2)
}

func TestSweep_WithinTimeoutIsQuiet(t *testing.T) {
	c := newClock()
	n := &recordingNotifier{}
	l := newLedger(c, n)

	l.Beat("S")
	c.Advance(10 * time.Minute)
	assert.Empty(t, l.Sweep(context.Background()))
	assert.Empty(t, n.calls)
}

func TestSweep_NotifierErrorDoesNotBreakSweep(t *testing.T) {
	c := newClock()
	n := &recordingNotifier{err: errors.New("slack down")}
	l := newLedger(c, n)

	l.Beat("a")
	l.Beat("b")
	c.Advance(time.Hour)
	assert.Equal(t, []string{"a", "b"}, l.Sweep(context.Background()))
	assert.Len(t, n.calls, 2)
}

func TestRegister_IsIdempotent(t *testing.T) {
	c := newClock()
	l := newLedger(c, nil)

	l.Register("sma")
	first, _ := l.Get("sma")
	c.Advance(time.Minute)
	l.Register("sma")
	second, _ := l.Get("sma")

	assert.Equal(t, first.LastHeartbeat, second.LastHeartbeat)
	assert.Len(t, l.Status(), 1)

	l.Deregister("sma")
	assert.Empty(t, l.Status())
}

func TestStatus_DerivedFields(t *testing.T) {
	c := newClock()
	l := newLedger(c, nil)

	l.Beat("fresh")
	l.Register("old")
	c.Advance(15 * time.Minute)
	l.Beat("fresh")

	st := l.Status()
	assert.InDelta(t, 15.0, st["old"].MinutesSinceLast, 1e-9)
	assert.True(t, st["old"].IsOverdue)
	assert.False(t, st["fresh"].IsOverdue)
	assert.Equal(t, []string{"old"}, l.Overdue())
	assert.Equal(t, []string{"fresh", "old"}, l.Active())
}

func TestRun_StopsOnCancel(t *testing.T) {
	l := NewLedger(WithCheckInterval(5 * time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_SweepsImmediately(t *testing.T) {
	c := newClock()
	n := &recordingNotifier{}
	l := NewLedger(WithClock(c.Now), WithTimeout(10*time.Minute), WithCheckInterval(time.Hour), WithNotifier(n))
	l.Beat("sma")
	c.Advance(11 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool {
		n.mu.Lock()
		defer n.mu.Unlock()
		return len(n.calls) == 1
	}, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	st, ok := l.Get("sma")
	require.True(t, ok)
	assert.Equal(t, 1, st.MissedCount)
}

func TestConcurrentBeatsAndSweeps(t *testing.T) {
	l := NewLedger(WithTimeout(time.Nanosecond))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Beat("s")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Sweep(context.Background())
			}
		}()
	}
	wg.Wait()
	rec, ok := l.Get("s")
	require.True(t, ok)
	assert.LessOrEqual(t, rec.MissedCount, 1)
}
