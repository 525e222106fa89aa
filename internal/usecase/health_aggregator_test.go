package usecase

import (
	"context"
	"testing"
	"time"

	"TradeBot/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth_LocalLedgerView(t *testing.T) {
	clk := newTestClock()
	rec := newRecorder(nil, clk)
	ctx := context.Background()

	rec.Register("idle")
	rec.Record(ctx, models.HeartbeatEvent{AgentName: "ok", Status: models.StatusHealthy})
	rec.Record(ctx, models.HeartbeatEvent{AgentName: "bad", Status: models.StatusError, LastError: "ValueError: x"})
	clk.Advance(11 * time.Minute)
	rec.Record(ctx, models.HeartbeatEvent{AgentName: "ok", Status: models.StatusHealthy})

	h := NewHealthAggregator(rec, WithHealthClock(clk.Now))
	agents, err := h.Health(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 3)

	assert.Equal(t, "bad", agents[0].AgentName)
	assert.Equal(t, models.StatusError, agents[0].Status)
	assert.Equal(t, "ValueError: x", agents[0].LastError)
	assert.True(t, agents[0].IsStale)

	assert.Equal(t, "idle", agents[1].AgentName)
	assert.Equal(t, models.StatusHealthy, agents[1].Status)
	assert.True(t, agents[1].IsStale)

	assert.Equal(t, "ok", agents[2].AgentName)
	assert.False(t, agents[2].IsStale)
}

func TestHealth_RemoteReaderAndUnknownStatus(t *testing.T) {
	clk := newTestClock()
	remote := &memSink{}
	ctx := context.Background()
	_ = remote.Write(ctx, models.HeartbeatEvent{AgentName: "a", Status: "degraded", Timestamp: clk.Now()})
	_ = remote.Write(ctx, models.HeartbeatEvent{AgentName: "b", Status: models.StatusHealthy, Timestamp: clk.Now().Add(-2 * time.Minute)})

	h := NewHealthAggregator(newRecorder(nil, clk),
		WithRemoteHeartbeats(remote),
		WithStaleAfter(time.Minute),
		WithHealthClock(clk.Now))

	s := h.Summary(ctx)
	assert.Equal(t, 2, s.TotalAgents)
	assert.Equal(t, 1, s.Healthy)
	assert.Equal(t, 1, s.Warning)
	assert.Equal(t, 1, s.Stale)
	assert.Equal(t, 60.0, s.StaleAfterSeconds)
	assert.Equal(t, models.StatusWarning, s.Agents[0].Status)
	assert.True(t, s.Agents[1].IsStale)
}

func TestHealth_CachedUntilTTL(t *testing.T) {
	clk := newTestClock()
	rec := newRecorder(nil, clk)
	ctx := context.Background()
	h := NewHealthAggregator(rec, WithHealthClock(clk.Now), WithHealthCacheTTL(30*time.Second))

	rec.Record(ctx, models.HeartbeatEvent{AgentName: "a", Status: models.StatusHealthy})
	first, _ := h.Health(ctx)
	require.Len(t, first, 1)

	rec.Record(ctx, models.HeartbeatEvent{AgentName: "b", Status: models.StatusHealthy})
	cached, _ := h.Health(ctx)
	assert.Len(t, cached, 1)

	clk.Advance(31 * time.Second)
	fresh, _ := h.Health(ctx)
	assert.Len(t, fresh, 2)

	rec.Record(ctx, models.HeartbeatEvent{AgentName: "c", Status: models.StatusHealthy})
	h.Invalidate()
	fresh, _ = h.Health(ctx)
	assert.Len(t, fresh, 3)
}

func TestSummary_FallsBackToLocalOnRemoteError(t *testing.T) {
	clk := newTestClock()
	rec := newRecorder(nil, clk)
	rec.Record(context.Background(), models.HeartbeatEvent{AgentName: "a", Status: models.StatusWarning})

	h := NewHealthAggregator(rec, WithRemoteHeartbeats(&memSink{err: errSink}), WithHealthClock(clk.Now))
	_, err := h.Health(context.Background())
	assert.ErrorIs(t, err, errSink)

	s := h.Summary(context.Background())
	assert.Equal(t, 1, s.TotalAgents)
	assert.Equal(t, 1, s.Warning)
	assert.Equal(t, rec.Ledger().Timeout().Seconds(), s.StaleAfterSeconds, "stale window defaults to the heartbeat timeout")
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, time.Unix(0, 0))
	assert.Zero(t, s.TotalAgents)
	assert.NotNil(t, s.Agents)
}
