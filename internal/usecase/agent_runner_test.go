package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"TradeBot/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_SuccessEmitsStartAndHealthy(t *testing.T) {
	clk := newTestClock()
	sink := &memSink{}
	runner := NewAgentRunner(newRecorder(sink, clk))

	a := newScripted("sma")
	a.signals = []models.Signal{{Symbol: "AAPL", Action: models.ActionBuy, Quantity: 10, Confidence: 0.8}}

	res := runner.Run(context.Background(), a, models.Snapshot{})
	require.True(t, res.OK())
	assert.Equal(t, a.signals, res.Signals)
	assert.Equal(t, []models.HealthStatus{models.StatusHealthy, models.StatusHealthy}, sink.statuses("sma"))
	assert.Equal(t, "start", sink.events[0].Metadata["phase"])
	assert.Equal(t, "complete", sink.events[1].Metadata["phase"])
}

func TestRun_NilSignalsBecomeEmpty(t *testing.T) {
	runner := NewAgentRunner(newRecorder(nil, newTestClock()))
	res := runner.Run(context.Background(), newScripted("quiet"), models.Snapshot{})
	require.True(t, res.OK())
	assert.NotNil(t, res.Signals)
	assert.Empty(t, res.Signals)
}

func TestRun_ErrorBecomesErrorHeartbeat(t *testing.T) {
	sink := &memSink{}
	runner := NewAgentRunner(newRecorder(sink, newTestClock()))
	a := newScripted("agent1")
	a.err = &ValueError{Msg: "not enough bars"}

	res := runner.Run(context.Background(), a, models.Snapshot{})
	assert.False(t, res.OK())
	assert.Empty(t, res.Signals)
	assert.Equal(t, []models.HealthStatus{models.StatusHealthy, models.StatusError}, sink.statuses("agent1"))
	assert.Equal(t, "ValueError: not enough bars", sink.events[1].LastError)
}

func TestRun_PanicIsContained(t *testing.T) {
	sink := &memSink{}
	runner := NewAgentRunner(newRecorder(sink, newTestClock()))
	a := newScripted("boom")
	a.panicV = "index out of range"

	var res RunResult
	assert.NotPanics(t, func() { res = runner.Run(context.Background(), a, models.Snapshot{}) })

	var pe *PanicError
	require.ErrorAs(t, res.Err, &pe)
	assert.Equal(t, "index out of range", pe.Value)
	assert.Equal(t, "panic: index out of range", sink.events[1].LastError)
}

func TestRun_TimeoutIsWarning(t *testing.T) {
	sink := &memSink{}
	runner := NewAgentRunner(newRecorder(sink, newTestClock()), WithAgentTimeout(10*time.Millisecond))
	a := newScripted("slow")
	a.block = true

	res := runner.Run(context.Background(), a, models.Snapshot{})
	assert.ErrorIs(t, res.Err, ErrAgentTimeout)
	assert.Empty(t, res.Signals)
	assert.Equal(t, []models.HealthStatus{models.StatusHealthy, models.StatusWarning}, sink.statuses("slow"))
	assert.Equal(t, "timeout: agent exceeded 10ms", sink.events[1].LastError)
}

func TestRun_AgentOwnDeadlineIsError(t *testing.T) {
	sink := &memSink{}
	runner := NewAgentRunner(newRecorder(sink, newTestClock()), WithAgentTimeout(time.Hour))
	a := newScripted("quotes")
	a.run = func(ctx context.Context) ([]models.Signal, error) {
		inner, cancel := context.WithTimeout(ctx, time.Millisecond)
		defer cancel()
		<-inner.Done()
		return nil, fmt.Errorf("fetch quotes: %w", inner.Err())
	}

	res := runner.Run(context.Background(), a, models.Snapshot{})
	require.Error(t, res.Err)
	assert.NotErrorIs(t, res.Err, ErrAgentTimeout)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Equal(t, []models.HealthStatus{models.StatusHealthy, models.StatusError}, sink.statuses("quotes"))
	assert.Equal(t, "wrapError: fetch quotes: context deadline exceeded", sink.events[1].LastError)
}

func TestRun_ShutdownMidCycleRecordsNoFailure(t *testing.T) {
	sink := &memSink{}
	rec := newRecorder(sink, newTestClock())
	runner := NewAgentRunner(rec, WithAgentTimeout(time.Hour))
	a := newScripted("sma")
	a.block = true

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res := runner.Run(ctx, a, models.Snapshot{})
	assert.ErrorIs(t, res.Err, ErrRunInterrupted)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, res.Signals)
	assert.Equal(t, []models.HealthStatus{models.StatusHealthy}, sink.statuses("sma"))

	st, ok := rec.Ledger().Get("sma")
	require.True(t, ok)
	assert.True(t, st.IsActive)
}

func TestRun_CancelledBeforeStartIsSkipped(t *testing.T) {
	sink := &memSink{}
	runner := NewAgentRunner(newRecorder(sink, newTestClock()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := runner.Run(ctx, newScripted("sma"), models.Snapshot{})
	assert.ErrorIs(t, res.Err, ErrRunInterrupted)
	assert.Empty(t, sink.statuses("sma"))
}

func TestRun_CompletionHeartbeatSurvivesCancel(t *testing.T) {
	sink := &memSink{}
	runner := NewAgentRunner(newRecorder(sink, newTestClock()))
	ctx, cancel := context.WithCancel(context.Background())
	a := newScripted("sma")
	a.run = func(context.Context) ([]models.Signal, error) {
		cancel()
		return []models.Signal{{Symbol: "AAPL", Action: models.ActionHold}}, nil
	}

	res := runner.Run(ctx, a, models.Snapshot{})
	require.True(t, res.OK())
	require.Len(t, sink.ctxErrs, 2)
	assert.NoError(t, sink.ctxErrs[1])
}

func TestRun_SinkFailureDoesNotAffectResult(t *testing.T) {
	sink := &memSink{err: errSink}
	rec := newRecorder(sink, newTestClock())
	runner := NewAgentRunner(rec)
	a := newScripted("sma")
	a.signals = []models.Signal{{Symbol: "X", Action: models.ActionSell, Quantity: 1}}

	res := runner.Run(context.Background(), a, models.Snapshot{})
	require.True(t, res.OK())
	assert.Len(t, res.Signals, 1)

	st, ok := rec.Ledger().Get("sma")
	require.True(t, ok)
	assert.True(t, st.IsActive)
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, "ValueError", errorType(&ValueError{}))
	assert.Equal(t, "panic", errorType(&PanicError{Value: 1}))
	assert.Equal(t, "errorString", errorType(errSink))
}
