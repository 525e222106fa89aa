package usecase

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"TradeBot/internal/agent"
	"TradeBot/internal/domain/models"
	"TradeBot/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testParams struct {
	Threshold float64 `yaml:"threshold" default:"0.5"`
}

// paramAgent accepts only the threshold param; anything else is a mismatch.
type paramAgent struct {
	*agent.Base
	params testParams
}

func (p *paramAgent) GenerateSignals(context.Context, models.Snapshot) ([]models.Signal, error) {
	return []models.Signal{}, nil
}

func newParamAgent(name string, params map[string]any) (agent.Agent, error) {
	var p testParams
	if err := agent.DecodeParams(params, &p); err != nil {
		return nil, err
	}
	return &paramAgent{Base: agent.NewBase(name), params: p}, nil
}

type fixture struct {
	exec    *StrategyExecutor
	rec     *HeartbeatRecorder
	agents  map[string]*scriptedAgent
	clk     *testClock
	builtAt atomic.Int32
}

func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	f := &fixture{agents: map[string]*scriptedAgent{}, clk: newTestClock()}
	reg := registry.New()
	exports := registry.Exports{
		"ParamAgent": agent.Factory(newParamAgent),
	}
	for _, n := range names {
		a := newScripted(n)
		f.agents[n] = a
		exports[n] = agent.Factory(func(string, map[string]any) (agent.Agent, error) {
			f.builtAt.Add(1)
			return a, nil
		})
	}
	reg.RegisterModule("tests.agents", exports)

	f.rec = newRecorder(nil, f.clk)
	runner := NewAgentRunner(f.rec)
	f.exec = NewStrategyExecutor(reg, runner, f.rec, WithMaxConcurrent(2), WithExecutorClock(f.clk.Now))
	return f
}

func specs(names ...string) []models.StrategySpec {
	out := make([]models.StrategySpec, 0, len(names))
	for _, n := range names {
		out = append(out, models.StrategySpec{Name: n, Path: "tests.agents:" + n})
	}
	return out
}

func TestLoad_SkipsUnresolvableSpec(t *testing.T) {
	f := newFixture(t, "good")
	err := f.exec.Load(context.Background(), []models.StrategySpec{
		{Name: "good", Path: "tests.agents:good"},
		{Name: "missing", Path: "tests.agents:DoesNotExist"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, f.exec.Names())

	_, ok := f.rec.Ledger().Get("good")
	assert.True(t, ok)
	_, ok = f.rec.Ledger().Get("missing")
	assert.False(t, ok)
}

func TestLoad_ZeroLoadedIsError(t *testing.T) {
	f := newFixture(t)
	err := f.exec.Load(context.Background(), []models.StrategySpec{
		{Name: "", Path: "tests.agents:x"},
		{Name: "nopath"},
		{Name: "bad", Path: "not-a-path"},
	})
	assert.ErrorIs(t, err, ErrNoStrategiesLoaded)

	assert.ErrorIs(t, f.exec.Load(context.Background(), nil), ErrNoStrategiesLoaded)
}

func TestLoad_DuplicateNameSkipped(t *testing.T) {
	f := newFixture(t, "a")
	err := f.exec.Load(context.Background(), []models.StrategySpec{
		{Name: "a", Path: "tests.agents:a"},
		{Name: "a", Path: "tests.agents:a"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, f.exec.Names())
	assert.Equal(t, int32(1), f.builtAt.Load())
}

func TestLoad_ParamsMismatchFallsBackToNameOnly(t *testing.T) {
	f := newFixture(t)
	err := f.exec.Load(context.Background(), []models.StrategySpec{
		{Name: "p", Path: "tests.agents:ParamAgent", Params: map[string]any{"unknown_knob": 3}},
	})
	require.NoError(t, err)
	st := f.exec.Status()["p"]
	assert.Equal(t, "p", st["name"])

	f2 := newFixture(t)
	require.NoError(t, f2.exec.Load(context.Background(), []models.StrategySpec{
		{Name: "p", Path: "tests.agents:ParamAgent", Params: map[string]any{"threshold": 0.9}},
	}))
}

func TestExecute_FanOutIsolation(t *testing.T) {
	f := newFixture(t, "agent1", "agent2")
	f.agents["agent1"].err = &ValueError{Msg: "bad input"}
	want := models.Signal{
		Symbol: "X", Action: models.ActionBuy, Quantity: 10, Confidence: 0.8,
		Reasoning: "...", Metadata: map[string]any{},
	}
	f.agents["agent2"].signals = []models.Signal{want}
	require.NoError(t, f.exec.Load(context.Background(), specs("agent1", "agent2")))

	snap := models.Snapshot{Timestamp: f.clk.Now()}
	got := f.exec.Execute(context.Background(), snap)

	require.Len(t, got, 2)
	assert.Empty(t, got["agent1"])
	assert.NotNil(t, got["agent1"])
	require.Len(t, got["agent2"], 1)
	want.Strategy = "agent2"
	want.Timestamp = snap.Timestamp
	assert.Equal(t, want, got["agent2"][0])
}

func TestExecute_PanicDoesNotAffectSiblings(t *testing.T) {
	f := newFixture(t, "boom", "ok1", "ok2", "ok3")
	f.agents["boom"].panicV = "nil map"
	for _, n := range []string{"ok1", "ok2", "ok3"} {
		f.agents[n].signals = []models.Signal{{Symbol: "AAPL", Action: models.ActionSell, Quantity: 1}}
	}
	require.NoError(t, f.exec.Load(context.Background(), specs("boom", "ok1", "ok2", "ok3")))

	detailed := f.exec.ExecuteDetailed(context.Background(), models.Snapshot{})
	assert.Error(t, detailed["boom"].Err)
	for _, n := range []string{"ok1", "ok2", "ok3"} {
		assert.True(t, detailed[n].OK(), n)
		assert.Len(t, detailed[n].Signals, 1, n)
		assert.Equal(t, f.clk.Now(), detailed[n].Signals[0].Timestamp)
	}

	ev, ok := f.rec.Last("boom")
	require.True(t, ok)
	assert.Equal(t, models.StatusError, ev.Status)
}

func TestExecute_SkipsInactiveAgents(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.agents["a"].signals = []models.Signal{{Symbol: "X", Action: models.ActionBuy, Quantity: 1}}
	f.agents["b"].signals = []models.Signal{{Symbol: "X", Action: models.ActionBuy, Quantity: 1}}
	require.NoError(t, f.exec.Load(context.Background(), specs("a", "b")))
	require.NoError(t, f.agents["b"].Shutdown(context.Background()))

	detailed := f.exec.ExecuteDetailed(context.Background(), models.Snapshot{})
	assert.Len(t, detailed["a"].Signals, 1)
	assert.True(t, detailed["b"].Skipped)
	assert.Empty(t, detailed["b"].Signals)
}

func TestExecute_SlowAgentDoesNotBlockResultOfOthers(t *testing.T) {
	clk := newTestClock()
	reg := registry.New()
	slow := newScripted("slow")
	slow.block = true
	fast := newScripted("fast")
	fast.signals = []models.Signal{{Symbol: "X", Action: models.ActionBuy, Quantity: 1}}
	reg.RegisterModule("tests.agents", registry.Exports{
		"slow": agent.Factory(func(string, map[string]any) (agent.Agent, error) { return slow, nil }),
		"fast": agent.Factory(func(string, map[string]any) (agent.Agent, error) { return fast, nil }),
	})
	rec := newRecorder(nil, clk)
	exec := NewStrategyExecutor(reg, NewAgentRunner(rec, WithAgentTimeout(20*time.Millisecond)), rec)
	require.NoError(t, exec.Load(context.Background(), specs("slow", "fast")))

	detailed := exec.ExecuteDetailed(context.Background(), models.Snapshot{})
	assert.ErrorIs(t, detailed["slow"].Err, ErrAgentTimeout)
	assert.Len(t, detailed["fast"].Signals, 1)
}

func TestNotifyFills_EveryAgentEveryFill(t *testing.T) {
	f := newFixture(t, "a", "b", "c")
	f.agents["b"].panicV = "broken"
	f.agents["c"].err = &ValueError{Msg: "rejected"}
	require.NoError(t, f.exec.Load(context.Background(), specs("a", "b", "c")))

	fills := []models.Fill{
		{OrderID: "1", Symbol: "AAPL", Side: models.ActionBuy, Quantity: 5, Price: 100},
		{OrderID: "2", Symbol: "AAPL", Side: models.ActionSell, Quantity: 5, Price: 101},
	}
	assert.NotPanics(t, func() { f.exec.NotifyFills(context.Background(), fills) })

	assert.Equal(t, fills, f.agents["a"].fills)
	assert.Equal(t, fills, f.agents["b"].fills)
	assert.Equal(t, fills, f.agents["c"].fills)
}

func TestUpdateRiskLimits_Broadcasts(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.agents["b"].panicV = "broken"
	require.NoError(t, f.exec.Load(context.Background(), specs("a", "b")))

	limits := models.RiskLimits{MaxPositionSize: 5000, MaxLeverage: 2, AllowedSymbols: []string{"AAPL"}}
	f.exec.UpdateRiskLimits(context.Background(), limits)

	assert.Equal(t, limits, f.agents["a"].RiskLimits())
	assert.Len(t, f.agents["b"].limits, 1)
	assert.Equal(t, limits, f.exec.RiskLimits())
}

func TestStatus_PanickingAgentReportsError(t *testing.T) {
	f := newFixture(t, "ok", "bad")
	require.NoError(t, f.exec.Load(context.Background(), specs("ok", "bad")))
	f.agents["bad"].panicV = "status exploded"

	st := f.exec.Status()
	assert.Equal(t, true, st["ok"]["is_active"])
	assert.Equal(t, map[string]any{"name": "bad", "error": "status exploded", "is_active": false}, st["bad"])
}

func TestShutdown_StopsAndForgetsAgents(t *testing.T) {
	f := newFixture(t, "a", "b")
	require.NoError(t, f.exec.Load(context.Background(), specs("a", "b")))

	f.exec.Shutdown(context.Background())
	assert.False(t, f.agents["a"].IsActive())
	assert.False(t, f.agents["b"].IsActive())
	assert.Empty(t, f.exec.Names())
	assert.Empty(t, f.rec.Ledger().Status())
	assert.Empty(t, f.exec.Execute(context.Background(), models.Snapshot{}))

	assert.NotPanics(t, func() { f.exec.Shutdown(context.Background()) })
}
