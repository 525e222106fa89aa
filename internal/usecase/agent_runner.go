package usecase

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"time"

	"TradeBot/internal/agent"
	"TradeBot/internal/domain/models"
	drepo "TradeBot/internal/domain/repository"
	applogger "TradeBot/pkg/logger"
	"TradeBot/pkg/metrics"
)

var (
	ErrAgentTimeout = errors.New("agent timed out")
	// ErrRunInterrupted wraps the parent context error when a run is cut short by shutdown.
	ErrRunInterrupted = errors.New("agent run interrupted")
)

// PanicError carries a recovered panic out of an agent call.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string { return fmt.Sprintf("panic: %v", p.Value) }

// RunResult is the outcome of one agent run. On failure Signals is empty and Err is set.
type RunResult struct {
	Agent    string
	Signals  []models.Signal
	Err      error
	Skipped  bool
	Duration time.Duration
}

func (r RunResult) OK() bool { return r.Err == nil }

type RunnerOption func(*AgentRunner)

// WithAgentTimeout bounds each GenerateSignals call. Zero disables the bound.
func WithAgentTimeout(d time.Duration) RunnerOption {
	return func(r *AgentRunner) { r.timeout = d }
}

func WithRunnerLogger(l *applogger.Logger) RunnerOption {
	return func(r *AgentRunner) { r.log = l }
}

func WithRunnerMetrics(m drepo.Metrics) RunnerOption {
	return func(r *AgentRunner) { r.metrics = m }
}

func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *AgentRunner) { r.now = now }
}

// AgentRunner calls an agent with heartbeats around the call and contains every failure.
type AgentRunner struct {
	hb      *HeartbeatRecorder
	timeout time.Duration
	log     *applogger.Logger
	metrics drepo.Metrics
	now     func() time.Time
}

func NewAgentRunner(hb *HeartbeatRecorder, opts ...RunnerOption) *AgentRunner {
	r := &AgentRunner{
		hb:      hb,
		log:     applogger.NewNop(),
		metrics: metrics.Nop{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type runOutput struct {
	signals []models.Signal
	err     error
}

// Run never panics. Errors, panics and timeouts come back in RunResult.Err.
// A run whose parent context is cancelled records no failure heartbeat.
func (r *AgentRunner) Run(ctx context.Context, a agent.Agent, snap models.Snapshot) RunResult {
	name := a.Name()
	if err := ctx.Err(); err != nil {
		return RunResult{Agent: name, Signals: []models.Signal{}, Err: fmt.Errorf("%w: %w", ErrRunInterrupted, err)}
	}
	start := r.now()
	r.hb.Record(ctx, models.HeartbeatEvent{
		AgentName: name,
		Status:    models.StatusHealthy,
		Metadata:  map[string]any{"phase": "start"},
	})

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
	}
	defer cancel()

	ch := make(chan runOutput, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- runOutput{err: &PanicError{Value: p, Stack: debug.Stack()}}
			}
		}()
		signals, err := a.GenerateSignals(runCtx, snap)
		ch <- runOutput{signals: signals, err: err}
	}()

	var out runOutput
	select {
	case out = <-ch:
	case <-runCtx.Done():
		out.err = runCtx.Err()
	}
	elapsed := r.now().Sub(start)
	// Completion heartbeats reach the sink even if shutdown began mid-run.
	recCtx := context.WithoutCancel(ctx)

	if out.err == nil {
		if out.signals == nil {
			out.signals = []models.Signal{}
		}
		r.hb.Record(recCtx, models.HeartbeatEvent{
			AgentName: name,
			Status:    models.StatusHealthy,
			Metadata: map[string]any{
				"phase":       "complete",
				"signals":     len(out.signals),
				"duration_ms": elapsed.Milliseconds(),
			},
		})
		r.metrics.RecordAgentRun(name, string(models.StatusHealthy), elapsed.Seconds())
		r.metrics.RecordSignals(name, len(out.signals))
		return RunResult{Agent: name, Signals: out.signals, Duration: elapsed}
	}

	if err := ctx.Err(); err != nil {
		r.log.Info("agent run interrupted", applogger.String("agent", name), applogger.Error(err))
		r.metrics.RecordAgentRun(name, "interrupted", elapsed.Seconds())
		return RunResult{Agent: name, Signals: []models.Signal{}, Err: fmt.Errorf("%w: %w", ErrRunInterrupted, err), Duration: elapsed}
	}

	// Only the runner's own deadline counts as a timeout; an agent's inner
	// deadline is an ordinary error.
	if r.timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		msg := fmt.Sprintf("timeout: agent exceeded %s", r.timeout)
		r.log.Warn("agent run timed out", applogger.String("agent", name), applogger.Duration("timeout_ms", r.timeout))
		r.hb.Record(recCtx, models.HeartbeatEvent{
			AgentName: name,
			Status:    models.StatusWarning,
			LastError: msg,
			Metadata:  map[string]any{"phase": "timeout"},
		})
		r.metrics.RecordAgentRun(name, string(models.StatusWarning), elapsed.Seconds())
		return RunResult{Agent: name, Signals: []models.Signal{}, Err: fmt.Errorf("%w after %s", ErrAgentTimeout, r.timeout), Duration: elapsed}
	}

	lastError := fmt.Sprintf("%s: %s", errorType(out.err), out.err.Error())
	fields := []applogger.Field{applogger.String("agent", name), applogger.Error(out.err)}
	var pe *PanicError
	if errors.As(out.err, &pe) {
		lastError = pe.Error()
		fields = append(fields, applogger.String("stack", string(pe.Stack)))
	}
	r.log.Error("agent run failed", fields...)
	r.hb.Record(recCtx, models.HeartbeatEvent{
		AgentName: name,
		Status:    models.StatusError,
		LastError: lastError,
		Metadata:  map[string]any{"phase": "error"},
	})
	r.metrics.RecordAgentRun(name, string(models.StatusError), elapsed.Seconds())
	r.metrics.RecordError("agent_run")
	return RunResult{Agent: name, Signals: []models.Signal{}, Err: out.err, Duration: elapsed}
}

// errorType names the concrete error type without package or pointer.
func errorType(err error) string {
	var pe *PanicError
	if errors.As(err, &pe) {
		return "panic"
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}
