package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"TradeBot/internal/agent"
	"TradeBot/internal/domain/models"
	drepo "TradeBot/internal/domain/repository"
	"TradeBot/internal/registry"
	applogger "TradeBot/pkg/logger"
	"TradeBot/pkg/metrics"
)

const DefaultMaxConcurrent = 10

var (
	ErrNoStrategiesLoaded = errors.New("no strategies loaded")
	ErrInvalidSpec        = errors.New("invalid strategy spec")
	ErrDuplicateName      = errors.New("duplicate strategy name")
)

type ExecutorOption func(*StrategyExecutor)

func WithMaxConcurrent(n int) ExecutorOption {
	return func(e *StrategyExecutor) {
		if n > 0 {
			e.maxConcurrent = n
		}
	}
}

func WithExecutorLogger(l *applogger.Logger) ExecutorOption {
	return func(e *StrategyExecutor) { e.log = l }
}

func WithExecutorMetrics(m drepo.Metrics) ExecutorOption {
	return func(e *StrategyExecutor) { e.metrics = m }
}

func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *StrategyExecutor) { e.now = now }
}

// StrategyExecutor owns the loaded agents and fans every operation out to them.
type StrategyExecutor struct {
	registry      *registry.Registry
	runner        *AgentRunner
	hb            *HeartbeatRecorder
	maxConcurrent int
	log           *applogger.Logger
	metrics       drepo.Metrics
	now           func() time.Time

	mu     sync.RWMutex
	agents map[string]agent.Agent
	order  []string
	limits models.RiskLimits
}

func NewStrategyExecutor(reg *registry.Registry, runner *AgentRunner, hb *HeartbeatRecorder, opts ...ExecutorOption) *StrategyExecutor {
	e := &StrategyExecutor{
		registry:      reg,
		runner:        runner,
		hb:            hb,
		maxConcurrent: DefaultMaxConcurrent,
		log:           applogger.NewNop(),
		metrics:       metrics.Nop{},
		now:           time.Now,
		agents:        make(map[string]agent.Agent),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *StrategyExecutor) Registry() *registry.Registry { return e.registry }

// Load resolves and constructs every spec in order. A bad spec is logged and skipped;
// ErrNoStrategiesLoaded is returned only when none of them load.
func (e *StrategyExecutor) Load(ctx context.Context, specs []models.StrategySpec) error {
	loaded := 0
	for i, spec := range specs {
		if err := e.loadOne(ctx, spec); err != nil {
			e.metrics.RecordError("strategy_load")
			e.log.Error("strategy load failed",
				applogger.Int("index", i),
				applogger.String("name", spec.Name),
				applogger.String("path", spec.Path),
				applogger.Error(err))
			continue
		}
		loaded++
		e.log.Info("strategy loaded", applogger.String("name", spec.Name), applogger.String("path", spec.Path))
	}
	if loaded == 0 {
		return fmt.Errorf("%w (%d specs)", ErrNoStrategiesLoaded, len(specs))
	}
	return nil
}

func (e *StrategyExecutor) loadOne(ctx context.Context, spec models.StrategySpec) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSpec)
	}
	if spec.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidSpec)
	}
	e.mu.RLock()
	_, dup := e.agents[spec.Name]
	e.mu.RUnlock()
	if dup {
		return fmt.Errorf("%w: %s", ErrDuplicateName, spec.Name)
	}

	res, err := e.registry.Resolve(ctx, spec.Path)
	if err != nil {
		return err
	}

	a, err := construct(res.Factory, spec.Name, spec.Params)
	if errors.Is(err, agent.ErrParamsMismatch) {
		e.log.Warn("strategy params rejected, retrying with name only",
			applogger.String("name", spec.Name), applogger.Error(err))
		a, err = construct(res.Factory, spec.Name, nil)
	}
	if err != nil {
		return fmt.Errorf("construct %s: %w", spec.Name, err)
	}

	e.mu.Lock()
	if _, dup := e.agents[spec.Name]; dup {
		e.mu.Unlock()
		_ = a.Shutdown(ctx)
		return fmt.Errorf("%w: %s", ErrDuplicateName, spec.Name)
	}
	e.agents[spec.Name] = a
	e.order = append(e.order, spec.Name)
	e.mu.Unlock()

	e.hb.Register(spec.Name)
	return nil
}

func construct(f agent.Factory, name string, params map[string]any) (a agent.Agent, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p}
		}
	}()
	a, err = f(name, params)
	if err == nil && a == nil {
		err = fmt.Errorf("factory returned no agent")
	}
	return a, err
}

type namedAgent struct {
	name  string
	agent agent.Agent
}

func (e *StrategyExecutor) snapshot() []namedAgent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]namedAgent, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, namedAgent{name: name, agent: e.agents[name]})
	}
	return out
}

// each runs fn once per agent, at most maxConcurrent at a time, and waits for all of them.
// A panic in fn is logged and does not affect the others.
func (e *StrategyExecutor) each(ctx context.Context, op string, fn func(ctx context.Context, name string, a agent.Agent)) {
	agents := e.snapshot()
	sem := make(chan struct{}, e.maxConcurrent)
	var wg sync.WaitGroup
	for _, na := range agents {
		wg.Add(1)
		sem <- struct{}{}
		go func(na namedAgent) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if p := recover(); p != nil {
					e.metrics.RecordError(op)
					e.log.Error("agent call panicked",
						applogger.String("op", op),
						applogger.String("agent", na.name),
						applogger.Any("panic", p))
				}
			}()
			fn(ctx, na.name, na.agent)
		}(na)
	}
	wg.Wait()
}

// ExecuteDetailed runs every active agent against snap and returns each outcome by name.
func (e *StrategyExecutor) ExecuteDetailed(ctx context.Context, snap models.Snapshot) map[string]RunResult {
	stamp := snap.Timestamp
	if stamp.IsZero() {
		stamp = e.now()
	}

	var mu sync.Mutex
	results := make(map[string]RunResult)
	e.each(ctx, "execute", func(ctx context.Context, name string, a agent.Agent) {
		res := RunResult{Agent: name, Signals: []models.Signal{}, Skipped: true}
		if a.IsActive() {
			res = e.runner.Run(ctx, a, snap)
			for i := range res.Signals {
				res.Signals[i].Strategy = name
				if res.Signals[i].Timestamp.IsZero() {
					res.Signals[i].Timestamp = stamp
				}
			}
		}
		mu.Lock()
		results[name] = res
		mu.Unlock()
	})
	return results
}

// Execute returns each agent's signals by name. Failed and inactive agents map to an empty list.
func (e *StrategyExecutor) Execute(ctx context.Context, snap models.Snapshot) map[string][]models.Signal {
	detailed := e.ExecuteDetailed(ctx, snap)
	out := make(map[string][]models.Signal, len(detailed))
	for name, res := range detailed {
		out[name] = res.Signals
	}
	return out
}

// NotifyFills delivers every fill to every agent. Each agent sees the fills in order.
func (e *StrategyExecutor) NotifyFills(ctx context.Context, fills []models.Fill) {
	if len(fills) == 0 {
		return
	}
	e.each(ctx, "on_fill", func(ctx context.Context, name string, a agent.Agent) {
		for _, f := range fills {
			if err := safeCall(func() error { return a.OnFill(ctx, f) }); err != nil {
				e.metrics.RecordError("on_fill")
				e.log.Error("agent fill handler failed",
					applogger.String("agent", name),
					applogger.String("order_id", f.OrderID),
					applogger.Error(err))
			}
		}
	})
}

// UpdateRiskLimits pushes limits to every agent and keeps them for later readers.
func (e *StrategyExecutor) UpdateRiskLimits(ctx context.Context, limits models.RiskLimits) {
	e.mu.Lock()
	e.limits = limits
	e.mu.Unlock()

	e.each(ctx, "on_limit_update", func(ctx context.Context, name string, a agent.Agent) {
		if err := safeCall(func() error { return a.OnLimitUpdate(ctx, limits) }); err != nil {
			e.metrics.RecordError("on_limit_update")
			e.log.Error("agent limit update failed", applogger.String("agent", name), applogger.Error(err))
		}
	})
}

func (e *StrategyExecutor) RiskLimits() models.RiskLimits {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.limits
}

// Status returns GetStatus for every agent. A panicking agent reports an error entry instead.
func (e *StrategyExecutor) Status() map[string]map[string]any {
	out := make(map[string]map[string]any)
	for _, na := range e.snapshot() {
		out[na.name] = agentStatus(na.name, na.agent)
	}
	return out
}

func agentStatus(name string, a agent.Agent) (st map[string]any) {
	defer func() {
		if p := recover(); p != nil {
			st = map[string]any{"name": name, "error": fmt.Sprint(p), "is_active": false}
		}
	}()
	st = a.GetStatus()
	if st == nil {
		st = map[string]any{"name": name}
	}
	return st
}

// Names lists loaded agents in load order.
func (e *StrategyExecutor) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Shutdown stops every agent, best effort, then forgets them.
func (e *StrategyExecutor) Shutdown(ctx context.Context) {
	e.each(ctx, "shutdown", func(ctx context.Context, name string, a agent.Agent) {
		if err := safeCall(func() error { return a.Shutdown(ctx) }); err != nil {
			e.log.Warn("agent shutdown failed", applogger.String("agent", name), applogger.Error(err))
		}
	})

	e.mu.Lock()
	names := e.order
	e.agents = make(map[string]agent.Agent)
	e.order = nil
	e.mu.Unlock()

	for _, name := range names {
		e.hb.Deregister(name)
	}
	e.log.Info("strategies shut down", applogger.Int("count", len(names)))
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p}
		}
	}()
	return fn()
}
