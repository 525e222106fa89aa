// Package heartbeat tracks liveness of named sources and reports silence.
package heartbeat

import (
	"context"
	"sort"
	"sync"
	"time"

	"TradeBot/internal/domain/models"
	"TradeBot/internal/domain/repository"
	applogger "TradeBot/pkg/logger"
	"TradeBot/pkg/metrics"
)

const (
	DefaultTimeout       = 10 * time.Minute
	DefaultCheckInterval = time.Minute
)

// Notifier is told once per silence episode.
type Notifier interface {
	HeartbeatMissed(ctx context.Context, name string, last, now time.Time) error
}

type Option func(*Ledger)

func WithTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func WithCheckInterval(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

func WithLogger(lg *applogger.Logger) Option {
	return func(l *Ledger) { l.log = lg }
}

func WithMetrics(m repository.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// Ledger is the in-memory liveness table.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*models.HeartbeatStatus

	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
	notifier Notifier
	log      *applogger.Logger
	metrics  repository.Metrics
}

func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		entries:  make(map[string]*models.HeartbeatStatus),
		timeout:  DefaultTimeout,
		interval: DefaultCheckInterval,
		now:      time.Now,
		log:      applogger.NewNop(),
		metrics:  metrics.Nop{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Timeout() time.Duration { return l.timeout }

// Register adds name if unknown. Registering a known name changes nothing.
func (l *Ledger) Register(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[name]; ok {
		return
	}
	l.entries[name] = &models.HeartbeatStatus{Name: name, LastHeartbeat: l.now(), IsActive: true}
}

// Beat records liveness, registering name on first use.
func (l *Ledger) Beat(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[name]
	if !ok {
		e = &models.HeartbeatStatus{Name: name}
		l.entries[name] = e
	}
	e.LastHeartbeat = l.now()
	e.MissedCount = 0
	e.IsActive = true
}

func (l *Ledger) Deregister(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, name)
}

type missed struct {
	name      string
	last, now time.Time
}

// Sweep marks silent sources. Each active source silent past the timeout gets one
// notification, then goes inactive until its next beat. Returns the names notified.
func (l *Ledger) Sweep(ctx context.Context) []string {
	now := l.now()

	l.mu.Lock()
	var due []missed
	for _, e := range l.entries {
		if !e.IsActive || now.Sub(e.LastHeartbeat) <= l.timeout {
			continue
		}
		e.MissedCount++
		if e.MissedCount == 1 {
			due = append(due, missed{name: e.Name, last: e.LastHeartbeat, now: now})
		}
		e.IsActive = false
	}
	l.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].name < due[j].name })
	names := make([]string, 0, len(due))
	for _, m := range due {
		names = append(names, m.name)
		l.metrics.RecordHeartbeatMissed(m.name)
		l.log.Warn("heartbeat missed",
			applogger.String("source", m.name),
			applogger.Time("last_heartbeat", m.last),
			applogger.Float64("minutes_elapsed", m.now.Sub(m.last).Minutes()),
		)
		if l.notifier == nil {
			continue
		}
		if err := l.notifier.HeartbeatMissed(ctx, m.name, m.last, m.now); err != nil {
			l.log.Error("heartbeat notification failed", applogger.String("source", m.name), applogger.Error(err))
		}
	}
	return names
}

func (l *Ledger) record(e *models.HeartbeatStatus, now time.Time) models.HeartbeatRecord {
	elapsed := now.Sub(e.LastHeartbeat)
	return models.HeartbeatRecord{
		HeartbeatStatus:  *e,
		MinutesSinceLast: elapsed.Minutes(),
		IsOverdue:        elapsed > l.timeout,
	}
}

// Status returns a copy of every entry with derived fields.
func (l *Ledger) Status() map[string]models.HeartbeatRecord {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]models.HeartbeatRecord, len(l.entries))
	for name, e := range l.entries {
		out[name] = l.record(e, now)
	}
	return out
}

func (l *Ledger) Get(name string) (models.HeartbeatRecord, bool) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[name]
	if !ok {
		return models.HeartbeatRecord{}, false
	}
	return l.record(e, now), true
}

func (l *Ledger) Active() []string {
	return l.filter(func(r models.HeartbeatRecord) bool { return r.IsActive })
}

func (l *Ledger) Overdue() []string {
	return l.filter(func(r models.HeartbeatRecord) bool { return r.IsOverdue })
}

func (l *Ledger) filter(keep func(models.HeartbeatRecord) bool) []string {
	var out []string
	for name, r := range l.Status() {
		if keep(r) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Run sweeps once immediately, then on every check interval until ctx is done.
func (l *Ledger) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.log.Info("heartbeat monitor started",
		applogger.Duration("timeout_ms", l.timeout),
		applogger.Duration("interval_ms", l.interval))
	l.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			l.log.Info("heartbeat monitor stopped")
			return nil
		case <-ticker.C:
			l.Sweep(ctx)
		}
	}
}
