package usecase

import (
	"context"
	"time"

	drepo "TradeBot/internal/domain/repository"
	applogger "TradeBot/pkg/logger"
	"TradeBot/pkg/queue"
)

// HeartbeatRetention prunes old rows from the heartbeat mirror on a fixed interval.
type HeartbeatRetention struct {
	store    drepo.HeartbeatPruner
	keep     time.Duration
	interval time.Duration
	now      func() time.Time
	log      *applogger.Logger
}

func NewHeartbeatRetention(store drepo.HeartbeatPruner, keep, interval time.Duration, l *applogger.Logger) *HeartbeatRetention {
	if l == nil {
		l = applogger.NewNop()
	}
	return &HeartbeatRetention{store: store, keep: keep, interval: interval, now: time.Now, log: l}
}

// WithClock swaps the clock used for the cutoff and returns h.
func (h *HeartbeatRetention) WithClock(now func() time.Time) *HeartbeatRetention {
	h.now = now
	return h
}

// PruneOnce deletes rows older than now minus the retention window.
func (h *HeartbeatRetention) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := h.now().Add(-h.keep)
	n, err := h.store.Prune(ctx, cutoff)
	if err != nil {
		h.log.Warn("heartbeat prune failed", applogger.Error(err))
		return 0, err
	}
	if n > 0 {
		h.log.Info("heartbeats pruned", applogger.Int64("rows", n), applogger.Time("before", cutoff))
	}
	return n, nil
}

// Run prunes immediately, then on every interval until ctx is done.
func (h *HeartbeatRetention) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		_, _ = h.PruneOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// QueueMonitor publishes queue depth as gauges.
type QueueMonitor struct {
	name     string
	q        queue.StatsReporter
	interval time.Duration
	metrics  drepo.Metrics
	log      *applogger.Logger
}

func NewQueueMonitor(name string, q queue.StatsReporter, interval time.Duration, m drepo.Metrics, l *applogger.Logger) *QueueMonitor {
	if l == nil {
		l = applogger.NewNop()
	}
	return &QueueMonitor{name: name, q: q, interval: interval, metrics: m, log: l}
}

func (m *QueueMonitor) Observe(ctx context.Context) (queue.Stats, error) {
	st, err := m.q.Stats(ctx)
	if err != nil {
		return queue.Stats{}, err
	}
	m.metrics.RecordQueueDepth(m.name, "pending", st.Pending)
	m.metrics.RecordQueueDepth(m.name, "delayed", st.Delayed)
	m.metrics.RecordQueueDepth(m.name, "dead", st.Dead)
	return st, nil
}

func (m *QueueMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	var lastDead int64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		st, err := m.Observe(ctx)
		if err != nil {
			if ctx.Err() == nil {
				m.log.Warn("queue stats failed", applogger.String("queue", m.name), applogger.Error(err))
			}
			continue
		}
		if st.Dead > lastDead {
			m.log.Warn("queue dead letters grew",
				applogger.String("queue", m.name),
				applogger.Int64("dead", st.Dead))
		}
		lastDead = st.Dead
	}
}
