package usecase

import (
	"context"
	"sort"
	"time"

	"TradeBot/internal/domain/models"
	drepo "TradeBot/internal/domain/repository"
	"TradeBot/internal/service/cache"
	applogger "TradeBot/pkg/logger"
)

const (
	DefaultHealthCacheTTL = 30 * time.Second
	healthCacheKey        = "agent_health"
)

type HealthOption func(*HealthAggregator)

// WithRemoteHeartbeats reads health from the heartbeat mirror instead of the local ledger.
func WithRemoteHeartbeats(r drepo.HeartbeatReader) HealthOption {
	return func(h *HealthAggregator) { h.remote = r }
}

func WithStaleAfter(d time.Duration) HealthOption {
	return func(h *HealthAggregator) {
		if d > 0 {
			h.staleAfter = d
		}
	}
}

func WithHealthCacheTTL(d time.Duration) HealthOption {
	return func(h *HealthAggregator) { h.ttl = d }
}

func WithHealthClock(now func() time.Time) HealthOption {
	return func(h *HealthAggregator) { h.now = now }
}

func WithHealthLogger(l *applogger.Logger) HealthOption {
	return func(h *HealthAggregator) { h.log = l }
}

// HealthAggregator classifies every agent from its newest heartbeat.
type HealthAggregator struct {
	local      *HeartbeatRecorder
	remote     drepo.HeartbeatReader
	staleAfter time.Duration
	ttl        time.Duration
	now        func() time.Time
	cache      *cache.TTLCache
	log        *applogger.Logger
}

func NewHealthAggregator(local *HeartbeatRecorder, opts ...HealthOption) *HealthAggregator {
	h := &HealthAggregator{
		local:      local,
		staleAfter: local.Ledger().Timeout(),
		ttl:        DefaultHealthCacheTTL,
		now:        time.Now,
		log:        applogger.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.cache = cache.NewTTLCache().WithClock(h.now)
	return h
}

// Invalidate drops the cached view so the next call recomputes it.
func (h *HealthAggregator) Invalidate() { h.cache.Delete(healthCacheKey) }

// Health returns one record per agent, sorted by name.
func (h *HealthAggregator) Health(ctx context.Context) ([]models.AgentHealth, error) {
	if v, ok := h.cache.Get(healthCacheKey); ok {
		return v.([]models.AgentHealth), nil
	}

	var (
		out []models.AgentHealth
		err error
	)
	if h.remote != nil {
		out, err = h.fromRemote(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		out = h.fromLedger()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentName < out[j].AgentName })
	h.cache.Set(healthCacheKey, out, h.ttl)
	return out, nil
}

func (h *HealthAggregator) fromRemote(ctx context.Context) ([]models.AgentHealth, error) {
	events, err := h.remote.Latest(ctx)
	if err != nil {
		return nil, err
	}
	now := h.now()
	out := make([]models.AgentHealth, 0, len(events))
	for _, ev := range events {
		out = append(out, h.classify(ev, now))
	}
	return out, nil
}

// fromLedger merges ledger entries with the newest local event. Agents that are
// registered but have not run yet report healthy from their registration time.
func (h *HealthAggregator) fromLedger() []models.AgentHealth {
	now := h.now()
	status := h.local.Ledger().Status()
	out := make([]models.AgentHealth, 0, len(status))
	for name, rec := range status {
		ev, ok := h.local.Last(name)
		if !ok {
			ev = models.HeartbeatEvent{AgentName: name, Status: models.StatusHealthy}
		}
		ev.Timestamp = rec.LastHeartbeat
		out = append(out, h.classify(ev, now))
	}
	return out
}

func (h *HealthAggregator) classify(ev models.HeartbeatEvent, now time.Time) models.AgentHealth {
	return models.AgentHealth{
		AgentName:     ev.AgentName,
		Status:        ev.Status.Normalize(),
		LastHeartbeat: ev.Timestamp,
		LastError:     ev.LastError,
		IsStale:       now.Sub(ev.Timestamp) > h.staleAfter,
		Metadata:      ev.Metadata,
	}
}

// Summary counts agents per status. If the remote mirror fails, the local view is used.
func (h *HealthAggregator) Summary(ctx context.Context) models.HealthSummary {
	agents, err := h.Health(ctx)
	if err != nil {
		h.log.Warn("remote heartbeat read failed, using local ledger", applogger.Error(err))
		agents = h.fromLedger()
		sort.Slice(agents, func(i, j int) bool { return agents[i].AgentName < agents[j].AgentName })
	}
	s := Summarize(agents, h.now())
	s.StaleAfterSeconds = h.staleAfter.Seconds()
	return s
}

func Summarize(agents []models.AgentHealth, at time.Time) models.HealthSummary {
	s := models.HealthSummary{Timestamp: at, TotalAgents: len(agents), Agents: agents}
	if s.Agents == nil {
		s.Agents = []models.AgentHealth{}
	}
	for _, a := range agents {
		switch a.Status {
		case models.StatusHealthy:
			s.Healthy++
		case models.StatusError:
			s.Error++
		default:
			s.Warning++
		}
		if a.IsStale {
			s.Stale++
		}
	}
	return s
}
