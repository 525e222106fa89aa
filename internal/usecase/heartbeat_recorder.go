package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"TradeBot/internal/domain/models"
	drepo "TradeBot/internal/domain/repository"
	"TradeBot/internal/heartbeat"
	applogger "TradeBot/pkg/logger"
	"TradeBot/pkg/metrics"
)

// HeartbeatRecorder fans one heartbeat out to the ledger, the optional sink,
// the optional event publisher and metrics. It also keeps the newest event per
// agent so health can be served without a remote store.
type HeartbeatRecorder struct {
	ledger  *heartbeat.Ledger
	sink    drepo.HeartbeatSink
	pub     drepo.HeartbeatPublisher
	metrics drepo.Metrics
	log     *applogger.Logger
	now     func() time.Time

	mu     sync.RWMutex
	latest map[string]models.HeartbeatEvent
}

type RecorderOption func(*HeartbeatRecorder)

func WithHeartbeatSink(s drepo.HeartbeatSink) RecorderOption {
	return func(r *HeartbeatRecorder) { r.sink = s }
}

func WithHeartbeatPublisher(p drepo.HeartbeatPublisher) RecorderOption {
	return func(r *HeartbeatRecorder) { r.pub = p }
}

func WithRecorderMetrics(m drepo.Metrics) RecorderOption {
	return func(r *HeartbeatRecorder) { r.metrics = m }
}

func WithRecorderLogger(l *applogger.Logger) RecorderOption {
	return func(r *HeartbeatRecorder) { r.log = l }
}

func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *HeartbeatRecorder) { r.now = now }
}

func NewHeartbeatRecorder(ledger *heartbeat.Ledger, opts ...RecorderOption) *HeartbeatRecorder {
	r := &HeartbeatRecorder{
		ledger:  ledger,
		metrics: metrics.Nop{},
		log:     applogger.NewNop(),
		now:     time.Now,
		latest:  make(map[string]models.HeartbeatEvent),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *HeartbeatRecorder) Ledger() *heartbeat.Ledger { return r.ledger }

// Record never fails; downstream errors are logged.
func (r *HeartbeatRecorder) Record(ctx context.Context, ev models.HeartbeatEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now()
	}
	ev.Status = ev.Status.Normalize()

	r.ledger.Beat(ev.AgentName)
	r.mu.Lock()
	r.latest[ev.AgentName] = ev
	r.mu.Unlock()
	r.metrics.RecordHeartbeat(ev.AgentName, string(ev.Status))

	fields := []applogger.Field{
		applogger.String("agent", ev.AgentName),
		applogger.String("status", string(ev.Status)),
	}
	if ev.LastError != "" {
		fields = append(fields, applogger.String("last_error", ev.LastError))
	}
	r.log.Debug("heartbeat", fields...)

	if r.sink != nil {
		if err := r.sink.Write(ctx, ev); err != nil {
			r.metrics.RecordError("heartbeat_sink")
			r.log.Error("heartbeat sink write failed", append(fields, applogger.Error(err))...)
		}
	}
	if r.pub != nil {
		if err := r.pub.PublishHeartbeat(ctx, ev); err != nil {
			r.metrics.RecordError("heartbeat_publish")
			r.log.Warn("heartbeat publish failed", append(fields, applogger.Error(err))...)
		}
	}
}

func (r *HeartbeatRecorder) Register(name string) { r.ledger.Register(name) }

// Deregister drops name from the ledger and the local event view.
func (r *HeartbeatRecorder) Deregister(name string) {
	r.ledger.Deregister(name)
	r.mu.Lock()
	delete(r.latest, name)
	r.mu.Unlock()
}

// Last returns the newest event recorded for name.
func (r *HeartbeatRecorder) Last(name string) (models.HeartbeatEvent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.latest[name]
	return ev, ok
}

// Latest implements repository.HeartbeatReader over the local view.
func (r *HeartbeatRecorder) Latest(context.Context) ([]models.HeartbeatEvent, error) {
	r.mu.RLock()
	out := make([]models.HeartbeatEvent, 0, len(r.latest))
	for _, ev := range r.latest {
		out = append(out, ev)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].AgentName < out[j].AgentName })
	return out, nil
}

var _ drepo.HeartbeatReader = (*HeartbeatRecorder)(nil)
