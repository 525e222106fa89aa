package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	agentRuns        *prometheus.CounterVec
	agentLatency     *prometheus.HistogramVec
	signalsEmitted   *prometheus.CounterVec
	heartbeats       *prometheus.CounterVec
	heartbeatsMissed *prometheus.CounterVec
	resolves         *prometheus.CounterVec
	orders           *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	lastPrice        *prometheus.GaugeVec
	latency          *prometheus.HistogramVec
	queueDepth       *prometheus.GaugeVec
}

// New creates a recorder registered on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		agentRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradebot_agent_runs_total",
				Help: "Agent executions by outcome",
			},
			[]string{"agent", "status"},
		),
		agentLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradebot_agent_run_duration_seconds",
				Help:    "Duration of a single agent signal generation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent"},
		),
		signalsEmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradebot_signals_total",
				Help: "Signals produced per agent",
			},
			[]string{"agent"},
		),
		heartbeats: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradebot_heartbeats_total",
				Help: "Heartbeats recorded by status",
			},
			[]string{"agent", "status"},
		),
		heartbeatsMissed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradebot_heartbeats_missed_total",
				Help: "Silence episodes detected by the heartbeat sweep",
			},
			[]string{"agent"},
		),
		resolves: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradebot_strategy_resolves_total",
				Help: "Strategy path resolutions by outcome",
			},
			[]string{"outcome"},
		),
		orders: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradebot_orders_total",
				Help: "Orders routed to the broker",
			},
			[]string{"symbol", "side", "status"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradebot_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradebot_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradebot_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		queueDepth: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradebot_queue_messages",
				Help: "Messages in a work queue by state (pending, delayed, dead)",
			},
			[]string{"queue", "state"},
		),
	}
}

func (r *Recorder) RecordAgentRun(agent, status string, seconds float64) {
	r.agentRuns.WithLabelValues(agent, status).Inc()
	r.agentLatency.WithLabelValues(agent).Observe(seconds)
}

func (r *Recorder) RecordSignals(agent string, n int) {
	r.signalsEmitted.WithLabelValues(agent).Add(float64(n))
}

func (r *Recorder) RecordHeartbeat(agent, status string) {
	r.heartbeats.WithLabelValues(agent, status).Inc()
}

func (r *Recorder) RecordHeartbeatMissed(agent string) {
	r.heartbeatsMissed.WithLabelValues(agent).Inc()
}

func (r *Recorder) RecordResolve(outcome string) {
	r.resolves.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordOrder(symbol, side, status string) {
	r.orders.WithLabelValues(symbol, side, status).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordQueueDepth(queue, state string, n int64) {
	r.queueDepth.WithLabelValues(queue, state).Set(float64(n))
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordAgentRun(string, string, float64) {}
func (Nop) RecordSignals(string, int)              {}
func (Nop) RecordHeartbeat(string, string)         {}
func (Nop) RecordHeartbeatMissed(string)           {}
func (Nop) RecordResolve(string)                   {}
func (Nop) RecordOrder(string, string, string)     {}
func (Nop) RecordError(string)                     {}
func (Nop) RecordLastPrice(string, float64)        {}
func (Nop) RecordLatency(string, float64)          {}
func (Nop) RecordQueueDepth(string, string, int64) {}
