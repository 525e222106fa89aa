// Package api serves the supervisor's health and control endpoints.
package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"TradeBot/internal/domain/models"
	"TradeBot/internal/service/ratelimit"
	xhttp "TradeBot/pkg/http"
	applogger "TradeBot/pkg/logger"
	"TradeBot/pkg/queue"

	"github.com/labstack/echo/v4"
)

// Refreshes bypass the health cache, so they are limited per client.
const (
	refreshCapacity     = 5
	refreshRefillPerSec = 0.5
)

type HealthService interface {
	Health(ctx context.Context) ([]models.AgentHealth, error)
	Summary(ctx context.Context) models.HealthSummary
	Invalidate()
}

type LedgerView interface {
	Status() map[string]models.HeartbeatRecord
}

type StrategyService interface {
	Status() map[string]map[string]any
	RiskLimits() models.RiskLimits
	UpdateRiskLimits(ctx context.Context, limits models.RiskLimits)
}

type Handler struct {
	health     HealthService
	ledger     LedgerView
	strategies StrategyService
	queue      queue.StatsReporter
	limiter    *ratelimit.Limiter
	now        func() time.Time
	l          *applogger.Logger
}

func NewHandler(health HealthService, ledger LedgerView, strategies StrategyService, l *applogger.Logger) *Handler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &Handler{
		health:     health,
		ledger:     ledger,
		strategies: strategies,
		limiter:    ratelimit.New(),
		now:        time.Now,
		l:          l,
	}
}

// WithClock swaps the clock used for ?since lookbacks and returns h.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// WithQueueStats exposes order queue depth under /api/orders/queue and returns h.
func (h *Handler) WithQueueStats(q queue.StatsReporter) *Handler {
	h.queue = q
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)
	g.GET("/health/summary", h.Summary)
	g.GET("/heartbeats", h.Heartbeats)
	g.GET("/strategies", h.Strategies)
	g.GET("/risk-limits", h.GetRiskLimits)
	g.POST("/risk-limits", h.UpdateRiskLimits)
	if h.queue != nil {
		g.GET("/orders/queue", h.QueueStats)
	}
}

// refresh honours ?refresh=true. It returns false when the client is over its refresh budget.
func (h *Handler) refresh(c echo.Context) bool {
	var q models.HealthQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		q.Refresh = xhttp.QueryBool(c, "refresh", false)
	}
	if !q.Refresh {
		return true
	}
	if !h.limiter.Allow(c.RealIP()+":refresh", refreshCapacity, refreshRefillPerSec) {
		h.l.Warn("health refresh rate limited", applogger.String("remote", c.RealIP()))
		return false
	}
	h.health.Invalidate()
	return true
}

func (h *Handler) Health(c echo.Context) error {
	if !h.refresh(c) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "refresh rate limited")
	}
	agents, err := h.health.Health(c.Request().Context())
	if err != nil {
		h.l.Error("health read failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("heartbeat store unavailable").WithError(err))
	}
	if agents == nil {
		agents = []models.AgentHealth{}
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.ListResponse(c, agents, int64(len(agents)))
}

func (h *Handler) Summary(c echo.Context) error {
	if !h.refresh(c) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "refresh rate limited")
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, h.health.Summary(c.Request().Context()))
}

// Heartbeats lists ledger records. ?overdue=true keeps only overdue sources and
// ?since=15m (or an RFC3339 time) keeps sources that beat after that point.
func (h *Handler) Heartbeats(c echo.Context) error {
	overdue := xhttp.QueryBool(c, "overdue", false)
	since, hasSince := xhttp.QuerySince(c, "since", h.now())
	if c.QueryParam("since") != "" && !hasSince {
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
			Code:    "ERR_INVALID",
			Field:   "since",
			Message: "since must be a duration like 15m or an RFC3339 time",
		}})
	}

	status := h.ledger.Status()
	rows := make([]models.HeartbeatRecord, 0, len(status))
	for _, rec := range status {
		if overdue && !rec.IsOverdue {
			continue
		}
		if hasSince && rec.LastHeartbeat.Before(since) {
			continue
		}
		rows = append(rows, rec)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *Handler) QueueStats(c echo.Context) error {
	stats, err := h.queue.Stats(c.Request().Context())
	if err != nil {
		h.l.Error("queue stats failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("order queue unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, stats)
}

func (h *Handler) Strategies(c echo.Context) error {
	status := h.strategies.Status()
	names := make([]string, 0, len(status))
	for name := range status {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([]map[string]any, 0, len(names))
	for _, name := range names {
		rows = append(rows, status[name])
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *Handler) GetRiskLimits(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.strategies.RiskLimits())
}

// UpdateRiskLimits broadcasts new limits to every agent. Agent errors are contained by the executor.
func (h *Handler) UpdateRiskLimits(c echo.Context) error {
	req := &models.RiskLimitsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	limits := req.Limits()
	h.strategies.UpdateRiskLimits(c.Request().Context(), limits)
	h.health.Invalidate()
	h.l.Info("risk limits updated",
		applogger.Float64("max_position_size", limits.MaxPositionSize),
		applogger.Float64("max_daily_loss", limits.MaxDailyLoss),
		applogger.Float64("max_leverage", limits.MaxLeverage),
		applogger.Strings("allowed_symbols", limits.AllowedSymbols),
	)
	return xhttp.SuccessResponse(c, limits)
}
