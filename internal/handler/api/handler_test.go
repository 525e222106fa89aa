package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"TradeBot/internal/domain/models"
	applogger "TradeBot/pkg/logger"
	"TradeBot/pkg/queue"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)

type fakeHealth struct {
	agents      []models.AgentHealth
	err         error
	invalidated int
}

func (f *fakeHealth) Health(context.Context) ([]models.AgentHealth, error) { return f.agents, f.err }

func (f *fakeHealth) Summary(context.Context) models.HealthSummary {
	return models.HealthSummary{Timestamp: now, TotalAgents: len(f.agents), Agents: f.agents}
}

func (f *fakeHealth) Invalidate() { f.invalidated++ }

type fakeLedger map[string]models.HeartbeatRecord

func (f fakeLedger) Status() map[string]models.HeartbeatRecord { return f }

type fakeStrategies struct {
	mu     sync.Mutex
	limits models.RiskLimits
	calls  int
}

func (f *fakeStrategies) Status() map[string]map[string]any {
	return map[string]map[string]any{
		"trend": {"name": "trend", "is_active": true},
		"alpha": {"name": "alpha", "is_active": false},
	}
}

func (f *fakeStrategies) RiskLimits() models.RiskLimits {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limits
}

func (f *fakeStrategies) UpdateRiskLimits(_ context.Context, l models.RiskLimits) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = l
	f.calls++
}

type fakeQueue struct {
	stats queue.Stats
	err   error
}

func (f fakeQueue) Stats(context.Context) (queue.Stats, error) { return f.stats, f.err }

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type list[T any] struct {
	Rows  []T   `json:"rows"`
	Total int64 `json:"total"`
}

func setup() (*echo.Echo, *fakeHealth, *fakeStrategies) {
	health := &fakeHealth{agents: []models.AgentHealth{
		{AgentName: "alpha", Status: models.StatusHealthy, LastHeartbeat: now},
		{AgentName: "trend", Status: models.StatusError, LastError: "boom", LastHeartbeat: now},
	}}
	ledger := fakeLedger{
		"alpha": {HeartbeatStatus: models.HeartbeatStatus{Name: "alpha", LastHeartbeat: now.Add(-2 * time.Minute), IsActive: true}},
		"trend": {HeartbeatStatus: models.HeartbeatStatus{Name: "trend", LastHeartbeat: now.Add(-20 * time.Minute)}, IsOverdue: true},
	}
	strategies := &fakeStrategies{}

	e := echo.New()
	NewHandler(health, ledger, strategies, applogger.NewNop()).WithClock(func() time.Time { return now }).RegisterRoutes(e)
	return e, health, strategies
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestHealth(t *testing.T) {
	e, health, _ := setup()

	code, env := do(t, e, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, code)
	var rows list[models.AgentHealth]
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	assert.EqualValues(t, 2, rows.Total)
	assert.Equal(t, "boom", rows.Rows[1].LastError)
	assert.Zero(t, health.invalidated)

	_, _ = do(t, e, http.MethodGet, "/api/health?refresh=true", "")
	assert.Equal(t, 1, health.invalidated)
}

func TestHealth_StoreDown(t *testing.T) {
	e, health, _ := setup()
	health.err = errors.New("connection refused")

	code, env := do(t, e, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, http.StatusServiceUnavailable, env.Status)
}

func TestSummary_RefreshRateLimited(t *testing.T) {
	e, health, _ := setup()

	var last int
	for i := 0; i < refreshCapacity+1; i++ {
		last, _ = do(t, e, http.MethodGet, "/api/health/summary?refresh=1", "")
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
	assert.Equal(t, refreshCapacity, health.invalidated)

	code, env := do(t, e, http.MethodGet, "/api/health/summary", "")
	require.Equal(t, http.StatusOK, code)
	var s models.HealthSummary
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, 2, s.TotalAgents)
}

func TestHeartbeats_Filters(t *testing.T) {
	e, _, _ := setup()

	cases := []struct {
		target string
		want   []string
	}{
		{"/api/heartbeats", []string{"alpha", "trend"}},
		{"/api/heartbeats?overdue=true", []string{"trend"}},
		{"/api/heartbeats?since=5m", []string{"alpha"}},
		{"/api/heartbeats?since=" + now.Add(-time.Hour).Format(time.RFC3339), []string{"alpha", "trend"}},
	}
	for _, tc := range cases {
		t.Run(tc.target, func(t *testing.T) {
			code, env := do(t, e, http.MethodGet, tc.target, "")
			require.Equal(t, http.StatusOK, code)
			var rows list[models.HeartbeatRecord]
			require.NoError(t, json.Unmarshal(env.Data, &rows))
			var names []string
			for _, r := range rows.Rows {
				names = append(names, r.Name)
			}
			assert.Equal(t, tc.want, names)
		})
	}

	code, _ := do(t, e, http.MethodGet, "/api/heartbeats?since=soon", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStrategies_SortedByName(t *testing.T) {
	e, _, _ := setup()

	code, env := do(t, e, http.MethodGet, "/api/strategies", "")
	require.Equal(t, http.StatusOK, code)
	var rows list[map[string]any]
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows.Rows, 2)
	assert.Equal(t, "alpha", rows.Rows[0]["name"])
	assert.Equal(t, "trend", rows.Rows[1]["name"])
}

func TestRiskLimits(t *testing.T) {
	e, health, strategies := setup()

	code, _ := do(t, e, http.MethodPost, "/api/risk-limits", `{"max_position_size":-1}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, e, http.MethodPost, "/api/risk-limits", `{"allowed_symbols":["aapl"]}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Zero(t, strategies.calls)

	code, _ = do(t, e, http.MethodPost, "/api/risk-limits", `{"max_position_size":100,"allowed_symbols":["AAPL","MSFT"]}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, strategies.calls)
	assert.Equal(t, 1, health.invalidated)

	code, env := do(t, e, http.MethodGet, "/api/risk-limits", "")
	require.Equal(t, http.StatusOK, code)
	var got models.RiskLimits
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, 100.0, got.MaxPositionSize)
	assert.Equal(t, 1.0, got.MaxLeverage)
	assert.Equal(t, []string{"AAPL", "MSFT"}, got.AllowedSymbols)
}

func TestQueueStats(t *testing.T) {
	e, _, _ := setup()
	code, _ := do(t, e, http.MethodGet, "/api/orders/queue", "")
	assert.Equal(t, http.StatusNotFound, code, "route only exists with a queue")

	e = echo.New()
	NewHandler(&fakeHealth{}, fakeLedger{}, &fakeStrategies{}, nil).
		WithQueueStats(fakeQueue{stats: queue.Stats{Pending: 3, Delayed: 1, Dead: 2}}).
		RegisterRoutes(e)
	code, env := do(t, e, http.MethodGet, "/api/orders/queue", "")
	require.Equal(t, http.StatusOK, code)
	var s queue.Stats
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, queue.Stats{Pending: 3, Delayed: 1, Dead: 2}, s)

	e = echo.New()
	NewHandler(&fakeHealth{}, fakeLedger{}, &fakeStrategies{}, nil).
		WithQueueStats(fakeQueue{err: errors.New("redis down")}).
		RegisterRoutes(e)
	code, _ = do(t, e, http.MethodGet, "/api/orders/queue", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
