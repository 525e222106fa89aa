package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"TradeBot/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func summaryServer(t *testing.T, s models.HealthSummary, refreshed *bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health/summary" {
			http.NotFound(w, r)
			return
		}
		if refreshed != nil {
			*refreshed = r.URL.Query().Get("refresh") == "true"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": 200, "message": "OK", "data": s})
	}))
}

func TestHealthCmd_RendersTable(t *testing.T) {
	now := time.Now().UTC()
	s := models.HealthSummary{
		Timestamp: now, TotalAgents: 2, Healthy: 1, Error: 1,
		Agents: []models.AgentHealth{
			{AgentName: "SMA_Cross", Status: models.StatusHealthy, LastHeartbeat: now},
			{AgentName: "AI_Hedge_Fund", Status: models.StatusError, LastError: "endpoint unreachable", LastHeartbeat: now},
		},
	}
	var refreshed bool
	srv := summaryServer(t, s, &refreshed)
	defer srv.Close()

	out, err := execute(t, "health", "--addr", srv.URL, "--refresh")
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Contains(t, out, "SMA_Cross")
	assert.Contains(t, out, "AI_Hedge_Fund")
	assert.Contains(t, out, "endpoint unreachable")
	assert.Contains(t, out, "1 healthy")

	_, err = execute(t, "health", "--addr", srv.URL, "--strict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 agents in error")
}

func TestHealthCmd_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := execute(t, "health", "--addr", srv.URL, "--timeout", "1s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), srv.URL)
}

func TestResolveCmd(t *testing.T) {
	out, err := execute(t, "resolve", "tradebot.agents.sma_agent:SMAAgent")
	require.NoError(t, err)
	assert.Contains(t, out, "ok tradebot.agents.sma_agent:SMAAgent")

	out, err = execute(t, "resolve",
		"tradebot.agents.sma_agent:SMAAgent",
		"tradebot.agents.sma_agent:Missing",
		"not-a-path",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 3")
	assert.Contains(t, out, "ClassNotFound")
	assert.Contains(t, out, "InvalidPathFormat")
}

func TestConfigSample(t *testing.T) {
	out, err := execute(t, "config", "sample")
	require.NoError(t, err)
	assert.Contains(t, out, "tradebot.agents.sma_agent:SMAAgent")

	path := filepath.Join(t.TempDir(), "config.yaml")
	_, err = execute(t, "config", "sample", path)
	require.NoError(t, err)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(out), strings.TrimSpace(string(b)))

	out, err = execute(t, "--config", path, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "config ok")
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tradebot dev")
}

func TestRenderSummary_Empty(t *testing.T) {
	out := renderSummary(models.HealthSummary{Timestamp: time.Now()}, time.Now())
	assert.Contains(t, out, "no agents registered")
	assert.NotContains(t, out, "after")
}

func TestRenderSummary_StaleWindow(t *testing.T) {
	out := renderSummary(models.HealthSummary{Timestamp: time.Now(), StaleAfterSeconds: 600}, time.Now())
	assert.Contains(t, out, "0 stale of 0 (after 10m0s)")
}

func TestAgo(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "never", ago(now, time.Time{}))
	assert.Equal(t, "1m30s ago", ago(now, now.Add(-90*time.Second)))
	assert.Equal(t, "abc…", truncate("abcdef", 4))
}
