package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"TradeBot/internal/agent"
	"TradeBot/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot() models.Snapshot {
	return models.Snapshot{
		Prices: map[string]models.PriceSeries{
			"AAPL": {Last: 190},
			"MSFT": {Last: 410},
			"TSLA": {Last: 250},
		},
		Positions: map[string]float64{"TSLA": -5},
	}
}

func TestGenerateSignals_MapsDecisions(t *testing.T) {
	var got decideRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"decisions": map[string]any{
				"AAPL": map[string]any{"action": "buy", "quantity": 10, "reasoning": "breakout"},
				"MSFT": map[string]any{"action": "hold", "quantity": 5},
				"TSLA": map[string]any{"action": "sell", "quantity": 0},
			},
			"analyst_signals": map[string]any{"technical": "bullish"},
		})
	}))
	defer srv.Close()

	a := New("ext", Params{Endpoint: srv.URL, Timeout: time.Second, LookbackPeriod: 90, Cash: 50000}, nil)
	a.now = func() time.Time { return time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC) }

	sigs, err := a.GenerateSignals(context.Background(), snapshot())
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, "AAPL", sigs[0].Symbol)
	assert.Equal(t, models.ActionBuy, sigs[0].Action)
	assert.Equal(t, 10.0, sigs[0].Quantity)
	assert.Equal(t, 0.7, sigs[0].Confidence)
	assert.Equal(t, "breakout", sigs[0].Reasoning)

	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, got.Tickers)
	assert.Equal(t, "2024-04-01", got.StartDate)
	assert.Equal(t, "2024-06-30", got.EndDate)
	assert.Equal(t, 5.0, got.Portfolio.Positions["TSLA"].Short)
	assert.Equal(t, 50000.0, got.Portfolio.Cash)
}

func TestGenerateSignals_ServerErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model offline", http.StatusBadGateway)
	}))
	defer srv.Close()

	a := New("ext", Params{Endpoint: srv.URL, Timeout: time.Second, LookbackPeriod: 90}, nil)
	_, err := a.GenerateSignals(context.Background(), snapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestGenerateSignals_EmptySnapshotSkipsCall(t *testing.T) {
	a := New("ext", Params{Endpoint: "http://127.0.0.1:1", Timeout: time.Second}, nil)
	sigs, err := a.GenerateSignals(context.Background(), models.Snapshot{})
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestFactory_RequiresEndpoint(t *testing.T) {
	_, err := Factory(nil)("ext", map[string]any{"lookback_period": 30})
	assert.ErrorIs(t, err, agent.ErrInvalidParams)

	_, err = Factory(nil)("ext", map[string]any{"threshold": 0.02})
	assert.ErrorIs(t, err, agent.ErrParamsMismatch)
}
