// Package external adapts a remote strategy service to the agent contract.
// The service receives tickers, a date window and a portfolio, and answers
// with per-ticker decisions.
package external

import (
	"context"
	"fmt"
	"sort"
	"time"

	"TradeBot/internal/agent"
	"TradeBot/internal/domain/models"
	xhttp "TradeBot/pkg/http"
	applogger "TradeBot/pkg/logger"
)

const defaultConfidence = 0.7

type Params struct {
	Endpoint       string        `yaml:"endpoint" validate:"required,url"`
	Timeout        time.Duration `yaml:"timeout" default:"30s"`
	Retries        int           `yaml:"retries" default:"1" validate:"gte=0,lte=5"`
	LookbackPeriod int           `yaml:"lookback_period" default:"90" validate:"min=1"`
	Cash           float64       `yaml:"cash" default:"100000" validate:"gte=0"`
	Analysts       []string      `yaml:"analysts"`
	Model          string        `yaml:"model"`
}

type positionView struct {
	Long  float64 `json:"long"`
	Short float64 `json:"short"`
}

type portfolio struct {
	Cash      float64                 `json:"cash"`
	Positions map[string]positionView `json:"positions"`
}

type decideRequest struct {
	Tickers   []string  `json:"tickers"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	Portfolio portfolio `json:"portfolio"`
	Analysts  []string  `json:"selected_analysts,omitempty"`
	Model     string    `json:"model_name,omitempty"`
}

type decision struct {
	Action    string  `json:"action"`
	Quantity  float64 `json:"quantity"`
	Reasoning string  `json:"reasoning"`
}

type decideResponse struct {
	Decisions      map[string]decision `json:"decisions"`
	AnalystSignals map[string]any      `json:"analyst_signals"`
}

type Agent struct {
	*agent.Base
	params Params
	client *xhttp.Client
	log    *applogger.Logger
	now    func() time.Time
}

var _ agent.Agent = (*Agent)(nil)

func Factory(l *applogger.Logger) agent.Factory {
	return func(name string, params map[string]any) (agent.Agent, error) {
		var p Params
		if err := agent.DecodeParams(params, &p); err != nil {
			return nil, err
		}
		return New(name, p, l), nil
	}
}

func New(name string, p Params, l *applogger.Logger) *Agent {
	if l == nil {
		l = applogger.NewNop()
	}
	return &Agent{
		Base:   agent.NewBase(name),
		params: p,
		client: xhttp.NewClient(xhttp.WithTimeout(p.Timeout), xhttp.WithRetry(p.Retries, 250*time.Millisecond)),
		log:    l.With(applogger.String("agent", name)),
		now:    time.Now,
	}
}

func (a *Agent) GenerateSignals(ctx context.Context, snap models.Snapshot) ([]models.Signal, error) {
	tickers := make([]string, 0, len(snap.Prices))
	for s := range snap.Prices {
		tickers = append(tickers, s)
	}
	if len(tickers) == 0 {
		return []models.Signal{}, nil
	}
	sort.Strings(tickers)

	positions := make(map[string]positionView, len(tickers))
	for _, t := range tickers {
		q := snap.Position(t)
		positions[t] = positionView{Long: max(0, q), Short: max(0, -q)}
	}

	end := a.now()
	req := decideRequest{
		Tickers:   tickers,
		StartDate: end.AddDate(0, 0, -a.params.LookbackPeriod).Format("2006-01-02"),
		EndDate:   end.Format("2006-01-02"),
		Portfolio: portfolio{Cash: a.params.Cash, Positions: positions},
		Analysts:  a.params.Analysts,
		Model:     a.params.Model,
	}

	var resp decideResponse
	if err := a.client.PostJSON(ctx, a.params.Endpoint, req, &resp); err != nil {
		return nil, fmt.Errorf("external strategy: %w", err)
	}

	signals := make([]models.Signal, 0, len(resp.Decisions))
	for _, t := range sortedKeys(resp.Decisions) {
		d := resp.Decisions[t]
		action := models.Action(d.Action)
		if action == models.ActionHold || !action.Valid() || d.Quantity <= 0 {
			continue
		}
		reason := d.Reasoning
		if reason == "" {
			reason = "external strategy decision"
		}
		signals = append(signals, models.Signal{
			Symbol:     t,
			Action:     action,
			Quantity:   d.Quantity,
			Confidence: defaultConfidence,
			Reasoning:  reason,
			Metadata: map[string]any{
				"strategy":          "external",
				"external_decision": d,
				"analyst_signals":   resp.AnalystSignals,
			},
		})
	}
	return signals, nil
}

func (a *Agent) OnFill(_ context.Context, fill models.Fill) error {
	a.log.Debug("fill ignored by external strategy", applogger.String("order_id", fill.OrderID))
	return nil
}

func (a *Agent) GetStatus() map[string]any {
	st := a.Base.GetStatus()
	st["endpoint"] = a.params.Endpoint
	st["lookback_period"] = a.params.LookbackPeriod
	return st
}

func sortedKeys(m map[string]decision) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
