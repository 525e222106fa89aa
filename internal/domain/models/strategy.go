package models

// StrategySpec names one strategy to load: a unique run name, a registry path and constructor params.
type StrategySpec struct {
	Name   string         `json:"name" yaml:"name"`
	Path   string         `json:"path" yaml:"path"`
	Params map[string]any `json:"params,omitempty" yaml:"params"`
}

// Requests for the HTTP API.

type RiskLimitsRequest struct {
	MaxPositionSize float64  `json:"max_position_size" validate:"gte=0"`
	MaxDailyLoss    float64  `json:"max_daily_loss" validate:"gte=0"`
	MaxLeverage     float64  `json:"max_leverage" default:"1" validate:"gt=0,lte=100"`
	AllowedSymbols  []string `json:"allowed_symbols" validate:"dive,required,uppercase"`
}

func (r RiskLimitsRequest) Limits() RiskLimits {
	return RiskLimits{
		MaxPositionSize: r.MaxPositionSize,
		MaxDailyLoss:    r.MaxDailyLoss,
		MaxLeverage:     r.MaxLeverage,
		AllowedSymbols:  r.AllowedSymbols,
	}
}

type HealthQuery struct {
	Refresh bool `query:"refresh" json:"refresh"`
}
