// Package builtin registers the agents compiled into the binary.
package builtin

import (
	"TradeBot/internal/agent/external"
	"TradeBot/internal/agent/sma"
	"TradeBot/internal/agent/technical"
	"TradeBot/internal/registry"
	applogger "TradeBot/pkg/logger"
)

const (
	SMAModule       = "tradebot.agents.sma_agent"
	TechnicalModule = "tradebot.agents.technicals"
	ExternalModule  = "tradebot.agents.external_strategy"
)

// Modules returns the built-in module table.
func Modules(l *applogger.Logger) map[string]registry.Exports {
	return map[string]registry.Exports{
		SMAModule: {
			"SMAAgent":      sma.Factory(l),
			"DefaultFast":   10,
			"DefaultSlow":   20,
			"MinDataPoints": 50,
		},
		TechnicalModule: {
			"TechnicalAgent": technical.Factory(l),
			"Weights":        map[string]float64{"trend": 0.25, "mean_reversion": 0.20, "momentum": 0.25, "volatility": 0.15, "stat_arb": 0.15},
		},
		ExternalModule: {
			"ExternalAgent": external.Factory(l),
		},
	}
}

// Register adds every built-in module to r.
func Register(r *registry.Registry, l *applogger.Logger) {
	for module, exports := range Modules(l) {
		r.RegisterModule(module, exports)
	}
}
