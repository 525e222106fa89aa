package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type sampleExecution struct {
	MaxConcurrent int    `yaml:"max_concurrent_strategies"`
	Timeout       string `yaml:"timeout"`
	Interval      string `yaml:"interval"`
}

type sampleRiskLimits struct {
	MaxPositionSize float64  `yaml:"max_position_size"`
	MaxDailyLoss    float64  `yaml:"max_daily_loss"`
	MaxLeverage     float64  `yaml:"max_leverage"`
	AllowedSymbols  []string `yaml:"allowed_symbols"`
}

type sampleConfig struct {
	Environment string           `yaml:"environment"`
	Strategies  []StrategyConfig `yaml:"strategies"`
	Execution   sampleExecution  `yaml:"execution"`
	RiskLimits  sampleRiskLimits `yaml:"risk_limits"`
	MarketData  struct {
		Symbols []string `yaml:"symbols"`
	} `yaml:"market_data"`
	Heartbeat struct {
		Timeout string `yaml:"timeout"`
		Sink    string `yaml:"sink"`
	} `yaml:"heartbeat"`
}

// Sample returns the starter configuration written by `tradebot config sample`.
func Sample() ([]byte, error) {
	s := sampleConfig{
		Environment: "development",
		Strategies: []StrategyConfig{
			{
				Name:   "SMA_Cross",
				Path:   "tradebot.agents.sma_agent:SMAAgent",
				Params: map[string]any{"fast_period": 10, "slow_period": 20},
			},
			{
				Name:   "Technical_Analysis",
				Path:   "tradebot.agents.technicals:TechnicalAgent",
				Params: map[string]any{},
			},
			{
				Name: "AI_Hedge_Fund",
				Path: "tradebot.agents.external_strategy:ExternalAgent",
				Params: map[string]any{
					"endpoint":        "http://localhost:8000/decide",
					"lookback_period": 30,
				},
			},
		},
		Execution: sampleExecution{MaxConcurrent: 10, Timeout: "30s", Interval: "1m"},
		RiskLimits: sampleRiskLimits{
			MaxPositionSize: 1000000,
			MaxDailyLoss:    50000,
			MaxLeverage:     3.0,
			AllowedSymbols:  []string{"AAPL", "GOOGL", "MSFT", "TSLA"},
		},
	}
	s.MarketData.Symbols = []string{"AAPL", "GOOGL", "MSFT", "TSLA"}
	s.Heartbeat.Timeout = "10m"
	s.Heartbeat.Sink = "none"

	return yaml.Marshal(s)
}

// WriteSample writes the starter configuration to path.
func WriteSample(path string) error {
	b, err := Sample()
	if err != nil {
		return fmt.Errorf("marshal sample config: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
