package models

import "time"

type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell || a == ActionHold
}

// Signal is a trade recommendation produced by an agent for one symbol.
// Strategy and Timestamp are stamped by the executor.
type Signal struct {
	Symbol     string         `json:"symbol"`
	Action     Action         `json:"action"`
	Quantity   float64        `json:"quantity"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Strategy   string         `json:"strategy,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Bar is one OHLCV record.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// PriceSeries holds the latest price and the daily history, oldest first.
type PriceSeries struct {
	Last float64 `json:"last"`
	Bars []Bar   `json:"historical"`
}

func (p PriceSeries) Closes() []float64 {
	out := make([]float64, len(p.Bars))
	for i, b := range p.Bars {
		out[i] = b.Close
	}
	return out
}

// Snapshot is the market view handed to every agent in one execution cycle.
// It is shared between agents and must be treated as read-only.
type Snapshot struct {
	Prices    map[string]PriceSeries `json:"prices"`
	Positions map[string]float64     `json:"positions"`
	Timestamp time.Time              `json:"timestamp"`
}

// Position returns the held quantity for symbol, zero when absent.
func (s Snapshot) Position(symbol string) float64 {
	return s.Positions[symbol]
}

type Fill struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      Action    `json:"side"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Value is the notional of the fill.
func (f Fill) Value() float64 {
	return f.Quantity * f.Price
}

type RiskLimits struct {
	MaxPositionSize float64  `json:"max_position_size" yaml:"max_position_size"`
	MaxDailyLoss    float64  `json:"max_daily_loss" yaml:"max_daily_loss"`
	MaxLeverage     float64  `json:"max_leverage" yaml:"max_leverage"`
	AllowedSymbols  []string `json:"allowed_symbols" yaml:"allowed_symbols"`
}

// Allows reports whether symbol passes the allow-list. An empty list allows everything.
func (r RiskLimits) Allows(symbol string) bool {
	if len(r.AllowedSymbols) == 0 {
		return true
	}
	for _, s := range r.AllowedSymbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// OrderIntent is a signal queued for sizing and routing to the broker.
type OrderIntent struct {
	Signal Signal  `json:"signal"`
	Price  float64 `json:"price"`
	ATR    float64 `json:"atr"`
}

// Order is what the broker receives after sizing.
type Order struct {
	ID       string  `json:"id"`
	Symbol   string  `json:"symbol"`
	Side     Action  `json:"side"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Strategy string  `json:"strategy"`
}

// Trade is a single print from the live market stream.
type Trade struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}
