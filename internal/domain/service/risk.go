package service

import (
	"TradeBot/internal/domain/models"
)

// PositionSizer turns an order intent into a share quantity within the current limits.
type PositionSizer interface {
	Size(intent models.OrderIntent, limits models.RiskLimits, position float64) (float64, error)
}

// StopLevels computes protective exits around an entry price.
type StopLevels interface {
	StopLoss(entry float64, side models.Action) float64
	TakeProfit(entry float64, side models.Action) float64
}
