package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"TradeBot/internal/domain/models"
	drepo "TradeBot/internal/domain/repository"
	pkgkafka "TradeBot/pkg/kafka"
	"TradeBot/pkg/metrics"
)

// FillNotifier fans fills out to loaded agents.
type FillNotifier interface {
	NotifyFills(ctx context.Context, fills []models.Fill)
}

// FillsHandler consumes broker fills from Kafka and forwards them to the agents.
// A message may carry one fill object or an array of fills.
type FillsHandler struct {
	topic   string
	agents  FillNotifier
	metrics drepo.Metrics
}

func NewFillsHandler(topic string, agents FillNotifier, m drepo.Metrics) *FillsHandler {
	if m == nil {
		m = metrics.Nop{}
	}
	return &FillsHandler{topic: topic, agents: agents, metrics: m}
}

func (h *FillsHandler) Topic() string { return h.topic }

func (h *FillsHandler) Handle(ctx context.Context, b []byte) error {
	fills, err := decodeFills(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if len(fills) == 0 {
		return nil
	}
	start := time.Now()
	h.agents.NotifyFills(ctx, fills)
	h.metrics.RecordLatency("fills_dispatch_seconds", time.Since(start).Seconds())
	for _, f := range fills {
		if !f.Timestamp.IsZero() {
			h.metrics.RecordLatency("fill_e2e_seconds", time.Since(f.Timestamp).Seconds())
		}
	}
	return nil
}

func decodeFills(b []byte) ([]models.Fill, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var fills []models.Fill
		if err := json.Unmarshal(b, &fills); err != nil {
			return nil, fmt.Errorf("decode fills: %w", err)
		}
		return fills, nil
	}
	var f models.Fill
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode fill: %w", err)
	}
	return []models.Fill{f}, nil
}

var _ pkgkafka.MessageHandler = (*FillsHandler)(nil)
