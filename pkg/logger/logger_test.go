package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	require.Error(t, err)
}

func TestWriterLogger_EmitsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf)

	l.Info("agent run", String("agent", "sma"), Int("signals", 2), Float64("confidence", 0.75), Error(errors.New("boom")))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "agent run", line["message"])
	assert.Equal(t, "sma", line["agent"])
	assert.EqualValues(t, 2, line["signals"])
	assert.Equal(t, 0.75, line["confidence"])
	assert.Equal(t, "boom", line["error"])
}

func TestWith_StampsChildFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf).With(String("component", "ledger"))

	l.Warn("overdue")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ledger", line["component"])
	assert.Equal(t, "warn", line["level"])
}

func TestCollector_AggregatesDuplicatesAndFlushesOnClose(t *testing.T) {
	pub := &capturePublisher{}
	l := NewNop()
	l.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "tradebot.logs",
		Publisher:      pub,
	})

	for i := 0; i < 3; i++ {
		l.Error("sink write failed", String("sink", "postgres"))
	}
	l.Warn("not collected by default")
	l.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "tradebot.logs", pub.topic)
	require.Len(t, pub.batches[0], 1)
	assert.Equal(t, 3, pub.batches[0][0].Count)
	assert.Equal(t, "error", pub.batches[0][0].Level)
}

func TestCollector_ThresholdFlush(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 2,
		Levels:         []string{"warn"},
		Publisher:      pub,
	})
	c.AddLog("warn", "a", nil, "x.go:1")
	c.AddLog("warn", "b", nil, "x.go:2")
	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Len(t, pub.batches[0], 2)
}
