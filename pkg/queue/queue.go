// Package queue routes typed messages to jobs with retries.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotRunning     = errors.New("queue not running")
	ErrAlreadyRunning = errors.New("queue already running")
	ErrNoJob          = errors.New("no job registered")
)

type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// Stats is a point-in-time view of queue depth.
type Stats struct {
	Pending int64 `json:"pending"`
	Delayed int64 `json:"delayed"`
	Dead    int64 `json:"dead"`
}

type StatsReporter interface {
	Stats(ctx context.Context) (Stats, error)
}

// Mode selects which half of a shared queue a process runs.
type Mode int

const (
	ModeProducerConsumer Mode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

// ParseMode maps the config values both, producer and consumer to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "both":
		return ModeProducerConsumer, nil
	case "producer":
		return ModeProducerOnly, nil
	case "consumer":
		return ModeConsumerOnly, nil
	}
	return 0, fmt.Errorf("unknown queue mode %q", s)
}

func (m Mode) String() string {
	switch m {
	case ModeProducerOnly:
		return "producer"
	case ModeConsumerOnly:
		return "consumer"
	default:
		return "both"
	}
}

func (m Mode) Consumes() bool { return m != ModeProducerOnly }
func (m Mode) Produces() bool { return m != ModeConsumerOnly }

type QueueConfig struct {
	Workers    int
	QueueSize  int
	RetryLimit int
	RetryDelay time.Duration
	// PollInterval is how often delayed retries are promoted. Redis only.
	PollInterval time.Duration
}

func (c *QueueConfig) withDefaults() *QueueConfig {
	out := QueueConfig{}
	if c != nil {
		out = *c
	}
	if out.Workers <= 0 {
		out.Workers = 1
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 256
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = 10 * time.Second
	}
	if out.PollInterval <= 0 {
		out.PollInterval = time.Second
	}
	return &out
}

type Message struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Attempts  int         `json:"attempts"`
	Timestamp time.Time   `json:"timestamp"`
}

// ParsePayload converts a job payload into T. Payloads arrive either as the
// original value (in-process queues) or as decoded JSON (Redis).
func ParsePayload[T any](payload interface{}) (*T, error) {
	var result T

	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		if err := json.Unmarshal(p, &result); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &result, nil
	case []byte:
		if err := json.Unmarshal(p, &result); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &result, nil
	case map[string]interface{}, []interface{}:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &result, nil
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}
}
