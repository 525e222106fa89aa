package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"TradeBot/internal/domain/models"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Agent is the contract every strategy implementation satisfies.
// A "no signal" result is an empty slice with a nil error.
type Agent interface {
	Name() string
	IsActive() bool
	GenerateSignals(ctx context.Context, snap models.Snapshot) ([]models.Signal, error)
	OnFill(ctx context.Context, fill models.Fill) error
	OnLimitUpdate(ctx context.Context, limits models.RiskLimits) error
	GetStatus() map[string]any
	// Shutdown must be safe to call more than once.
	Shutdown(ctx context.Context) error
}

// Factory constructs an agent from its run name and raw config params.
type Factory func(name string, params map[string]any) (Agent, error)

var (
	// ErrParamsMismatch means the params do not fit the constructor (unknown key or wrong type).
	ErrParamsMismatch = errors.New("params do not match constructor")
	ErrInvalidParams  = errors.New("invalid params")
)

// Base carries the state shared by all agents: name, active flag and the latest risk limits.
type Base struct {
	name string

	mu     sync.RWMutex
	active bool
	limits models.RiskLimits

	once sync.Once
}

func NewBase(name string) *Base {
	return &Base{name: name, active: true}
}

func (b *Base) Name() string { return b.name }

func (b *Base) IsActive() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

func (b *Base) RiskLimits() models.RiskLimits {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.limits
}

func (b *Base) SetRiskLimits(limits models.RiskLimits) {
	b.mu.Lock()
	b.limits = limits
	b.mu.Unlock()
}

func (b *Base) OnFill(context.Context, models.Fill) error { return nil }

func (b *Base) OnLimitUpdate(_ context.Context, limits models.RiskLimits) error {
	b.SetRiskLimits(limits)
	return nil
}

func (b *Base) GetStatus() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return map[string]any{
		"name":        b.name,
		"is_active":   b.active,
		"risk_limits": b.limits,
	}
}

// Shutdown marks the agent inactive. Only the first call has an effect.
func (b *Base) Shutdown(context.Context) error {
	b.once.Do(func() {
		b.mu.Lock()
		b.active = false
		b.mu.Unlock()
	})
	return nil
}

var validate = validator.New()

// DecodeParams copies raw params into dst, applies `default` tags and runs `validate` tags.
// Unknown keys and type mismatches are reported as ErrParamsMismatch.
func DecodeParams(params map[string]any, dst any) error {
	if len(params) > 0 {
		raw, err := yaml.Marshal(params)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrParamsMismatch, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(dst); err != nil {
			return fmt.Errorf("%w: %v", ErrParamsMismatch, err)
		}
	}
	if err := defaults.Set(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrParamsMismatch, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}
