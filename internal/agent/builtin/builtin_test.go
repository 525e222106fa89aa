package builtin

import (
	"context"
	"testing"

	"TradeBot/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_SamplePathsResolve(t *testing.T) {
	r := registry.New()
	Register(r, nil)

	for _, p := range []string{
		"tradebot.agents.sma_agent:SMAAgent",
		"tradebot.agents.technicals:TechnicalAgent",
		"tradebot.agents.external_strategy:ExternalAgent",
	} {
		res, err := r.Resolve(context.Background(), p)
		require.NoError(t, err, p)
		assert.NotNil(t, res.Factory)
	}
}

func TestRegister_ConstantIsNotAClass(t *testing.T) {
	r := registry.New()
	Register(r, nil)

	_, err := r.Resolve(context.Background(), "tradebot.agents.sma_agent:DefaultFast")
	assert.ErrorIs(t, err, registry.ErrNotAClass)
}

func TestSMAFactory_BuildsNamedAgent(t *testing.T) {
	r := registry.New()
	Register(r, nil)

	res, err := r.Resolve(context.Background(), "tradebot.agents.sma_agent:SMAAgent")
	require.NoError(t, err)
	a, err := res.Factory("SMA_Cross", map[string]any{"fast_period": 10, "slow_period": 20})
	require.NoError(t, err)
	assert.Equal(t, "SMA_Cross", a.Name())
	assert.True(t, a.IsActive())
}
