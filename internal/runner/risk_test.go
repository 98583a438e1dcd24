package runner

import (
	"context"
	"fmt"
	"testing"
	"trade_guard/internal/models"
	"trade_guard/internal/modules/orders/service/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleRiskAmount(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 100, SingleRiskAmount(1000, 10), 1e-9)
	assert.Zero(t, SingleRiskAmount(1000, 0))
	assert.Zero(t, SingleRiskAmount(1000, -3))
}

func TestAvailableRiskIsLinearInRealizedPnL(t *testing.T) {
	t.Parallel()

	for i, realized := range []float64{-250, -100, 0, 42.5, 300} {
		s := memory.New()
		s.SetAccount(models.AccountRisk{Account: "acc", Equity: 1000, Slots: 10})

		// реализованный PnL раскидан по двум закрытым позициям
		for j, part := range []float64{realized / 2, realized / 2} {
			p := longPosition(fmt.Sprintf("p%d-%d", i, j), "BTCUSDT", 100, 90, 1)
			p.Status = models.PositionClosed
			p.RealizedPnL = part
			s.SeedPosition(p)
		}
		// чужой символ не влияет
		other := longPosition(fmt.Sprintf("o%d", i), "ETHUSDT", 10, 9, 1)
		other.Status = models.PositionClosed
		other.RealizedPnL = 1e6
		s.SeedPosition(other)

		a := NewRiskAllocator(s)
		alloc, err := a.Allocation(context.Background(), "acc", "BTCUSDT")
		require.NoError(t, err)
		assert.InDelta(t, 100, alloc.SingleRiskAmount, 1e-9)
		assert.InDelta(t, realized, alloc.AccumulatedRealized, 1e-9)
		assert.InDelta(t, 100+realized, alloc.Available, 1e-9)
	}
}

func TestAvailableRiskUnknownAccount(t *testing.T) {
	t.Parallel()

	a := NewRiskAllocator(memory.New())
	_, err := a.Available(context.Background(), "nobody", "BTCUSDT")
	require.ErrorIs(t, err, models.ErrNotFound)
}
