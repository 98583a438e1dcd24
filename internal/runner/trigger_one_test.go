package runner

import (
	"context"
	"testing"
	"time"
	"trade_guard/internal/models"
	"trade_guard/internal/modules/orders/service/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTrigger(s *memory.Store, n Notifier) *TriggerEngine {
	e := NewTriggerEngine(s, NewRiskAllocator(s), n, time.Second)
	e.now = fixedNow
	return e
}

func breakOrder(id string, cond models.ConditionType, dir models.Direction, trigger, qty float64, stop *float64) *models.ConditionalOrder {
	return &models.ConditionalOrder{
		ID:            id,
		Account:       "acc",
		Symbol:        "BTCUSDT",
		Direction:     dir,
		Condition:     cond,
		TriggerPrice:  trigger,
		Quantity:      qty,
		Leverage:      5,
		StopLossPrice: stop,
		Status:        models.OrderWaiting,
		CreatedAt:     testNow.Add(-time.Minute),
	}
}

func evalStored(t *testing.T, e *TriggerEngine, s *memory.Store, id string, price float64) TriggerOutcome {
	t.Helper()
	o, ok := s.ConditionalOrder(id)
	require.True(t, ok)
	out, err := e.Evaluate(context.Background(), o, price)
	require.NoError(t, err)
	return out
}

func TestTriggerBreakUpFiresOnceAtThreshold(t *testing.T) {
	t.Parallel()

	s := memory.New()
	s.SetAccount(models.AccountRisk{Account: "acc", Equity: 10000, Slots: 10})
	s.AddConditionalOrder(breakOrder("o1", models.BreakUp, models.Long, 50, 2, ptr(48)))
	n := &recNotifier{}
	e := newTrigger(s, n)

	assert.Equal(t, TriggerWaiting, evalStored(t, e, s, "o1", 49.99))
	o, _ := s.ConditionalOrder("o1")
	assert.Equal(t, models.OrderWaiting, o.Status)

	assert.Equal(t, TriggerExecuted, evalStored(t, e, s, "o1", 50))

	o, _ = s.ConditionalOrder("o1")
	assert.Equal(t, models.OrderExecuted, o.Status)
	require.NotEmpty(t, o.ExecutionPositionID)
	require.NotNil(t, o.TriggeredAt)
	require.NotNil(t, o.ExecutedAt)

	p, ok := s.Position(o.ExecutionPositionID)
	require.True(t, ok)
	assert.Equal(t, "o1", p.SourceOrderID)
	assert.Equal(t, models.Long, p.Direction)
	assert.InDelta(t, 50, p.EntryPrice, 1e-9)
	assert.InDelta(t, 48, p.InitialStopPrice, 1e-9)
	assert.InDelta(t, 48, p.CurrentStopPrice, 1e-9)
	assert.InDelta(t, 2, p.Quantity, 1e-9)
	assert.Equal(t, 5, p.Leverage)
	assert.InDelta(t, 20, p.Margin, 1e-9)
	assert.Nil(t, p.HighestPrice)
	assert.True(t, p.IsOpen())

	stops := s.StopOrdersFor(p.ID)
	require.Len(t, stops, 1)
	assert.Equal(t, models.StopKindLoss, stops[0].Kind)
	assert.InDelta(t, 48, stops[0].TriggerPrice, 1e-9)

	// терминальный ордер больше не оценивается
	assert.Equal(t, TriggerSkipped, evalStored(t, e, s, "o1", 60))
	open, err := s.ListOpenPositions(context.Background())
	require.NoError(t, err)
	assert.Len(t, open, 1)
	assert.Len(t, n.messages(), 1)
}

func TestTriggerBreakDown(t *testing.T) {
	t.Parallel()

	s := memory.New()
	s.SetAccount(models.AccountRisk{Account: "acc", Equity: 10000, Slots: 10})
	s.AddConditionalOrder(breakOrder("o1", models.BreakDown, models.Short, 30, 1, ptr(33)))
	e := newTrigger(s, nil)

	assert.Equal(t, TriggerWaiting, evalStored(t, e, s, "o1", 30.01))
	assert.Equal(t, TriggerExecuted, evalStored(t, e, s, "o1", 29.5))

	o, _ := s.ConditionalOrder("o1")
	p, ok := s.Position(o.ExecutionPositionID)
	require.True(t, ok)
	assert.Equal(t, models.Short, p.Direction)
	assert.InDelta(t, 29.5, p.EntryPrice, 1e-9)
}

func TestTriggerFailsWithoutRiskCapital(t *testing.T) {
	t.Parallel()

	s := memory.New()
	s.SetAccount(models.AccountRisk{Account: "acc", Equity: 1000, Slots: 10})
	loser := longPosition("old", "BTCUSDT", 100, 90, 1)
	loser.Status = models.PositionClosed
	loser.RealizedPnL = -150
	s.SeedPosition(loser)
	s.AddConditionalOrder(breakOrder("o1", models.BreakUp, models.Long, 50, 1, ptr(45)))
	e := newTrigger(s, nil)

	assert.Equal(t, TriggerFailed, evalStored(t, e, s, "o1", 51))

	o, _ := s.ConditionalOrder("o1")
	assert.Equal(t, models.OrderFailed, o.Status)
	assert.Contains(t, o.ErrorMessage, ErrNoRiskCapital.Error())
	assert.Empty(t, o.ExecutionPositionID)

	open, _ := s.ListOpenPositions(context.Background())
	assert.Empty(t, open)
}

func TestTriggerCapsQuantityByRisk(t *testing.T) {
	t.Parallel()

	s := memory.New()
	// single risk = 100
	s.SetAccount(models.AccountRisk{Account: "acc", Equity: 1000, Slots: 10})
	s.AddConditionalOrder(breakOrder("big", models.BreakUp, models.Long, 50, 30, ptr(45)))
	e := newTrigger(s, nil)

	require.Equal(t, TriggerExecuted, evalStored(t, e, s, "big", 50))
	o, _ := s.ConditionalOrder("big")
	p, _ := s.Position(o.ExecutionPositionID)
	assert.InDelta(t, 20, p.Quantity, 1e-9)
}

func TestTriggerKeepsQuantityWithinRisk(t *testing.T) {
	t.Parallel()

	s := memory.New()
	s.SetAccount(models.AccountRisk{Account: "acc", Equity: 1000, Slots: 10})
	s.AddConditionalOrder(breakOrder("small", models.BreakUp, models.Long, 50, 3, ptr(45)))
	e := newTrigger(s, nil)

	require.Equal(t, TriggerExecuted, evalStored(t, e, s, "small", 50))
	o, _ := s.ConditionalOrder("small")
	p, _ := s.Position(o.ExecutionPositionID)
	assert.InDelta(t, 3, p.Quantity, 1e-9)
}

func TestTriggerRejectsStopOnWrongSide(t *testing.T) {
	t.Parallel()

	s := memory.New()
	s.SetAccount(models.AccountRisk{Account: "acc", Equity: 1000, Slots: 10})
	s.AddConditionalOrder(breakOrder("o1", models.BreakUp, models.Long, 50, 1, ptr(55)))
	e := newTrigger(s, nil)

	assert.Equal(t, TriggerFailed, evalStored(t, e, s, "o1", 50))
	o, _ := s.ConditionalOrder("o1")
	assert.Equal(t, models.OrderFailed, o.Status)
	assert.Contains(t, o.ErrorMessage, "stop-loss")
}

func TestTriggerFailsForUnknownAccount(t *testing.T) {
	t.Parallel()

	s := memory.New()
	s.AddConditionalOrder(breakOrder("o1", models.BreakUp, models.Long, 50, 1, nil))
	e := newTrigger(s, nil)

	assert.Equal(t, TriggerFailed, evalStored(t, e, s, "o1", 50))
	o, _ := s.ConditionalOrder("o1")
	assert.Contains(t, o.ErrorMessage, "risk allocation")
}

func TestTriggerSkipsOrderCancelledMeanwhile(t *testing.T) {
	t.Parallel()

	s := memory.New()
	s.SetAccount(models.AccountRisk{Account: "acc", Equity: 1000, Slots: 10})
	s.AddConditionalOrder(breakOrder("o1", models.BreakUp, models.Long, 50, 1, nil))
	e := newTrigger(s, nil)

	listed, _ := s.ConditionalOrder("o1")
	require.NoError(t, s.CancelOrder(context.Background(), models.PendingOrder{ID: "o1", Kind: models.PendingConditional}))

	out, err := e.Evaluate(context.Background(), listed, 55)
	require.NoError(t, err)
	assert.Equal(t, TriggerSkipped, out)

	o, _ := s.ConditionalOrder("o1")
	assert.Equal(t, models.OrderCancelled, o.Status)
	open, _ := s.ListOpenPositions(context.Background())
	assert.Empty(t, open)
}

func TestTriggerNewPositionJoinsOpenPushGroup(t *testing.T) {
	t.Parallel()

	s := memory.New()
	s.SetAccount(models.AccountRisk{Account: "acc", Equity: 10000, Slots: 10})
	groupID := s.SeedPosition(longPosition("p0", "BTCUSDT", 40, 38, 1))
	s.AddConditionalOrder(breakOrder("o1", models.BreakUp, models.Long, 50, 1, ptr(48)))
	e := newTrigger(s, nil)

	require.Equal(t, TriggerExecuted, evalStored(t, e, s, "o1", 50))

	n, err := s.CountOpenPositions(context.Background(), groupID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
