package memory

import (
	"context"
	"testing"
	"time"
	"trade_guard/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openPosition(id, symbol string) *models.Position {
	return &models.Position{
		ID: id, Account: "acc", Symbol: symbol, Direction: models.Long,
		Quantity: 1, EntryPrice: 100, InitialStopPrice: 95, CurrentStopPrice: 95,
		Status: models.PositionOpen,
	}
}

func TestReturnsCopies(t *testing.T) {
	t.Parallel()

	s := New()
	s.SeedPosition(openPosition("p1", "X"))

	list, err := s.ListOpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	list[0].CurrentStopPrice = 1

	p, _ := s.Position("p1")
	assert.InDelta(t, 95, p.CurrentStopPrice, 1e-9)
}

func TestClosePositionGuardsStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	s.SeedPosition(openPosition("p1", "X"))

	p, _ := s.Position("p1")
	require.NoError(t, s.ClosePosition(ctx, p))
	require.ErrorIs(t, s.ClosePosition(ctx, p), models.ErrStaleStatus)
	require.ErrorIs(t, s.UpdatePosition(ctx, p), models.ErrStaleStatus)
	require.ErrorIs(t, s.ClosePosition(ctx, openPosition("nope", "X")), models.ErrNotFound)
}

func TestConditionalStatusGuards(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	s.AddConditionalOrder(&models.ConditionalOrder{ID: "o1", Symbol: "X", Condition: models.BreakUp})

	require.ErrorIs(t, s.MarkExecuted(ctx, "o1", "p1"), models.ErrStaleStatus)
	require.ErrorIs(t, s.UpdateConditionalOrderStatus(ctx, "o1", models.OrderWaiting, models.OrderExecuted), models.ErrIllegalTransition)

	require.NoError(t, s.UpdateConditionalOrderStatus(ctx, "o1", models.OrderWaiting, models.OrderTriggered))
	require.ErrorIs(t, s.UpdateConditionalOrderStatus(ctx, "o1", models.OrderWaiting, models.OrderTriggered), models.ErrStaleStatus)

	require.NoError(t, s.MarkFailed(ctx, "o1", "no luck"))
	require.ErrorIs(t, s.MarkExecuted(ctx, "o1", "p1"), models.ErrStaleStatus)

	o, _ := s.ConditionalOrder("o1")
	assert.Equal(t, models.OrderFailed, o.Status)
	assert.Equal(t, "no luck", o.ErrorMessage)
}

func TestOpenPositionJoinsOpenGroup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	first, err := s.OpenPosition(ctx, openPosition("p1", "X"), nil)
	require.NoError(t, err)
	second, err := s.OpenPosition(ctx, openPosition("p2", "X"), &models.StopOrder{ID: "sl", PositionID: "p2", Status: models.StopWaiting})
	require.NoError(t, err)
	other, err := s.OpenPosition(ctx, openPosition("p3", "Y"), nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)

	n, err := s.CountOpenPositions(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	g, err := s.GetOpenPushGroup(ctx, "acc", "X")
	require.NoError(t, err)
	assert.Equal(t, first, g.ID)

	pending, err := s.ListWaitingOrdersFor(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, []models.PendingOrder{{ID: "sl", Kind: models.PendingStop, PositionID: "p2"}}, pending)

	_, err = s.OpenPosition(ctx, openPosition("p1", "X"), nil)
	assert.Error(t, err)
}

func TestClosePushGroupIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	id := s.SeedPosition(openPosition("p1", "X"))
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	closed, err := s.ClosePushGroup(ctx, id, at)
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = s.ClosePushGroup(ctx, id, at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, closed)

	g, _ := s.PushGroup(id)
	assert.Equal(t, at, *g.ClosedAt)

	_, err = s.GetOpenPushGroup(ctx, "acc", "X")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().ListOpenPositions(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
