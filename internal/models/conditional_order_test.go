package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	all := []OrderStatus{OrderWaiting, OrderTriggered, OrderExecuted, OrderFailed, OrderCancelled}
	allowed := map[[2]OrderStatus]bool{
		{OrderWaiting, OrderTriggered}:  true,
		{OrderWaiting, OrderCancelled}:  true,
		{OrderTriggered, OrderExecuted}: true,
		{OrderTriggered, OrderFailed}:   true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]OrderStatus{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatesNeverReentered(t *testing.T) {
	t.Parallel()

	for _, s := range []OrderStatus{OrderExecuted, OrderFailed, OrderCancelled} {
		assert.True(t, s.Terminal())
		o := &ConditionalOrder{Status: s}
		err := o.Transition(OrderWaiting, time.Now())
		assert.True(t, errors.Is(err, ErrIllegalTransition))
		assert.Equal(t, s, o.Status)
	}
}

func TestTransitionStampsTimes(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	o := &ConditionalOrder{Status: OrderWaiting}

	require.NoError(t, o.Transition(OrderTriggered, now))
	require.NotNil(t, o.TriggeredAt)
	assert.Equal(t, now, *o.TriggeredAt)

	require.NoError(t, o.Transition(OrderExecuted, now.Add(time.Second)))
	require.NotNil(t, o.ExecutedAt)
	assert.Equal(t, OrderExecuted, o.Status)
}

func TestConditionFires(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cond    ConditionType
		price   float64
		trigger float64
		want    bool
	}{
		{"break up below", BreakUp, 49.99, 50, false},
		{"break up equal", BreakUp, 50, 50, true},
		{"break up above", BreakUp, 51, 50, true},
		{"break down above", BreakDown, 50.01, 50, false},
		{"break down equal", BreakDown, 50, 50, true},
		{"break down below", BreakDown, 49, 50, true},
		{"unknown", ConditionType("SIDEWAYS"), 50, 50, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.cond.Fires(tt.price, tt.trigger))
		})
	}
}

func TestPositionPnLAt(t *testing.T) {
	t.Parallel()

	long := &Position{Direction: Long, EntryPrice: 100, Quantity: 2, ContractMultiplier: 10}
	assert.InDelta(t, 200.0, long.PnLAt(110), 1e-9)

	short := &Position{Direction: Short, EntryPrice: 100, Quantity: 2}
	assert.InDelta(t, 20.0, short.PnLAt(90), 1e-9)
	assert.InDelta(t, -20.0, short.PnLAt(110), 1e-9)
}

func TestPositionCloneIsDeep(t *testing.T) {
	t.Parallel()

	hp := 101.0
	p := &Position{ID: "p1", HighestPrice: &hp}
	c := p.Clone()
	*c.HighestPrice = 200

	assert.InDelta(t, 101.0, *p.HighestPrice, 1e-9)
}
