package models

import (
	"fmt"
	"time"
)

type ConditionType string

const (
	BreakUp   ConditionType = "BREAK_UP"
	BreakDown ConditionType = "BREAK_DOWN"
)

func (c ConditionType) Valid() bool { return c == BreakUp || c == BreakDown }

// Fires — сработало ли условие пробоя при цене price.
func (c ConditionType) Fires(price, trigger float64) bool {
	switch c {
	case BreakUp:
		return price >= trigger
	case BreakDown:
		return price <= trigger
	default:
		return false
	}
}

type OrderStatus string

const (
	OrderWaiting   OrderStatus = "WAITING"
	OrderTriggered OrderStatus = "TRIGGERED"
	OrderExecuted  OrderStatus = "EXECUTED"
	OrderFailed    OrderStatus = "FAILED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// validTransitions — полный список допустимых переходов, всё остальное запрещено.
var validTransitions = map[OrderStatus][]OrderStatus{
	OrderWaiting:   {OrderTriggered, OrderCancelled},
	OrderTriggered: {OrderExecuted, OrderFailed},
	OrderExecuted:  nil,
	OrderFailed:    nil,
	OrderCancelled: nil,
}

func (s OrderStatus) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderExecuted, OrderFailed, OrderCancelled:
		return true
	}
	return false
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to OrderStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition возвращает ErrIllegalTransition с контекстом.
func ValidateTransition(from, to OrderStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

type ConditionalOrder struct {
	ID            string
	Account       string
	Symbol        string
	Direction     Direction
	Condition     ConditionType
	TriggerPrice  float64
	Quantity      float64
	Leverage      int
	StopLossPrice *float64
	Status        OrderStatus
	CreatedAt     time.Time
	TriggeredAt   *time.Time
	ExecutedAt    *time.Time
	// ExecutionPositionID — позиция, открытая по этому ордеру
	ExecutionPositionID string
	ErrorMessage        string
	// PositionID — родительская позиция для ордеров-доливок, пусто для обычных
	PositionID string
}

// Transition двигает статус с проверкой таблицы переходов.
func (o *ConditionalOrder) Transition(to OrderStatus, at time.Time) error {
	if err := ValidateTransition(o.Status, to); err != nil {
		return err
	}
	o.Status = to
	switch to {
	case OrderTriggered:
		o.TriggeredAt = &at
	case OrderExecuted:
		o.ExecutedAt = &at
	}
	return nil
}

func (o *ConditionalOrder) Clone() *ConditionalOrder {
	c := *o
	if o.StopLossPrice != nil {
		v := *o.StopLossPrice
		c.StopLossPrice = &v
	}
	if o.TriggeredAt != nil {
		v := *o.TriggeredAt
		c.TriggeredAt = &v
	}
	if o.ExecutedAt != nil {
		v := *o.ExecutedAt
		c.ExecutedAt = &v
	}
	return &c
}
