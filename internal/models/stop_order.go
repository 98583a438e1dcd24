package models

import "time"

type StopKind string

const (
	StopKindLoss   StopKind = "stop_loss"
	StopKindProfit StopKind = "take_profit"
)

type StopOrderStatus string

const (
	StopWaiting   StopOrderStatus = "WAITING"
	StopCancelled StopOrderStatus = "CANCELLED"
	StopFilled    StopOrderStatus = "FILLED"
)

// StopOrder — учётный стоп/тейк, привязанный к позиции. На биржу не уходит.
type StopOrder struct {
	ID           string
	PositionID   string
	Account      string
	Symbol       string
	Kind         StopKind
	TriggerPrice float64
	Quantity     float64
	Status       StopOrderStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type PendingKind string

const (
	PendingConditional PendingKind = "conditional"
	PendingStop        PendingKind = "stop"
)

// PendingOrder — ссылка на ожидающий ордер любого вида (для каскадной отмены).
type PendingOrder struct {
	ID         string
	Kind       PendingKind
	PositionID string
}
