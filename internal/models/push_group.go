package models

import "time"

type PushGroupStatus string

const (
	PushGroupOpen   PushGroupStatus = "open"
	PushGroupClosed PushGroupStatus = "closed"
)

// PushGroup — когорта позиций одного аккаунта по одному символу.
type PushGroup struct {
	ID        string
	Account   string
	Symbol    string
	Status    PushGroupStatus
	CreatedAt time.Time
	ClosedAt  *time.Time
}
