package runner

import (
	"context"
	"time"
	"trade_guard/internal/models"
)

// PriceFeed — источник последней цены по символу.
type PriceFeed interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// Notifier — fire-and-forget уведомления пользователю.
type Notifier interface {
	Sendf(format string, args ...any)
}

// Heartbeat получает отметки о завершённых циклах (health-модуль).
type Heartbeat interface {
	TouchCycle(loop string, at time.Time)
}

type PositionStore interface {
	ListOpenPositions(ctx context.Context) ([]*models.Position, error)
	UpdatePosition(ctx context.Context, p *models.Position) error
	// ClosePosition пишет поля закрытия; ErrStaleStatus если позиция уже закрыта.
	ClosePosition(ctx context.Context, p *models.Position) error
	// OpenPosition атомарно: позиция + push group (новая или текущая открытая) + стоп-ордер.
	OpenPosition(ctx context.Context, p *models.Position, stop *models.StopOrder) (groupID string, err error)
}

type ConditionalOrderStore interface {
	ListWaitingConditionalOrders(ctx context.Context) ([]*models.ConditionalOrder, error)
	// UpdateConditionalOrderStatus меняет статус только если текущий равен from.
	UpdateConditionalOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) error
	MarkExecuted(ctx context.Context, id, positionID string) error
	MarkFailed(ctx context.Context, id, errText string) error
}

type OrderCascadeStore interface {
	ListWaitingOrdersFor(ctx context.Context, positionID string) ([]models.PendingOrder, error)
	CancelOrder(ctx context.Context, ref models.PendingOrder) error
}

type PushGroupStore interface {
	GetOpenPushGroup(ctx context.Context, account, symbol string) (*models.PushGroup, error)
	PushGroupsForPosition(ctx context.Context, positionID string) ([]*models.PushGroup, error)
	CountOpenPositions(ctx context.Context, groupID string) (int, error)
	// ClosePushGroup идемпотентен: true только у вызова, который реально закрыл группу.
	ClosePushGroup(ctx context.Context, id string, closedAt time.Time) (bool, error)
}

type RiskStore interface {
	GetAccountRisk(ctx context.Context, account string) (models.AccountRisk, error)
	SumRealizedPnL(ctx context.Context, account, symbol string) (float64, error)
}

type ReconcileStore interface {
	ListOrphanedOrders(ctx context.Context) ([]models.PendingOrder, error)
	ListExhaustedPushGroups(ctx context.Context) ([]*models.PushGroup, error)
	ListTriggeredOrders(ctx context.Context, olderThan time.Time) ([]*models.ConditionalOrder, error)
	FindPositionBySource(ctx context.Context, orderID string) (*models.Position, error)
}

type Store interface {
	PositionStore
	ConditionalOrderStore
	OrderCascadeStore
	PushGroupStore
	RiskStore
	ReconcileStore
}
