package runner

import (
	"context"
	"errors"
	"fmt"
	"time"
	"trade_guard/internal/models"
	"trade_guard/pkg/logger"
)

// closePosition закрывает позицию по стопу и запускает каскад.
// Каскад best-effort: закрытие не откатывается, хвосты подчищает сверка.
// false — позицию уже закрыл кто-то другой, этот вызов ничего не менял.
func (e *TrailEngine) closePosition(ctx context.Context, p *models.Position, price float64) (bool, error) {
	now := e.now()
	closePx := price

	p.Status = models.PositionClosed
	p.ClosePrice = &closePx
	p.ClosedAt = &now
	p.CloseType = models.CloseStopLoss
	p.FloatingPnL = p.PnLAt(price)
	p.RealizedPnL = p.FloatingPnL

	wctx, cancel := writeCtx(ctx, e.storeTimeout)
	err := e.store.ClosePosition(wctx, p)
	cancel()
	if errors.Is(err, models.ErrStaleStatus) {
		logger.Info("[STOP] %s already closed elsewhere", p.ID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("close position %s: %w", p.ID, err)
	}
	positionsClosed.WithLabelValues(string(models.CloseStopLoss)).Inc()

	logger.Info("[STOP] %s %s %s closed @ %.6f stop=%.6f pnl=%.4f",
		p.Account, p.Symbol, p.Direction, price, p.CurrentStopPrice, p.RealizedPnL)

	e.cascade(ctx, p, now)

	if e.notifier != nil {
		e.notifier.Sendf("🛑 [%s] Стоп-лосс (%s) @ %.6f | стоп=%.6f | PnL=%.4f",
			p.Symbol, p.Direction, price, p.CurrentStopPrice, p.RealizedPnL)
	}
	return true, nil
}

// cascade отменяет ожидающие ордера позиции и закрывает опустевшие push group.
// У каждого обращения к стору свой таймаут.
func (e *TrailEngine) cascade(ctx context.Context, p *models.Position, now time.Time) {
	var pending []models.PendingOrder
	err := e.step(ctx, func(sctx context.Context) (err error) {
		pending, err = e.store.ListWaitingOrdersFor(sctx, p.ID)
		return err
	})
	if err != nil {
		cascadeFailures.WithLabelValues("list_orders").Inc()
		logger.Error("[STOP] %s: list waiting orders: %v", p.ID, err)
	}
	for _, ref := range pending {
		err := e.step(ctx, func(sctx context.Context) error {
			return e.store.CancelOrder(sctx, ref)
		})
		if err != nil {
			cascadeFailures.WithLabelValues("cancel_order").Inc()
			logger.Error("[STOP] %s: cancel %s order %s: %v", p.ID, ref.Kind, ref.ID, err)
		}
	}

	var groups []*models.PushGroup
	err = e.step(ctx, func(sctx context.Context) (err error) {
		groups, err = e.store.PushGroupsForPosition(sctx, p.ID)
		return err
	})
	if err != nil {
		cascadeFailures.WithLabelValues("list_groups").Inc()
		logger.Error("[STOP] %s: list push groups: %v", p.ID, err)
		return
	}
	for _, g := range groups {
		err := e.step(ctx, func(sctx context.Context) error {
			_, err := closeIfExhausted(sctx, e.store, g, now)
			return err
		})
		if err != nil {
			cascadeFailures.WithLabelValues("close_group").Inc()
			logger.Error("[STOP] %s: close push group %s: %v", p.ID, g.ID, err)
		}
	}
}

// step — один шаг каскада на отдельном writeCtx.
func (e *TrailEngine) step(ctx context.Context, fn func(context.Context) error) error {
	sctx, cancel := writeCtx(ctx, e.storeTimeout)
	defer cancel()
	return fn(sctx)
}

// closeIfExhausted закрывает группу, если в ней не осталось открытых позиций.
// Повторные вызовы безопасны: закрывает ровно один.
func closeIfExhausted(ctx context.Context, store PushGroupStore, g *models.PushGroup, now time.Time) (bool, error) {
	if g.Status != models.PushGroupOpen {
		return false, nil
	}
	n, err := store.CountOpenPositions(ctx, g.ID)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	closed, err := store.ClosePushGroup(ctx, g.ID, now)
	if err != nil {
		return false, err
	}
	if closed {
		pushGroupsClosed.Inc()
		logger.Info("[GROUP] %s %s/%s closed", g.ID, g.Account, g.Symbol)
	}
	return closed, nil
}
