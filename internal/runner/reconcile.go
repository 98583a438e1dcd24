package runner

import (
	"context"
	"errors"
	"fmt"
	"time"
	"trade_guard/internal/models"
	"trade_guard/pkg/logger"
	"trade_guard/pkg/tracing"
)

const interruptedAfterTrigger = "interrupted after trigger"

// Reconciler подчищает то, что мог оставить каскад без транзакции:
//   - ожидающие ордера, ссылающиеся на закрытые позиции, отменяются;
//   - открытые push group без открытых позиций закрываются;
//   - зависшие TRIGGERED доводятся до EXECUTED (позиция есть) или FAILED.
type Reconciler struct {
	store        Store
	storeTimeout time.Duration
	stuckAge     time.Duration
	now          func() time.Time
}

func NewReconciler(store Store, storeTimeout, stuckAge time.Duration) *Reconciler {
	return &Reconciler{
		store:        store,
		storeTimeout: storeTimeout,
		stuckAge:     stuckAge,
		now:          time.Now,
	}
}

type ReconcileReport struct {
	CancelledOrders int
	ClosedGroups    int
	SettledExecuted int
	SettledFailed   int
	Errors          int
}

func (r ReconcileReport) Changed() bool {
	return r.CancelledOrders+r.ClosedGroups+r.SettledExecuted+r.SettledFailed > 0
}

// Sweep — один проход сверки. Ошибка списка прерывает проход, ошибка по элементу — нет.
func (rc *Reconciler) Sweep(ctx context.Context) (ReconcileReport, error) {
	var rep ReconcileReport
	span, ctx := tracing.StartSpan(ctx, "runner.reconcile")
	defer span.Finish()

	wctx, cancel := writeCtx(ctx, rc.storeTimeout)
	defer cancel()

	orphans, err := rc.store.ListOrphanedOrders(wctx)
	if err != nil {
		return rep, fmt.Errorf("list orphaned orders: %w", err)
	}
	for _, ref := range orphans {
		if err := rc.store.CancelOrder(wctx, ref); err != nil {
			rep.Errors++
			logger.Error("[RECONCILE] cancel %s order %s: %v", ref.Kind, ref.ID, err)
			continue
		}
		rep.CancelledOrders++
		reconcileActions.WithLabelValues("cancel_orphan").Inc()
	}

	groups, err := rc.store.ListExhaustedPushGroups(wctx)
	if err != nil {
		return rep, fmt.Errorf("list exhausted push groups: %w", err)
	}
	now := rc.now()
	for _, g := range groups {
		closed, err := closeIfExhausted(wctx, rc.store, g, now)
		if err != nil {
			rep.Errors++
			logger.Error("[RECONCILE] close push group %s: %v", g.ID, err)
			continue
		}
		if closed {
			rep.ClosedGroups++
			reconcileActions.WithLabelValues("close_group").Inc()
		}
	}

	stuck, err := rc.store.ListTriggeredOrders(wctx, now.Add(-rc.stuckAge))
	if err != nil {
		return rep, fmt.Errorf("list triggered orders: %w", err)
	}
	for _, o := range stuck {
		if err := rc.settle(wctx, o, &rep); err != nil {
			rep.Errors++
			logger.Error("[RECONCILE] settle %s: %v", o.ID, err)
		}
	}

	span.SetTag("cancelled", rep.CancelledOrders)
	span.SetTag("closed_groups", rep.ClosedGroups)
	if rep.Changed() {
		logger.Info("[RECONCILE] cancelled=%d groups=%d executed=%d failed=%d errors=%d",
			rep.CancelledOrders, rep.ClosedGroups, rep.SettledExecuted, rep.SettledFailed, rep.Errors)
	}
	return rep, nil
}

func (rc *Reconciler) settle(ctx context.Context, o *models.ConditionalOrder, rep *ReconcileReport) error {
	pos, err := rc.store.FindPositionBySource(ctx, o.ID)
	switch {
	case err == nil:
		if err := rc.store.MarkExecuted(ctx, o.ID, pos.ID); err != nil {
			return err
		}
		rep.SettledExecuted++
		reconcileActions.WithLabelValues("settle_executed").Inc()
		return nil
	case errors.Is(err, models.ErrNotFound):
		if err := rc.store.MarkFailed(ctx, o.ID, interruptedAfterTrigger); err != nil {
			return err
		}
		rep.SettledFailed++
		reconcileActions.WithLabelValues("settle_failed").Inc()
		return nil
	default:
		return err
	}
}
