package pg

import (
	"context"
	"trade_guard/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const (
	waitingForPositionSQL = `
	SELECT id, 'conditional', position_id FROM conditional_orders
	WHERE status = 'WAITING' AND position_id = $1
	UNION ALL
	SELECT id, 'stop', position_id FROM stop_orders
	WHERE status = 'WAITING' AND position_id = $1
	ORDER BY 1`

	orphanedOrdersSQL = `
	SELECT o.id, 'conditional', o.position_id FROM conditional_orders o
	JOIN positions p ON p.id = o.position_id
	WHERE o.status = 'WAITING' AND p.status = 'closed'
	UNION ALL
	SELECT s.id, 'stop', s.position_id FROM stop_orders s
	JOIN positions p ON p.id = s.position_id
	WHERE s.status = 'WAITING' AND p.status = 'closed'
	ORDER BY 1`

	cancelConditionalSQL = `UPDATE conditional_orders SET status = 'CANCELLED'
	WHERE id = $1 AND status = 'WAITING'`

	cancelStopSQL = `UPDATE stop_orders SET status = 'CANCELLED', updated_at = $2
	WHERE id = $1 AND status = 'WAITING'`
)

func scanPending(row pgx.Row) (models.PendingOrder, error) {
	var o models.PendingOrder
	err := row.Scan(&o.ID, &o.Kind, &o.PositionID)
	return o, err
}

func (s *Store) ListWaitingOrdersFor(ctx context.Context, positionID string) (res []models.PendingOrder, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.ListWaitingOrdersFor")
		}
	}()
	rows, err := s.db.Conn(ctx).Query(ctx, waitingForPositionSQL, positionID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPending)
}

func (s *Store) ListOrphanedOrders(ctx context.Context) (res []models.PendingOrder, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.ListOrphanedOrders")
		}
	}()
	rows, err := s.db.Conn(ctx).Query(ctx, orphanedOrdersSQL)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPending)
}

func (s *Store) CancelOrder(ctx context.Context, ref models.PendingOrder) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrapf(err, "pg.CancelOrder %s", ref.Kind)
		}
	}()
	q := s.db.Conn(ctx)
	switch ref.Kind {
	case models.PendingConditional:
		tag, err := q.Exec(ctx, cancelConditionalSQL, ref.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return guardMiss(ctx, q, "conditional_orders", ref.ID)
		}
	case models.PendingStop:
		tag, err := q.Exec(ctx, cancelStopSQL, ref.ID, s.now())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return guardMiss(ctx, q, "stop_orders", ref.ID)
		}
	default:
		return errors.Errorf("unknown order kind %q", ref.Kind)
	}
	return nil
}
