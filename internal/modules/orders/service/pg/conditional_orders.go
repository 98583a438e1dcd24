package pg

import (
	"context"
	"time"
	"trade_guard/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const conditionalColumns = `id, account, symbol, direction, condition_type, trigger_price,
	quantity, leverage, stop_loss_price, status, created_at, triggered_at, executed_at,
	execution_position_id, error_message, position_id`

const (
	listWaitingConditionalSQL = `SELECT ` + conditionalColumns + `
	FROM conditional_orders WHERE status = 'WAITING' ORDER BY id`

	updateConditionalStatusSQL = `UPDATE conditional_orders SET
		status = $3,
		triggered_at = CASE WHEN $3 = 'TRIGGERED' THEN $4 ELSE triggered_at END
	WHERE id = $1 AND status = $2`

	markExecutedSQL = `UPDATE conditional_orders SET
		status = 'EXECUTED', execution_position_id = $2, executed_at = $3
	WHERE id = $1 AND status = 'TRIGGERED'`

	markFailedSQL = `UPDATE conditional_orders SET
		status = 'FAILED', error_message = $2
	WHERE id = $1 AND status = 'TRIGGERED'`

	listTriggeredSQL = `SELECT ` + conditionalColumns + `
	FROM conditional_orders
	WHERE status = 'TRIGGERED' AND (triggered_at IS NULL OR triggered_at <= $1)
	ORDER BY id`
)

func scanConditional(row pgx.Row) (*models.ConditionalOrder, error) {
	var o models.ConditionalOrder
	err := row.Scan(
		&o.ID, &o.Account, &o.Symbol, &o.Direction, &o.Condition, &o.TriggerPrice,
		&o.Quantity, &o.Leverage, &o.StopLossPrice, &o.Status, &o.CreatedAt, &o.TriggeredAt, &o.ExecutedAt,
		&o.ExecutionPositionID, &o.ErrorMessage, &o.PositionID,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) ListWaitingConditionalOrders(ctx context.Context) (res []*models.ConditionalOrder, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.ListWaitingConditionalOrders")
		}
	}()
	rows, err := s.db.Conn(ctx).Query(ctx, listWaitingConditionalSQL)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanConditional)
}

func (s *Store) UpdateConditionalOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.UpdateConditionalOrderStatus")
		}
	}()
	if err = models.ValidateTransition(from, to); err != nil {
		return err
	}
	return s.guardedExec(ctx, id, updateConditionalStatusSQL, id, string(from), string(to), s.now())
}

func (s *Store) MarkExecuted(ctx context.Context, id, positionID string) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.MarkExecuted")
		}
	}()
	return s.guardedExec(ctx, id, markExecutedSQL, id, positionID, s.now())
}

func (s *Store) MarkFailed(ctx context.Context, id, errText string) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.MarkFailed")
		}
	}()
	return s.guardedExec(ctx, id, markFailedSQL, id, errText)
}

func (s *Store) guardedExec(ctx context.Context, id, query string, args ...any) error {
	q := s.db.Conn(ctx)
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return guardMiss(ctx, q, "conditional_orders", id)
	}
	return nil
}

func (s *Store) ListTriggeredOrders(ctx context.Context, olderThan time.Time) (res []*models.ConditionalOrder, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.ListTriggeredOrders")
		}
	}()
	rows, err := s.db.Conn(ctx).Query(ctx, listTriggeredSQL, olderThan)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanConditional)
}
