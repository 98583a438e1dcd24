package pg

import (
	"context"
	"trade_guard/internal/models"
	"trade_guard/pkg/id"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const positionColumns = `id, account, symbol, direction, quantity, contract_multiplier,
	entry_price, initial_stop_price, current_stop_price, highest_price, leverage,
	margin, total_value, status, close_price, closed_at, close_type, realized_pnl,
	floating_pnl, last_price, source_order_id, opened_at, updated_at`

const (
	listOpenPositionsSQL = `SELECT ` + positionColumns + ` FROM positions WHERE status = 'open' ORDER BY id`

	updatePositionSQL = `UPDATE positions SET
		current_stop_price = $2, highest_price = $3, floating_pnl = $4,
		last_price = $5, updated_at = $6
	WHERE id = $1 AND status = 'open'`

	closePositionSQL = `UPDATE positions SET
		status = 'closed', current_stop_price = $2, highest_price = $3,
		close_price = $4, closed_at = $5, close_type = $6, realized_pnl = $7,
		floating_pnl = $8, last_price = $9, updated_at = $10
	WHERE id = $1 AND status = 'open'`

	insertPositionSQL = `INSERT INTO positions (` + positionColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`

	// уникальный частичный индекс держит не больше одной открытой группы на (account, symbol)
	ensureOpenGroupSQL = `INSERT INTO push_groups (id, account, symbol, status, created_at)
	VALUES ($1, $2, $3, 'open', $4)
	ON CONFLICT (account, symbol) WHERE status = 'open' DO NOTHING`

	openGroupIDSQL = `SELECT id FROM push_groups WHERE account = $1 AND symbol = $2 AND status = 'open'`

	attachPositionSQL = `INSERT INTO push_group_positions (group_id, position_id) VALUES ($1, $2)`

	insertStopOrderSQL = `INSERT INTO stop_orders
		(id, position_id, account, symbol, kind, trigger_price, quantity, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	positionBySourceSQL = `SELECT ` + positionColumns + ` FROM positions WHERE source_order_id = $1 ORDER BY opened_at LIMIT 1`
)

func scanPosition(row pgx.Row) (*models.Position, error) {
	var p models.Position
	err := row.Scan(
		&p.ID, &p.Account, &p.Symbol, &p.Direction, &p.Quantity, &p.ContractMultiplier,
		&p.EntryPrice, &p.InitialStopPrice, &p.CurrentStopPrice, &p.HighestPrice, &p.Leverage,
		&p.Margin, &p.TotalValue, &p.Status, &p.ClosePrice, &p.ClosedAt, &p.CloseType, &p.RealizedPnL,
		&p.FloatingPnL, &p.LastPrice, &p.SourceOrderID, &p.OpenedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListOpenPositions(ctx context.Context) (res []*models.Position, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.ListOpenPositions")
		}
	}()
	rows, err := s.db.Conn(ctx).Query(ctx, listOpenPositionsSQL)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPosition)
}

func (s *Store) UpdatePosition(ctx context.Context, p *models.Position) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.UpdatePosition")
		}
	}()
	q := s.db.Conn(ctx)
	tag, err := q.Exec(ctx, updatePositionSQL,
		p.ID, p.CurrentStopPrice, p.HighestPrice, p.FloatingPnL, p.LastPrice, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return guardMiss(ctx, q, "positions", p.ID)
	}
	return nil
}

func (s *Store) ClosePosition(ctx context.Context, p *models.Position) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.ClosePosition")
		}
	}()
	q := s.db.Conn(ctx)
	tag, err := q.Exec(ctx, closePositionSQL,
		p.ID, p.CurrentStopPrice, p.HighestPrice, p.ClosePrice, p.ClosedAt, string(p.CloseType),
		p.RealizedPnL, p.FloatingPnL, p.LastPrice, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return guardMiss(ctx, q, "positions", p.ID)
	}
	return nil
}

// OpenPosition в одной транзакции: позиция, членство в открытой push group, стоп-ордер.
func (s *Store) OpenPosition(ctx context.Context, p *models.Position, stop *models.StopOrder) (groupID string, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.OpenPosition")
		}
	}()
	err = s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctxTx, insertPositionSQL,
			p.ID, p.Account, p.Symbol, string(p.Direction), p.Quantity, p.ContractMultiplier,
			p.EntryPrice, p.InitialStopPrice, p.CurrentStopPrice, p.HighestPrice, p.Leverage,
			p.Margin, p.TotalValue, string(p.Status), p.ClosePrice, p.ClosedAt, string(p.CloseType), p.RealizedPnL,
			p.FloatingPnL, p.LastPrice, p.SourceOrderID, p.OpenedAt, p.UpdatedAt,
		); err != nil {
			return errors.Wrap(err, "insert position")
		}

		if _, err := tx.Exec(ctxTx, ensureOpenGroupSQL, id.New(), p.Account, p.Symbol, p.OpenedAt); err != nil {
			return errors.Wrap(err, "ensure push group")
		}
		if err := tx.QueryRow(ctxTx, openGroupIDSQL, p.Account, p.Symbol).Scan(&groupID); err != nil {
			return errors.Wrap(err, "select push group")
		}
		if _, err := tx.Exec(ctxTx, attachPositionSQL, groupID, p.ID); err != nil {
			return errors.Wrap(err, "attach position")
		}

		if stop != nil {
			if _, err := tx.Exec(ctxTx, insertStopOrderSQL,
				stop.ID, stop.PositionID, stop.Account, stop.Symbol, string(stop.Kind),
				stop.TriggerPrice, stop.Quantity, string(stop.Status), stop.CreatedAt, stop.UpdatedAt,
			); err != nil {
				return errors.Wrap(err, "insert stop order")
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return groupID, nil
}

func (s *Store) FindPositionBySource(ctx context.Context, orderID string) (p *models.Position, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.FindPositionBySource")
		}
	}()
	p, err = scanPosition(s.db.Conn(ctx).QueryRow(ctx, positionBySourceSQL, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrNotFound, "position for order %s", orderID)
	}
	return p, err
}
