package pg

import (
	"context"
	"trade_guard/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const (
	accountRiskSQL = `SELECT account, equity, slots FROM accounts WHERE account = $1`

	upsertAccountSQL = `INSERT INTO accounts (account, equity, slots) VALUES ($1, $2, $3)
	ON CONFLICT (account) DO UPDATE SET equity = EXCLUDED.equity, slots = EXCLUDED.slots`

	// позиция может числиться в нескольких группах символа — считаем её один раз
	sumRealizedSQL = `SELECT COALESCE(SUM(p.realized_pnl), 0) FROM positions p
	WHERE p.id IN (
		SELECT gp.position_id FROM push_group_positions gp
		JOIN push_groups g ON g.id = gp.group_id
		WHERE g.account = $1 AND g.symbol = $2
	)`
)

func (s *Store) GetAccountRisk(ctx context.Context, account string) (acc models.AccountRisk, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.GetAccountRisk")
		}
	}()
	err = s.db.Conn(ctx).QueryRow(ctx, accountRiskSQL, account).Scan(&acc.Account, &acc.Equity, &acc.Slots)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.AccountRisk{}, errors.Wrapf(models.ErrNotFound, "account %s", account)
	}
	return acc, err
}

func (s *Store) SetAccount(ctx context.Context, acc models.AccountRisk) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.SetAccount")
		}
	}()
	_, err = s.db.Conn(ctx).Exec(ctx, upsertAccountSQL, acc.Account, acc.Equity, acc.Slots)
	return err
}

func (s *Store) SumRealizedPnL(ctx context.Context, account, symbol string) (sum float64, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.SumRealizedPnL")
		}
	}()
	err = s.db.Conn(ctx).QueryRow(ctx, sumRealizedSQL, account, symbol).Scan(&sum)
	return sum, err
}
