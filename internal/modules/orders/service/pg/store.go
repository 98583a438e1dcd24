package pg

import (
	"context"
	"time"
	"trade_guard/internal/models"
	"trade_guard/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Store — Postgres-реализация стора ордеров и позиций.
type Store struct {
	db  db.TxManager
	now func() time.Time
}

func New(tx db.TxManager) *Store {
	return &Store{db: tx, now: time.Now}
}

// guardMiss разбирает UPDATE ... WHERE status = X, не задевший ни одной строки:
// строки нет — ErrNotFound, есть, но в другом статусе — ErrStaleStatus.
func guardMiss(ctx context.Context, q db.Transaction, table, id string) error {
	var status string
	err := q.QueryRow(ctx, "SELECT status FROM "+table+" WHERE id = $1", id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrapf(models.ErrNotFound, "%s %s", table, id)
	}
	if err != nil {
		return err
	}
	return errors.Wrapf(models.ErrStaleStatus, "%s %s is %s", table, id, status)
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var res []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}
