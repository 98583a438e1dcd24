package pg

import (
	"context"
	"time"
	"trade_guard/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const (
	groupColumns = `g.id, g.account, g.symbol, g.status, g.created_at, g.closed_at`

	openGroupSQL = `SELECT ` + groupColumns + ` FROM push_groups g
	WHERE g.account = $1 AND g.symbol = $2 AND g.status = 'open'`

	groupsForPositionSQL = `SELECT ` + groupColumns + ` FROM push_groups g
	JOIN push_group_positions gp ON gp.group_id = g.id
	WHERE gp.position_id = $1 ORDER BY g.id`

	countOpenInGroupSQL = `SELECT count(*) FROM push_group_positions gp
	JOIN positions p ON p.id = gp.position_id
	WHERE gp.group_id = $1 AND p.status = 'open'`

	closeGroupSQL = `UPDATE push_groups SET status = 'closed', closed_at = $2
	WHERE id = $1 AND status = 'open'`

	exhaustedGroupsSQL = `SELECT ` + groupColumns + ` FROM push_groups g
	WHERE g.status = 'open' AND NOT EXISTS (
		SELECT 1 FROM push_group_positions gp
		JOIN positions p ON p.id = gp.position_id
		WHERE gp.group_id = g.id AND p.status = 'open'
	) ORDER BY g.id`
)

func scanGroup(row pgx.Row) (*models.PushGroup, error) {
	var g models.PushGroup
	if err := row.Scan(&g.ID, &g.Account, &g.Symbol, &g.Status, &g.CreatedAt, &g.ClosedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) GetOpenPushGroup(ctx context.Context, account, symbol string) (g *models.PushGroup, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.GetOpenPushGroup")
		}
	}()
	g, err = scanGroup(s.db.Conn(ctx).QueryRow(ctx, openGroupSQL, account, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrNotFound, "push group %s/%s", account, symbol)
	}
	return g, err
}

func (s *Store) PushGroupsForPosition(ctx context.Context, positionID string) (res []*models.PushGroup, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.PushGroupsForPosition")
		}
	}()
	rows, err := s.db.Conn(ctx).Query(ctx, groupsForPositionSQL, positionID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanGroup)
}

func (s *Store) CountOpenPositions(ctx context.Context, groupID string) (n int, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.CountOpenPositions")
		}
	}()
	err = s.db.Conn(ctx).QueryRow(ctx, countOpenInGroupSQL, groupID).Scan(&n)
	return n, err
}

// ClosePushGroup: true только если именно этот вызов перевёл группу в closed.
func (s *Store) ClosePushGroup(ctx context.Context, id string, closedAt time.Time) (closed bool, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.ClosePushGroup")
		}
	}()
	q := s.db.Conn(ctx)
	tag, err := q.Exec(ctx, closeGroupSQL, id, closedAt)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	err = guardMiss(ctx, q, "push_groups", id)
	if errors.Is(err, models.ErrStaleStatus) {
		// уже закрыта
		return false, nil
	}
	return false, err
}

func (s *Store) ListExhaustedPushGroups(ctx context.Context) (res []*models.PushGroup, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.ListExhaustedPushGroups")
		}
	}()
	rows, err := s.db.Conn(ctx).Query(ctx, exhaustedGroupsSQL)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanGroup)
}
