package postgres

import (
	"context"
	"fmt"
	"trade_guard/internal/modules/config"
	"trade_guard/pkg/db"
	"trade_guard/pkg/logger"

	"go.uber.org/fx"
)

// Module поднимает пул и менеджер транзакций; пул закрывается на OnStop.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config) (*db.PgTxManager, error) {
				poolMaster, err := db.NewPool(context.Background(), db.PoolConfig{
					DSN:            cfg.DB,
					MaxConns:       cfg.Postgres.MaxConns,
					ConnectTimeout: cfg.Postgres.ConnectTimeout,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				m := db.NewPgTxManager(poolMaster)
				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						m.Close()
						logger.Info("[PG] pool closed")
						return nil
					},
				})
				return m, nil
			},
		),
	)
}
