package orders

import (
	"context"
	"fmt"
	"time"
	"trade_guard/internal/models"
	"trade_guard/internal/modules/config"
	"trade_guard/internal/modules/orders/service/memory"
	"trade_guard/internal/modules/orders/service/pg"
	"trade_guard/internal/runner"
	"trade_guard/pkg/db"
	"trade_guard/pkg/id"
	"trade_guard/pkg/logger"

	"go.uber.org/fx"
)

var (
	_ runner.Store = (*pg.Store)(nil)
	_ runner.Store = (*memory.Store)(nil)
)

// PostgresModule — боевой стор. Аккаунты из секции paper апсертятся при старте.
func PostgresModule() fx.Option {
	return fx.Module("orders",
		fx.Provide(
			func(m *db.PgTxManager) *pg.Store { return pg.New(m) },
			func(s *pg.Store) runner.Store { return s },
		),
		fx.Invoke(func(lc fx.Lifecycle, s *pg.Store, cfg *config.Config) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					for _, acc := range PaperAccounts(cfg.Paper) {
						if err := s.SetAccount(ctx, acc); err != nil {
							return err
						}
					}
					return nil
				},
			})
		}),
	)
}

// MemoryModule — paper-режим: всё в памяти, стартовые данные из конфига.
func MemoryModule() fx.Option {
	return fx.Module("orders",
		fx.Provide(
			NewMemory,
			func(s *memory.Store) runner.Store { return s },
		),
	)
}

func NewMemory(cfg *config.Config) (*memory.Store, error) {
	s := memory.New()
	for _, acc := range PaperAccounts(cfg.Paper) {
		s.SetAccount(acc)
	}
	orders, err := PaperOrders(cfg.Paper, time.Now())
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		s.AddConditionalOrder(o)
	}
	logger.Info("[PAPER] %d accounts, %d conditional orders", len(cfg.Paper.Accounts), len(orders))
	return s, nil
}

func PaperAccounts(p config.PaperConfig) []models.AccountRisk {
	out := make([]models.AccountRisk, 0, len(p.Accounts))
	for _, a := range p.Accounts {
		out = append(out, models.AccountRisk{Account: a.Account, Equity: a.Equity, Slots: a.Slots})
	}
	return out
}

func PaperOrders(p config.PaperConfig, now time.Time) ([]*models.ConditionalOrder, error) {
	out := make([]*models.ConditionalOrder, 0, len(p.Orders))
	for i, po := range p.Orders {
		o := &models.ConditionalOrder{
			ID:           id.New(),
			Account:      po.Account,
			Symbol:       po.Symbol,
			Direction:    models.Direction(po.Direction),
			Condition:    models.ConditionType(po.Condition),
			TriggerPrice: po.TriggerPrice,
			Quantity:     po.Quantity,
			Leverage:     po.Leverage,
			Status:       models.OrderWaiting,
			CreatedAt:    now,
		}
		if po.StopLoss != nil {
			v := *po.StopLoss
			o.StopLossPrice = &v
		}
		switch {
		case o.Symbol == "":
			return nil, fmt.Errorf("paper.orders[%d]: symbol is required", i)
		case !o.Direction.Valid():
			return nil, fmt.Errorf("paper.orders[%d]: bad direction %q", i, po.Direction)
		case !o.Condition.Valid():
			return nil, fmt.Errorf("paper.orders[%d]: bad condition %q", i, po.Condition)
		case o.TriggerPrice <= 0:
			return nil, fmt.Errorf("paper.orders[%d]: trigger_price must be > 0", i)
		}
		out = append(out, o)
	}
	return out, nil
}
