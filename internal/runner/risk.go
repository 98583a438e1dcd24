package runner

import (
	"context"
	"fmt"
	"trade_guard/internal/models"
)

// RiskAllocator считает доступный риск по (аккаунт, символ):
// equity/slots + сумма реализованного PnL всех позиций символа.
// Ничего не кэширует: equity и PnL меняются постоянно.
type RiskAllocator struct {
	store RiskStore
}

func NewRiskAllocator(store RiskStore) *RiskAllocator {
	return &RiskAllocator{store: store}
}

func (a *RiskAllocator) Allocation(ctx context.Context, account, symbol string) (models.RiskAllocation, error) {
	acc, err := a.store.GetAccountRisk(ctx, account)
	if err != nil {
		return models.RiskAllocation{}, fmt.Errorf("get account risk: %w", err)
	}
	realized, err := a.store.SumRealizedPnL(ctx, account, symbol)
	if err != nil {
		return models.RiskAllocation{}, fmt.Errorf("sum realized pnl: %w", err)
	}

	single := SingleRiskAmount(acc.Equity, acc.Slots)
	return models.RiskAllocation{
		Account:             account,
		Symbol:              symbol,
		SingleRiskAmount:    single,
		AccumulatedRealized: realized,
		Available:           single + realized,
	}, nil
}

// Available может быть отрицательным: символ, который терял, получает меньше риска.
func (a *RiskAllocator) Available(ctx context.Context, account, symbol string) (float64, error) {
	alloc, err := a.Allocation(ctx, account, symbol)
	if err != nil {
		return 0, err
	}
	return alloc.Available, nil
}

func SingleRiskAmount(equity float64, slots int) float64 {
	if slots <= 0 {
		return 0
	}
	return equity / float64(slots)
}
