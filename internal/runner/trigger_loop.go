package runner

import (
	"context"
	"fmt"
	"trade_guard/internal/models"
	"trade_guard/pkg/tracing"
)

func (r *Runner) triggerCycle(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	span, ctx := tracing.StartSpan(ctx, "runner.trigger_cycle")
	defer span.Finish()

	rctx, cancel := readCtx(ctx, r.settings.StoreTimeout)
	orders, err := r.store.ListWaitingConditionalOrders(rctx)
	cancel()
	if err != nil {
		return fmt.Errorf("list waiting conditional orders: %w", err)
	}

	symbols, groups := groupBySymbol(orders, func(o *models.ConditionalOrder) string { return o.Symbol })
	span.SetTag("orders", len(orders))
	span.SetTag("symbols", len(symbols))

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return nil
		}
		price, ok := r.resolvePrice(ctx, LoopTrigger, symbol)
		if !ok {
			continue
		}
		for _, o := range groups[symbol] {
			if ctx.Err() != nil {
				return nil
			}
			guard(LoopTrigger, o.ID, func() error {
				_, err := r.trigger.Evaluate(ctx, o, price)
				return err
			})
		}
	}
	return nil
}
