package runner

import (
	"context"
	"fmt"
	"trade_guard/internal/models"
	"trade_guard/pkg/tracing"
)

func (r *Runner) stopCycle(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	span, ctx := tracing.StartSpan(ctx, "runner.stop_cycle")
	defer span.Finish()

	rctx, cancel := readCtx(ctx, r.settings.StoreTimeout)
	positions, err := r.store.ListOpenPositions(rctx)
	cancel()
	if err != nil {
		return fmt.Errorf("list open positions: %w", err)
	}

	symbols, groups := groupBySymbol(positions, func(p *models.Position) string { return p.Symbol })
	span.SetTag("positions", len(positions))
	span.SetTag("symbols", len(symbols))

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return nil
		}
		price, ok := r.resolvePrice(ctx, LoopStop, symbol)
		if !ok {
			continue
		}
		for _, p := range groups[symbol] {
			guard(LoopStop, p.ID, func() error {
				_, err := r.trail.Evaluate(ctx, p, price)
				return err
			})
		}
	}
	return nil
}
