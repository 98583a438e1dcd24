package market

import (
	"context"
	"sort"
	"time"
	"trade_guard/internal/modules/config"
	healthsvc "trade_guard/internal/modules/health/service"
	"trade_guard/internal/modules/market/service"
	"trade_guard/internal/runner"
	"trade_guard/pkg/logger"

	"go.uber.org/fx"
)

func NewClient(lc fx.Lifecycle, cfg *config.Config) *service.Client {
	c := service.NewClient(service.ClientConfig{
		BaseURL:           cfg.Market.BaseURL,
		RequestsPerMinute: cfg.Market.RequestsPerMinute,
		Timeout:           cfg.Market.Timeout,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return c.Close() },
	})
	return c
}

const symbolsReadTimeout = 5 * time.Second

// streamSymbols: явный список из конфига, иначе всё, что сейчас под наблюдением.
func streamSymbols(cfg *config.Config, store runner.Store) service.SymbolSource {
	if len(cfg.Market.Symbols) > 0 {
		return service.StaticSymbols(cfg.Market.Symbols)
	}
	return func(ctx context.Context) []string {
		ctx, cancel := context.WithTimeout(ctx, symbolsReadTimeout)
		defer cancel()
		return watchedSymbols(ctx, store)
	}
}

// watchedSymbols — символы открытых позиций и ожидающих ордеров, отсортированы.
func watchedSymbols(ctx context.Context, store runner.Store) []string {
	set := make(map[string]struct{})
	if positions, err := store.ListOpenPositions(ctx); err == nil {
		for _, p := range positions {
			set[p.Symbol] = struct{}{}
		}
	} else {
		logger.Warn("[WS] list open positions: %v", err)
	}
	if orders, err := store.ListWaitingConditionalOrders(ctx); err == nil {
		for _, o := range orders {
			set[o.Symbol] = struct{}{}
		}
	} else {
		logger.Warn("[WS] list waiting orders: %v", err)
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func RunStream(lc fx.Lifecycle, cfg *config.Config, r *runner.Runner, store runner.Store, state *healthsvc.State) {
	if !cfg.Market.Stream {
		return
	}
	stream := service.NewStream(cfg.Market.WSURL, streamSymbols(cfg, store), r.Cache(), state)
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())
			stream.Start(runCtx)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
				stream.Wait()
			}
			return nil
		},
	})
}

func Module() fx.Option {
	return fx.Module("market",
		fx.Provide(
			NewClient,
			func(c *service.Client) runner.PriceFeed { return c },
		),
		fx.Invoke(RunStream),
	)
}
