package runner

import (
	"context"
	"trade_guard/internal/modules/config"

	"go.uber.org/fx"
)

func SettingsFromConfig(cfg *config.Config) Settings {
	rc := cfg.Runner
	return Settings{
		StopInterval:      rc.StopInterval,
		TriggerInterval:   rc.TriggerInterval,
		ReconcileInterval: rc.ReconcileInterval,
		PriceTimeout:      rc.PriceTimeout,
		StoreTimeout:      rc.StoreTimeout,
		MaxPriceStaleness: rc.MaxPriceStaleness,
		StuckTriggerAge:   rc.StuckTriggerAge,
	}
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			SettingsFromConfig,
			New, // *Runner
		),
		fx.Invoke(func(lc fx.Lifecycle, r *Runner) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					// контекст старта fx короткоживущий, циклам нужен свой
					r.Start(context.Background())
					return nil
				},
				OnStop: func(_ context.Context) error {
					r.Stop()
					return nil
				},
			})
		}),
	)
}
