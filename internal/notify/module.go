package notify

import (
	"context"
	"trade_guard/internal/modules/config"
	"trade_guard/internal/runner"
	"trade_guard/pkg/logger"

	"go.uber.org/fx"
)

// New: без токена — Stdout, иначе Telegram с командами поверх стора.
func New(lc fx.Lifecycle, cfg *config.Config, book runner.Store) (Notifier, error) {
	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		logger.Info("[NOTIFY] telegram is not configured, using stdout")
		return NewStdout(), nil
	}

	t, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, book)
	if err != nil {
		return nil, err
	}
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			t.Start(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			t.Wait()
			return nil
		},
	})
	return t, nil
}

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			New,
			func(n Notifier) runner.Notifier { return n },
		),
	)
}
