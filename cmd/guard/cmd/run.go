package cmd

import (
	"context"
	"time"
	"trade_guard/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

const stopTimeout = 15 * time.Second

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Запустить циклы стопов, триггеров и сверки",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cleanup, err := setup(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			app := fx.New(
				serviceOptions(cfg),
				fx.StopTimeout(stopTimeout),
			)
			if err := app.Err(); err != nil {
				return err
			}

			startCtx, cancel := context.WithTimeout(cmd.Context(), fx.DefaultTimeout)
			defer cancel()
			if err := app.Start(startCtx); err != nil {
				return err
			}
			logger.Info("[RUNNER] started, store=%s", cfg.Store.Driver)

			sig := <-app.Wait()
			logger.Info("[RUNNER] signal %s, shutting down", sig.Signal)

			stopCtx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
			defer cancelStop()
			return app.Stop(stopCtx)
		},
	}
}
