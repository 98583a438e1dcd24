package cmd

import (
	"context"
	"fmt"
	"trade_guard/internal/modules/config"
	"trade_guard/internal/runner"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Один проход сверки хранилища и выход",
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

			var store runner.Store
			app := fx.New(
				fxLogger(),
				config.Module(cfg),
				storeModule(cfg),
				fx.Populate(&store),
			)
			if err := app.Err(); err != nil {
				return err
			}
			if err := app.Start(cmd.Context()); err != nil {
				return err
			}
			defer func() {
				_ = app.Stop(context.Background())
			}()

			rc := runner.NewReconciler(store, cfg.Runner.StoreTimeout, cfg.Runner.StuckTriggerAge)
			rep, err := rc.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"cancelled orders: %d\nclosed groups: %d\nsettled executed: %d\nsettled failed: %d\nerrors: %d\n",
				rep.CancelledOrders, rep.ClosedGroups, rep.SettledExecuted, rep.SettledFailed, rep.Errors)
			return nil
		},
	}
}
