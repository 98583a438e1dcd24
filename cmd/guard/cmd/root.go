package cmd

import (
	"trade_guard/internal/modules/config"
	"trade_guard/internal/modules/health"
	"trade_guard/internal/modules/market"
	"trade_guard/internal/modules/orders"
	"trade_guard/internal/modules/postgres"
	"trade_guard/internal/notify"
	"trade_guard/internal/runner"
	"trade_guard/pkg/logger"
	"trade_guard/pkg/tracing"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

const serviceName = "trade_guard"

type rootFlags struct {
	configPath string
	store      string
	logLevel   string
}

var flags rootFlags

var rootCmd = &cobra.Command{
	Use:   "guard",
	Short: "Trailing stops and breakout triggers for futures positions",
	Long: `guard следит за открытыми позициями и условными ордерами:
  - подтягивает трейлинг-стоп и закрывает позицию при его пробое;
  - исполняет BREAK_UP / BREAK_DOWN ордера с размером по риску;
  - периодически сверяет хвосты каскадов в хранилище.`,
	SilenceUsage: true,
}

// Execute разбирает аргументы и запускает выбранную команду.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "путь к YAML-конфигу (по умолчанию configs/$CONFIG_FILE)")
	pf.StringVar(&flags.store, "store", "", "хранилище: postgres | memory")
	pf.StringVar(&flags.logLevel, "log-level", "", "уровень логов: debug | info | warn | error")

	rootCmd.AddCommand(newRunCmd(), newReconcileCmd())
}

// loadConfig читает конфиг и накладывает флаги поверх файла и окружения.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.store != "" {
		cfg.Store.Driver = flags.store
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	return cfg, cfg.Validate()
}

// setup поднимает логгер и трейсер, возвращает общий cleanup.
func setup(cfg *config.Config) (func(), error) {
	logger.SetServiceName(serviceName)
	tracing.SetServiceName(serviceName)

	syncLog, err := logger.Init(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	_, closeTracer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		syncLog()
		return nil, err
	}
	return func() {
		closeTracer()
		syncLog()
	}, nil
}

func storeModule(cfg *config.Config) fx.Option {
	if cfg.Store.Driver == config.StoreMemory {
		return orders.MemoryModule()
	}
	return fx.Options(postgres.Module(), orders.PostgresModule())
}

func fxLogger() fx.Option {
	return fx.WithLogger(func() fxevent.Logger {
		return &fxevent.ZapLogger{Logger: logger.InfoLogger}
	})
}

// serviceOptions — полный граф сервиса для команды run.
func serviceOptions(cfg *config.Config) fx.Option {
	return fx.Options(
		fxLogger(),
		config.Module(cfg),
		storeModule(cfg),
		market.Module(),
		notify.Module(),
		health.Module(),
		runner.Module(),
	)
}
