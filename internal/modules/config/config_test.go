package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "values.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
runner:
  stop_interval: 5s
  trigger_interval: 500ms
  reconcile_interval: 0s
store:
  driver: memory
market:
  base_url: http://localhost:9999
  symbols: [BTC_USDT, ETH_USDT]
telegram:
  chat_id: 42
paper:
  accounts:
    - account: main
      equity: 1000
      slots: 10
  orders:
    - account: main
      symbol: BTC_USDT
      direction: long
      condition: BREAK_UP
      trigger_price: 50
      quantity: 1
      stop_loss: 45
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Runner.StopInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Runner.TriggerInterval)
	assert.Zero(t, cfg.Runner.ReconcileInterval)
	// не указано в файле — дефолт
	assert.Equal(t, 30*time.Second, cfg.Runner.MaxPriceStaleness)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, []string{"BTC_USDT", "ETH_USDT"}, cfg.Market.Symbols)
	assert.Equal(t, int64(42), cfg.Telegram.ChatID)

	require.Len(t, cfg.Paper.Orders, 1)
	require.NotNil(t, cfg.Paper.Orders[0].StopLoss)
	assert.InDelta(t, 45, *cfg.Paper.Orders[0].StopLoss, 1e-9)
	assert.Equal(t, 10, cfg.Paper.Accounts[0].Slots)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "store:\n  driver: memory\n")
	t.Setenv("GUARD_RUNNER_STOP_INTERVAL", "7s")
	t.Setenv("GUARD_MARKET_SYMBOLS", "AAA_USDT,BBB_USDT")
	t.Setenv("TELEGRAM_TOKEN", "secret")
	t.Setenv("GUARD_STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_DSN", "postgres://localhost/guard")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, cfg.Runner.StopInterval)
	assert.Equal(t, []string{"AAA_USDT", "BBB_USDT"}, cfg.Market.Symbols)
	assert.Equal(t, "secret", cfg.Telegram.Token)
	assert.Equal(t, StorePostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/guard", cfg.DB)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	ok := defaults()
	ok.Store.Driver = StoreMemory
	require.NoError(t, ok.Validate())

	cases := map[string]func(c *Config){
		"zero stop interval":   func(c *Config) { c.Runner.StopInterval = 0 },
		"negative reconcile":   func(c *Config) { c.Runner.ReconcileInterval = -time.Second },
		"postgres without dsn": func(c *Config) { c.Store.Driver = StorePostgres; c.DB = "" },
		"unknown driver":       func(c *Config) { c.Store.Driver = "redis" },
		"no base url":          func(c *Config) { c.Market.BaseURL = "" },
		"stream without ws":    func(c *Config) { c.Market.Stream = true; c.Market.WSURL = "" },
		"no rate limit":        func(c *Config) { c.Market.RequestsPerMinute = 0 },
	}
	for name, mutate := range cases {
		c := defaults()
		c.Store.Driver = StoreMemory
		mutate(&c)
		assert.Error(t, c.Validate(), name)
	}
}
