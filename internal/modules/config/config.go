package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"trade_guard/pkg/tracing"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	envPrefix         = "GUARD"

	defaultConfigDir  = "configs"
	defaultConfigFile = "values_local.yaml"

	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config ...
type Config struct {
	Runner RunnerConfig `yaml:"runner"`

	Store    StoreConfig `yaml:"store"`
	DB       string      `yaml:"db_dsn"`
	Postgres struct {
		MaxConns       int32         `yaml:"max_conns"`
		ConnectTimeout time.Duration `yaml:"connect_timeout"`
	} `yaml:"postgres"`

	Market MarketConfig `yaml:"market"`

	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	Service struct {
		Host      string `yaml:"host"`
		AdminPort int    `yaml:"admin_port"`
	} `yaml:"service"`

	Tracing tracing.Config `yaml:"tracing"`
	Log     struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	// Paper — стартовые данные для memory-стора
	Paper PaperConfig `yaml:"paper"`
}

type RunnerConfig struct {
	StopInterval      time.Duration `yaml:"stop_interval"`
	TriggerInterval   time.Duration `yaml:"trigger_interval"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"` // 0 — выключено
	PriceTimeout      time.Duration `yaml:"price_timeout"`
	StoreTimeout      time.Duration `yaml:"store_timeout"`
	MaxPriceStaleness time.Duration `yaml:"max_price_staleness"`
	StuckTriggerAge   time.Duration `yaml:"stuck_trigger_age"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // postgres | memory
}

type MarketConfig struct {
	BaseURL           string        `yaml:"base_url"`
	WSURL             string        `yaml:"ws_url"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout"`
	// Stream — держать ли WS-поток тикеров для прогрева кэша
	Stream  bool     `yaml:"stream"`
	Symbols []string `yaml:"symbols"`
}

type PaperConfig struct {
	Accounts []PaperAccount `yaml:"accounts"`
	Orders   []PaperOrder   `yaml:"orders"`
}

type PaperAccount struct {
	Account string  `yaml:"account"`
	Equity  float64 `yaml:"equity"`
	Slots   int     `yaml:"slots"`
}

type PaperOrder struct {
	Account      string   `yaml:"account"`
	Symbol       string   `yaml:"symbol"`
	Direction    string   `yaml:"direction"`
	Condition    string   `yaml:"condition"`
	TriggerPrice float64  `yaml:"trigger_price"`
	Quantity     float64  `yaml:"quantity"`
	Leverage     int      `yaml:"leverage"`
	StopLoss     *float64 `yaml:"stop_loss"`
}

func defaults() Config {
	c := Config{
		Runner: RunnerConfig{
			StopInterval:      2 * time.Second,
			TriggerInterval:   time.Second,
			ReconcileInterval: time.Minute,
			PriceTimeout:      3 * time.Second,
			StoreTimeout:      5 * time.Second,
			MaxPriceStaleness: 30 * time.Second,
			StuckTriggerAge:   time.Minute,
		},
		Store: StoreConfig{Driver: StorePostgres},
		Market: MarketConfig{
			BaseURL:           "https://contract.mexc.com",
			WSURL:             "wss://contract.mexc.com/edge",
			RequestsPerMinute: 600,
			Timeout:           5 * time.Second,
		},
	}
	c.Postgres.MaxConns = 10
	c.Postgres.ConnectTimeout = 5 * time.Second
	c.Service.Host = "0.0.0.0"
	c.Service.AdminPort = 8081
	c.Log.Level = "info"
	return c
}

// NewConfig читает configs/$CONFIG_FILE (по умолчанию values_local.yaml).
func NewConfig() (*Config, error) {
	return Load("")
}

// Load: .env → YAML (если есть) → переменные окружения GUARD_*.
// Явно указанный path обязан существовать, дефолтный — нет.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		name := os.Getenv(configFilePathENV)
		if name == "" {
			name = defaultConfigFile
		}
		path = filepath.Join(defaultConfigDir, name)
	}

	cfg := defaults()
	if err := decodeFile(path, &cfg); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	applyEnv(newEnv(), &cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = file.Close()
	}()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func newEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// старые имена переменных тоже понимаем
	_ = v.BindEnv("telegram.token", "GUARD_TELEGRAM_TOKEN", "TELEGRAM_TOKEN")
	_ = v.BindEnv("db_dsn", "GUARD_DB_DSN", "DATABASE_DSN")
	return v
}

func applyEnv(v *viper.Viper, c *Config) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v.IsSet(key) {
			*dst = v.GetDuration(key)
		}
	}
	num := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}

	dur("runner.stop_interval", &c.Runner.StopInterval)
	dur("runner.trigger_interval", &c.Runner.TriggerInterval)
	dur("runner.reconcile_interval", &c.Runner.ReconcileInterval)
	dur("runner.price_timeout", &c.Runner.PriceTimeout)
	dur("runner.store_timeout", &c.Runner.StoreTimeout)
	dur("runner.max_price_staleness", &c.Runner.MaxPriceStaleness)
	dur("runner.stuck_trigger_age", &c.Runner.StuckTriggerAge)

	str("store.driver", &c.Store.Driver)
	str("db_dsn", &c.DB)
	dur("postgres.connect_timeout", &c.Postgres.ConnectTimeout)
	if v.IsSet("postgres.max_conns") {
		c.Postgres.MaxConns = v.GetInt32("postgres.max_conns")
	}

	str("market.base_url", &c.Market.BaseURL)
	str("market.ws_url", &c.Market.WSURL)
	num("market.requests_per_minute", &c.Market.RequestsPerMinute)
	dur("market.timeout", &c.Market.Timeout)
	if v.IsSet("market.stream") {
		c.Market.Stream = v.GetBool("market.stream")
	}
	if v.IsSet("market.symbols") {
		c.Market.Symbols = strings.FieldsFunc(v.GetString("market.symbols"), func(r rune) bool {
			return r == ',' || r == ' '
		})
	}

	str("telegram.token", &c.Telegram.Token)
	if v.IsSet("telegram.chat_id") {
		c.Telegram.ChatID = v.GetInt64("telegram.chat_id")
	}

	str("service.host", &c.Service.Host)
	num("service.admin_port", &c.Service.AdminPort)

	if v.IsSet("tracing.enabled") {
		c.Tracing.Enabled = v.GetBool("tracing.enabled")
	}
	str("tracing.host", &c.Tracing.Host)
	num("tracing.port", &c.Tracing.Port)

	str("log.level", &c.Log.Level)
}

// Validate отсекает конфиги, с которыми циклы работать не смогут.
func (c *Config) Validate() error {
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"runner.stop_interval", c.Runner.StopInterval},
		{"runner.trigger_interval", c.Runner.TriggerInterval},
		{"runner.price_timeout", c.Runner.PriceTimeout},
		{"runner.store_timeout", c.Runner.StoreTimeout},
		{"runner.max_price_staleness", c.Runner.MaxPriceStaleness},
		{"runner.stuck_trigger_age", c.Runner.StuckTriggerAge},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%s must be > 0, got %s", p.name, p.d)
		}
	}
	if c.Runner.ReconcileInterval < 0 {
		return fmt.Errorf("runner.reconcile_interval must be >= 0, got %s", c.Runner.ReconcileInterval)
	}

	switch c.Store.Driver {
	case StorePostgres:
		if c.DB == "" {
			return fmt.Errorf("db_dsn is required for store.driver=%s", StorePostgres)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}

	if c.Market.BaseURL == "" {
		return fmt.Errorf("market.base_url is required")
	}
	if c.Market.Stream && c.Market.WSURL == "" {
		return fmt.Errorf("market.ws_url is required when market.stream is on")
	}
	if c.Market.RequestsPerMinute <= 0 {
		return fmt.Errorf("market.requests_per_minute must be > 0")
	}
	return nil
}
