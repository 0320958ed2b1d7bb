package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/defistate/dexarb/arbitrage"
	"github.com/defistate/dexarb/engine"
	"github.com/defistate/dexarb/protocols/tokenregistry"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// envPrefix prefixes every environment override.
const envPrefix = "DEXARB_"

// ExchangeConfig describes the pool feed of one exchange and how it is routed.
type ExchangeConfig struct {
	URL       string `yaml:"url"`
	Namespace string `yaml:"namespace"`
	MaxHops   int    `yaml:"maxHops"`
	MaxRoutes int    `yaml:"maxRoutes"`

	// osmosis only
	HubToken          engine.PoolToken `yaml:"hubToken"`
	IncentivizedPools []string         `yaml:"incentivizedPools"`
	CacheSize         int              `yaml:"cacheSize"`
}

// StoreConfig tunes the live pool store.
type StoreConfig struct {
	BufferSize uint          `yaml:"bufferSize"`
	Debounce   time.Duration `yaml:"debounce"`
}

// RedisConfig enables the redis publisher when Addr is set.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	Channel   string        `yaml:"channel"`
	LatestKey string        `yaml:"latestKey"`
	TTL       time.Duration `yaml:"ttl"`
}

// Config is the arbmonitor configuration.
type Config struct {
	LogLevel    string `yaml:"logLevel"`
	MetricsAddr string `yaml:"metricsAddr"`
	// RPCAddr serves arb_subscribeArbs over websocket. Empty disables it.
	RPCAddr string `yaml:"rpcAddr"`

	MinProfitPercent decimal.Decimal `yaml:"minProfitPercent"`
	BufferSize       uint            `yaml:"bufferSize"`

	Store   StoreConfig    `yaml:"store"`
	Osmosis ExchangeConfig `yaml:"osmosis"`
	Shade   ExchangeConfig `yaml:"shade"`
	Redis   RedisConfig    `yaml:"redis"`

	Tokens []tokenregistry.Token `yaml:"tokens"`
	Pairs  []arbitrage.Pair      `yaml:"pairs"`
}

// Defaults returns the configuration every file is merged over.
func Defaults() Config {
	return Config{
		LogLevel:    "info",
		MetricsAddr: ":9100",
		RPCAddr:     ":8546",
		BufferSize:  16,
		Store: StoreConfig{
			BufferSize: 16,
		},
		Osmosis: ExchangeConfig{
			Namespace: string(engine.DexOsmosis),
			MaxHops:   3,
			MaxRoutes: 4,
			CacheSize: 1024,
		},
		Shade: ExchangeConfig{
			Namespace: string(engine.DexShade),
			MaxHops:   3,
		},
		Redis: RedisConfig{
			Channel: "dexarb:arbs",
		},
	}
}

// Load reads the YAML file at path over Defaults, loads a .env file from the
// working directory if one exists and applies DEXARB_* overrides. The result
// is validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	_ = godotenv.Load()

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	setStr(&cfg.LogLevel, "LOG_LEVEL")
	setStr(&cfg.MetricsAddr, "METRICS_ADDR")
	setStr(&cfg.RPCAddr, "RPC_ADDR")
	setStr(&cfg.Osmosis.URL, "OSMOSIS_URL")
	setStr(&cfg.Shade.URL, "SHADE_URL")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setStr(&cfg.Redis.Channel, "REDIS_CHANNEL")

	if v, ok := lookup("REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %sREDIS_DB: %w", envPrefix, err)
		}
		cfg.Redis.DB = db
	}
	if v, ok := lookup("MIN_PROFIT_PERCENT"); ok {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("config: %sMIN_PROFIT_PERCENT: %w", envPrefix, err)
		}
		cfg.MinProfitPercent = d
	}
	return nil
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	return v, v != ""
}

func setStr(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

// Validate checks that the configuration can start a monitor.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.MetricsAddr == "" {
		return errors.New("config: metricsAddr is required")
	}
	if c.BufferSize < 1 || c.Store.BufferSize < 1 {
		return errors.New("config: bufferSize and store.bufferSize must be greater than 0")
	}
	if c.Store.Debounce < 0 {
		return errors.New("config: store.debounce must not be negative")
	}
	if c.MinProfitPercent.IsNegative() {
		return errors.New("config: minProfitPercent must not be negative")
	}

	for dex, ex := range map[engine.DexName]ExchangeConfig{engine.DexOsmosis: c.Osmosis, engine.DexShade: c.Shade} {
		if ex.URL == "" {
			return fmt.Errorf("config: %s.url is required", dex)
		}
		if ex.Namespace == "" {
			return fmt.Errorf("config: %s.namespace is required", dex)
		}
		if ex.MaxHops < 1 {
			return fmt.Errorf("config: %s.maxHops must be greater than 0", dex)
		}
	}

	if c.Redis.Addr != "" && c.Redis.Channel == "" {
		return errors.New("config: redis.channel is required when redis.addr is set")
	}

	known := make(map[engine.DexName]map[engine.Token]bool)
	for i, t := range c.Tokens {
		if t.Symbol == "" || t.Denom == "" {
			return fmt.Errorf("config: token %d needs a symbol and a denom", i)
		}
		if t.Dex != engine.DexOsmosis && t.Dex != engine.DexShade {
			return fmt.Errorf("config: token %s has unknown dex %q", t.Symbol, t.Dex)
		}
		if t.Decimals < 0 {
			return fmt.Errorf("config: token %s has negative decimals", t.Symbol)
		}
		if known[t.Dex] == nil {
			known[t.Dex] = make(map[engine.Token]bool)
		}
		known[t.Dex][t.Symbol] = true
	}

	if len(c.Pairs) == 0 {
		return errors.New("config: at least one pair is required")
	}
	for _, p := range c.Pairs {
		if p.Token0 == p.Token1 {
			return fmt.Errorf("config: pair %s trades a token against itself", p)
		}
		if !p.AmountIn.IsPositive() {
			return fmt.Errorf("config: pair %s needs a positive amountIn", p)
		}
		for _, dex := range []engine.DexName{engine.DexOsmosis, engine.DexShade} {
			for _, sym := range []engine.Token{p.Token0, p.Token1} {
				if !known[dex][sym] {
					return fmt.Errorf("config: pair %s: token %s is not listed on %s", p, sym, dex)
				}
			}
		}
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: invalid logLevel %q: %w", c.LogLevel, err)
	}
	return level, nil
}
