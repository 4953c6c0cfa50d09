package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full bot configuration.
type Config struct {
	Betting  BettingConfig  `yaml:"betting"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Feed     FeedConfig     `yaml:"feed"`
	Storage  StorageConfig  `yaml:"storage"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// BettingConfig controls stake sizing, the betting window and the risk limits.
type BettingConfig struct {
	Stake              float64 `yaml:"stake"`
	MinOdds            float64 `yaml:"min_odds"`
	MaxOdds            float64 `yaml:"max_odds"`
	WindowMinSeconds   int     `yaml:"window_min_seconds"`
	WindowMaxSeconds   int     `yaml:"window_max_seconds"`
	Stage1Seconds      int     `yaml:"stage1_seconds"`
	Stage2Seconds      int     `yaml:"stage2_seconds"`
	Stage3Seconds      int     `yaml:"stage3_seconds"`
	MinFieldSize       int     `yaml:"min_field_size"`
	BaseDispersion     float64 `yaml:"base_dispersion"`
	BaseCeiling        float64 `yaml:"base_ceiling"`
	ReferenceFieldSize int     `yaml:"reference_field_size"`
	MaxDailyBets       int     `yaml:"max_daily_bets"`
	MaxDailyLoss       float64 `yaml:"max_daily_loss"`
	LifetimeStopLoss   float64 `yaml:"lifetime_stop_loss"`
	RequireProjection  bool    `yaml:"require_projection"`
	TickSeconds        int     `yaml:"tick_seconds"`
	FeedRefreshMinutes int     `yaml:"feed_refresh_minutes"`
	ArmDelaySeconds    int     `yaml:"arm_delay_seconds"` // live-mode pause before the first order
}

// ExchangeConfig holds the exchange API endpoint and credentials. The
// credentials come from the environment, never from the YAML file.
type ExchangeConfig struct {
	Base         string `yaml:"base"`
	AppKey       string `yaml:"-"`
	SessionToken string `yaml:"-"`
}

// FeedConfig holds the schedule feed endpoint.
type FeedConfig struct {
	Base string `yaml:"base"`
}

// StorageConfig controls where bet history is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // path to the SQLite file, or ":memory:"
}

// MetricsConfig controls the Prometheus /metrics listener.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the listener
}

// LogConfig controls logging format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML config and the .env file if present. Environment
// values override the YAML for the keys they cover.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// TickInterval returns the polling cadence as a time.Duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Betting.TickSeconds) * time.Second
}

// FeedRefresh returns the schedule re-read cadence as a time.Duration.
func (c *Config) FeedRefresh() time.Duration {
	return time.Duration(c.Betting.FeedRefreshMinutes) * time.Minute
}

// ArmDelay returns the live-mode arming pause as a time.Duration.
func (c *Config) ArmDelay() time.Duration {
	return time.Duration(c.Betting.ArmDelaySeconds) * time.Second
}

func applyEnvOverrides(cfg *Config) {
	cfg.Exchange.AppKey = os.Getenv("EXCHANGE_APP_KEY")
	cfg.Exchange.SessionToken = os.Getenv("EXCHANGE_SESSION_TOKEN")
	if v := os.Getenv("EXCHANGE_BASE"); v != "" {
		cfg.Exchange.Base = v
	}
	if v := os.Getenv("FEED_BASE"); v != "" {
		cfg.Feed.Base = v
	}
	if v := os.Getenv("LAYBOT_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Betting.Stake <= 0 {
		cfg.Betting.Stake = 2
	}
	if cfg.Betting.MinOdds <= 0 {
		cfg.Betting.MinOdds = 1.5
	}
	if cfg.Betting.MaxOdds <= 0 {
		cfg.Betting.MaxOdds = 100
	}
	if cfg.Betting.WindowMinSeconds <= 0 {
		cfg.Betting.WindowMinSeconds = 5
	}
	if cfg.Betting.WindowMaxSeconds <= 0 {
		cfg.Betting.WindowMaxSeconds = 50
	}
	if cfg.Betting.Stage1Seconds <= 0 {
		cfg.Betting.Stage1Seconds = 40
	}
	if cfg.Betting.Stage2Seconds <= 0 {
		cfg.Betting.Stage2Seconds = 20
	}
	if cfg.Betting.Stage3Seconds <= 0 {
		cfg.Betting.Stage3Seconds = 10
	}
	if cfg.Betting.MinFieldSize <= 0 {
		cfg.Betting.MinFieldSize = 6
	}
	if cfg.Betting.BaseDispersion <= 0 {
		cfg.Betting.BaseDispersion = 10
	}
	if cfg.Betting.BaseCeiling <= 0 {
		cfg.Betting.BaseCeiling = 30
	}
	if cfg.Betting.ReferenceFieldSize <= 0 {
		cfg.Betting.ReferenceFieldSize = 12
	}
	if cfg.Betting.TickSeconds <= 0 {
		cfg.Betting.TickSeconds = 1
	}
	if cfg.Betting.FeedRefreshMinutes <= 0 {
		cfg.Betting.FeedRefreshMinutes = 10
	}
	if cfg.Betting.ArmDelaySeconds <= 0 {
		cfg.Betting.ArmDelaySeconds = 5
	}
	if cfg.Exchange.Base == "" {
		cfg.Exchange.Base = "https://api.betfair.com/exchange"
	}
	if cfg.Feed.Base == "" {
		cfg.Feed.Base = "https://api.racingschedule.example.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "laybot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
