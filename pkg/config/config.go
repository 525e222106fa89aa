package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string       `yaml:"environment" default:"development" validate:"required"`
	Logger      LoggerConfig `yaml:"logger"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Execution struct {
		MaxConcurrent int           `yaml:"max_concurrent_strategies" default:"10" validate:"min=1"`
		Timeout       time.Duration `yaml:"timeout" default:"30s"`
		Interval      time.Duration `yaml:"interval" default:"1m" validate:"gt=0"`
	} `yaml:"execution"`
	Registry struct {
		AutoInstall    bool          `yaml:"auto_install"`
		InstallCommand []string      `yaml:"install_command"`
		InstallTimeout time.Duration `yaml:"install_timeout" default:"5m"`
		PluginDir      string        `yaml:"plugin_dir"`
	} `yaml:"registry"`
	Strategies []StrategyConfig `yaml:"strategies"`
	RiskLimits struct {
		MaxPositionSize float64  `yaml:"max_position_size" default:"1000000" validate:"gte=0"`
		MaxDailyLoss    float64  `yaml:"max_daily_loss" default:"50000" validate:"gte=0"`
		MaxLeverage     float64  `yaml:"max_leverage" default:"3" validate:"gte=0"`
		AllowedSymbols  []string `yaml:"allowed_symbols"`
	} `yaml:"risk_limits"`
	Risk struct {
		Capital       float64 `yaml:"capital" default:"100000" validate:"gt=0"`
		RiskPerTrade  float64 `yaml:"risk_per_trade" default:"0.01" validate:"gt=0,lte=1"`
		StopLossPct   float64 `yaml:"stop_loss_pct" default:"0.02" validate:"gte=0,lte=1"`
		TakeProfitPct float64 `yaml:"take_profit_pct" default:"0.05" validate:"gte=0"`
	} `yaml:"risk"`
	Heartbeat struct {
		Timeout       time.Duration `yaml:"timeout" default:"10m" validate:"gt=0"`
		CheckInterval time.Duration `yaml:"check_interval" default:"1m" validate:"gt=0"`
		// StaleAfter defaults to Timeout.
		StaleAfter time.Duration `yaml:"stale_after"`
		Sink       string        `yaml:"sink" default:"none" validate:"oneof=none postgres clickhouse"`
		// Retention prunes postgres heartbeat rows older than this.
		Retention     time.Duration `yaml:"retention" default:"720h" validate:"gt=0"`
		PruneInterval time.Duration `yaml:"prune_interval" default:"1h" validate:"gt=0"`
	} `yaml:"heartbeat"`
	Health struct {
		CacheTTL time.Duration `yaml:"cache_ttl" default:"30s"`
	} `yaml:"health"`
	MarketData MarketDataConfig `yaml:"market_data"`
	Cache      struct {
		Backend string `yaml:"backend" default:"memory" validate:"oneof=memory redis layered"`
	} `yaml:"cache"`
	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"tradebot"`
	} `yaml:"redis"`
	Postgres struct {
		DSN      string `yaml:"dsn"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"5432"`
		User     string `yaml:"user" default:"postgres"`
		Password string `yaml:"password"`
		Database string `yaml:"database" default:"tradebot"`
		SSLMode  string `yaml:"sslmode" default:"disable"`
	} `yaml:"postgres"`
	ClickHouse struct {
		Host        string        `yaml:"host" default:"localhost"`
		Port        int           `yaml:"port" default:"9000"`
		Database    string        `yaml:"database" default:"tradebot"`
		User        string        `yaml:"user" default:"default"`
		Password    string        `yaml:"password"`
		UseHTTP     bool          `yaml:"use_http"`
		DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled bool     `yaml:"enabled"`
		Brokers []string `yaml:"brokers"`
		Topics  struct {
			Signals    string `yaml:"signals" default:"tradebot.signals"`
			Heartbeats string `yaml:"heartbeats" default:"tradebot.heartbeats"`
			Fills      string `yaml:"fills" default:"tradebot.fills"`
			Logs       string `yaml:"logs" default:"tradebot.logs"`
		} `yaml:"topics"`
		Consumer struct {
			GroupID  string `yaml:"group_id" default:"tradebot"`
			Workers  int    `yaml:"workers" default:"4"`
			DLQTopic string `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Orders struct {
		Enabled bool `yaml:"enabled"`
		// Mode splits a Redis queue between processes: both, producer or consumer.
		Mode          string        `yaml:"mode" default:"both" validate:"oneof=both producer consumer"`
		QueuePrefix   string        `yaml:"queue_prefix" default:"tradebot:orders"`
		Workers       int           `yaml:"workers" default:"2"`
		RetryLimit    int           `yaml:"retry_limit" default:"3" validate:"gte=0"`
		RetryDelay    time.Duration `yaml:"retry_delay" default:"5s"`
		StatsInterval time.Duration `yaml:"stats_interval" default:"30s" validate:"gt=0"`
	} `yaml:"orders"`
	Broker struct {
		StartingCash float64 `yaml:"starting_cash" default:"100000" validate:"gte=0"`
	} `yaml:"broker"`
	Alerts struct {
		SlackWebhookURL   string `yaml:"slack_webhook_url"`
		DiscordWebhookURL string `yaml:"discord_webhook_url"`
	} `yaml:"alerts"`
}

type LoggerConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
}

// StrategyConfig is one entry of the strategies list.
type StrategyConfig struct {
	Name   string         `yaml:"name"`
	Path   string         `yaml:"path"`
	Params map[string]any `yaml:"params"`
}

type MarketDataConfig struct {
	Symbols     []string      `yaml:"symbols"`
	CacheTTL    time.Duration `yaml:"cache_ttl" default:"59s"`
	HistoryDays int           `yaml:"history_days" default:"180" validate:"min=1"`
	Finnhub     struct {
		APIKey       string `yaml:"api_key"`
		BaseURL      string `yaml:"base_url" default:"https://finnhub.io/api/v1"`
		WebSocketURL string `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
		Stream       bool   `yaml:"stream"`
	} `yaml:"finnhub"`
	TwelveData struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url" default:"https://api.twelvedata.com"`
	} `yaml:"twelvedata"`
	Yahoo struct {
		Disabled bool `yaml:"disabled"`
	} `yaml:"yahoo"`
	RateLimit struct {
		Capacity     float64 `yaml:"capacity" default:"30"`
		RefillPerSec float64 `yaml:"refill_per_sec" default:"1"`
	} `yaml:"rate_limit"`
}

// Load reads and parses a YAML configuration file, applying defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes raw YAML, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadWithEnv loads .env (if present), then the YAML file, then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyEnv()
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.MarketData.Finnhub.APIKey = v
	}
	if v := os.Getenv("TWELVEDATA_API_KEY"); v != "" {
		c.MarketData.TwelveData.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.MarketData.Symbols = splitList(v)
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		c.Alerts.SlackWebhookURL = v
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		c.Alerts.DiscordWebhookURL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = strings.ToLower(v)
	}
	if v := os.Getenv("TRADEBOT_AUTO_INSTALL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Registry.AutoInstall = b
		}
	}
}

func (c *Config) finish() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	if c.Heartbeat.StaleAfter <= 0 {
		c.Heartbeat.StaleAfter = c.Heartbeat.Timeout
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

var validate = validator.New()

// Validate checks struct tags plus the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if len(c.Strategies) == 0 {
		return errors.New("strategies cannot be empty")
	}
	if c.Registry.AutoInstall && len(c.Registry.InstallCommand) == 0 {
		return errors.New("registry.install_command is required when auto_install is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Orders.Mode != "both" && c.Cache.Backend == "memory" {
		return errors.New("orders.mode producer or consumer needs a redis cache backend")
	}
	return nil
}

// Specs returns the configured strategies in declaration order.
// Per-entry checks (name, path, duplicates) happen at load time so one bad entry does not block the rest.
func (c *Config) Specs() []StrategyConfig {
	out := make([]StrategyConfig, len(c.Strategies))
	copy(out, c.Strategies)
	return out
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
