package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/blessbot/internal/core/ratelimit"
	"github.com/vietddude/blessbot/internal/fulfillment"
)

// Load reads configuration from a YAML file and secrets from the environment.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.Parse(&cfg.Secrets); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8000
	}
	if len(cfg.API.AllowedOrigins) == 0 {
		cfg.API.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Bot.PollInterval == 0 {
		cfg.Bot.PollInterval = 60 * time.Second
	}
	if cfg.Bot.BindReward == "" {
		cfg.Bot.BindReward = "1"
	}
	if cfg.Bot.BlessAmount == "" {
		cfg.Bot.BlessAmount = "1"
	}
	if cfg.Bot.RateLimitWindow == 0 {
		cfg.Bot.RateLimitWindow = ratelimit.DefaultWindow
	}
	if cfg.Bot.ExplorerTxURL == "" {
		cfg.Bot.ExplorerTxURL = fulfillment.DefaultExplorerTxURL
	}
	if cfg.Bot.Handle == "" {
		cfg.Bot.Handle = cfg.Secrets.XUsername
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func (c *AppConfig) validate() error {
	var errs []error
	if _, err := c.Bot.BindRewardAmount(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Bot.BlessAmountValue(); err != nil {
		errs = append(errs, err)
	}
	switch c.Database.Driver {
	case "postgres", "pgx", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver %q", c.Database.Driver))
	}
	if c.Bot.PollInterval < 0 || c.Bot.RateLimitWindow < 0 {
		errs = append(errs, errors.New("bot intervals must not be negative"))
	}
	return errors.Join(errs...)
}

// BindRewardAmount parses the bind reward.
func (b BotConfig) BindRewardAmount() (decimal.Decimal, error) {
	return parseAmount("bot.bind_reward", b.BindReward)
}

// BlessAmountValue parses the blessing amount.
func (b BotConfig) BlessAmountValue() (decimal.Decimal, error) {
	return parseAmount("bot.bless_amount", b.BlessAmount)
}

func parseAmount(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("invalid %s %q: must be positive", field, s)
	}
	return d, nil
}
