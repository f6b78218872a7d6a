package config

import (
	"time"

	"github.com/vietddude/blessbot/internal/fulfillment"
	"github.com/vietddude/blessbot/internal/infra/chain/evm"
	redisclient "github.com/vietddude/blessbot/internal/infra/redis"
	"github.com/vietddude/blessbot/internal/infra/social/x"
	"github.com/vietddude/blessbot/internal/infra/storage/sqldb"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	API      APIConfig          `yaml:"api"`
	Bot      BotConfig          `yaml:"bot"`
	Chain    evm.Config         `yaml:"chain"`
	X        x.Config           `yaml:"x"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database sqldb.Config       `yaml:"database"`

	Secrets Secrets `yaml:"-"`
}

// ServerConfig holds the health and metrics server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// APIConfig holds the query service settings.
type APIConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// BotConfig holds the fulfillment settings. Amounts are decimal strings in
// whole tokens.
type BotConfig struct {
	Handle          string                  `yaml:"handle"`
	PollInterval    time.Duration           `yaml:"poll_interval"`
	BindReward      string                  `yaml:"bind_reward"`
	BlessAmount     string                  `yaml:"bless_amount"`
	RateLimitWindow time.Duration           `yaml:"rate_limit_window"`
	ExplorerTxURL   string                  `yaml:"explorer_tx_url"`
	Images          fulfillment.ImageConfig `yaml:"images"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`   // optional rotating log file

	MaxSizeMB  int `yaml:"max_size_mb"`
	MaxBackups int `yaml:"max_backups"`
	MaxAgeDays int `yaml:"max_age_days"`
}

// Secrets are read from the environment only.
type Secrets struct {
	FunderPrivateKey string `env:"FUNDER_PRIVATE_KEY"`
	XUsername        string `env:"X_USERNAME"`
	XPassword        string `env:"X_PASSWORD"`
	APIKey           string `env:"API_KEY" envDefault:"devkey"`
}
