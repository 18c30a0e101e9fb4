package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// LoadEnv reads a local .env file when present. Missing files are fine in
// deployed environments where variables come from the orchestrator.
func LoadEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
}

type Config struct {
	Port        string `env:"PORT" envDefault:"8081"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	JWTSecret   string `env:"JWT_SECRET"`
	LogDir      string `env:"LOG_DIR" envDefault:"logs"`

	// RateLimitMutations uses the "<limit>-<period>" format, e.g. "30-1m".
	RateLimitMutations string `env:"RATE_LIMIT_MUTATIONS" envDefault:"30-1m"`

	Payout   PayoutConfig   `envPrefix:"PAYOUT_"`
	Cashfree CashfreeConfig `envPrefix:"CASHFREE_PAYOUT_"`
	Razorpay RazorpayConfig `envPrefix:"RAZORPAY_"`
	SMTP     SMTPConfig
}

type PayoutConfig struct {
	Store                 string          `env:"STORE" envDefault:"postgres"`
	MinThreshold          decimal.Decimal `env:"MIN_THRESHOLD" envDefault:"5000"`
	Currency              string          `env:"CURRENCY" envDefault:"INR"`
	DemoMode              bool            `env:"DEMO_MODE" envDefault:"true"`
	SettlementProvider    string          `env:"SETTLEMENT_PROVIDER" envDefault:"demo"`
	SettlementTimeout     time.Duration   `env:"SETTLEMENT_TIMEOUT" envDefault:"30s"`
	SettlementConcurrency int             `env:"SETTLEMENT_CONCURRENCY" envDefault:"4"`
	ReportEmail           string          `env:"REPORT_EMAIL"`
	NodeID                int64           `env:"NODE_ID" envDefault:"1"`
	StaleProcessingAfter  time.Duration   `env:"STALE_PROCESSING_AFTER" envDefault:"15m"`

	// AdminRoles may create, approve, process, cancel and retry batches.
	AdminRoles []string `env:"ADMIN_ROLES" envDefault:"admin,finance_admin" envSeparator:","`
}

type CashfreeConfig struct {
	ClientID     string `env:"ID"`
	ClientSecret string `env:"SECRET"`
	BaseURL      string `env:"URL" envDefault:"https://sandbox.cashfree.com/payout"`
}

type RazorpayConfig struct {
	KeyID     string `env:"KEY_ID"`
	KeySecret string `env:"KEY_SECRET"`
}

type SMTPConfig struct {
	Host      string `env:"SMTP_HOST"`
	Port      int    `env:"SMTP_PORT" envDefault:"587"`
	Username  string `env:"SMTP_USERNAME"`
	Password  string `env:"SMTP_PASSWORD"`
	FromEmail string `env:"FROM_EMAIL"`
}

// Load parses the process environment into a Config and validates the
// payout settings the engine depends on.
func Load() (*Config, error) {
	LoadEnv()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if !c.Payout.MinThreshold.IsPositive() {
		return fmt.Errorf("PAYOUT_MIN_THRESHOLD must be positive, got %s", c.Payout.MinThreshold)
	}
	if c.Payout.SettlementTimeout <= 0 {
		return fmt.Errorf("PAYOUT_SETTLEMENT_TIMEOUT must be positive")
	}
	if c.Payout.SettlementConcurrency < 1 {
		return fmt.Errorf("PAYOUT_SETTLEMENT_CONCURRENCY must be at least 1")
	}
	switch c.Payout.Store {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL not set")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown PAYOUT_STORE %q", c.Payout.Store)
	}
	switch c.Payout.SettlementProvider {
	case "demo":
	case "cashfree":
		if c.Cashfree.ClientID == "" || c.Cashfree.ClientSecret == "" {
			return fmt.Errorf("payout: required Cashfree credentials not set")
		}
	case "razorpay":
		if c.Razorpay.KeyID == "" || c.Razorpay.KeySecret == "" {
			return fmt.Errorf("payout: required Razorpay credentials not set")
		}
	default:
		return fmt.Errorf("unknown PAYOUT_SETTLEMENT_PROVIDER %q", c.Payout.SettlementProvider)
	}
	return nil
}
