// Package config loads process settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port      string `env:"TASKPAY_PORT,default=8080"`
	DBPath    string `env:"TASKPAY_DB_PATH,default=taskpay.db"`
	LogLevel  string `env:"TASKPAY_LOG_LEVEL,default=info"`
	LogFormat string `env:"TASKPAY_LOG_FORMAT,default=text"`

	// GatewayURL selects the custodial wallet gateway. When empty the
	// in-process simulated gateway is used.
	GatewayURL     string        `env:"TASKPAY_GATEWAY_URL"`
	GatewayToken   string        `env:"TASKPAY_GATEWAY_TOKEN"`
	PaymentTimeout time.Duration `env:"TASKPAY_PAYMENT_TIMEOUT,default=30s"`
	SimulatedFunds string        `env:"TASKPAY_SIMULATED_FUNDS,default=10"`

	FiatCurrency   string        `env:"TASKPAY_FIAT_CURRENCY,default=EUR"`
	CryptoCurrency string        `env:"TASKPAY_CRYPTO_CURRENCY,default=ETH"`
	FallbackRate   string        `env:"TASKPAY_FALLBACK_RATE,default=3200"`
	RateTTL        time.Duration `env:"TASKPAY_RATE_TTL,default=5m"`
	RateSchedule   string        `env:"TASKPAY_RATE_SCHEDULE,default=@every 5m"`
	RateRetry      time.Duration `env:"TASKPAY_RATE_RETRY,default=30s"`

	ReconcileSchedule string        `env:"TASKPAY_RECONCILE_SCHEDULE,default=@every 1m"`
	StaleAfter        time.Duration `env:"TASKPAY_STALE_AFTER,default=15m"`

	// ReviewRate and ReviewBurst throttle approve and reject per acting user.
	ReviewRate      float64       `env:"TASKPAY_REVIEW_RATE,default=1"`
	ReviewBurst     int           `env:"TASKPAY_REVIEW_BURST,default=5"`
	ShutdownTimeout time.Duration `env:"TASKPAY_SHUTDOWN_TIMEOUT,default=10s"`

	// AllowedOrigins lists extra origin patterns accepted by the task feed,
	// separated by semicolons. Same-origin requests are always accepted.
	AllowedOrigins []string `env:"TASKPAY_ALLOWED_ORIGINS"`
}

// Load reads the given .env files (".env" when none are named) into the
// process environment without overriding variables already set, then
// decodes and validates the configuration. Missing .env files are ignored.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var problems []string

	if _, err := c.Fallback(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.GatewayURL == "" {
		if _, err := c.Funds(); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if c.PaymentTimeout <= 0 {
		problems = append(problems, "TASKPAY_PAYMENT_TIMEOUT must be positive")
	}
	// A pending intent younger than the payment timeout may still be paying.
	if c.StaleAfter <= c.PaymentTimeout {
		problems = append(problems, "TASKPAY_STALE_AFTER must be longer than TASKPAY_PAYMENT_TIMEOUT")
	}
	if c.FiatCurrency == "" || c.CryptoCurrency == "" {
		problems = append(problems, "currencies must not be empty")
	}
	if c.ReviewRate <= 0 || c.ReviewBurst <= 0 {
		problems = append(problems, "TASKPAY_REVIEW_RATE and TASKPAY_REVIEW_BURST must be positive")
	}
	for name, spec := range map[string]string{
		"TASKPAY_RATE_SCHEDULE":      c.RateSchedule,
		"TASKPAY_RECONCILE_SCHEDULE": c.ReconcileSchedule,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Fallback is the rate served before the first successful price fetch.
func (c *Config) Fallback() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.FallbackRate)
	if err != nil || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("TASKPAY_FALLBACK_RATE %q must be a positive number", c.FallbackRate)
	}
	return rate, nil
}

// Funds is the starting balance of the simulated gateway.
func (c *Config) Funds() (decimal.Decimal, error) {
	funds, err := decimal.NewFromString(c.SimulatedFunds)
	if err != nil || funds.IsNegative() {
		return decimal.Zero, fmt.Errorf("TASKPAY_SIMULATED_FUNDS %q must be a non-negative number", c.SimulatedFunds)
	}
	return funds, nil
}
