package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment   string `envconfig:"ENV" default:"development"`
	HTTPAddr      string `envconfig:"HTTP_ADDR" default:":8080"`
	DBDSN         string `envconfig:"DB_DSN" required:"true"`
	DBMaxConns    int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	MigrationsDir string `envconfig:"MIGRATIONS_DIR"`
	JWTSecret     string `envconfig:"JWT_SECRET" required:"true"`

	RazorpayKeyID         string `envconfig:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret     string `envconfig:"RAZORPAY_KEY_SECRET"`
	RazorpayWebhookSecret string `envconfig:"RAZORPAY_WEBHOOK_SECRET"`

	Currency       string        `envconfig:"CURRENCY" default:"INR"`
	HoldWindow     time.Duration `envconfig:"HOLD_WINDOW" default:"30m"`
	CaptureOffset  time.Duration `envconfig:"CAPTURE_OFFSET" default:"24h"`
	CancelCutoff   time.Duration `envconfig:"CANCEL_CUTOFF" default:"24h"`
	CommissionRate float64       `envconfig:"COMMISSION_RATE" default:"0.15"`
	PlatformFee    int64         `envconfig:"PLATFORM_FEE" default:"0"`

	SweepInterval         time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`
	RuleExpansionInterval time.Duration `envconfig:"RULE_EXPANSION_INTERVAL" default:"24h"`
	RuleExpansionDays     int           `envconfig:"RULE_EXPANSION_DAYS" default:"28"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"mentorbook.events"`

	TelegramToken string `envconfig:"TELEGRAM_TOKEN"`

	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	CORSOrigins    []string `envconfig:"CORS_ORIGINS" default:"*"`
	RateLimitRPS   float64  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst int      `envconfig:"RATE_LIMIT_BURST" default:"40"`
}

// Load reads .env (when present) into the environment, then the environment into Config.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DBDSN == "" || c.JWTSecret == "":
		return errors.New("DB_DSN and JWT_SECRET are required")
	case c.HoldWindow <= 0:
		return errors.New("HOLD_WINDOW must be positive")
	case c.CaptureOffset < 0 || c.CancelCutoff < 0:
		return errors.New("CAPTURE_OFFSET and CANCEL_CUTOFF must not be negative")
	case c.CommissionRate < 0 || c.CommissionRate >= 1:
		return errors.New("COMMISSION_RATE must be in [0, 1)")
	case c.PlatformFee < 0:
		return errors.New("PLATFORM_FEE must not be negative")
	case c.SweepInterval <= 0 || c.RuleExpansionInterval <= 0:
		return errors.New("scheduler intervals must be positive")
	case c.RuleExpansionDays <= 0:
		return errors.New("RULE_EXPANSION_DAYS must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// PaymentsEnabled reports whether real gateway credentials are configured.
func (c *Config) PaymentsEnabled() bool {
	return c.RazorpayKeyID != "" && c.RazorpayKeySecret != ""
}
