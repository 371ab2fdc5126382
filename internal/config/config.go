// Package config loads runtime settings from the environment, after
// reading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Env       string `env:"APP_ENV"    envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	Port      int    `env:"PORT"       envDefault:"8080"`
	JWTSecret string `env:"JWT_SECRET,required"`

	DB     DBConfig     `envPrefix:"DB_"`
	SMTP   SMTPConfig   `envPrefix:"SMTP_"`
	Twilio TwilioConfig `envPrefix:"TWILIO_"`
	Outbox OutboxConfig `envPrefix:"OUTBOX_"`
	Apple  AppleConfig  `envPrefix:"APPLE_"`
}

type DBConfig struct {
	Host         string `env:"HOST"     envDefault:"localhost"`
	Port         int    `env:"PORT"     envDefault:"5432"`
	User         string `env:"USER"     envDefault:"postgres"`
	Password     string `env:"PASSWORD"`
	Name         string `env:"NAME"     envDefault:"consensus"`
	SSLMode      string `env:"SSLMODE"  envDefault:"disable"`
	MaxIdleConns int    `env:"MAX_IDLE_CONNS" envDefault:"10"`
	MaxOpenConns int    `env:"MAX_OPEN_CONNS" envDefault:"100"`
}

// SMTPConfig - outgoing mail relay; emails are only logged when Host is empty
type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT"     envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"     envDefault:"notifications@consensus.local"`
}

// TwilioConfig - SMS alerts for blocked motions; disabled without an account SID
type TwilioConfig struct {
	AccountSID string `env:"ACCOUNT_SID"`
	AuthToken  string `env:"AUTH_TOKEN"`
	From       string `env:"FROM_NUMBER"`
}

func (t TwilioConfig) Enabled() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.From != ""
}

// AppleConfig - Sign in with Apple; the provider is not offered without a client ID
type AppleConfig struct {
	ClientID string `env:"CLIENT_ID"`
	KeysURL  string `env:"KEYS_URL" envDefault:"https://appleid.apple.com/auth/keys"`
}

func (a AppleConfig) Enabled() bool {
	return a.ClientID != ""
}

type OutboxConfig struct {
	PollInterval    time.Duration `env:"POLL_INTERVAL"    envDefault:"5s"`
	BatchSize       int           `env:"BATCH_SIZE"       envDefault:"100"`
	MaxAttempts     int           `env:"MAX_ATTEMPTS"     envDefault:"10"`
	MailConcurrency int           `env:"MAIL_CONCURRENCY" envDefault:"4"`
	Listen          bool          `env:"LISTEN"           envDefault:"true"`
}

// Load reads files (default ".env") into the process environment without
// overriding variables that are already set, then parses Config.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Outbox.BatchSize <= 0 {
		return Config{}, fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", cfg.Outbox.BatchSize)
	}
	return cfg, nil
}
