// Package config содержит логику чтения конфигурации инвестиционной платформы.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MinJWTSecretLength задаёт минимальную длину секрета подписи сессий.
const MinJWTSecretLength = 32

// Config содержит параметры конфигурации платформы.
type Config struct {
	RunAddress        string        `env:"RUN_ADDRESS"`
	DatabaseURI       string        `env:"DATABASE_URI"`
	ExchangeAddress   string        `env:"EXCHANGE_API_ADDRESS"`
	ExchangeAPIKey    string        `env:"EXCHANGE_API_KEY"`
	ExchangeAPISecret string        `env:"EXCHANGE_API_SECRET"`
	JWTSecret         string        `env:"JWT_SECRET"`
	PlansFile         string        `env:"PLANS_FILE"`
	MailAPIKey        string        `env:"MAIL_API_KEY"`
	MailFrom          string        `env:"MAIL_FROM" envDefault:"Hivestin <noreply@hivestin.com>"`
	MailBaseURL       string        `env:"MAIL_BASE_URL" envDefault:"https://api.resend.com"`
	CalendarCredsFile string        `env:"CALENDAR_CREDENTIALS_FILE"`
	CalendarID        string        `env:"CALENDAR_ID" envDefault:"primary"`
	AuditDBPath       string        `env:"AUDIT_DB_PATH"`
	AdminEmails       []string      `env:"ADMIN_EMAILS" envSeparator:","`
	AccrualSchedule   string        `env:"ACCRUAL_SCHEDULE" envDefault:"@every 1h"`
	ReminderSchedule  string        `env:"REMINDER_SCHEDULE" envDefault:"@every 1m"`
	VerifyInterval    time.Duration `env:"DEPOSIT_VERIFY_INTERVAL" envDefault:"30s"`
	SecureCookies     bool          `env:"SECURE_COOKIES"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	// Отсутствие .env не является ошибкой.
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envExchangeAddress := cfg.ExchangeAddress
	envPlansFile := cfg.PlansFile

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.ExchangeAddress, "r", "", "exchange API address")
	flag.StringVar(&cfg.PlansFile, "p", "", "investment plans YAML file")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envExchangeAddress != "" {
		cfg.ExchangeAddress = envExchangeAddress
	}
	if envPlansFile != "" {
		cfg.PlansFile = envPlansFile
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	for i, e := range cfg.AdminEmails {
		cfg.AdminEmails[i] = strings.ToLower(strings.TrimSpace(e))
	}

	return cfg, nil
}

// Validate проверяет обязательные параметры перед запуском сервера.
func (c *Config) Validate() error {
	if c.DatabaseURI == "" {
		return errors.New("database URI is required")
	}
	if len(c.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("JWT secret must be at least %d characters", MinJWTSecretLength)
	}
	if c.ExchangeAddress != "" && (c.ExchangeAPIKey == "" || c.ExchangeAPISecret == "") {
		return errors.New("exchange API key and secret are required when exchange address is set")
	}
	if c.VerifyInterval <= 0 {
		return errors.New("deposit verification interval must be positive")
	}
	return nil
}
