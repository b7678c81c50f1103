// Package config содержит логику чтения конфигурации сервиса выдачи книг.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress       = "localhost:8080"
	defaultReminderInterval = 24 * time.Hour
	defaultLogLevel         = "info"
)

// Config содержит параметры конфигурации сервиса выдачи книг.
type Config struct {
	RunAddress       string        `env:"RUN_ADDRESS"`
	DatabaseURI      string        `env:"DATABASE_URI"`
	NotifierAddress  string        `env:"NOTIFIER_ADDRESS"`
	AuthSecret       string        `env:"AUTH_SECRET"`
	ReminderInterval time.Duration `env:"REMINDER_INTERVAL"`
	LogLevel         string        `env:"LOG_LEVEL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory storage if empty")
	flag.StringVar(&cfg.NotifierAddress, "n", "", "reminder notification service address")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for signing auth cookies")
	flag.DurationVar(&cfg.ReminderInterval, "i", defaultReminderInterval, "interval between reminder dispatches")
	flag.StringVar(&cfg.LogLevel, "l", defaultLogLevel, "log level")

	flag.Parse()

	cfg.override(fromEnv)
	cfg.setDefaults()

	return cfg, nil
}

// ParseEnv считывает конфигурацию только из переменных окружения.
func ParseEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.setDefaults()
	return cfg, nil
}

func (c *Config) override(src Config) {
	if src.RunAddress != "" {
		c.RunAddress = src.RunAddress
	}
	if src.DatabaseURI != "" {
		c.DatabaseURI = src.DatabaseURI
	}
	if src.NotifierAddress != "" {
		c.NotifierAddress = src.NotifierAddress
	}
	if src.AuthSecret != "" {
		c.AuthSecret = src.AuthSecret
	}
	if src.ReminderInterval != 0 {
		c.ReminderInterval = src.ReminderInterval
	}
	if src.LogLevel != "" {
		c.LogLevel = src.LogLevel
	}
}

func (c *Config) setDefaults() {
	if c.RunAddress == "" {
		c.RunAddress = defaultRunAddress
	}
	if c.ReminderInterval <= 0 {
		c.ReminderInterval = defaultReminderInterval
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}
