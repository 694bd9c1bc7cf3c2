// Package config содержит логику чтения конфигурации сервиса крафтмаркет.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса крафтмаркет.
type Config struct {
	RunAddress           string `env:"RUN_ADDRESS"`
	DatabaseURI          string `env:"DATABASE_URI"`
	BroadcastURL         string `env:"BROADCAST_URL"`
	AuthSecret           string `env:"AUTH_SECRET"`
	SweepIntervalSeconds int    `env:"SWEEP_INTERVAL_SECONDS"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envBroadcastURL := cfg.BroadcastURL
	envAuthSecret := cfg.AuthSecret
	envSweepInterval := cfg.SweepIntervalSeconds

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.BroadcastURL, "b", "", "broadcast webhook URL for auction events")
	flag.StringVar(&cfg.AuthSecret, "s", "craftmarket-secret", "secret key for auth cookies")
	flag.IntVar(&cfg.SweepIntervalSeconds, "i", 5, "auction status sweep interval in seconds")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envBroadcastURL != "" {
		cfg.BroadcastURL = envBroadcastURL
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envSweepInterval != 0 {
		cfg.SweepIntervalSeconds = envSweepInterval
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.SweepIntervalSeconds <= 0 {
		cfg.SweepIntervalSeconds = 5
	}

	return cfg, nil
}

// SweepInterval возвращает период запуска фонового обхода аукционов.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}
