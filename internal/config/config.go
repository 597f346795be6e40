// Package config содержит логику чтения конфигурации клиента витрины.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress    = "localhost:8080"
	defaultRemoteAddress = "http://localhost:5000"
	defaultGuestStorage  = "file://.storefront"
	defaultRemoteTimeout = 10 * time.Second
)

// Config содержит параметры конфигурации клиента витрины.
type Config struct {
	RunAddress         string        `env:"RUN_ADDRESS"`
	RemoteStoreAddress string        `env:"REMOTE_STORE_ADDRESS"`
	GuestStorageDSN    string        `env:"GUEST_STORAGE_DSN"`
	SessionSecret      string        `env:"SESSION_SECRET"`
	RemoteTimeout      time.Duration `env:"REMOTE_TIMEOUT"`
	RemoteBreaker      *bool         `env:"REMOTE_BREAKER"`
	GuestCartTTL       time.Duration `env:"GUEST_CART_TTL" envDefault:"720h"`
}

// BreakerEnabled сообщает, включён ли автоматический выключатель для удалённого хранилища.
func (c *Config) BreakerEnabled() bool {
	return c.RemoteBreaker == nil || *c.RemoteBreaker
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envRemoteAddress := cfg.RemoteStoreAddress
	envGuestStorage := cfg.GuestStorageDSN
	envSecret := cfg.SessionSecret
	envTimeout := cfg.RemoteTimeout
	envBreaker := cfg.RemoteBreaker

	var breaker bool

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for console HTTP server")
	flag.StringVar(&cfg.RemoteStoreAddress, "r", defaultRemoteAddress, "remote store address")
	flag.StringVar(&cfg.GuestStorageDSN, "s", defaultGuestStorage, "guest storage DSN (memory://, file://, redis://, postgres://)")
	flag.StringVar(&cfg.SessionSecret, "k", "", "secret used to sign the guest marker")
	flag.DurationVar(&cfg.RemoteTimeout, "t", defaultRemoteTimeout, "remote store request timeout")
	flag.BoolVar(&breaker, "b", true, "enable circuit breaker for remote store")

	flag.Parse()

	cfg.RemoteBreaker = &breaker

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envRemoteAddress != "" {
		cfg.RemoteStoreAddress = envRemoteAddress
	}
	if envGuestStorage != "" {
		cfg.GuestStorageDSN = envGuestStorage
	}
	if envSecret != "" {
		cfg.SessionSecret = envSecret
	}
	if envTimeout != 0 {
		cfg.RemoteTimeout = envTimeout
	}
	if envBreaker != nil {
		cfg.RemoteBreaker = envBreaker
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.RemoteStoreAddress == "" {
		cfg.RemoteStoreAddress = defaultRemoteAddress
	}
	if cfg.GuestStorageDSN == "" {
		cfg.GuestStorageDSN = defaultGuestStorage
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = defaultRemoteTimeout
	}

	return cfg, nil
}
