// Package config builds runtime configuration from environment variables so
// main stays lean. Every knob has a development default; production overrides
// them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultPerOpCap is the per-mint ceiling when NYMREG_PER_OP_CAP is unset.
	DefaultPerOpCap uint64 = 1000
	// DefaultGlobalCap is the issuance ceiling when NYMREG_GLOBAL_CAP is unset.
	DefaultGlobalCap uint64 = 1_000_000
)

// Server captures the full runtime configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	AdminAccount    string
	AdminSecretHash string

	PerOpCap  uint64
	GlobalCap uint64

	PostgresURL  string
	Redis        RedisConfig
	KafkaBrokers []string
	KafkaTopic   string

	ShutdownTimeout time.Duration
}

// RedisConfig carries the optional event-store connection settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:            envOr("NYMREG_ADDR", ":8080"),
		JWTSigningKey:   envOr("NYMREG_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		AdminAccount:    os.Getenv("NYMREG_ADMIN_ACCOUNT"),
		AdminSecretHash: os.Getenv("NYMREG_ADMIN_SECRET_HASH"),
		PostgresURL:     os.Getenv("NYMREG_POSTGRES_URL"),
		KafkaTopic:      envOr("NYMREG_KAFKA_TOPIC", "nymreg.events"),
		ShutdownTimeout: 10 * time.Second,
		Redis: RedisConfig{
			URL:          os.Getenv("NYMREG_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}

	if brokers := os.Getenv("NYMREG_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	var err error
	if cfg.PerOpCap, err = envUint("NYMREG_PER_OP_CAP", DefaultPerOpCap); err != nil {
		return Server{}, err
	}
	if cfg.GlobalCap, err = envUint("NYMREG_GLOBAL_CAP", DefaultGlobalCap); err != nil {
		return Server{}, err
	}
	if cfg.PerOpCap > cfg.GlobalCap {
		return Server{}, fmt.Errorf("per-operation cap %d exceeds global cap %d", cfg.PerOpCap, cfg.GlobalCap)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envUint(key string, fallback uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a non-negative integer: %w", key, err)
	}
	return parsed, nil
}
