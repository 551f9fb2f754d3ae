package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server binary needs from its environment.
type Config struct {
	Addr     string
	LogLevel string

	// Storage backends. Empty values select the in-memory stores.
	PostgresDSN string
	RedisURL    string

	// Event feed. Empty broker list disables the Kafka sink.
	KafkaBrokers []string
	KafkaTopic   string

	// Caller authentication at the HTTP boundary.
	JWTSigningKey string

	// Proof verification: "allow" (development) or "mac".
	ProofMode string
	ProofKey  string

	// Registry policy.
	DefaultStorageQuota int64
	ReputationFloor     int64
	ReputationAuthority string

	ShutdownTimeout time.Duration
}

// RedisConfig carries connection tuning for the Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Redis derives a RedisConfig with defaults suitable for the ACL store.
func (c Config) Redis() RedisConfig {
	return RedisConfig{
		URL:          c.RedisURL,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Addr:                envOr("VAULT_ADDR", ":8080"),
		LogLevel:            envOr("VAULT_LOG_LEVEL", "info"),
		PostgresDSN:         os.Getenv("VAULT_POSTGRES_DSN"),
		RedisURL:            os.Getenv("VAULT_REDIS_URL"),
		KafkaBrokers:        splitList(os.Getenv("VAULT_KAFKA_BROKERS")),
		KafkaTopic:          envOr("VAULT_KAFKA_TOPIC", "fhevault.events"),
		JWTSigningKey:       envOr("VAULT_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		ProofMode:           envOr("VAULT_PROOF_MODE", "allow"),
		ProofKey:            os.Getenv("VAULT_PROOF_KEY"),
		DefaultStorageQuota: envInt64("VAULT_DEFAULT_QUOTA_BYTES", 1<<30),
		ReputationFloor:     envInt64("VAULT_REPUTATION_FLOOR", 0),
		ReputationAuthority: os.Getenv("VAULT_REPUTATION_AUTHORITY"),
		ShutdownTimeout:     10 * time.Second,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
