package trace

import (
	"context"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/query-router/agent/contract"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendUpstash  = "upstash"
)

type Config struct {
	Backend     string        `split_words:"true" default:"sqlite"`
	SQLitePath  string        `envconfig:"SQLITE_PATH" default:"data/traces.db"`
	PostgresDSN string        `envconfig:"POSTGRES_DSN"`
	KeyPrefix   string        `split_words:"true" default:"qr:trace:"`
	TTL         time.Duration `envconfig:"TTL" default:"0s"`

	Upstash UpstashRedisConfig `envconfig:"UPSTASH"`
}

// Open builds the store selected by cfg.Backend.
func Open(ctx context.Context, cfg Config) (contractx.TraceStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	case BackendPostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN)
	case BackendUpstash:
		return NewUpstashRedisStore(cfg.Upstash, WithKeyPrefix(cfg.KeyPrefix), WithTTL(cfg.TTL))
	default:
		return nil, fmt.Errorf("%w: unknown trace backend %q", contractx.ErrValidation, cfg.Backend)
	}
}
