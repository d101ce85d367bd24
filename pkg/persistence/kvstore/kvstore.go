// Package kvstore provides the durable key-value storage the chat client
// keeps its thread collection and theme in.
package kvstore

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Store is a string key-value store. Get reports ok=false for absent keys.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Settings selects and configures a backend.
type Settings struct {
	Backend        string `yaml:"backend"`
	Path           string `yaml:"path"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisNamespace string `yaml:"redis_namespace"`
}

// Open builds the store described by settings.
func Open(ctx context.Context, s Settings) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(s.Backend)) {
	case "", BackendSQLite:
		dsn, err := SQLiteDSNForFile(s.Path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(dsn)
	case BackendRedis:
		return NewRedisStore(ctx, s.RedisAddr, s.RedisNamespace)
	case BackendMemory:
		return NewInMemoryStore(), nil
	default:
		return nil, errors.Errorf("kvstore: unknown backend %q", s.Backend)
	}
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("kvstore: key is empty")
	}
	return nil
}
