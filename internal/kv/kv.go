// Package kv persists opaque values under string keys. It is the backing for
// the local ticket collection and for the saved session.
package kv

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/config"
	"github.com/spec-kit/ticket-tracker/internal/persistence"
)

var (
	// ErrNotFound is returned by Get when the key holds no value.
	ErrNotFound = errors.New("kv: key not found")
	// ErrConflict is returned by Update when another writer changed the key
	// between read and write.
	ErrConflict = errors.New("kv: concurrent modification")
)

// UpdateFunc maps the current value (nil when absent) to the value to store.
// Returning an error aborts the update and leaves the key untouched.
type UpdateFunc func(current []byte) ([]byte, error)

// Storage is a minimal key/value store.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Update performs an atomic read-modify-write of key.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Close() error
}

// Open builds the backend selected by cfg.Storage.Backend.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (Storage, error) {
	switch cfg.Storage.Backend {
	case "", "file":
		return NewFile(cfg.Storage.Path)
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(ctx, cfg.Storage.Path)
	case "redis":
		r := persistence.NewRedis(cfg.Redis, logger)
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, fmt.Errorf("redis storage: %w", err)
		}
		return NewRedis(r.Client), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}
