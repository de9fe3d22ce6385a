package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aretw0/fable/internal/config"
	"github.com/aretw0/fable/pkg/adapters/file"
	"github.com/aretw0/fable/pkg/adapters/memory"
	"github.com/aretw0/fable/pkg/adapters/postgres"
	"github.com/aretw0/fable/pkg/adapters/redis"
	"github.com/aretw0/fable/pkg/adapters/sqlite"
	"github.com/aretw0/fable/pkg/persistence/middleware"
	"github.com/aretw0/fable/pkg/ports"
)

// Backend is an opened storage adapter. Locker is only set for backends
// that can coordinate several processes.
type Backend struct {
	Storage ports.Storage
	Locker  ports.DistributedLocker
	Name    string

	close func() error
}

// Close releases connections held by the backend.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// OpenBackend builds the storage adapter selected by cfg and wraps it with
// encryption when a key is configured.
func OpenBackend(ctx context.Context, cfg config.Config) (*Backend, error) {
	b := &Backend{Name: cfg.Storage}

	switch cfg.Storage {
	case config.StorageMemory, "":
		b.Name = config.StorageMemory
		b.Storage = memory.NewStore()
	case config.StorageFile:
		b.Storage = file.New(cfg.StoragePath)
	case config.StorageSQLite:
		path := cfg.StoragePath
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "fable.db")
		}
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		b.Storage, b.close = store, store.Close
	case config.StorageRedis:
		store := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := store.Client().Ping(ctx).Err(); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		b.Storage, b.close = store, store.Close
		b.Locker = redis.NewLocker(store.Client(), redis.DefaultPrefix)
	case config.StoragePostgres:
		store, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.Storage = store
		b.close = func() error {
			store.Close()
			return nil
		}
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}

	key, err := cfg.Key()
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	if key != nil {
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Storage = middleware.Chain(b.Storage, enc)
	}
	return b, nil
}
