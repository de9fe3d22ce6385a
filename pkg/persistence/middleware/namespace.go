package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/fable/pkg/ports"
)

type namespaceMiddleware struct {
	next   ports.Storage
	prefix string
}

// NewNamespace scopes a storage to keys under prefix, so several sessions
// can share one backend without their checkpoints colliding. Keys passed
// in and returned from List are relative to the prefix.
func NewNamespace(prefix string) Middleware {
	return func(next ports.Storage) ports.Storage {
		return &namespaceMiddleware{next: next, prefix: prefix}
	}
}

func (m *namespaceMiddleware) Save(ctx context.Context, key string, data []byte) error {
	return m.next.Save(ctx, m.prefix+key, data)
}

func (m *namespaceMiddleware) Load(ctx context.Context, key string) ([]byte, error) {
	return m.next.Load(ctx, m.prefix+key)
}

func (m *namespaceMiddleware) Delete(ctx context.Context, key string) error {
	return m.next.Delete(ctx, m.prefix+key)
}

func (m *namespaceMiddleware) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := m.next.List(ctx, m.prefix+prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = strings.TrimPrefix(k, m.prefix)
	}
	return out, nil
}

func (m *namespaceMiddleware) Exists(ctx context.Context, key string) (bool, error) {
	return m.next.Exists(ctx, m.prefix+key)
}

// Stats counts only the keys inside the namespace.
func (m *namespaceMiddleware) Stats(ctx context.Context) (ports.StorageStats, error) {
	inner, err := m.next.Stats(ctx)
	if err != nil {
		return ports.StorageStats{}, err
	}
	keys, err := m.next.List(ctx, m.prefix)
	if err != nil {
		return ports.StorageStats{}, err
	}
	stats := ports.StorageStats{Backend: inner.Backend, Keys: len(keys)}
	for _, k := range keys {
		data, err := m.next.Load(ctx, k)
		if err != nil {
			return ports.StorageStats{}, fmt.Errorf("failed to size %s: %w", k, err)
		}
		stats.Bytes += int64(len(data))
	}
	return stats, nil
}

// Clear removes only the keys inside the namespace.
func (m *namespaceMiddleware) Clear(ctx context.Context) error {
	keys, err := m.next.List(ctx, m.prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := m.next.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
