package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/fable/pkg/codec"
	"github.com/aretw0/fable/pkg/domain"
)

// ErrNoStorage is returned when a storage operation runs without a backend.
var ErrNoStorage = errors.New("no storage configured")

// SaveResult reports the outcome of a save to storage.
type SaveResult struct {
	Success  bool                    `json:"success"`
	Error    string                  `json:"error,omitempty"`
	Key      string                  `json:"key"`
	Bytes    int                     `json:"bytes"`
	Envelope *domain.SerializedState `json:"-"`
	Err      error                   `json:"-"`
}

// Encode serializes an envelope using the compression named in its
// metadata.
func Encode(env *domain.SerializedState) ([]byte, error) {
	return codec.Marshal(env, env.Metadata.Compression)
}

// Decode parses an envelope produced by Encode.
func Decode(data []byte) (*domain.SerializedState, error) {
	var env domain.SerializedState
	if err := codec.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidEnvelope, err)
	}
	return &env, nil
}

// SaveToStorage saves the target and writes the encoded envelope under key.
func (m *Manager) SaveToStorage(ctx context.Context, key string, opts SaveOptions) SaveResult {
	start := m.clock()
	res := m.saveToStorage(ctx, key, opts)
	m.report(ctx, "save_storage", start, res.Err)
	if !res.Success {
		m.logger.Error("save to storage failed", "key", key, "err", res.Err)
	}
	return res
}

func (m *Manager) saveToStorage(ctx context.Context, key string, opts SaveOptions) SaveResult {
	fail := func(err error) SaveResult {
		return SaveResult{Key: key, Error: err.Error(), Err: err}
	}
	if m.storage == nil {
		return fail(ErrNoStorage)
	}
	if key == "" {
		return fail(errors.New("storage key is required"))
	}
	env, err := m.save(ctx, opts)
	if err != nil {
		return fail(err)
	}
	data, err := Encode(env)
	if err != nil {
		return fail(err)
	}
	if err := m.storage.Save(ctx, key, data); err != nil {
		return fail(fmt.Errorf("storage save %q: %w", key, err))
	}
	return SaveResult{Success: true, Key: key, Bytes: len(data), Envelope: env}
}

// LoadFromStorage reads the envelope under key and loads it.
func (m *Manager) LoadFromStorage(ctx context.Context, key string, opts LoadOptions) LoadResult {
	start := m.clock()
	res := m.loadFromStorage(ctx, key, opts)
	m.report(ctx, "load_storage", start, res.Err)
	return res
}

func (m *Manager) loadFromStorage(ctx context.Context, key string, opts LoadOptions) LoadResult {
	if m.storage == nil {
		return failed(ErrNoStorage, nil)
	}
	data, err := m.storage.Load(ctx, key)
	if err != nil {
		return failed(fmt.Errorf("storage load %q: %w", key, err), nil)
	}
	env, err := Decode(data)
	if err != nil {
		return failed(err, nil)
	}
	return m.load(ctx, env, opts)
}
