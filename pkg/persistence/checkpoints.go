package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/fable/pkg/codec"
	"github.com/aretw0/fable/pkg/domain"
	"github.com/google/uuid"
)

// EvictionStrategy selects which checkpoint is dropped when the collection
// is full.
type EvictionStrategy string

const (
	// EvictOldest drops the checkpoint with the oldest timestamp.
	EvictOldest EvictionStrategy = "oldest"
	// EvictLRU is accepted for compatibility. Checkpoint access is not
	// tracked, so it behaves exactly like EvictOldest.
	EvictLRU EvictionStrategy = "lru"
)

// AutosaveTag marks checkpoints created by autosave. They do not count
// against MaxCheckpoints.
const AutosaveTag = "autosave"

// CheckpointKeyPrefix namespaces checkpoints in storage.
const CheckpointKeyPrefix = "checkpoint/"

// DefaultMaxCheckpoints bounds manual checkpoints when unset.
const DefaultMaxCheckpoints = 20

// CheckpointConfig controls checkpoint retention.
type CheckpointConfig struct {
	MaxCheckpoints int
	Strategy       EvictionStrategy
	// Persist writes checkpoints through to storage and reads them back on
	// restore when they are missing from memory.
	Persist bool
}

func (c CheckpointConfig) withDefaults() CheckpointConfig {
	if c.MaxCheckpoints <= 0 {
		c.MaxCheckpoints = DefaultMaxCheckpoints
	}
	if c.Strategy == "" {
		c.Strategy = EvictOldest
	}
	return c
}

// CheckpointOptions annotates a new checkpoint.
type CheckpointOptions struct {
	Description string
	Tags        []string
	Metadata    map[string]any
}

// CheckpointFilter selects checkpoints by tag. Empty fields match all.
type CheckpointFilter struct {
	Tag        string
	ExcludeTag string
}

func (f CheckpointFilter) match(cp *domain.Checkpoint) bool {
	if f.Tag != "" && !cp.HasTag(f.Tag) {
		return false
	}
	if f.ExcludeTag != "" && cp.HasTag(f.ExcludeTag) {
		return false
	}
	return true
}

// CreateCheckpoint snapshots the target. An empty name is replaced by
// "Checkpoint <n>". Manual checkpoints beyond MaxCheckpoints are evicted.
func (m *Manager) CreateCheckpoint(ctx context.Context, name string, opts CheckpointOptions) (*domain.Checkpoint, error) {
	start := m.clock()
	cp, err := m.createCheckpoint(ctx, name, opts)
	m.report(ctx, "checkpoint", start, err)
	return cp, err
}

func (m *Manager) createCheckpoint(ctx context.Context, name string, opts CheckpointOptions) (*domain.Checkpoint, error) {
	m.mu.Lock()
	m.created++
	n := m.created
	m.mu.Unlock()

	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("Checkpoint %d", n)
	}
	cp := &domain.Checkpoint{
		ID:          uuid.NewString(),
		Name:        name,
		State:       m.target.State(),
		Timestamp:   m.clock(),
		Description: opts.Description,
		Tags:        append([]string(nil), opts.Tags...),
		Metadata:    cloneMap(opts.Metadata),
	}

	if m.cfg.Persist && m.storage != nil {
		if err := m.persistCheckpoint(ctx, cp); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.checkpoints.Set(cp.ID, cp)
	evicted := m.evictLocked()
	m.mu.Unlock()

	for _, id := range evicted {
		m.logger.Debug("checkpoint evicted", "checkpoint_id", id, "strategy", string(m.cfg.Strategy))
		m.deleteStored(ctx, id)
	}

	out := copyCheckpoint(cp)
	return &out, nil
}

// evictLocked drops manual checkpoints over the limit, oldest timestamp
// first with insertion order breaking ties.
func (m *Manager) evictLocked() []string {
	var manual []*domain.Checkpoint
	for pair := m.checkpoints.Oldest(); pair != nil; pair = pair.Next() {
		if !pair.Value.HasTag(AutosaveTag) {
			manual = append(manual, pair.Value)
		}
	}
	over := len(manual) - m.cfg.MaxCheckpoints
	if over <= 0 {
		return nil
	}
	sort.SliceStable(manual, func(i, j int) bool {
		return manual[i].Timestamp.Before(manual[j].Timestamp)
	})
	ids := make([]string, 0, over)
	for _, cp := range manual[:over] {
		m.checkpoints.Delete(cp.ID)
		ids = append(ids, cp.ID)
	}
	return ids
}

// RestoreFromCheckpoint replaces the target's state with a checkpoint.
// An unknown id yields a failed result.
func (m *Manager) RestoreFromCheckpoint(ctx context.Context, id string) LoadResult {
	start := m.clock()
	res := m.restore(ctx, id)
	m.report(ctx, "restore", start, res.Err)
	return res
}

func (m *Manager) restore(ctx context.Context, id string) LoadResult {
	m.mu.Lock()
	cp, ok := m.checkpoints.Get(id)
	m.mu.Unlock()

	if !ok {
		if !m.cfg.Persist || m.storage == nil {
			return failed(fmt.Errorf("checkpoint %q: %w", id, domain.ErrNotFound), nil)
		}
		loaded, err := m.loadStored(ctx, id)
		if err != nil {
			return failed(err, nil)
		}
		cp = loaded
		m.mu.Lock()
		m.checkpoints.Set(cp.ID, cp)
		m.mu.Unlock()
	}

	if err := m.target.Replace(ctx, cp.State, domain.ActionRestore); err != nil {
		return failed(fmt.Errorf("failed to restore checkpoint %q: %w", id, err), nil)
	}
	return LoadResult{Success: true}
}

// Checkpoint returns a copy of a checkpoint held in memory.
func (m *Manager) Checkpoint(id string) (domain.Checkpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints.Get(id)
	if !ok {
		return domain.Checkpoint{}, false
	}
	return copyCheckpoint(cp), true
}

// ListCheckpoints returns copies of the matching checkpoints in creation
// order.
func (m *Manager) ListCheckpoints(filter CheckpointFilter) []domain.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Checkpoint{}
	for pair := m.checkpoints.Oldest(); pair != nil; pair = pair.Next() {
		if filter.match(pair.Value) {
			out = append(out, copyCheckpoint(pair.Value))
		}
	}
	return out
}

// DeleteCheckpoint removes a checkpoint from memory and storage and
// reports whether it was held in memory.
func (m *Manager) DeleteCheckpoint(ctx context.Context, id string) bool {
	m.mu.Lock()
	_, ok := m.checkpoints.Delete(id)
	m.mu.Unlock()
	m.deleteStored(ctx, id)
	return ok
}

// LoadCheckpoints reads persisted checkpoints back into memory, ordered by
// timestamp. It returns how many were loaded.
func (m *Manager) LoadCheckpoints(ctx context.Context) (int, error) {
	if m.storage == nil {
		return 0, errors.New("no storage configured")
	}
	keys, err := m.storage.List(ctx, CheckpointKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	loaded := make([]*domain.Checkpoint, 0, len(keys))
	for _, key := range keys {
		cp, err := m.loadStored(ctx, strings.TrimPrefix(key, CheckpointKeyPrefix))
		if err != nil {
			m.logger.Warn("skipping unreadable checkpoint", "key", key, "err", err)
			continue
		}
		loaded = append(loaded, cp)
	}
	sort.SliceStable(loaded, func(i, j int) bool {
		return loaded[i].Timestamp.Before(loaded[j].Timestamp)
	})

	m.mu.Lock()
	for _, cp := range loaded {
		m.checkpoints.Set(cp.ID, cp)
	}
	m.mu.Unlock()
	return len(loaded), nil
}

func (m *Manager) persistCheckpoint(ctx context.Context, cp *domain.Checkpoint) error {
	data, err := codec.Marshal(cp, domain.CompressionNone)
	if err != nil {
		return err
	}
	if err := m.storage.Save(ctx, CheckpointKeyPrefix+cp.ID, data); err != nil {
		return fmt.Errorf("failed to persist checkpoint %s: %w", cp.ID, err)
	}
	return nil
}

func (m *Manager) loadStored(ctx context.Context, id string) (*domain.Checkpoint, error) {
	data, err := m.storage.Load(ctx, CheckpointKeyPrefix+id)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %q: %w", id, err)
	}
	var cp domain.Checkpoint
	if err := codec.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("checkpoint %q: %w", id, err)
	}
	if cp.ID == "" {
		cp.ID = id
	}
	return &cp, nil
}

func (m *Manager) deleteStored(ctx context.Context, id string) {
	if !m.cfg.Persist || m.storage == nil {
		return
	}
	if err := m.storage.Delete(ctx, CheckpointKeyPrefix+id); err != nil {
		m.logger.Warn("failed to delete stored checkpoint", "checkpoint_id", id, "err", err)
	}
}

func copyCheckpoint(cp *domain.Checkpoint) domain.Checkpoint {
	c := *cp
	c.State = cp.State.Clone()
	c.Tags = append([]string(nil), cp.Tags...)
	c.Metadata = cloneMap(cp.Metadata)
	return c
}
