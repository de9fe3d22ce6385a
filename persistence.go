package fable

import (
	"context"
	"time"

	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/history"
	"github.com/aretw0/fable/pkg/persistence"
)

// SaveState captures the live state as a save envelope.
func (e *Engine) SaveState(ctx context.Context, opts persistence.SaveOptions) (*domain.SerializedState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persistence.Save(ctx, opts)
}

// LoadState verifies an envelope and replaces the live state with it.
// On failure the live state is untouched.
func (e *Engine) LoadState(ctx context.Context, env *domain.SerializedState, opts persistence.LoadOptions) persistence.LoadResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persistence.Load(ctx, env, opts)
}

// MarshalState saves and encodes the live state, compressing it when
// opts.Compression names a codec.
func (e *Engine) MarshalState(ctx context.Context, opts persistence.SaveOptions) ([]byte, error) {
	env, err := e.SaveState(ctx, opts)
	if err != nil {
		return nil, err
	}
	return persistence.Encode(env)
}

// UnmarshalState decodes bytes produced by MarshalState and loads them.
func (e *Engine) UnmarshalState(ctx context.Context, data []byte, opts persistence.LoadOptions) persistence.LoadResult {
	env, err := persistence.Decode(data)
	if err != nil {
		return persistence.LoadResult{Error: err.Error(), Err: err}
	}
	return e.LoadState(ctx, env, opts)
}

// SaveToStorage writes the live state to the configured storage under key.
func (e *Engine) SaveToStorage(ctx context.Context, key string, opts persistence.SaveOptions) persistence.SaveResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persistence.SaveToStorage(ctx, key, opts)
}

// LoadFromStorage reads key from the configured storage and loads it.
func (e *Engine) LoadFromStorage(ctx context.Context, key string, opts persistence.LoadOptions) persistence.LoadResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persistence.LoadFromStorage(ctx, key, opts)
}

// CreateCheckpoint stores a named snapshot of the live state. An empty
// name is replaced by "Checkpoint n".
func (e *Engine) CreateCheckpoint(ctx context.Context, name string, opts persistence.CheckpointOptions) (*domain.Checkpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persistence.CreateCheckpoint(ctx, name, opts)
}

// RestoreFromCheckpoint loads a checkpoint into the live state.
func (e *Engine) RestoreFromCheckpoint(ctx context.Context, id string) persistence.LoadResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persistence.RestoreFromCheckpoint(ctx, id)
}

// Checkpoint returns a checkpoint by ID.
func (e *Engine) Checkpoint(id string) (domain.Checkpoint, bool) {
	return e.persistence.Checkpoint(id)
}

// ListCheckpoints returns checkpoints matching filter in creation order.
func (e *Engine) ListCheckpoints(filter persistence.CheckpointFilter) []domain.Checkpoint {
	return e.persistence.ListCheckpoints(filter)
}

// DeleteCheckpoint removes a checkpoint and reports whether it existed.
func (e *Engine) DeleteCheckpoint(ctx context.Context, id string) bool {
	return e.persistence.DeleteCheckpoint(ctx, id)
}

// LoadCheckpoints reads checkpoints previously written through to storage.
func (e *Engine) LoadCheckpoints(ctx context.Context) (int, error) {
	return e.persistence.LoadCheckpoints(ctx)
}

// Undo restores the state before the last tracked mutation.
func (e *Engine) Undo(ctx context.Context) history.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Undo(ctx)
}

// Redo re-applies the last undone mutation.
func (e *Engine) Redo(ctx context.Context) history.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Redo(ctx)
}

// CanUndo reports whether Undo has anything to restore.
func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanUndo()
}

// CanRedo reports whether Redo has anything to re-apply.
func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanRedo()
}

// HistoryEntries returns copies of the undo and redo stacks, oldest first.
func (e *Engine) HistoryEntries() (undo, redo []domain.HistoryEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Entries()
}

// ClearHistory empties both stacks.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.Clear()
}

// SetHistoryLimits changes the stack bounds, trimming the oldest entries.
func (e *Engine) SetHistoryLimits(maxUndo, maxRedo int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.SetLimits(maxUndo, maxRedo)
}

// Autosave fires the custom trigger.
func (e *Engine) Autosave(ctx context.Context) history.AutosaveResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Autosave(ctx, history.TriggerCustom)
}

// AutosaveConfig returns the active autosave configuration.
func (e *Engine) AutosaveConfig() history.AutosaveConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.AutosaveConfig()
}

// SetAutosaveEnabled toggles autosave.
func (e *Engine) SetAutosaveEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.SetAutosaveEnabled(enabled)
}

// SetAutosaveInterval changes the autosave throttle window.
func (e *Engine) SetAutosaveInterval(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.SetAutosaveInterval(d)
}

// SetAutosaveTriggers replaces the autosave trigger set.
func (e *Engine) SetAutosaveTriggers(triggers ...history.Trigger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.SetAutosaveTriggers(triggers...)
}

// SetMaxAutosaves changes how many autosave checkpoints are kept.
func (e *Engine) SetMaxAutosaves(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.SetMaxAutosaves(n)
}
