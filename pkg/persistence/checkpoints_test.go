package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/fable/pkg/adapters/memory"
	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(cps []domain.Checkpoint) []string {
	out := []string{}
	for _, cp := range cps {
		out = append(out, cp.Name)
	}
	return out
}

func TestCheckpoints_CreateAndRestore(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	engine := newEngine(t, newStory(t), c)
	mgr := persistence.NewManager(engine, persistence.WithClock(c.Now))

	cp, err := mgr.CreateCheckpoint(ctx, "", persistence.CheckpointOptions{Description: "before the door", Tags: []string{"manual"}})
	require.NoError(t, err)
	assert.Equal(t, "Checkpoint 1", cp.Name)
	assert.NotEmpty(t, cp.ID)
	assert.Equal(t, "start", cp.State.CurrentNodeID)

	_, err = engine.MakeChoice(ctx, 0)
	require.NoError(t, err)

	named, err := mgr.CreateCheckpoint(ctx, "in the vault", persistence.CheckpointOptions{})
	require.NoError(t, err)
	assert.Equal(t, "in the vault", named.Name)

	res := mgr.RestoreFromCheckpoint(ctx, cp.ID)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "start", engine.State().CurrentNodeID)
	assert.Empty(t, engine.Flags())

	res = mgr.RestoreFromCheckpoint(ctx, "does-not-exist")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, domain.ErrNotFound)
	assert.Equal(t, "start", engine.State().CurrentNodeID)

	got, ok := mgr.Checkpoint(named.ID)
	require.True(t, ok)
	got.State.Flags["gold"] = 0
	again, _ := mgr.Checkpoint(named.ID)
	assert.Equal(t, 10, again.State.Flags["gold"], "returned checkpoints are copies")
}

func TestCheckpoints_Eviction(t *testing.T) {
	for _, strategy := range []persistence.EvictionStrategy{persistence.EvictOldest, persistence.EvictLRU} {
		t.Run(string(strategy), func(t *testing.T) {
			ctx := context.Background()
			c := newClock()
			engine := newEngine(t, newStory(t), c)
			mgr := persistence.NewManager(engine,
				persistence.WithClock(c.Now),
				persistence.WithCheckpointConfig(persistence.CheckpointConfig{MaxCheckpoints: 2, Strategy: strategy}),
			)

			for _, name := range []string{"a", "b"} {
				_, err := mgr.CreateCheckpoint(ctx, name, persistence.CheckpointOptions{})
				require.NoError(t, err)
				c.Advance(time.Second)
			}
			_, err := mgr.CreateCheckpoint(ctx, "auto", persistence.CheckpointOptions{Tags: []string{persistence.AutosaveTag}})
			require.NoError(t, err)
			c.Advance(time.Second)

			// Touching "a" does not protect it: access is not tracked.
			first := mgr.ListCheckpoints(persistence.CheckpointFilter{})[0]
			_, _ = mgr.Checkpoint(first.ID)

			_, err = mgr.CreateCheckpoint(ctx, "c", persistence.CheckpointOptions{})
			require.NoError(t, err)

			assert.Equal(t, []string{"b", "auto", "c"}, names(mgr.ListCheckpoints(persistence.CheckpointFilter{})))
			assert.Equal(t, []string{"auto"}, names(mgr.ListCheckpoints(persistence.CheckpointFilter{Tag: persistence.AutosaveTag})))
			assert.Equal(t, []string{"b", "c"}, names(mgr.ListCheckpoints(persistence.CheckpointFilter{ExcludeTag: persistence.AutosaveTag})))
		})
	}
}

func TestCheckpoints_WriteThrough(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	story := newStory(t)
	store := memory.NewStore()
	cfg := persistence.CheckpointConfig{Persist: true, MaxCheckpoints: 5}

	engine := newEngine(t, story, c)
	mgr := persistence.NewManager(engine, persistence.WithStorage(store), persistence.WithCheckpointConfig(cfg), persistence.WithClock(c.Now))
	cp, err := mgr.CreateCheckpoint(ctx, "durable", persistence.CheckpointOptions{})
	require.NoError(t, err)

	ok, err := store.Exists(ctx, persistence.CheckpointKeyPrefix+cp.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// A fresh manager finds the checkpoint in storage on restore.
	other := newEngine(t, story, c)
	require.NoError(t, other.GoToNode(ctx, "vault"))
	fresh := persistence.NewManager(other, persistence.WithStorage(store), persistence.WithCheckpointConfig(cfg))
	res := fresh.RestoreFromCheckpoint(ctx, cp.ID)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "start", other.State().CurrentNodeID)

	// LoadCheckpoints rehydrates the collection.
	third := persistence.NewManager(newEngine(t, story, c), persistence.WithStorage(store), persistence.WithCheckpointConfig(cfg))
	n, err := third.LoadCheckpoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"durable"}, names(third.ListCheckpoints(persistence.CheckpointFilter{})))

	assert.True(t, mgr.DeleteCheckpoint(ctx, cp.ID))
	assert.False(t, mgr.DeleteCheckpoint(ctx, cp.ID))
	ok, _ = store.Exists(ctx, persistence.CheckpointKeyPrefix+cp.ID)
	assert.False(t, ok)
}
