package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/fable/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStorageContract runs a suite of tests to verify that a Storage
// implementation adheres to the interface contract. The store should be
// empty or dedicated to the test.
func RunStorageContract(t *testing.T, store Storage) {
	ctx := context.Background()
	prefix := "contract-" + time.Now().Format("20060102150405") + "/"

	t.Run("Save and Load", func(t *testing.T) {
		key := prefix + "save"
		payload := []byte(`{"state":{"currentNodeId":"start"}}`)

		require.NoError(t, store.Save(ctx, key, payload), "Save should not return error")

		loaded, err := store.Load(ctx, key)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, payload, loaded)

		// Overwrite
		require.NoError(t, store.Save(ctx, key, []byte("v2")))
		loaded, err = store.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), loaded)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, prefix+"missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Exists and Delete", func(t *testing.T) {
		key := prefix + "delete"
		require.NoError(t, store.Save(ctx, key, []byte("x")))

		ok, err := store.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, store.Delete(ctx, key), "Delete should not return error")
		ok, err = store.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = store.Load(ctx, key)
		assert.ErrorIs(t, err, domain.ErrNotFound, "Load after Delete should return ErrNotFound")

		assert.NoError(t, store.Delete(ctx, key), "deleting a missing key is not an error")
	})

	t.Run("List", func(t *testing.T) {
		a := prefix + "list/a"
		b := prefix + "list/b"
		require.NoError(t, store.Save(ctx, b, []byte("b")))
		require.NoError(t, store.Save(ctx, a, []byte("a")))
		require.NoError(t, store.Save(ctx, prefix+"other", []byte("o")))

		keys, err := store.List(ctx, prefix+"list/")
		require.NoError(t, err)
		assert.Equal(t, []string{a, b}, keys)
	})

	t.Run("Stats and Clear", func(t *testing.T) {
		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, stats.Backend)
		assert.Positive(t, stats.Keys)

		require.NoError(t, store.Clear(ctx))
		keys, err := store.List(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, keys)

		stats, err = store.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.Keys)
	})
}
