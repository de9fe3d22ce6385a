package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/fable/pkg/adapters/memory"
	"github.com/aretw0/fable/pkg/persistence/middleware"
	"github.com/aretw0/fable/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespace_Contract(t *testing.T) {
	ports.RunStorageContract(t, middleware.NewNamespace("session/a/")(memory.NewStore()))
}

func TestNamespace_Isolation(t *testing.T) {
	ctx := context.Background()
	shared := memory.NewStore()
	a := middleware.NewNamespace("session/a/")(shared)
	b := middleware.NewNamespace("session/b/")(shared)

	require.NoError(t, a.Save(ctx, "checkpoint/1", []byte("aa")))
	require.NoError(t, b.Save(ctx, "checkpoint/1", []byte("bbb")))

	keys, err := a.List(ctx, "checkpoint/")
	require.NoError(t, err)
	assert.Equal(t, []string{"checkpoint/1"}, keys)

	data, err := b.Load(ctx, "checkpoint/1")
	require.NoError(t, err)
	assert.Equal(t, []byte("bbb"), data)

	stats, err := a.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Keys)
	assert.Equal(t, int64(2), stats.Bytes)

	require.NoError(t, a.Clear(ctx))
	ok, err := b.Exists(ctx, "checkpoint/1")
	require.NoError(t, err)
	assert.True(t, ok, "clearing one namespace must not touch another")

	all, err := shared.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"session/b/checkpoint/1"}, all)
}
