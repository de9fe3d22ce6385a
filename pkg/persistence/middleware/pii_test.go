package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/fable/internal/runtime"
	"github.com/aretw0/fable/pkg/adapters/memory"
	"github.com/aretw0/fable/pkg/codec"
	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/persistence"
	"github.com/aretw0/fable/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware([]string{"password", "ssn"})
	require.NoError(t, err)
	secure := mw(underlying)

	story, err := domain.NewStory("start", domain.Node{ID: "start"})
	require.NoError(t, err)
	engine, err := runtime.NewEngine(story)
	require.NoError(t, err)
	require.NoError(t, engine.SetFlag(ctx, "username", "jdoe"))
	require.NoError(t, engine.SetFlag(ctx, "user_password", "secret123"))
	require.NoError(t, engine.SetFlag(ctx, "details", map[string]any{"address": "123 St", "ssn_number": "999-99-9999"}))

	mgr := persistence.NewManager(engine, persistence.WithStorage(secure))
	res := mgr.SaveToStorage(ctx, "slot", persistence.SaveOptions{Compression: domain.CompressionZstd})
	require.True(t, res.Success, res.Error)

	v, _ := engine.Flag("user_password")
	assert.Equal(t, "secret123", v, "live state must not be masked")

	raw, err := underlying.Load(ctx, "slot")
	require.NoError(t, err)
	assert.True(t, codec.IsCompressed(raw), "compression must be preserved")

	env, err := persistence.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", env.State.Flags["username"])
	assert.Equal(t, middleware.Mask, env.State.Flags["user_password"])
	details := env.State.Flags["details"].(map[string]any)
	assert.Equal(t, middleware.Mask, details["ssn_number"])
	assert.Equal(t, "123 St", details["address"])
}

func TestPIIMiddleware_PassThrough(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware([]string{"password"})
	require.NoError(t, err)
	store := mw(underlying)

	for _, payload := range [][]byte{[]byte("opaque"), []byte(`{"other":1}`), []byte(`{"state":{"flags":{"safe":1}}}`)} {
		require.NoError(t, store.Save(ctx, "k", payload))
		raw, err := underlying.Load(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, payload, raw)
	}
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	_, err := middleware.NewPIIMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain_MaskThenEncrypt(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	pii, err := middleware.NewPIIMiddleware([]string{"password"})
	require.NoError(t, err)
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)

	store := middleware.Chain(underlying, pii, enc)
	require.NoError(t, store.Save(ctx, "k", []byte(`{"state":{"flags":{"password":"hunter2"}}}`)))

	data, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":{"flags":{"password":"***"}}}`, string(data))
}
