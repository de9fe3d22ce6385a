package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/fable/pkg/adapters/memory"
	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunStorageContract(t, store)
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	payload := []byte("abc")
	require.NoError(t, store.Save(ctx, "k", payload))
	payload[0] = 'z'

	got, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	got[1] = 'z'

	again, _ := store.Load(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestMemoryLoader(t *testing.T) {
	loader, err := memory.NewFromNodes("start",
		domain.Node{ID: "start", Choices: []domain.Choice{{Text: "go", NextNodeID: "end"}}},
		domain.Node{ID: "end"},
	)
	require.NoError(t, err)

	story, err := loader.Load(context.Background())
	require.NoError(t, err)
	node, ok := story.Lookup("end")
	require.True(t, ok)
	assert.Equal(t, "end", node.ID)

	_, err = memory.NewFromNodes("start", domain.Node{})
	assert.Error(t, err)

	bad, err := memory.NewFromNodes("missing", domain.Node{ID: "start"})
	require.NoError(t, err)
	_, err = bad.Load(context.Background())
	assert.Error(t, err)
}
