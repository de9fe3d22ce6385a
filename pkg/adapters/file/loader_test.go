package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/fable"
	"github.com/aretw0/fable/pkg/adapters/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStory(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoader_PlaysStory(t *testing.T) {
	p := writeStory(t, "vault.yaml", `
initialNodeId: start
nodes:
  - id: start
    text: A locked door.
    choices:
      - text: Open it
        nextNodeId: vault
        flagRequirements: {hasKey: true}
      - text: Search the room
        nextNodeId: start
        flagEffects: {hasKey: true}
  - id: vault
    text: Gold everywhere.
`)
	ctx := context.Background()
	eng, err := fable.NewFromLoader(ctx, file.NewLoader(p))
	require.NoError(t, err)

	_, err = eng.MakeChoice(ctx, 1)
	require.NoError(t, err)
	node, err := eng.MakeChoice(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "vault", node.ID)
}

func TestLoadStory_Errors(t *testing.T) {
	_, err := file.LoadStory(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read story")

	p := writeStory(t, "bad.json", `{"initialNodeId": "x", "nodes": []}`)
	_, err = file.LoadStory(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.json")
}
