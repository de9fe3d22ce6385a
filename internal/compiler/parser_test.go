package compiler_test

import (
	"testing"
	"time"

	"github.com/aretw0/fable/internal/compiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vaultYAML = `
initialNodeId: start
nodes:
  - id: start
    text: A locked door.
    choices:
      - text: Open it
        nextNodeId: vault
        flagRequirements:
          hasKey: true
      - text: Search the room
        nextNodeId: start
        flagEffects:
          hasKey: true
        condition: "!flags.hasKey"
  - id: vault
    text: Gold everywhere.
    metadata:
      mood: triumphant
`

func TestParser_YAML(t *testing.T) {
	story, err := compiler.NewParser().Parse([]byte(vaultYAML))
	require.NoError(t, err)

	assert.Equal(t, "start", story.InitialNodeID)
	assert.Equal(t, []string{"start", "vault"}, story.NodeIDs())

	start, ok := story.Lookup("start")
	require.True(t, ok)
	require.Len(t, start.Choices, 2)
	assert.Equal(t, map[string]any{"hasKey": true}, start.Choices[0].FlagRequirements)
	assert.Equal(t, "!flags.hasKey", start.Choices[1].Condition)

	vault, _ := story.Lookup("vault")
	assert.Equal(t, "triumphant", vault.Metadata["mood"])
	assert.NotEmpty(t, story.Hash())
}

func TestParser_JSON(t *testing.T) {
	doc := `{"initialNodeId":"a","nodes":[{"id":"a","text":"A","choices":[{"text":"go","nextNodeId":"b","enabled":false}]},{"id":"b","text":"B"}]}`
	story, err := compiler.NewParser().Parse([]byte(doc))
	require.NoError(t, err)

	a, _ := story.Lookup("a")
	require.Len(t, a.Choices, 1)
	assert.True(t, a.Choices[0].IsDisabled())
}

func TestParser_TimeRequirements(t *testing.T) {
	doc := `
initialNodeId: a
nodes:
  - id: a
    choices:
      - text: wait
        nextNodeId: a
        timeRequirements:
          availableAfter: "2024-01-01T00:00:00Z"
          minTime: 90s
          maxTime: 600
`
	story, err := compiler.NewParser().Parse([]byte(doc))
	require.NoError(t, err)

	a, _ := story.Lookup("a")
	tr := a.Choices[0].TimeRequirements
	require.NotNil(t, tr)
	require.NotNil(t, tr.AvailableAfter)
	assert.True(t, tr.AvailableAfter.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NotNil(t, tr.MinTime)
	assert.Equal(t, 90*time.Second, *tr.MinTime)
	require.NotNil(t, tr.MaxTime)
	assert.Equal(t, 10*time.Minute, *tr.MaxTime)
	assert.Nil(t, tr.AvailableBefore)
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "", "empty document"},
		{"syntax", "nodes: [", "failed to parse story"},
		{"unknown key", "initialNodeId: a\nnodes:\n  - id: a\n    txt: typo\n", "txt"},
		{"missing initial", "initialNodeId: z\nnodes:\n  - id: a\n", "initial node"},
		{"duplicate", "initialNodeId: a\nnodes:\n  - id: a\n  - id: a\n", "duplicate"},
		{"bad duration", "initialNodeId: a\nnodes:\n  - id: a\n    choices:\n      - nextNodeId: a\n        timeRequirements:\n          minTime: soon\n", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compiler.NewParser().Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParser_Lenient(t *testing.T) {
	p := &compiler.Parser{Strict: false}
	_, err := p.Parse([]byte("initialNodeId: a\nnodes:\n  - id: a\n    notes: ignored\n"))
	assert.NoError(t, err)
}
