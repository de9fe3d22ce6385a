package fable_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/fable"
	"github.com/aretw0/fable/pkg/adapters/memory"
	"github.com/aretw0/fable/pkg/condition"
	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/history"
	"github.com/aretw0/fable/pkg/persistence"
	"github.com/aretw0/fable/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return epoch }

func vaultStory(t *testing.T) *domain.Story {
	t.Helper()
	story, err := domain.NewStory("start",
		domain.Node{ID: "start", Text: "A locked door.", Choices: []domain.Choice{
			{Text: "go", NextNodeID: "vault", FlagRequirements: map[string]any{"hasKey": true}},
			{Text: "search", NextNodeID: "start", FlagEffects: map[string]any{"hasKey": true}},
		}},
		domain.Node{ID: "vault", Text: "Gold everywhere."},
	)
	require.NoError(t, err)
	return story
}

func TestNew_RequiresStory(t *testing.T) {
	_, err := fable.New(nil)
	require.Error(t, err)
}

func TestNew_FromLoader(t *testing.T) {
	loader, err := memory.NewFromNodes("a", domain.Node{ID: "a", Text: "Alpha"})
	require.NoError(t, err)

	engine, err := fable.NewFromLoader(context.Background(), loader)
	require.NoError(t, err)

	node, err := engine.CurrentNode()
	require.NoError(t, err)
	assert.Equal(t, "Alpha", node.Text)
	assert.True(t, engine.IsTerminal(context.Background()))
}

func TestEngine_VaultExample(t *testing.T) {
	ctx := context.Background()
	engine, err := fable.New(vaultStory(t), fable.WithClock(fixedClock))
	require.NoError(t, err)

	options := engine.Options(ctx)
	require.Len(t, options, 2)
	assert.False(t, options[0].Available)
	assert.Equal(t, "flag-requirements", options[0].Rule)

	_, err = engine.MakeChoice(ctx, 0)
	var cve *domain.ChoiceValidationError
	require.ErrorAs(t, err, &cve)

	_, err = engine.MakeChoice(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, engine.AvailableChoices(ctx), 2)

	node, err := engine.MakeChoice(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "vault", node.ID)
	assert.Equal(t, []string{"start", "start", "vault"}, engine.History())
	assert.True(t, engine.IsTerminal(ctx))
}

func TestEngine_MakeChoiceIndexesOptions(t *testing.T) {
	ctx := context.Background()
	engine, err := fable.New(vaultStory(t), fable.WithClock(fixedClock))
	require.NoError(t, err)

	available := engine.AvailableChoices(ctx)
	require.Len(t, available, 1)
	assert.Equal(t, "search", available[0].Text)

	var search int
	for _, o := range engine.Options(ctx) {
		if o.Choice.Text == "search" {
			search = o.Index
		}
	}
	require.Equal(t, 1, search, "the locked choice keeps its slot in Options")

	_, err = engine.MakeChoice(ctx, 0)
	require.Error(t, err, "index 0 is the locked door, not the first available choice")

	_, err = engine.MakeChoice(ctx, search)
	require.NoError(t, err)
	v, _ := engine.Flag("hasKey")
	assert.Equal(t, true, v)
}

func TestEngine_UndoRedo(t *testing.T) {
	ctx := context.Background()
	engine, err := fable.New(vaultStory(t), fable.WithClock(fixedClock))
	require.NoError(t, err)
	assert.False(t, engine.CanUndo())

	_, err = engine.MakeChoice(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, engine.SetFlag(ctx, "torch", true))
	assert.True(t, engine.CanUndo())

	res := engine.Undo(ctx)
	require.True(t, res.Success, res.Error)
	_, ok := engine.Flag("torch")
	assert.False(t, ok)

	res = engine.Undo(ctx)
	require.True(t, res.Success, res.Error)
	_, ok = engine.Flag("hasKey")
	assert.False(t, ok)
	assert.Equal(t, []string{"start"}, engine.History())
	assert.False(t, engine.CanUndo())

	res = engine.Redo(ctx)
	require.True(t, res.Success, res.Error)
	v, ok := engine.Flag("hasKey")
	require.True(t, ok)
	assert.Equal(t, true, v)

	undo, redo := engine.HistoryEntries()
	assert.Len(t, undo, 1)
	assert.Len(t, redo, 1)

	engine.ClearHistory()
	assert.False(t, engine.CanUndo())
	assert.False(t, engine.CanRedo())
}

func TestEngine_StorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	engine, err := fable.New(vaultStory(t), fable.WithClock(fixedClock), fable.WithStorage(store))
	require.NoError(t, err)

	_, err = engine.MakeChoice(ctx, 1)
	require.NoError(t, err)
	saved := engine.SaveToStorage(ctx, "slot-1", persistence.SaveOptions{Checksum: true, Compression: domain.CompressionZstd})
	require.True(t, saved.Success, saved.Error)

	engine.Reset(ctx)
	_, ok := engine.Flag("hasKey")
	require.False(t, ok)

	loaded := engine.LoadFromStorage(ctx, "slot-1", persistence.LoadOptions{VerifyChecksum: true})
	require.True(t, loaded.Success, loaded.Error)
	v, ok := engine.Flag("hasKey")
	require.True(t, ok)
	assert.Equal(t, true, v)
	assert.Equal(t, []string{"start", "start"}, engine.History())

	// Loading is undoable.
	require.True(t, engine.CanUndo())
}

func TestEngine_MarshalState(t *testing.T) {
	ctx := context.Background()
	engine, err := fable.New(vaultStory(t), fable.WithClock(fixedClock))
	require.NoError(t, err)
	require.NoError(t, engine.SetFlag(ctx, "hasKey", true))

	data, err := engine.MarshalState(ctx, persistence.SaveOptions{IncludeFlowEvents: true})
	require.NoError(t, err)

	other, err := fable.New(vaultStory(t), fable.WithClock(fixedClock))
	require.NoError(t, err)
	res := other.UnmarshalState(ctx, data, persistence.LoadOptions{})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, engine.Flags(), other.Flags())
	assert.NotEmpty(t, other.Events())

	res = other.UnmarshalState(ctx, []byte("not json"), persistence.LoadOptions{})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, domain.ErrInvalidEnvelope)
}

func TestEngine_Checkpoints(t *testing.T) {
	ctx := context.Background()
	engine, err := fable.New(vaultStory(t), fable.WithClock(fixedClock))
	require.NoError(t, err)

	cp, err := engine.CreateCheckpoint(ctx, "", persistence.CheckpointOptions{Tags: []string{"door"}})
	require.NoError(t, err)
	assert.Equal(t, "Checkpoint 1", cp.Name)

	_, err = engine.MakeChoice(ctx, 1)
	require.NoError(t, err)

	res := engine.RestoreFromCheckpoint(ctx, cp.ID)
	require.True(t, res.Success, res.Error)
	_, ok := engine.Flag("hasKey")
	assert.False(t, ok)

	assert.Len(t, engine.ListCheckpoints(persistence.CheckpointFilter{Tag: "door"}), 1)
	assert.True(t, engine.DeleteCheckpoint(ctx, cp.ID))
	assert.Empty(t, engine.ListCheckpoints(persistence.CheckpointFilter{}))
}

func TestEngine_AutosaveOnChoice(t *testing.T) {
	ctx := context.Background()
	var events []*domain.AutosaveEvent
	engine, err := fable.New(vaultStory(t),
		fable.WithClock(fixedClock),
		fable.WithAutosave(history.AutosaveConfig{Enabled: true, Triggers: []history.Trigger{history.TriggerChoice}}),
		fable.WithLifecycleHooks(domain.LifecycleHooks{
			OnAutosave: func(_ context.Context, ev *domain.AutosaveEvent) { events = append(events, ev) },
		}),
	)
	require.NoError(t, err)

	require.NoError(t, engine.SetFlag(ctx, "x", 1))
	assert.Empty(t, events, "flag trigger is not configured")

	_, err = engine.MakeChoice(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Saved)

	saves := engine.ListCheckpoints(persistence.CheckpointFilter{Tag: persistence.AutosaveTag})
	require.Len(t, saves, 1)
	assert.Equal(t, events[0].CheckpointID, saves[0].ID)

	engine.SetAutosaveTriggers(history.TriggerCustom)
	res := engine.Autosave(ctx)
	assert.True(t, res.Saved)
	assert.Equal(t, []history.Trigger{history.TriggerCustom}, engine.AutosaveConfig().Triggers)
}

func TestEngine_CustomRule(t *testing.T) {
	ctx := context.Background()
	engine, err := fable.New(vaultStory(t))
	require.NoError(t, err)

	require.NoError(t, engine.RegisterRule(validation.Rule{
		Name:     "no-searching",
		Priority: 5,
		Check: func(c domain.Choice, _ validation.Context) domain.ValidationResult {
			if c.Text == "search" {
				return domain.Invalid("searching is forbidden")
			}
			return domain.Valid()
		},
	}))
	assert.Contains(t, engine.Rules(), "no-searching")
	assert.Empty(t, engine.AvailableChoices(ctx))

	assert.True(t, engine.RemoveRule("no-searching"))
	assert.Len(t, engine.AvailableChoices(ctx), 1)
}

func TestEngine_CustomEvaluator(t *testing.T) {
	ctx := context.Background()
	story, err := domain.NewStory("a",
		domain.Node{ID: "a", Choices: []domain.Choice{
			{Text: "yes", NextNodeID: "b", Condition: "ALWAYS"},
			{Text: "no", NextNodeID: "b", Condition: "NEVER"},
		}},
		domain.Node{ID: "b"},
	)
	require.NoError(t, err)

	engine, err := fable.New(story, fable.WithCustomEvaluator(func(expr string, _ condition.Context) (bool, error) {
		return expr == "ALWAYS", nil
	}))
	require.NoError(t, err)
	choices := engine.AvailableChoices(ctx)
	require.Len(t, choices, 1)
	assert.Equal(t, "yes", choices[0].Text)
}

func TestEngine_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	engine, err := fable.New(vaultStory(t))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = engine.SetFlag(ctx, "counter", i*100+j)
				_ = engine.Options(ctx)
				_ = engine.Flags()
				if j%10 == 0 {
					engine.Undo(ctx)
				}
			}
		}(i)
	}
	wg.Wait()

	_, ok := engine.Flag("counter")
	assert.True(t, ok)
	assert.Equal(t, "start", engine.State().CurrentNodeID)
}
