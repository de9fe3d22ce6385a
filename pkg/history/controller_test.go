package history_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/fable/internal/runtime"
	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *clock {
	return &clock{now: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)}
}

// wired builds an engine whose mutations feed the controller, mirroring how
// the facade connects them.
func wired(t *testing.T, opts ...history.Option) (*runtime.Engine, *history.Controller) {
	t.Helper()
	story, err := domain.NewStory("a",
		domain.Node{ID: "a", Choices: []domain.Choice{{Text: "next", NextNodeID: "b"}}},
		domain.Node{ID: "b", Choices: []domain.Choice{{Text: "next", NextNodeID: "c"}}},
		domain.Node{ID: "c"},
	)
	require.NoError(t, err)

	var ctrl *history.Controller
	engine, err := runtime.NewEngine(story, runtime.WithMutationObserver(func(ctx context.Context, m runtime.Mutation) {
		ctrl.Track(m.Action, m.Before)
		if trigger, ok := history.TriggerFor(m.Action); ok {
			ctrl.Autosave(ctx, trigger)
		}
	}))
	require.NoError(t, err)
	ctrl = history.New(engine, opts...)
	return engine, ctrl
}

func TestController_Linearity(t *testing.T) {
	ctx := context.Background()
	engine, ctrl := wired(t)

	require.NoError(t, engine.SetFlag(ctx, "x", 1))
	_, err := engine.MakeChoice(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, engine.SetFlag(ctx, "x", 2))
	_, err = engine.MakeChoice(ctx, 0)
	require.NoError(t, err)
	final := engine.State()

	for i := 0; i < 4; i++ {
		res := ctrl.Undo(ctx)
		require.True(t, res.Success, res.Error)
	}
	assert.Equal(t, "a", engine.State().CurrentNodeID)
	assert.Empty(t, engine.Flags())
	assert.False(t, ctrl.CanUndo())

	for i := 0; i < 4; i++ {
		res := ctrl.Redo(ctx)
		require.True(t, res.Success, res.Error)
	}
	assert.Equal(t, final, engine.State())
	assert.False(t, ctrl.CanRedo())
}

func TestController_NewMutationClearsRedo(t *testing.T) {
	ctx := context.Background()
	engine, ctrl := wired(t)

	require.NoError(t, engine.SetFlag(ctx, "x", 1))
	require.NoError(t, engine.SetFlag(ctx, "x", 2))
	require.True(t, ctrl.Undo(ctx).Success)
	assert.True(t, ctrl.CanRedo())

	require.NoError(t, engine.SetFlag(ctx, "y", true))
	assert.False(t, ctrl.CanRedo())
	assert.False(t, ctrl.Redo(ctx).Success)
}

func TestController_EmptyStacks(t *testing.T) {
	ctx := context.Background()
	_, ctrl := wired(t)

	res := ctrl.Undo(ctx)
	assert.False(t, res.Success)
	assert.Equal(t, "nothing to undo", res.Error)

	res = ctrl.Redo(ctx)
	assert.False(t, res.Success)
	assert.Equal(t, "nothing to redo", res.Error)
}

func TestController_UndoIsNotTracked(t *testing.T) {
	ctx := context.Background()
	engine, ctrl := wired(t)

	require.NoError(t, engine.SetFlag(ctx, "x", 1))
	res := ctrl.Undo(ctx)
	require.True(t, res.Success)
	assert.Equal(t, 1, res.UndoBefore)
	assert.Equal(t, 0, res.UndoAfter)
	assert.Equal(t, 0, res.RedoBefore)
	assert.Equal(t, 1, res.RedoAfter)
	require.NotNil(t, res.Entry)
	assert.Equal(t, domain.ActionFlag, res.Entry.Action)
}

func TestController_Bounded(t *testing.T) {
	ctx := context.Background()
	engine, ctrl := wired(t, history.WithConfig(history.Config{MaxUndo: 3, MaxRedo: 2}))

	for i := 0; i < 5; i++ {
		require.NoError(t, engine.SetFlag(ctx, "n", i))
	}
	undo, _ := ctrl.Entries()
	require.Len(t, undo, 3)
	// Only the pre-states of the last three mutations survive.
	assert.Equal(t, 1, undo[0].State.Flags["n"])
	assert.Equal(t, 3, undo[2].State.Flags["n"])

	for i := 0; i < 3; i++ {
		ctrl.Undo(ctx)
	}
	_, redo := ctrl.Entries()
	assert.Len(t, redo, 2)

	ctrl.SetLimits(1, 1)
	_, redo = ctrl.Entries()
	assert.Len(t, redo, 1)
}

func TestController_TrackedActions(t *testing.T) {
	ctx := context.Background()
	engine, ctrl := wired(t, history.WithConfig(history.Config{TrackedActions: []string{domain.ActionChoice}}))

	require.NoError(t, engine.SetFlag(ctx, "x", 1))
	assert.False(t, ctrl.CanUndo())
	_, err := engine.MakeChoice(ctx, 0)
	require.NoError(t, err)
	assert.True(t, ctrl.CanUndo())

	ctrl.SetTrackedActions(domain.ActionFlag)
	ctrl.Clear()
	require.NoError(t, engine.SetFlag(ctx, "x", 2))
	assert.True(t, ctrl.CanUndo())
}

func TestController_EntriesAreCopies(t *testing.T) {
	ctx := context.Background()
	engine, ctrl := wired(t)
	require.NoError(t, engine.SetFlag(ctx, "bag", map[string]any{"coins": 1}))
	require.NoError(t, engine.SetFlag(ctx, "bag", map[string]any{"coins": 2}))

	undo, _ := ctrl.Entries()
	undo[1].State.Flags["bag"].(map[string]any)["coins"] = 99

	require.True(t, ctrl.Undo(ctx).Success)
	v, _ := engine.Flag("bag")
	assert.Equal(t, 1, v.(map[string]any)["coins"])
}

func TestController_HistoryHooks(t *testing.T) {
	ctx := context.Background()
	var ops []string
	hooks := domain.LifecycleHooks{
		OnHistory: func(_ context.Context, ev *domain.HistoryEvent) {
			ops = append(ops, fmt.Sprintf("%s:%v", ev.Operation, ev.Success))
		},
	}
	engine, ctrl := wired(t, history.WithLifecycleHooks(hooks))
	require.NoError(t, engine.SetFlag(ctx, "x", 1))
	ctrl.Undo(ctx)
	ctrl.Undo(ctx)
	ctrl.Redo(ctx)
	assert.Equal(t, []string{"undo:true", "undo:false", "redo:true"}, ops)
}
