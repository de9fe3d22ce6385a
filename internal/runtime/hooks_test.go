package runtime_test

import (
	"context"
	"testing"

	"github.com/aretw0/fable/internal/runtime"
	"github.com/aretw0/fable/pkg/domain"
)

func TestEngine_LifecycleHooks(t *testing.T) {
	var entered []string
	var choices []string
	var flags []string
	var conditionErrors []string
	var rejected []string

	hooks := domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			entered = append(entered, e.NodeID+":"+string(e.Cause))
		},
		OnChoiceMade: func(ctx context.Context, e *domain.ChoiceEvent) {
			choices = append(choices, e.FromNodeID+">"+e.ToNodeID)
		},
		OnFlagSet: func(ctx context.Context, e *domain.FlagEvent) {
			flags = append(flags, e.Key)
		},
		OnConditionError: func(ctx context.Context, e *domain.ConditionEvent) {
			conditionErrors = append(conditionErrors, e.Expression)
		},
		OnValidationFailed: func(ctx context.Context, e *domain.ValidationEvent) {
			rejected = append(rejected, e.Rule)
		},
	}

	engine, err := runtime.NewEngine(branchStory(t), runtime.WithLifecycleHooks(hooks), runtime.WithSessionID("s-1"))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	ctx := context.Background()

	if _, err := engine.MakeChoice(ctx, 1); err == nil {
		t.Fatal("expected the locked choice to be rejected")
	}
	if len(rejected) != 1 || rejected[0] != "flag-requirements" {
		t.Errorf("expected one flag-requirements rejection, got %v", rejected)
	}
	if len(conditionErrors) == 0 || conditionErrors[0] != "flags.a.b.c" {
		t.Errorf("expected the broken condition to be reported, got %v", conditionErrors)
	}

	if _, err := engine.MakeChoice(ctx, 0); err != nil {
		t.Fatalf("MakeChoice failed: %v", err)
	}
	if len(choices) != 1 || choices[0] != "hall>library" {
		t.Errorf("unexpected choice events: %v", choices)
	}
	if len(flags) != 1 || flags[0] != "visited" {
		t.Errorf("flag effects should fire OnFlagSet, got %v", flags)
	}

	if err := engine.GoToNode(ctx, "crypt"); err != nil {
		t.Fatalf("GoToNode failed: %v", err)
	}
	engine.Reset(ctx)

	want := []string{"library:choice_made", "crypt:navigated", "hall:reset"}
	if len(entered) != len(want) {
		t.Fatalf("expected %v, got %v", want, entered)
	}
	for i := range want {
		if entered[i] != want[i] {
			t.Errorf("enter[%d]: expected %s, got %s", i, want[i], entered[i])
		}
	}
}
