package validation_test

import (
	"testing"
	"time"

	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func ptrTime(t time.Time) *time.Time           { return &t }
func ptrDuration(d time.Duration) *time.Duration { return &d }

func newContext(node *domain.Node, flags map[string]any) validation.Context {
	state := domain.NewState(node.ID, now.Add(-10*time.Minute))
	for k, v := range flags {
		state.Flags[k] = v
	}
	return validation.Context{Node: node, State: state, Timestamp: now}
}

func TestPipeline_StandardOrder(t *testing.T) {
	p := validation.New()
	assert.Equal(t, []string{
		validation.RuleChoiceExists,
		validation.RuleFlagRequirements,
		validation.RuleChoiceEnabled,
		validation.RuleTimeRequirements,
		validation.RuleInventoryRequirements,
	}, p.Rules())
}

func TestPipeline_ChoiceExists(t *testing.T) {
	node := &domain.Node{ID: "start", Choices: []domain.Choice{{Text: "go", NextNodeID: "vault"}}}
	p := validation.New()

	res := p.Validate(domain.Choice{Text: "go", NextNodeID: "vault"}, newContext(node, nil))
	assert.True(t, res.Valid)

	res = p.Validate(domain.Choice{Text: "fly", NextNodeID: "sky"}, newContext(node, nil))
	assert.False(t, res.Valid)
	assert.Equal(t, validation.RuleChoiceExists, res.Rule)
	assert.Equal(t, []string{"choice:unknown"}, res.FailedConditions)

	ctx := newContext(node, nil)
	ctx.State.CurrentNodeID = "elsewhere"
	res = p.Validate(node.Choices[0], ctx)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"node:stale"}, res.FailedConditions)
}

func TestPipeline_FlagRequirements(t *testing.T) {
	tests := []struct {
		name  string
		req   map[string]any
		flags map[string]any
		valid bool
	}{
		{"true requires set", map[string]any{"hasKey": true}, map[string]any{"hasKey": true}, true},
		{"true fails when absent", map[string]any{"hasKey": true}, nil, false},
		{"true fails when false", map[string]any{"hasKey": true}, map[string]any{"hasKey": false}, false},
		{"false passes when absent", map[string]any{"cursed": false}, nil, true},
		{"false fails when set", map[string]any{"cursed": false}, map[string]any{"cursed": "yes"}, false},
		{"value must equal", map[string]any{"gold": 10}, map[string]any{"gold": 10.0}, true},
		{"value mismatch", map[string]any{"gold": 10}, map[string]any{"gold": 9}, false},
		{"value absent", map[string]any{"class": "mage"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := &domain.Node{ID: "start", Choices: []domain.Choice{{Text: "go", NextNodeID: "x", FlagRequirements: tt.req}}}
			res := validation.New().Validate(node.Choices[0], newContext(node, tt.flags))
			assert.Equal(t, tt.valid, res.Valid, res.Reason)
			if !tt.valid {
				assert.Equal(t, validation.RuleFlagRequirements, res.Rule)
				assert.NotEmpty(t, res.FailedConditions)
			}
		})
	}
}

func TestPipeline_Enabled(t *testing.T) {
	node := &domain.Node{ID: "start", Choices: []domain.Choice{
		{Text: "explicit on", NextNodeID: "a", Enabled: domain.Enabled(true)},
		{Text: "default", NextNodeID: "b"},
		{Text: "off", NextNodeID: "c", Enabled: domain.Enabled(false)},
	}}
	p := validation.New()
	available := p.AvailableChoices(newContext(node, nil))
	require.Len(t, available, 2)
	assert.Equal(t, "explicit on", available[0].Text)
	assert.Equal(t, "default", available[1].Text)

	res := p.Validate(node.Choices[2], newContext(node, nil))
	assert.Equal(t, validation.RuleChoiceEnabled, res.Rule)
	assert.Len(t, res.SuggestedChoices, 2)
}

func TestPipeline_TimeRequirements(t *testing.T) {
	tests := []struct {
		name   string
		req    domain.TimeRequirements
		valid  bool
		failed string
	}{
		{"after passed", domain.TimeRequirements{AvailableAfter: ptrTime(now.Add(-time.Hour))}, true, ""},
		{"after pending", domain.TimeRequirements{AvailableAfter: ptrTime(now.Add(time.Hour))}, false, "time:availableAfter"},
		{"before open", domain.TimeRequirements{AvailableBefore: ptrTime(now.Add(time.Hour))}, true, ""},
		{"before closed", domain.TimeRequirements{AvailableBefore: ptrTime(now.Add(-time.Hour))}, false, "time:availableBefore"},
		{"min elapsed met", domain.TimeRequirements{MinTime: ptrDuration(5 * time.Minute)}, true, ""},
		{"min elapsed not met", domain.TimeRequirements{MinTime: ptrDuration(time.Hour)}, false, "time:minTime"},
		{"max elapsed exceeded", domain.TimeRequirements{MaxTime: ptrDuration(time.Minute)}, false, "time:maxTime"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			node := &domain.Node{ID: "start", Choices: []domain.Choice{{Text: "go", NextNodeID: "x", TimeRequirements: &req}}}
			res := validation.New().Validate(node.Choices[0], newContext(node, nil))
			assert.Equal(t, tt.valid, res.Valid)
			if !tt.valid {
				assert.Contains(t, res.FailedConditions, tt.failed)
			}
		})
	}
}

func TestPipeline_TimeUsesClockWhenUnset(t *testing.T) {
	node := &domain.Node{ID: "start", Choices: []domain.Choice{{
		Text: "go", NextNodeID: "x",
		TimeRequirements: &domain.TimeRequirements{AvailableAfter: ptrTime(now)},
	}}}
	ctx := newContext(node, nil)
	ctx.Timestamp = time.Time{}

	early := validation.New(validation.WithClock(func() time.Time { return now.Add(-time.Second) }))
	assert.False(t, early.Validate(node.Choices[0], ctx).Valid)

	late := validation.New(validation.WithClock(func() time.Time { return now.Add(time.Second) }))
	assert.True(t, late.Validate(node.Choices[0], ctx).Valid)
}

func TestPipeline_Inventory(t *testing.T) {
	node := &domain.Node{ID: "start", Choices: []domain.Choice{{
		Text: "climb", NextNodeID: "cliff",
		InventoryRequirements: map[string]float64{"rope": 2, "torch": 1},
	}}}
	p := validation.New()

	res := p.Validate(node.Choices[0], newContext(node, map[string]any{
		"inventory": map[string]any{"rope": 2, "torch": 3.0},
	}))
	assert.True(t, res.Valid)

	res = p.Validate(node.Choices[0], newContext(node, map[string]any{
		"inventory": map[string]any{"rope": 1},
	}))
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"inventory:rope", "inventory:torch"}, res.FailedConditions)
	assert.Equal(t, map[string]any{"rope": 1.0, "torch": 1.0}, res.Metadata["missing"])

	res = p.Validate(node.Choices[0], newContext(node, nil))
	assert.False(t, res.Valid)
}

func TestPipeline_InventoryTypedMaps(t *testing.T) {
	node := &domain.Node{ID: "start", Choices: []domain.Choice{{
		Text: "pay", NextNodeID: "market",
		InventoryRequirements: map[string]float64{"coin": 2},
	}}}
	p := validation.New()

	tests := []struct {
		name      string
		inventory any
		valid     bool
	}{
		{"ints", map[string]int{"coin": 5}, true},
		{"int64s", map[string]int64{"coin": 2}, true},
		{"floats short", map[string]float64{"coin": 1.5}, false},
		{"uint8s", map[string]uint8{"gem": 9}, false},
		{"not a map", []int{5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Validate(node.Choices[0], newContext(node, map[string]any{"inventory": tt.inventory}))
			assert.Equal(t, tt.valid, res.Valid, res.Reason)
			if !tt.valid {
				assert.Equal(t, []string{"inventory:coin"}, res.FailedConditions)
			}
		})
	}
}

func TestPipeline_ShortCircuit(t *testing.T) {
	node := &domain.Node{ID: "start", Choices: []domain.Choice{{
		Text: "go", NextNodeID: "x",
		FlagRequirements: map[string]any{"hasKey": true},
		Enabled:          domain.Enabled(false),
	}}}
	res := validation.New().Validate(node.Choices[0], newContext(node, nil))
	assert.Equal(t, validation.RuleFlagRequirements, res.Rule, "the lower priority rule reports first")
}

func TestPipeline_RegisterAndRemove(t *testing.T) {
	node := &domain.Node{ID: "start", Choices: []domain.Choice{
		{Text: "north", NextNodeID: "n"},
		{Text: "south", NextNodeID: "s"},
	}}
	p := validation.New()

	noSouth := validation.Rule{Name: "no-south", Priority: 5, Check: func(c domain.Choice, _ validation.Context) domain.ValidationResult {
		if c.Text == "south" {
			return domain.Invalid("south is closed", "custom:south")
		}
		return domain.Valid()
	}}
	require.NoError(t, p.Register(noSouth))
	assert.Equal(t, "no-south", p.Rules()[0])

	available := p.AvailableChoices(newContext(node, nil))
	require.Len(t, available, 1)
	assert.Equal(t, "north", available[0].Text)

	res := p.Validate(node.Choices[1], newContext(node, nil))
	assert.Equal(t, "no-south", res.Rule)
	assert.Equal(t, "south is closed", res.Reason)
	require.Len(t, res.SuggestedChoices, 1)

	// Same name replaces the previous rule.
	require.NoError(t, p.Register(validation.Rule{Name: "no-south", Priority: 100, Check: func(domain.Choice, validation.Context) domain.ValidationResult {
		return domain.Valid()
	}}))
	assert.Len(t, p.Rules(), 6)
	assert.Equal(t, "no-south", p.Rules()[5])
	assert.Len(t, p.AvailableChoices(newContext(node, nil)), 2)

	assert.True(t, p.Remove("no-south"))
	assert.False(t, p.Remove("no-south"))
	assert.Len(t, p.Rules(), 5)

	assert.Error(t, p.Register(validation.Rule{Name: ""}))
	assert.Error(t, p.Register(validation.Rule{Name: "nil-check"}))
}

func TestPipeline_VisibleChoicesRestrictCandidates(t *testing.T) {
	node := &domain.Node{ID: "start", Choices: []domain.Choice{
		{Text: "a", NextNodeID: "a"},
		{Text: "b", NextNodeID: "b"},
	}}
	ctx := newContext(node, nil)
	ctx.VisibleChoices = node.Choices[1:]
	available := validation.New().AvailableChoices(ctx)
	require.Len(t, available, 1)
	assert.Equal(t, "b", available[0].Text)

	ctx.VisibleChoices = []domain.Choice{}
	assert.Empty(t, validation.New().AvailableChoices(ctx))
}

func TestPipeline_WithoutStandardRules(t *testing.T) {
	p := validation.New(validation.WithoutStandardRules())
	assert.Empty(t, p.Rules())
	node := &domain.Node{ID: "start", Choices: []domain.Choice{{Text: "off", Enabled: domain.Enabled(false)}}}
	assert.Len(t, p.AvailableChoices(newContext(node, nil)), 1)
}
