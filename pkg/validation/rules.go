package validation

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/fable/pkg/domain"
)

// Standard rule names.
const (
	RuleChoiceExists          = "choice-exists"
	RuleFlagRequirements      = "flag-requirements"
	RuleChoiceEnabled         = "choice-enabled"
	RuleTimeRequirements      = "time-requirements"
	RuleInventoryRequirements = "inventory-requirements"
)

// InventoryFlag is the flag holding the reader's item counts.
const InventoryFlag = "inventory"

// StandardRules returns the built-in rules in priority order.
func StandardRules() []Rule {
	return []Rule{
		{Name: RuleChoiceExists, Priority: 10, Check: checkExists},
		{Name: RuleFlagRequirements, Priority: 20, Check: checkFlags},
		{Name: RuleChoiceEnabled, Priority: 30, Check: checkEnabled},
		{Name: RuleTimeRequirements, Priority: 40, Check: checkTime},
		{Name: RuleInventoryRequirements, Priority: 50, Check: checkInventory},
	}
}

// checkExists rejects choices that do not belong to the current node, which
// protects against executing stale references.
func checkExists(choice domain.Choice, ctx Context) domain.ValidationResult {
	if ctx.Node == nil {
		return domain.Invalid("no current node", "node:missing")
	}
	if ctx.State != nil && ctx.State.CurrentNodeID != ctx.Node.ID {
		return domain.Invalid(
			fmt.Sprintf("node %q is not the current node %q", ctx.Node.ID, ctx.State.CurrentNodeID),
			"node:stale",
		)
	}
	for _, c := range ctx.Node.Choices {
		if sameChoice(c, choice) {
			return domain.Valid()
		}
	}
	return domain.Invalid(fmt.Sprintf("choice %q does not belong to node %q", choice.Text, ctx.Node.ID), "choice:unknown")
}

func checkFlags(choice domain.Choice, ctx Context) domain.ValidationResult {
	if len(choice.FlagRequirements) == 0 {
		return domain.Valid()
	}
	var flags map[string]any
	if ctx.State != nil {
		flags = ctx.State.Flags
	}

	var failed, reasons []string
	for _, key := range sortedKeys(choice.FlagRequirements) {
		want := choice.FlagRequirements[key]
		got, present := flags[key]
		switch w := want.(type) {
		case bool:
			set := present && domain.Truthy(got)
			if w && !set {
				failed = append(failed, "flag:"+key)
				reasons = append(reasons, fmt.Sprintf("flag %q must be set", key))
			}
			if !w && set {
				failed = append(failed, "flag:"+key)
				reasons = append(reasons, fmt.Sprintf("flag %q must be unset", key))
			}
		default:
			if !present || !domain.ValuesEqual(got, want) {
				failed = append(failed, "flag:"+key)
				reasons = append(reasons, fmt.Sprintf("flag %q must equal %v", key, want))
			}
		}
	}
	if len(failed) > 0 {
		return domain.Invalid(strings.Join(reasons, "; "), failed...)
	}
	return domain.Valid()
}

func checkEnabled(choice domain.Choice, _ Context) domain.ValidationResult {
	if choice.IsDisabled() {
		return domain.Invalid(fmt.Sprintf("choice %q is disabled", choice.Text), "enabled")
	}
	return domain.Valid()
}

func checkTime(choice domain.Choice, ctx Context) domain.ValidationResult {
	req := choice.TimeRequirements
	if req == nil {
		return domain.Valid()
	}
	now := ctx.Timestamp

	var failed, reasons []string
	if req.AvailableAfter != nil && now.Before(*req.AvailableAfter) {
		failed = append(failed, "time:availableAfter")
		reasons = append(reasons, "available after "+req.AvailableAfter.Format(time.RFC3339))
	}
	if req.AvailableBefore != nil && now.After(*req.AvailableBefore) {
		failed = append(failed, "time:availableBefore")
		reasons = append(reasons, "available before "+req.AvailableBefore.Format(time.RFC3339))
	}

	if req.MinTime != nil || req.MaxTime != nil {
		var elapsed time.Duration
		if ctx.State != nil && !ctx.State.StartedAt.IsZero() {
			elapsed = now.Sub(ctx.State.StartedAt)
		}
		if req.MinTime != nil && elapsed < *req.MinTime {
			failed = append(failed, "time:minTime")
			reasons = append(reasons, fmt.Sprintf("requires at least %s elapsed", *req.MinTime))
		}
		if req.MaxTime != nil && elapsed > *req.MaxTime {
			failed = append(failed, "time:maxTime")
			reasons = append(reasons, fmt.Sprintf("requires at most %s elapsed", *req.MaxTime))
		}
	}

	if len(failed) > 0 {
		res := domain.Invalid(strings.Join(reasons, "; "), failed...)
		res.Metadata = map[string]any{"timestamp": now}
		return res
	}
	return domain.Valid()
}

func checkInventory(choice domain.Choice, ctx Context) domain.ValidationResult {
	if len(choice.InventoryRequirements) == 0 {
		return domain.Valid()
	}
	var inventory any
	if ctx.State != nil {
		inventory = ctx.State.Flags[InventoryFlag]
	}

	items := make([]string, 0, len(choice.InventoryRequirements))
	for item := range choice.InventoryRequirements {
		items = append(items, item)
	}
	sort.Strings(items)

	var failed, reasons []string
	missing := map[string]any{}
	for _, item := range items {
		need := choice.InventoryRequirements[item]
		have, _ := domain.ToFloat(itemCount(inventory, item))
		if have < need {
			failed = append(failed, "inventory:"+item)
			reasons = append(reasons, fmt.Sprintf("needs %g %s (has %g)", need, item, have))
			missing[item] = need - have
		}
	}
	if len(failed) > 0 {
		res := domain.Invalid(strings.Join(reasons, "; "), failed...)
		res.Metadata = map[string]any{"missing": missing}
		return res
	}
	return domain.Valid()
}

// itemCount reads item from any string-keyed map, so typed bags such as
// map[string]int count the same as the map[string]any a decoded save holds.
func itemCount(inventory any, item string) any {
	if m, ok := inventory.(map[string]any); ok {
		return m[item]
	}
	rv := reflect.ValueOf(inventory)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil
	}
	v := rv.MapIndex(reflect.ValueOf(item).Convert(rv.Type().Key()))
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
