package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/fable/pkg/condition"
	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/validation"
)

// AvailableChoices returns the current node's choices that pass both their
// condition and every validation rule. It is recomputed on each call.
// MakeChoice indexes Options, not this list; the two differ whenever a
// visible choice is locked.
func (e *Engine) AvailableChoices(ctx context.Context) []domain.Choice {
	node, err := e.currentNode()
	if err != nil {
		e.logger.Error("cannot list choices", "err", err)
		return []domain.Choice{}
	}
	return e.validator.AvailableChoices(e.validationContext(node, e.visibleChoices(ctx, node)))
}

// Options returns the condition-visible choices annotated with their
// validation outcome. Locked choices are included so a UI can explain them.
func (e *Engine) Options(ctx context.Context) []domain.ChoiceView {
	node, err := e.currentNode()
	if err != nil {
		e.logger.Error("cannot list choices", "err", err)
		return []domain.ChoiceView{}
	}
	visible := e.visibleChoices(ctx, node)
	vctx := e.validationContext(node, visible)

	views := make([]domain.ChoiceView, len(visible))
	for i, c := range visible {
		res := e.validator.Check(c, vctx)
		views[i] = domain.ChoiceView{
			Index:     i,
			Choice:    c,
			Available: res.Valid,
			Rule:      res.Rule,
			Reason:    res.Reason,
		}
	}
	return views
}

// IsTerminal reports whether the reader has reached an ending, i.e. the
// current node has no available choices.
func (e *Engine) IsTerminal(ctx context.Context) bool {
	return len(e.AvailableChoices(ctx)) == 0
}

// MakeChoice executes the choice at index among the condition-visible
// choices (the Options list) and returns the node entered.
func (e *Engine) MakeChoice(ctx context.Context, index int) (*domain.Node, error) {
	node, err := e.currentNode()
	if err != nil {
		return nil, err
	}
	visible := e.visibleChoices(ctx, node)
	if index < 0 || index >= len(visible) {
		return nil, &domain.NavigationError{
			NodeID:    node.ID,
			Index:     index,
			Available: len(visible),
			Reason:    fmt.Sprintf("choice index %d out of range (%d available)", index, len(visible)),
		}
	}
	choice := visible[index]

	res := e.validator.Validate(choice, e.validationContext(node, visible))
	if !res.Valid {
		e.logger.Debug("choice rejected", "node_id", node.ID, "choice", choice.Text, "rule", res.Rule, "reason", res.Reason)
		if e.hooks.OnValidationFailed != nil {
			e.hooks.OnValidationFailed(ctx, &domain.ValidationEvent{
				EventBase: e.base(),
				NodeID:    node.ID,
				Rule:      res.Rule,
				Reason:    res.Reason,
			})
		}
		return nil, &domain.ChoiceValidationError{
			Rule:             res.Rule,
			Reason:           res.Reason,
			Choice:           choice,
			FailedConditions: res.FailedConditions,
			Alternatives:     res.SuggestedChoices,
		}
	}

	target, ok := e.story.Lookup(choice.NextNodeID)
	if !ok {
		return nil, &domain.NavigationError{
			NodeID: choice.NextNodeID,
			Index:  index,
			Reason: fmt.Sprintf("choice %q leads to an unknown node", choice.Text),
		}
	}

	before := e.state.Clone()
	for key, value := range choice.FlagEffects {
		e.state.Flags[key] = domain.CloneValue(value)
	}
	e.state.CurrentNodeID = target.ID
	e.state.History = append(e.state.History, target.ID)

	e.record(domain.EventChoiceMade, target.ID, map[string]any{
		"from":  node.ID,
		"index": index,
		"text":  choice.Text,
	})
	e.logger.Debug("choice made", "node_id", target.ID, "choice", choice.Text)

	if e.hooks.OnFlagSet != nil {
		for _, key := range sortedKeys(choice.FlagEffects) {
			e.hooks.OnFlagSet(ctx, &domain.FlagEvent{EventBase: e.base(), Key: key, Value: choice.FlagEffects[key]})
		}
	}
	if e.hooks.OnChoiceMade != nil {
		e.hooks.OnChoiceMade(ctx, &domain.ChoiceEvent{
			EventBase:  e.base(),
			FromNodeID: node.ID,
			ToNodeID:   target.ID,
			Index:      index,
			Text:       choice.Text,
		})
	}
	e.enter(ctx, target.ID, domain.EventChoiceMade)
	e.notify(ctx, domain.ActionChoice, before)

	n := *target
	return &n, nil
}

// visibleChoices filters a node's choices by condition. Evaluation errors
// hide the choice; they are logged and reported, never returned.
func (e *Engine) visibleChoices(ctx context.Context, node *domain.Node) []domain.Choice {
	visible := make([]domain.Choice, 0, len(node.Choices))
	cctx := condition.Context{
		Flags:      e.state.Flags,
		State:      e.state,
		Timestamp:  e.clock(),
		CustomData: e.customData,
	}
	for _, c := range node.Choices {
		if c.Condition == "" {
			visible = append(visible, c)
			continue
		}
		ok, err := e.evaluator.Evaluate(c.Condition, cctx)
		if err != nil {
			e.logger.Warn("condition evaluation failed",
				"node_id", node.ID,
				"choice", c.Text,
				"err", err)
			if e.hooks.OnConditionError != nil {
				e.hooks.OnConditionError(ctx, &domain.ConditionEvent{
					EventBase:  e.base(),
					NodeID:     node.ID,
					Expression: c.Condition,
					Err:        err,
				})
			}
			continue
		}
		if ok {
			visible = append(visible, c)
		}
	}
	return visible
}

func (e *Engine) validationContext(node *domain.Node, visible []domain.Choice) validation.Context {
	return validation.Context{
		Node:           node,
		State:          e.state,
		VisibleChoices: visible,
		Timestamp:      e.clock(),
	}
}
