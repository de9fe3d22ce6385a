package runtime

import (
	"context"
	"fmt"
	"sort"

	"github.com/aretw0/fable/pkg/domain"
)

// GoToNode moves the reader directly to a node. It skips conditions,
// validation and flag effects but still records history.
func (e *Engine) GoToNode(ctx context.Context, id string) error {
	if _, ok := e.story.Lookup(id); !ok {
		return &domain.NavigationError{NodeID: id, Reason: "node not found in story"}
	}
	before := e.state.Clone()
	e.state.CurrentNodeID = id
	e.state.History = append(e.state.History, id)

	e.record(domain.EventNavigated, id, map[string]any{"from": before.CurrentNodeID})
	e.logger.Debug("navigated", "node_id", id)
	e.enter(ctx, id, domain.EventNavigated)
	e.notify(ctx, domain.ActionNavigate, before)
	return nil
}

// SetFlag stores a deep copy of value under key.
func (e *Engine) SetFlag(ctx context.Context, key string, value any) error {
	if key == "" {
		return fmt.Errorf("flag key is required")
	}
	before := e.state.Clone()
	e.state.Flags[key] = domain.CloneValue(value)

	e.record(domain.EventFlagSet, e.state.CurrentNodeID, map[string]any{"key": key, "value": domain.CloneValue(value)})
	if e.hooks.OnFlagSet != nil {
		e.hooks.OnFlagSet(ctx, &domain.FlagEvent{EventBase: e.base(), Key: key, Value: value})
	}
	e.notify(ctx, domain.ActionFlag, before)
	return nil
}

// DeleteFlag unsets a flag and reports whether it was present. Deleting an
// absent flag is not a mutation.
func (e *Engine) DeleteFlag(ctx context.Context, key string) bool {
	if _, ok := e.state.Flags[key]; !ok {
		return false
	}
	before := e.state.Clone()
	delete(e.state.Flags, key)

	e.record(domain.EventFlagDeleted, e.state.CurrentNodeID, map[string]any{"key": key})
	if e.hooks.OnFlagSet != nil {
		e.hooks.OnFlagSet(ctx, &domain.FlagEvent{EventBase: e.base(), Key: key, Deleted: true})
	}
	e.notify(ctx, domain.ActionFlag, before)
	return true
}

// Reset restarts the story from its initial node with no flags.
func (e *Engine) Reset(ctx context.Context) {
	before := e.state.Clone()
	e.state = domain.NewState(e.story.InitialNodeID, e.clock())

	e.record(domain.EventReset, e.state.CurrentNodeID, nil)
	e.logger.Debug("narrative reset", "node_id", e.state.CurrentNodeID)
	e.enter(ctx, e.state.CurrentNodeID, domain.EventReset)
	e.notify(ctx, domain.ActionReset, before)
}

// Replace swaps the live state wholesale. It is used by load, checkpoint
// restore, undo and redo. The new state must point at an existing node.
func (e *Engine) Replace(ctx context.Context, state domain.State, action string) error {
	next := state.Clone()
	if err := e.checkState(&next); err != nil {
		return err
	}
	before := e.state.Clone()
	e.state = &next

	cause := causeOf(action)
	e.record(cause, next.CurrentNodeID, map[string]any{"from": before.CurrentNodeID})
	e.logger.Debug("state replaced", "node_id", next.CurrentNodeID, "action", action)
	e.enter(ctx, next.CurrentNodeID, cause)
	e.notify(ctx, action, before)
	return nil
}

func causeOf(action string) domain.EventType {
	switch action {
	case domain.ActionLoad:
		return domain.EventStateLoaded
	case domain.ActionRestore:
		return domain.EventCheckpointRestored
	case domain.ActionUndo:
		return domain.EventUndo
	case domain.ActionRedo:
		return domain.EventRedo
	case domain.ActionReset:
		return domain.EventReset
	default:
		return domain.EventNavigated
	}
}

func (e *Engine) notify(ctx context.Context, action string, before domain.State) {
	if e.observer == nil {
		return
	}
	e.observer(ctx, Mutation{Action: action, Before: before, NodeID: e.state.CurrentNodeID})
}

func (e *Engine) enter(ctx context.Context, nodeID string, cause domain.EventType) {
	if e.hooks.OnNodeEnter != nil {
		e.hooks.OnNodeEnter(ctx, &domain.NodeEvent{EventBase: e.base(), NodeID: nodeID, Cause: cause})
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
