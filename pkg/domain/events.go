package domain

import (
	"context"
	"time"
)

// EventType defines the category of an event.
type EventType string

const (
	EventChoiceMade         EventType = "choice_made"
	EventFlagSet            EventType = "flag_set"
	EventFlagDeleted        EventType = "flag_deleted"
	EventNavigated          EventType = "navigated"
	EventReset              EventType = "reset"
	EventStateLoaded        EventType = "state_loaded"
	EventCheckpointRestored EventType = "checkpoint_restored"
	EventUndo               EventType = "undo"
	EventRedo               EventType = "redo"
)

// FlowEvent is an entry of the engine's recent-activity log. It can be
// embedded in save envelopes.
type FlowEvent struct {
	Type      EventType      `json:"type"`
	NodeID    string         `json:"nodeId"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventBase contains common fields for all hook events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
}

// NodeEvent is emitted when the reader enters a node.
type NodeEvent struct {
	EventBase
	NodeID string    `json:"node_id"`
	Cause  EventType `json:"cause"`
}

// ChoiceEvent is emitted after a choice is committed.
type ChoiceEvent struct {
	EventBase
	FromNodeID string `json:"from_node_id"`
	ToNodeID   string `json:"to_node_id"`
	Index      int    `json:"index"`
	Text       string `json:"text"`
}

// FlagEvent is emitted when a flag is set or deleted.
type FlagEvent struct {
	EventBase
	Key     string `json:"key"`
	Value   any    `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// ConditionEvent is emitted when a condition fails to evaluate and the
// choice is hidden.
type ConditionEvent struct {
	EventBase
	NodeID     string `json:"node_id"`
	Expression string `json:"expression"`
	Err        error  `json:"-"`
}

// ValidationEvent is emitted when a selected choice is rejected.
type ValidationEvent struct {
	EventBase
	NodeID string `json:"node_id"`
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
}

// HistoryEvent is emitted after an undo or redo attempt.
type HistoryEvent struct {
	EventBase
	Operation string        `json:"operation"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
}

// AutosaveEvent is emitted after an autosave trigger is handled.
type AutosaveEvent struct {
	EventBase
	Trigger      string        `json:"trigger"`
	Saved        bool          `json:"saved"`
	Throttled    bool          `json:"throttled"`
	CheckpointID string        `json:"checkpoint_id,omitempty"`
	Duration     time.Duration `json:"duration"`
	// AutosavesBefore and AutosavesAfter count retained autosave
	// checkpoints around the trigger, after pruning.
	AutosavesBefore int `json:"autosaves_before"`
	AutosavesAfter  int `json:"autosaves_after"`
}

// PersistenceEvent is emitted after a save, load, checkpoint or restore.
type PersistenceEvent struct {
	EventBase
	Operation string        `json:"operation"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
	Err       string        `json:"err,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability. Every field is
// optional.
type LifecycleHooks struct {
	OnNodeEnter        func(context.Context, *NodeEvent)
	OnChoiceMade       func(context.Context, *ChoiceEvent)
	OnFlagSet          func(context.Context, *FlagEvent)
	OnConditionError   func(context.Context, *ConditionEvent)
	OnValidationFailed func(context.Context, *ValidationEvent)
	OnHistory          func(context.Context, *HistoryEvent)
	OnAutosave         func(context.Context, *AutosaveEvent)
	OnPersistence      func(context.Context, *PersistenceEvent)
}

// Merge returns hooks that call h first and then other for every callback.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeEnter:        chain(h.OnNodeEnter, other.OnNodeEnter),
		OnChoiceMade:       chain(h.OnChoiceMade, other.OnChoiceMade),
		OnFlagSet:          chain(h.OnFlagSet, other.OnFlagSet),
		OnConditionError:   chain(h.OnConditionError, other.OnConditionError),
		OnValidationFailed: chain(h.OnValidationFailed, other.OnValidationFailed),
		OnHistory:          chain(h.OnHistory, other.OnHistory),
		OnAutosave:         chain(h.OnAutosave, other.OnAutosave),
		OnPersistence:      chain(h.OnPersistence, other.OnPersistence),
	}
}

func chain[T any](a, b func(context.Context, T)) func(context.Context, T) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, ev T) {
		a(ctx, ev)
		b(ctx, ev)
	}
}
