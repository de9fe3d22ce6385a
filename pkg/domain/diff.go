package domain

import (
	"reflect"
)

// StateDiff represents the changes between two states.
// It is designed to be serialized to JSON for partial updates on the client.
type StateDiff struct {
	CurrentNodeID *string `json:"currentNodeId,omitempty"`

	// Flags contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Flags map[string]any `json:"flags,omitempty"`

	// History is set when the visit log changed.
	History *HistoryDelta `json:"history,omitempty"`
}

// HistoryDelta represents changes to the visit log.
// Appended is used for the common append-only case. When the new log is
// not an extension of the old one (undo, load), Replaced holds it whole.
type HistoryDelta struct {
	Appended []string `json:"appended,omitempty"`
	Replaced []string `json:"replaced,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState.
// It returns nil when nothing changed.
func Diff(oldState, newState *State) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{}
	if oldState == nil || oldState.CurrentNodeID != newState.CurrentNodeID {
		id := newState.CurrentNodeID
		diff.CurrentNodeID = &id
	}
	diff.Flags = diffFlags(oldState, newState)
	diff.History = diffHistory(oldState, newState)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffFlags(old *State, new *State) map[string]any {
	delta := make(map[string]any)

	if old == nil {
		for k, v := range new.Flags {
			delta[k] = v
		}
		return nilIfEmpty(delta)
	}

	for k, newVal := range new.Flags {
		oldVal, exists := old.Flags[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}
	for k := range old.Flags {
		if _, exists := new.Flags[k]; !exists {
			delta[k] = nil
		}
	}
	return nilIfEmpty(delta)
}

func nilIfEmpty(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return m
}

func diffHistory(old *State, new *State) *HistoryDelta {
	if old == nil {
		if len(new.History) == 0 {
			return nil
		}
		return &HistoryDelta{Appended: append([]string(nil), new.History...)}
	}

	oldLen, newLen := len(old.History), len(new.History)
	isPrefix := newLen >= oldLen && reflect.DeepEqual(old.History, new.History[:oldLen])
	switch {
	case isPrefix && newLen == oldLen:
		return nil
	case isPrefix:
		return &HistoryDelta{Appended: append([]string(nil), new.History[oldLen:]...)}
	default:
		return &HistoryDelta{Replaced: append([]string(nil), new.History...)}
	}
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return d.CurrentNodeID == nil && len(d.Flags) == 0 && d.History == nil
}
