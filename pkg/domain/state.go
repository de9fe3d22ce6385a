package domain

import (
	"time"

	"github.com/mohae/deepcopy"
)

// State represents the reader's position in the story.
type State struct {
	// CurrentNodeID is the identifier of the active node.
	CurrentNodeID string `json:"currentNodeId"`

	// Flags is an open key/value bag. An absent key means "unset",
	// which is distinct from false or 0.
	Flags map[string]any `json:"flags"`

	// History records every node ever visited, including the initial one.
	History []string `json:"history"`

	// StartedAt marks when the session began. Elapsed-time requirements are
	// measured from here.
	StartedAt time.Time `json:"startedAt"`
}

// NewState creates a clean state starting at a specific node.
func NewState(startNodeID string, now time.Time) *State {
	return &State{
		CurrentNodeID: startNodeID,
		Flags:         make(map[string]any),
		History:       []string{startNodeID},
		StartedAt:     now,
	}
}

// Clone returns a deep structural copy. Snapshots handed to checkpoints,
// history entries and envelopes must never alias the live state.
func (s *State) Clone() State {
	if s == nil {
		return State{Flags: make(map[string]any)}
	}
	return State{
		CurrentNodeID: s.CurrentNodeID,
		Flags:         CloneFlags(s.Flags),
		History:       append([]string(nil), s.History...),
		StartedAt:     s.StartedAt,
	}
}

// CloneFlags deep copies a flag bag, including nested maps and slices.
func CloneFlags(flags map[string]any) map[string]any {
	out := make(map[string]any, len(flags))
	for k, v := range flags {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep copies a single flag value.
func CloneValue(v any) any {
	if v == nil {
		return nil
	}
	return deepcopy.Copy(v)
}
