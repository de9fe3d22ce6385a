package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by storage adapters when a key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStoryMismatch is returned when a save belongs to a different story.
	ErrStoryMismatch = errors.New("story mismatch")

	// ErrIncompatibleVersion is returned when a save was written by an
	// incompatible engine version.
	ErrIncompatibleVersion = errors.New("incompatible engine version")

	// ErrChecksumMismatch is returned when an envelope fails integrity checks.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrInvalidEnvelope is returned when required envelope fields are missing.
	ErrInvalidEnvelope = errors.New("invalid envelope")
)

// NavigationError reports a bad node ID or choice index.
// It signals caller misuse and is returned, never swallowed.
type NavigationError struct {
	NodeID string
	Index  int
	// Available is the number of selectable choices when Index was out of range.
	Available int
	Reason    string
}

func (e *NavigationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("navigation error at node %q: %s", e.NodeID, e.Reason)
	}
	return fmt.Sprintf("navigation error: %s", e.Reason)
}

// ChoiceValidationError reports that a selected choice failed a validation
// rule. It carries enough detail for a UI to recover without re-querying.
type ChoiceValidationError struct {
	Rule             string
	Reason           string
	Choice           Choice
	FailedConditions []string
	Alternatives     []Choice
}

func (e *ChoiceValidationError) Error() string {
	msg := fmt.Sprintf("choice %q rejected by rule %q: %s", e.Choice.Text, e.Rule, e.Reason)
	if len(e.FailedConditions) > 0 {
		msg += " [" + strings.Join(e.FailedConditions, ", ") + "]"
	}
	return msg
}

// AlternativeTexts lists the texts of the valid alternatives.
func (e *ChoiceValidationError) AlternativeTexts() []string {
	out := make([]string, 0, len(e.Alternatives))
	for _, c := range e.Alternatives {
		out = append(out, c.Text)
	}
	return out
}
