package domain

import "time"

// Node represents a single narrative beat in the story graph.
// Nodes are immutable once loaded.
type Node struct {
	ID       string            `json:"id" yaml:"id" mapstructure:"id"`
	Text     string            `json:"text" yaml:"text" mapstructure:"text"`
	Choices  []Choice          `json:"choices" yaml:"choices" mapstructure:"choices"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty" mapstructure:"metadata"`
}

// Choice is an option on a node.
//
// Condition gates visibility and is evaluated by the condition evaluator.
// The Requirements fields and Enabled gate executability and are checked by
// the validation pipeline. Both must pass for a choice to be taken.
type Choice struct {
	Text       string `json:"text" yaml:"text" mapstructure:"text"`
	NextNodeID string `json:"nextNodeId" yaml:"nextNodeId" mapstructure:"nextNodeId"`

	FlagEffects           map[string]any     `json:"flagEffects,omitempty" yaml:"flagEffects,omitempty" mapstructure:"flagEffects"`
	FlagRequirements      map[string]any     `json:"flagRequirements,omitempty" yaml:"flagRequirements,omitempty" mapstructure:"flagRequirements"`
	TimeRequirements      *TimeRequirements  `json:"timeRequirements,omitempty" yaml:"timeRequirements,omitempty" mapstructure:"timeRequirements"`
	InventoryRequirements map[string]float64 `json:"inventoryRequirements,omitempty" yaml:"inventoryRequirements,omitempty" mapstructure:"inventoryRequirements"`

	// Enabled is nil unless the story sets it. Only an explicit false disables.
	Enabled   *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty" mapstructure:"enabled"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty" mapstructure:"condition"`
}

// IsDisabled reports whether the story explicitly disabled the choice.
func (c Choice) IsDisabled() bool {
	return c.Enabled != nil && !*c.Enabled
}

// TimeRequirements restricts when a choice may be executed.
//
// AvailableAfter and AvailableBefore are compared against the evaluation
// timestamp. MinTime and MaxTime bound the time elapsed since the session
// started.
type TimeRequirements struct {
	AvailableAfter  *time.Time     `json:"availableAfter,omitempty" yaml:"availableAfter,omitempty" mapstructure:"availableAfter"`
	AvailableBefore *time.Time     `json:"availableBefore,omitempty" yaml:"availableBefore,omitempty" mapstructure:"availableBefore"`
	MinTime         *time.Duration `json:"minTime,omitempty" yaml:"minTime,omitempty" mapstructure:"minTime"`
	MaxTime         *time.Duration `json:"maxTime,omitempty" yaml:"maxTime,omitempty" mapstructure:"maxTime"`
}

// Enabled is a convenience for building choices with an explicit Enabled value.
func Enabled(v bool) *bool {
	return &v
}
