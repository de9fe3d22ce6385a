package dsl

import (
	"maps"
	"time"

	"github.com/aretw0/fable/pkg/domain"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    domain.Node
	builder *Builder
}

// Text sets the narrative text of the node.
func (n *NodeBuilder) Text(content string) *NodeBuilder {
	n.node.Text = content
	return n
}

// Meta attaches a metadata entry to the node.
func (n *NodeBuilder) Meta(key, value string) *NodeBuilder {
	if n.node.Metadata == nil {
		n.node.Metadata = make(map[string]string)
	}
	n.node.Metadata[key] = value
	return n
}

// Choice appends an option leading to target and returns a builder for it.
func (n *NodeBuilder) Choice(text, target string) *ChoiceBuilder {
	n.node.Choices = append(n.node.Choices, domain.Choice{
		Text:       text,
		NextNodeID: target,
	})
	return &ChoiceBuilder{node: n, index: len(n.node.Choices) - 1}
}

// Terminal marks the node as an ending by dropping its choices.
func (n *NodeBuilder) Terminal() *NodeBuilder {
	n.node.Choices = nil
	return n
}

// Build returns a copy of the underlying domain.Node.
// This is primarily used by the Builder, but exposed for advanced usage.
func (n *NodeBuilder) Build() domain.Node {
	out := n.node
	out.Choices = append([]domain.Choice(nil), n.node.Choices...)
	out.Metadata = maps.Clone(n.node.Metadata)
	return out
}

// ChoiceBuilder configures the most recently added choice of a node.
type ChoiceBuilder struct {
	node  *NodeBuilder
	index int
}

func (c *ChoiceBuilder) choice() *domain.Choice {
	return &c.node.node.Choices[c.index]
}

// When gates visibility behind a condition expression.
func (c *ChoiceBuilder) When(expr string) *ChoiceBuilder {
	c.choice().Condition = expr
	return c
}

// Requires adds a flag requirement. true means the flag must be truthy;
// false means it must be absent or falsy.
func (c *ChoiceBuilder) Requires(flag string, value any) *ChoiceBuilder {
	ch := c.choice()
	if ch.FlagRequirements == nil {
		ch.FlagRequirements = make(map[string]any)
	}
	ch.FlagRequirements[flag] = value
	return c
}

// Sets adds a flag effect applied when the choice is taken.
func (c *ChoiceBuilder) Sets(flag string, value any) *ChoiceBuilder {
	ch := c.choice()
	if ch.FlagEffects == nil {
		ch.FlagEffects = make(map[string]any)
	}
	ch.FlagEffects[flag] = value
	return c
}

// Needs requires at least qty of item in the inventory.
func (c *ChoiceBuilder) Needs(item string, qty float64) *ChoiceBuilder {
	ch := c.choice()
	if ch.InventoryRequirements == nil {
		ch.InventoryRequirements = make(map[string]float64)
	}
	ch.InventoryRequirements[item] = qty
	return c
}

func (c *ChoiceBuilder) timeReq() *domain.TimeRequirements {
	ch := c.choice()
	if ch.TimeRequirements == nil {
		ch.TimeRequirements = &domain.TimeRequirements{}
	}
	return ch.TimeRequirements
}

// After makes the choice available from t on.
func (c *ChoiceBuilder) After(t time.Time) *ChoiceBuilder {
	c.timeReq().AvailableAfter = &t
	return c
}

// Before makes the choice available until t.
func (c *ChoiceBuilder) Before(t time.Time) *ChoiceBuilder {
	c.timeReq().AvailableBefore = &t
	return c
}

// MinElapsed requires at least d since the session started.
func (c *ChoiceBuilder) MinElapsed(d time.Duration) *ChoiceBuilder {
	c.timeReq().MinTime = &d
	return c
}

// MaxElapsed requires at most d since the session started.
func (c *ChoiceBuilder) MaxElapsed(d time.Duration) *ChoiceBuilder {
	c.timeReq().MaxTime = &d
	return c
}

// Disabled explicitly disables the choice.
func (c *ChoiceBuilder) Disabled() *ChoiceBuilder {
	c.choice().Enabled = domain.Enabled(false)
	return c
}

// Choice starts another choice on the same node.
func (c *ChoiceBuilder) Choice(text, target string) *ChoiceBuilder {
	return c.node.Choice(text, target)
}

// Node returns to the node builder.
func (c *ChoiceBuilder) Node() *NodeBuilder {
	return c.node
}
