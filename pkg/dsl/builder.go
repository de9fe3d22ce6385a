package dsl

import (
	"fmt"

	"github.com/aretw0/fable/pkg/adapters/memory"
	"github.com/aretw0/fable/pkg/domain"
)

// Builder manages the story construction.
type Builder struct {
	start string
	order []string
	nodes map[string]*NodeBuilder
}

// New creates a new story builder.
func New() *Builder {
	return &Builder{
		nodes: make(map[string]*NodeBuilder),
	}
}

// Start sets the initial node. It defaults to the first node added.
func (b *Builder) Start(id string) *Builder {
	b.start = id
	return b
}

// Add creates a new node in the story.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node: domain.Node{
			ID: id,
		},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

func (b *Builder) initial() string {
	if b.start != "" {
		return b.start
	}
	if len(b.order) > 0 {
		return b.order[0]
	}
	return ""
}

func (b *Builder) collect() []domain.Node {
	nodes := make([]domain.Node, 0, len(b.order))
	for _, id := range b.order {
		nodes = append(nodes, b.nodes[id].Build())
	}
	return nodes
}

// Build compiles the story into a memory loader.
func (b *Builder) Build() (*memory.Loader, error) {
	if _, err := b.Story(); err != nil {
		return nil, fmt.Errorf("invalid story: %w", err)
	}
	loader, err := memory.NewFromNodes(b.initial(), b.collect()...)
	if err != nil {
		return nil, fmt.Errorf("failed to build memory loader: %w", err)
	}
	return loader, nil
}

// Story compiles and indexes the story directly.
func (b *Builder) Story() (*domain.Story, error) {
	return domain.NewStory(b.initial(), b.collect()...)
}
