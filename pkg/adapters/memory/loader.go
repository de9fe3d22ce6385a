package memory

import (
	"context"
	"fmt"

	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/ports"
)

// Loader implements ports.StoryLoader over nodes held in memory.
type Loader struct {
	initialNodeID string
	nodes         []domain.Node
}

var _ ports.StoryLoader = (*Loader)(nil)

// NewFromNodes creates a loader from domain objects. Nodes are copied, so
// later changes to the arguments do not leak into loaded stories.
func NewFromNodes(initialNodeID string, nodes ...domain.Node) (*Loader, error) {
	for _, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("node missing ID")
		}
	}
	return &Loader{
		initialNodeID: initialNodeID,
		nodes:         append([]domain.Node(nil), nodes...),
	}, nil
}

// Load builds a fresh indexed story.
func (l *Loader) Load(ctx context.Context) (*domain.Story, error) {
	return domain.NewStory(l.initialNodeID, append([]domain.Node(nil), l.nodes...)...)
}
