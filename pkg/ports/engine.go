package ports

import (
	"context"

	"github.com/aretw0/fable/pkg/domain"
)

// Narrative is the engine surface consumed by transports. It reads the
// story, lists and takes choices, and edits flags. Implementations
// serialize access and may be shared between requests.
type Narrative interface {
	// Story returns the read-only story graph.
	Story() *domain.Story

	// CurrentNode returns the node the reader is on.
	CurrentNode() (*domain.Node, error)

	// Options lists condition-visible choices with their validation outcome.
	Options(ctx context.Context) []domain.ChoiceView

	// AvailableChoices lists the choices that may be taken right now.
	AvailableChoices(ctx context.Context) []domain.Choice

	// MakeChoice takes the choice at index in the Options list.
	MakeChoice(ctx context.Context, index int) (*domain.Node, error)

	// IsTerminal reports whether no choice is available.
	IsTerminal(ctx context.Context) bool

	State() domain.State
	Flags() map[string]any
	SetFlag(ctx context.Context, key string, value any) error
	DeleteFlag(ctx context.Context, key string) bool
	History() []string
	Events() []domain.FlowEvent
}
