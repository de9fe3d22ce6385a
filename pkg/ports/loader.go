package ports

import (
	"context"

	"github.com/aretw0/fable/pkg/domain"
)

// StoryLoader produces the read-only story graph an engine runs.
type StoryLoader interface {
	Load(ctx context.Context) (*domain.Story, error)
}
