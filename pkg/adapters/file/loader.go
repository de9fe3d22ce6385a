package file

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/fable/internal/compiler"
	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/ports"
)

// Loader implements ports.StoryLoader for a YAML or JSON story file.
type Loader struct {
	Path string
}

var _ ports.StoryLoader = (*Loader)(nil)

// NewLoader creates a loader for the story at path.
func NewLoader(path string) *Loader {
	return &Loader{Path: path}
}

// Load reads and parses the story file on every call.
func (l *Loader) Load(ctx context.Context) (*domain.Story, error) {
	return LoadStory(l.Path)
}

// LoadStory reads a story document from disk.
func LoadStory(path string) (*domain.Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read story: %w", err)
	}
	story, err := compiler.NewParser().Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return story, nil
}
