package compiler

import (
	"fmt"
	"reflect"
	"time"

	"github.com/aretw0/fable/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Parser converts raw story documents into indexed stories.
//
// Documents are YAML or JSON with the shape {initialNodeId, nodes[]}.
// Timestamps are RFC 3339 strings. Durations are Go duration strings such
// as "90s", or bare numbers of seconds.
type Parser struct {
	// Strict rejects unknown keys, which usually are typos.
	Strict bool
}

// NewParser creates a new parser instance.
func NewParser() *Parser {
	return &Parser{Strict: true}
}

// Parse decodes and indexes a story document.
func (p *Parser) Parse(data []byte) (*domain.Story, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse story: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("failed to parse story: empty document")
	}
	return p.Decode(raw)
}

// Decode builds a story from an already parsed document.
func (p *Parser) Decode(raw map[string]any) (*domain.Story, error) {
	var story domain.Story
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &story,
		TagName:     "mapstructure",
		ErrorUnused: p.Strict,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			durationHook,
		),
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode story: %w", err)
	}
	if err := story.Index(); err != nil {
		return nil, fmt.Errorf("invalid story: %w", err)
	}
	return &story, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// durationHook accepts "1m30s" or a number of seconds.
func durationHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return time.ParseDuration(v)
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return data, nil
}
