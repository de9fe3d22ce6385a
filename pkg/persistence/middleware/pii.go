package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/fable/pkg/codec"
	"github.com/aretw0/fable/pkg/ports"
)

// Mask replaces flag values whose keys match a PII pattern.
const Mask = "***"

type piiMiddleware struct {
	next     ports.Storage
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks flags whose keys match
// the patterns before they reach storage. Masking is one way: loads return
// the masked values, and a masked envelope no longer matches its checksum.
//
// Values that are not JSON documents with a state object (for instance
// data already encrypted by an inner middleware) pass through untouched.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PII pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.Storage) ports.Storage {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, key string, data []byte) error {
	return m.next.Save(ctx, key, m.mask(data))
}

// mask decodes a save envelope or checkpoint, masks its state flags and
// re-encodes it with the same compression.
func (m *piiMiddleware) mask(data []byte) []byte {
	var doc map[string]any
	if err := codec.Unmarshal(data, &doc); err != nil {
		return data
	}
	state, ok := doc["state"].(map[string]any)
	if !ok {
		return data
	}
	flags, ok := state["flags"].(map[string]any)
	if !ok || !maskMap(flags, m.patterns) {
		return data
	}
	out, err := codec.Marshal(doc, codec.Compression(data))
	if err != nil {
		return data
	}
	return out
}

func (m *piiMiddleware) Load(ctx context.Context, key string) ([]byte, error) {
	return m.next.Load(ctx, key)
}

func (m *piiMiddleware) Delete(ctx context.Context, key string) error {
	return m.next.Delete(ctx, key)
}

func (m *piiMiddleware) List(ctx context.Context, prefix string) ([]string, error) {
	return m.next.List(ctx, prefix)
}

func (m *piiMiddleware) Exists(ctx context.Context, key string) (bool, error) {
	return m.next.Exists(ctx, key)
}

func (m *piiMiddleware) Stats(ctx context.Context) (ports.StorageStats, error) {
	return m.next.Stats(ctx)
}

func (m *piiMiddleware) Clear(ctx context.Context) error {
	return m.next.Clear(ctx)
}

// maskMap masks matching keys in place, recursing into nested maps, and
// reports whether anything changed.
func maskMap(m map[string]any, patterns []*regexp.Regexp) bool {
	changed := false
	for k, v := range m {
		if matchAny(k, patterns) {
			m[k] = Mask
			changed = true
			continue
		}
		if sub, ok := v.(map[string]any); ok && maskMap(sub, patterns) {
			changed = true
		}
	}
	return changed
}

func matchAny(s string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
