// Package logging builds the slog loggers shared by the fable commands.
//
// Records use a small set of keys: node_id, session_id, story, rule and
// err. Handlers rewrite the common aliases onto them so hooks, adapters and
// the engine can be grepped the same way.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// aliases maps keys callers tend to use onto the canonical ones.
var aliases = map[string]string{
	"error":     "err",
	"node":      "node_id",
	"nodeId":    "node_id",
	"session":   "session_id",
	"sessionId": "session_id",
}

// Option customizes New.
type Option func(*settings)

type settings struct {
	out    io.Writer
	format string
}

// WithWriter redirects output. The default is stderr, which keeps stdout
// free for the play loop and the MCP stdio transport.
func WithWriter(w io.Writer) Option {
	return func(s *settings) {
		if w != nil {
			s.out = w
		}
	}
}

// WithFormat selects FormatText or FormatJSON. Unknown formats fall back to
// text.
func WithFormat(format string) Option {
	return func(s *settings) {
		s.format = format
	}
}

// New returns a logger at level with canonical keys.
func New(level slog.Level, opts ...Option) *slog.Logger {
	s := settings{out: os.Stderr, format: FormatText}
	for _, opt := range opts {
		opt(&s)
	}

	ho := &slog.HandlerOptions{Level: level, ReplaceAttr: canonical}
	if s.format == FormatJSON {
		return slog.New(slog.NewJSONHandler(s.out, ho))
	}
	return slog.New(slog.NewTextHandler(s.out, ho))
}

func canonical(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	if key, ok := aliases[a.Key]; ok {
		a.Key = key
	}
	return a
}

// NewNop returns a logger that drops everything.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
