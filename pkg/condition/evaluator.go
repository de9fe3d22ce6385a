package condition

import (
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/fable/pkg/domain"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultCacheSize bounds the compiled-expression cache.
const DefaultCacheSize = 100

// DeniedIdentifiers lists names that would let an expression reach outside
// its evaluation context. An expression mentioning any of them is rejected
// before parsing, even inside a string literal.
var DeniedIdentifiers = []string{
	"eval", "Function", "constructor", "prototype", "__proto__",
	"__defineGetter__", "__defineSetter__", "__lookupGetter__", "__lookupSetter__",
	"globalThis", "global", "window", "self", "document",
	"process", "require", "import", "module", "exports", "this",
	"Reflect", "Proxy", "arguments", "caller", "callee",
	"setTimeout", "setInterval", "setImmediate", "fetch", "XMLHttpRequest",
	"WebAssembly", "Deno", "Bun",
}

var deniedPattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9_$])(` + strings.Join(quoteAll(DeniedIdentifiers), "|") + `)(?:[^A-Za-z0-9_$]|$)`)

func quoteAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = regexp.QuoteMeta(w)
	}
	return out
}

// Context is the data an expression can read.
type Context struct {
	Flags      map[string]any
	State      *domain.State
	Timestamp  time.Time
	CustomData map[string]any
}

// Func is a host-supplied evaluator. When installed it takes precedence
// over the built-in language for every non-empty expression.
type Func func(expression string, ctx Context) (bool, error)

// CacheStats reports compiled-expression cache usage.
type CacheStats struct {
	Size   int   `json:"size"`
	Limit  int   `json:"limit"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Evaluator decides whether condition strings hold for a given context.
// It is safe for concurrent use.
type Evaluator struct {
	mu        sync.Mutex
	cache     *orderedmap.OrderedMap[string, program]
	cacheSize int
	hits      int64
	misses    int64
	custom    Func
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCacheSize bounds the compiled-expression cache. Values below one
// fall back to DefaultCacheSize.
func WithCacheSize(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.cacheSize = n
		}
	}
}

// WithCustomEvaluator installs a host evaluator.
func WithCustomEvaluator(fn Func) Option {
	return func(e *Evaluator) {
		e.custom = fn
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		cache:     orderedmap.New[string, program](),
		cacheSize: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetCustomEvaluator installs or (with nil) removes the host evaluator.
func (e *Evaluator) SetCustomEvaluator(fn Func) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.custom = fn
}

// Evaluate reports whether expression holds in ctx. An empty expression
// always holds. Errors are *ConditionEvaluationError values.
func (e *Evaluator) Evaluate(expression string, ctx Context) (bool, error) {
	trimmed := strings.TrimSpace(expression)
	if trimmed == "" {
		return true, nil
	}

	e.mu.Lock()
	custom := e.custom
	e.mu.Unlock()
	if custom != nil {
		ok, err := custom(expression, ctx)
		if err != nil {
			return false, &ConditionEvaluationError{Expression: expression, Kind: KindCustom, Pos: -1, Err: err}
		}
		return ok, nil
	}

	switch trimmed {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	prog, err := e.program(expression)
	if err != nil {
		return false, err
	}

	v, err := prog(newScope(ctx))
	if err != nil {
		return false, &ConditionEvaluationError{Expression: expression, Kind: KindRuntime, Pos: -1, Err: err}
	}
	return truthy(v), nil
}

// Compile checks an expression without evaluating it. Successful
// compilations are cached.
func (e *Evaluator) Compile(expression string) error {
	if strings.TrimSpace(expression) == "" {
		return nil
	}
	_, err := e.program(expression)
	return err
}

func (e *Evaluator) program(expression string) (program, error) {
	e.mu.Lock()
	if prog, ok := e.cache.Get(expression); ok {
		e.hits++
		e.mu.Unlock()
		return prog, nil
	}
	e.misses++
	e.mu.Unlock()

	if err := checkSandbox(expression); err != nil {
		return nil, err
	}

	prog, err := compile(expression)
	if err != nil {
		cerr := &ConditionEvaluationError{Expression: expression, Kind: KindSyntax, Pos: -1, Err: err}
		var se *syntaxError
		if errors.As(err, &se) {
			cerr.Pos = se.pos
		}
		return nil, cerr
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache.Set(expression, prog)
	for e.cache.Len() > e.cacheSize {
		oldest := e.cache.Oldest()
		e.cache.Delete(oldest.Key)
	}
	return prog, nil
}

func checkSandbox(expression string) error {
	m := deniedPattern.FindStringSubmatch(expression)
	if m == nil {
		return nil
	}
	return &ConditionEvaluationError{
		Expression: expression,
		Kind:       KindSandbox,
		Identifier: m[1],
		Pos:        -1,
		Err:        errors.New("denied identifier"),
	}
}

// Stats reports cache usage.
func (e *Evaluator) Stats() CacheStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return CacheStats{Size: e.cache.Len(), Limit: e.cacheSize, Hits: e.hits, Misses: e.misses}
}

// ClearCache drops every compiled expression and resets the counters.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = orderedmap.New[string, program]()
	e.hits, e.misses = 0, 0
}

// ReferencedFlags extracts every flag name referenced by the expression,
// in order of first appearance.
func (e *Evaluator) ReferencedFlags(expression string) []string {
	return ReferencedFlags(expression)
}

func newScope(ctx Context) *scope {
	flags := ctx.Flags
	if flags == nil && ctx.State != nil {
		flags = ctx.State.Flags
	}
	if flags == nil {
		flags = map[string]any{}
	}
	ts := ctx.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	custom := ctx.CustomData
	if custom == nil {
		custom = map[string]any{}
	}

	state := map[string]any{"flags": flags}
	if ctx.State != nil {
		history := make([]any, len(ctx.State.History))
		for i, id := range ctx.State.History {
			history[i] = id
		}
		state["currentNodeId"] = ctx.State.CurrentNodeID
		state["history"] = history
		if !ctx.State.StartedAt.IsZero() {
			state["startedAt"] = float64(ctx.State.StartedAt.UnixMilli())
		}
	}

	return &scope{roots: map[string]any{
		"flags":      flags,
		"state":      state,
		"timestamp":  float64(ts.UnixMilli()),
		"customData": custom,
	}}
}
