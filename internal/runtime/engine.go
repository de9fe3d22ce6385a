package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/fable/internal/logging"
	"github.com/aretw0/fable/pkg/condition"
	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/validation"
)

// DefaultEventLimit bounds the recent flow event ring.
const DefaultEventLimit = 256

// Mutation describes a committed state change. Before is a deep copy of the
// state as it was prior to the change.
type Mutation struct {
	Action string
	Before domain.State
	NodeID string
}

// MutationObserver is notified after every committed mutation. The facade
// uses it to feed the undo stack and autosave.
type MutationObserver func(ctx context.Context, m Mutation)

// Engine owns the live narrative state and orchestrates condition
// filtering, validation and state mutation. It is not safe for concurrent
// use; callers serialize access.
type Engine struct {
	story      *domain.Story
	state      *domain.State
	evaluator  *condition.Evaluator
	validator  *validation.Pipeline
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	clock      func() time.Time
	sessionID  string
	customData map[string]any
	observer   MutationObserver
	initial    *domain.State

	events     []domain.FlowEvent
	eventLimit int
}

// EngineOption configures the runtime engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithEvaluator replaces the condition evaluator.
func WithEvaluator(ev *condition.Evaluator) EngineOption {
	return func(e *Engine) {
		if ev != nil {
			e.evaluator = ev
		}
	}
}

// WithValidator replaces the validation pipeline.
func WithValidator(v *validation.Pipeline) EngineOption {
	return func(e *Engine) {
		if v != nil {
			e.validator = v
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithSessionID tags hook events with a session identifier.
func WithSessionID(id string) EngineOption {
	return func(e *Engine) {
		e.sessionID = id
	}
}

// WithCustomData exposes host data to condition expressions as customData.
func WithCustomData(data map[string]any) EngineOption {
	return func(e *Engine) {
		e.customData = data
	}
}

// WithInitialState starts the engine from a previously captured state
// instead of the story's initial node.
func WithInitialState(state domain.State) EngineOption {
	return func(e *Engine) {
		s := state.Clone()
		e.initial = &s
	}
}

// WithMutationObserver registers the mutation observer.
func WithMutationObserver(fn MutationObserver) EngineOption {
	return func(e *Engine) {
		e.observer = fn
	}
}

// WithEventLimit bounds the flow event ring. Zero disables event recording.
func WithEventLimit(n int) EngineOption {
	return func(e *Engine) {
		if n >= 0 {
			e.eventLimit = n
		}
	}
}

// NewEngine creates an engine positioned at the story's initial node, or at
// the state supplied with WithInitialState.
func NewEngine(story *domain.Story, opts ...EngineOption) (*Engine, error) {
	if story == nil {
		return nil, fmt.Errorf("story is required")
	}
	if _, ok := story.Lookup(story.InitialNodeID); !ok {
		return nil, &domain.NavigationError{NodeID: story.InitialNodeID, Reason: "initial node not found in story"}
	}

	e := &Engine{
		story:      story,
		evaluator:  condition.New(),
		validator:  validation.New(),
		logger:     logging.NewNop(),
		clock:      time.Now,
		eventLimit: DefaultEventLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sessionID != "" {
		e.logger = e.logger.With("session_id", e.sessionID)
	}

	if e.initial != nil {
		state := e.initial.Clone()
		if err := e.checkState(&state); err != nil {
			return nil, err
		}
		e.state = &state
	} else {
		e.state = domain.NewState(story.InitialNodeID, e.clock())
	}
	return e, nil
}

// Story returns the loaded story.
func (e *Engine) Story() *domain.Story {
	return e.story
}

// Evaluator returns the condition evaluator in use.
func (e *Engine) Evaluator() *condition.Evaluator {
	return e.evaluator
}

// Validator returns the validation pipeline in use.
func (e *Engine) Validator() *validation.Pipeline {
	return e.validator
}

// State returns a deep copy of the live state.
func (e *Engine) State() domain.State {
	return e.state.Clone()
}

// CurrentNode returns a copy of the node the reader is on.
func (e *Engine) CurrentNode() (*domain.Node, error) {
	node, err := e.currentNode()
	if err != nil {
		return nil, err
	}
	n := *node
	return &n, nil
}

func (e *Engine) currentNode() (*domain.Node, error) {
	node, ok := e.story.Lookup(e.state.CurrentNodeID)
	if !ok {
		return nil, &domain.NavigationError{NodeID: e.state.CurrentNodeID, Reason: "current node not found in story"}
	}
	return node, nil
}

// Flags returns a deep copy of the flag bag.
func (e *Engine) Flags() map[string]any {
	return domain.CloneFlags(e.state.Flags)
}

// Flag returns a copy of a single flag and whether it is set.
func (e *Engine) Flag(key string) (any, bool) {
	v, ok := e.state.Flags[key]
	if !ok {
		return nil, false
	}
	return domain.CloneValue(v), true
}

// History returns the visited node IDs, oldest first.
func (e *Engine) History() []string {
	return append([]string(nil), e.state.History...)
}

// checkState enforces the state invariants before a state becomes live.
func (e *Engine) checkState(s *domain.State) error {
	if s.CurrentNodeID == "" {
		return &domain.NavigationError{Reason: "state has no current node"}
	}
	if _, ok := e.story.Lookup(s.CurrentNodeID); !ok {
		return &domain.NavigationError{NodeID: s.CurrentNodeID, Reason: "node not found in story"}
	}
	if s.Flags == nil {
		s.Flags = make(map[string]any)
	}
	if len(s.History) == 0 {
		s.History = []string{s.CurrentNodeID}
	}
	return nil
}

func (e *Engine) base() domain.EventBase {
	return domain.EventBase{Timestamp: e.clock(), SessionID: e.sessionID}
}
