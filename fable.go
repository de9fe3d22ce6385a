package fable

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/fable/internal/logging"
	"github.com/aretw0/fable/internal/runtime"
	"github.com/aretw0/fable/pkg/condition"
	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/history"
	"github.com/aretw0/fable/pkg/persistence"
	"github.com/aretw0/fable/pkg/ports"
	"github.com/aretw0/fable/pkg/validation"
)

// Version is the engine version stamped into save envelopes.
const Version = persistence.EngineVersion

// Engine is the high-level entry point for the fable library.
// It wraps the internal runtime together with persistence and history, and
// serializes every call so one engine can be shared by a transport.
type Engine struct {
	mu          sync.Mutex
	runtime     *runtime.Engine
	persistence *persistence.Manager
	history     *history.Controller

	logger        *slog.Logger
	hooks         domain.LifecycleHooks
	evaluator     *condition.Evaluator
	evaluatorOpts []condition.Option
	rules         []validation.Rule
	storage       ports.Storage
	historyCfg    history.Config
	autosave      *history.AutosaveConfig
	checkpointCfg persistence.CheckpointConfig
	clock         func() time.Time
	initial       *domain.State
	sessionID     string
	customData    map[string]any
	version       string
	eventLimit    *int
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls merge.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithConditionEvaluator replaces the condition evaluator.
func WithConditionEvaluator(ev *condition.Evaluator) Option {
	return func(e *Engine) {
		e.evaluator = ev
	}
}

// WithCustomEvaluator installs a host expression language that takes
// precedence over the built-in one.
func WithCustomEvaluator(fn condition.Func) Option {
	return func(e *Engine) {
		e.evaluatorOpts = append(e.evaluatorOpts, condition.WithCustomEvaluator(fn))
	}
}

// WithConditionCacheSize bounds the compiled-condition cache.
func WithConditionCacheSize(n int) Option {
	return func(e *Engine) {
		e.evaluatorOpts = append(e.evaluatorOpts, condition.WithCacheSize(n))
	}
}

// WithValidationRules registers extra validation rules.
func WithValidationRules(rules ...validation.Rule) Option {
	return func(e *Engine) {
		e.rules = append(e.rules, rules...)
	}
}

// WithStorage attaches a storage backend for SaveToStorage, LoadFromStorage
// and checkpoint write-through.
func WithStorage(s ports.Storage) Option {
	return func(e *Engine) {
		e.storage = s
	}
}

// WithHistoryConfig sets undo/redo bounds and tracked actions.
func WithHistoryConfig(cfg history.Config) Option {
	return func(e *Engine) {
		e.historyCfg = cfg
	}
}

// WithAutosave enables autosave.
func WithAutosave(cfg history.AutosaveConfig) Option {
	return func(e *Engine) {
		e.autosave = &cfg
	}
}

// WithCheckpointConfig sets checkpoint retention.
func WithCheckpointConfig(cfg persistence.CheckpointConfig) Option {
	return func(e *Engine) {
		e.checkpointCfg = cfg
	}
}

// WithPersistentCheckpoints writes checkpoints through to the storage backend
// without touching the rest of the checkpoint config.
func WithPersistentCheckpoints() Option {
	return func(e *Engine) {
		e.checkpointCfg.Persist = true
	}
}

// WithClock overrides the wall clock used by every subsystem.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithInitialState starts from a previously captured state.
func WithInitialState(state domain.State) Option {
	return func(e *Engine) {
		s := state.Clone()
		e.initial = &s
	}
}

// WithSessionID tags logs and hook events.
func WithSessionID(id string) Option {
	return func(e *Engine) {
		e.sessionID = id
	}
}

// WithCustomData exposes host data to conditions as customData.
func WithCustomData(data map[string]any) Option {
	return func(e *Engine) {
		e.customData = data
	}
}

// WithEngineVersion overrides the version used for save compatibility.
func WithEngineVersion(v string) Option {
	return func(e *Engine) {
		e.version = v
	}
}

// WithEventLimit bounds the recent flow event log.
func WithEventLimit(n int) Option {
	return func(e *Engine) {
		e.eventLimit = &n
	}
}

// New initializes an engine positioned at the story's initial node.
func New(story *domain.Story, opts ...Option) (*Engine, error) {
	e := &Engine{clock: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if story == nil {
		return nil, fmt.Errorf("story is required")
	}

	// Ensure logger is initialized so subsystems never log to nil.
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if story.ID != "" {
		e.logger = e.logger.With("story", story.ID)
	}

	evaluator := e.evaluator
	if evaluator == nil {
		evaluator = condition.New(e.evaluatorOpts...)
	}
	validator := validation.New(validation.WithClock(e.clock), validation.WithRules(e.rules...))

	runtimeOpts := []runtime.EngineOption{
		runtime.WithLogger(e.logger),
		runtime.WithLifecycleHooks(e.hooks),
		runtime.WithEvaluator(evaluator),
		runtime.WithValidator(validator),
		runtime.WithClock(e.clock),
		runtime.WithSessionID(e.sessionID),
		runtime.WithCustomData(e.customData),
		runtime.WithMutationObserver(e.observe),
	}
	if e.initial != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithInitialState(*e.initial))
	}
	if e.eventLimit != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithEventLimit(*e.eventLimit))
	}
	rt, err := runtime.NewEngine(story, runtimeOpts...)
	if err != nil {
		return nil, err
	}
	e.runtime = rt

	// The runtime tags its own records; the other subsystems share one
	// session-scoped logger.
	if e.sessionID != "" {
		e.logger = e.logger.With("session_id", e.sessionID)
	}

	e.persistence = persistence.NewManager(rt,
		persistence.WithStorage(e.storage),
		persistence.WithLogger(e.logger),
		persistence.WithLifecycleHooks(e.hooks),
		persistence.WithClock(e.clock),
		persistence.WithEngineVersion(e.version),
		persistence.WithCheckpointConfig(e.checkpointCfg),
	)

	historyOpts := []history.Option{
		history.WithConfig(e.historyCfg),
		history.WithLogger(e.logger),
		history.WithLifecycleHooks(e.hooks),
		history.WithClock(e.clock),
	}
	if e.autosave != nil {
		historyOpts = append(historyOpts, history.WithAutosave(*e.autosave, e.persistence))
	}
	e.history = history.New(rt, historyOpts...)
	e.history.SetCheckpointer(e.persistence)

	return e, nil
}

// NewFromLoader loads a story and initializes an engine for it.
func NewFromLoader(ctx context.Context, loader ports.StoryLoader, opts ...Option) (*Engine, error) {
	story, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load story: %w", err)
	}
	return New(story, opts...)
}

// observe feeds committed mutations to the undo stack and autosave. It runs
// inside the engine lock.
func (e *Engine) observe(ctx context.Context, m runtime.Mutation) {
	e.history.Track(m.Action, m.Before)
	if trigger, ok := history.TriggerFor(m.Action); ok {
		e.history.Autosave(ctx, trigger)
	}
}

// SessionID returns the session identifier given at construction.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Story returns the read-only story graph.
func (e *Engine) Story() *domain.Story {
	return e.runtime.Story()
}

// Storage returns the attached storage backend, or nil.
func (e *Engine) Storage() ports.Storage {
	return e.storage
}

// CurrentNode returns the node the reader is on.
func (e *Engine) CurrentNode() (*domain.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.CurrentNode()
}

// AvailableChoices returns the choices that pass both their condition and
// every validation rule. It is a filtered view: locked choices are left out,
// so its positions do not line up with MakeChoice, which indexes Options.
// Use ChoiceView.Index from Options to pick a choice.
func (e *Engine) AvailableChoices(ctx context.Context) []domain.Choice {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.AvailableChoices(ctx)
}

// Options returns the condition-visible choices with their validation
// outcome. MakeChoice indexes into this list.
func (e *Engine) Options(ctx context.Context) []domain.ChoiceView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.Options(ctx)
}

// IsTerminal reports whether no choice is available.
func (e *Engine) IsTerminal(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.IsTerminal(ctx)
}

// MakeChoice executes the choice at index in the Options list.
func (e *Engine) MakeChoice(ctx context.Context, index int) (*domain.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.MakeChoice(ctx, index)
}

// GoToNode jumps to a node without evaluating any choice.
func (e *Engine) GoToNode(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.GoToNode(ctx, id)
}

// Reset returns to the story's initial node with empty flags.
func (e *Engine) Reset(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runtime.Reset(ctx)
}

// State returns a deep copy of the live state.
func (e *Engine) State() domain.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.State()
}

// Flags returns a deep copy of the flag bag.
func (e *Engine) Flags() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.Flags()
}

// Flag returns a single flag and whether it is set.
func (e *Engine) Flag(key string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.Flag(key)
}

// SetFlag stores a flag value.
func (e *Engine) SetFlag(ctx context.Context, key string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.SetFlag(ctx, key, value)
}

// DeleteFlag removes a flag and reports whether it existed.
func (e *Engine) DeleteFlag(ctx context.Context, key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.DeleteFlag(ctx, key)
}

// History returns the visited node IDs, oldest first.
func (e *Engine) History() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.History()
}

// Events returns the recent flow events, oldest first.
func (e *Engine) Events() []domain.FlowEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.Events()
}

// RegisterRule adds or replaces a validation rule.
func (e *Engine) RegisterRule(rule validation.Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.Validator().Register(rule)
}

// RemoveRule removes a validation rule by name.
func (e *Engine) RemoveRule(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.Validator().Remove(name)
}

// Rules lists the registered validation rule names in evaluation order.
func (e *Engine) Rules() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.Validator().Rules()
}

// SetCustomEvaluator swaps the host expression language. Nil restores the
// built-in evaluator.
func (e *Engine) SetCustomEvaluator(fn condition.Func) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runtime.Evaluator().SetCustomEvaluator(fn)
}

// ConditionStats reports compiled-condition cache usage.
func (e *Engine) ConditionStats() condition.CacheStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.Evaluator().Stats()
}
