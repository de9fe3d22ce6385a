package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/fable/internal/logging"
	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/persistence"
	"github.com/google/uuid"
)

// Default stack bounds.
const (
	DefaultMaxUndo = 50
	DefaultMaxRedo = 50
)

// DefaultTrackedActions are the mutations recorded on the undo stack.
var DefaultTrackedActions = []string{
	domain.ActionChoice,
	domain.ActionFlag,
	domain.ActionReset,
	domain.ActionLoad,
	domain.ActionNavigate,
	domain.ActionRestore,
}

var (
	errNothingToUndo = errors.New("nothing to undo")
	errNothingToRedo = errors.New("nothing to redo")
	errBusy          = errors.New("history operation already in progress")
)

// Target is the live state undo and redo swap.
type Target interface {
	State() domain.State
	Replace(ctx context.Context, state domain.State, action string) error
}

// Checkpointer stores autosaves. persistence.Manager implements it.
type Checkpointer interface {
	CreateCheckpoint(ctx context.Context, name string, opts persistence.CheckpointOptions) (*domain.Checkpoint, error)
	ListCheckpoints(filter persistence.CheckpointFilter) []domain.Checkpoint
	DeleteCheckpoint(ctx context.Context, id string) bool
}

// Config bounds the stacks and selects the tracked actions.
type Config struct {
	MaxUndo        int
	MaxRedo        int
	TrackedActions []string
}

func (c Config) withDefaults() Config {
	if c.MaxUndo <= 0 {
		c.MaxUndo = DefaultMaxUndo
	}
	if c.MaxRedo <= 0 {
		c.MaxRedo = DefaultMaxRedo
	}
	if c.TrackedActions == nil {
		c.TrackedActions = DefaultTrackedActions
	}
	return c
}

// Result reports an undo or redo attempt.
type Result struct {
	Success    bool                 `json:"success"`
	Error      string               `json:"error,omitempty"`
	Duration   time.Duration        `json:"duration"`
	UndoBefore int                  `json:"undoBefore"`
	UndoAfter  int                  `json:"undoAfter"`
	RedoBefore int                  `json:"redoBefore"`
	RedoAfter  int                  `json:"redoAfter"`
	Entry      *domain.HistoryEntry `json:"entry,omitempty"`
}

// Controller keeps the undo and redo stacks for one target. It is not safe
// for concurrent use; the engine facade serializes access.
type Controller struct {
	target  Target
	cfg     Config
	tracked map[string]bool
	undo    []domain.HistoryEntry
	redo    []domain.HistoryEntry
	// restoring suppresses tracking while undo or redo replaces state.
	restoring bool

	autosave     AutosaveConfig
	checkpoints  Checkpointer
	lastAutosave time.Time

	logger *slog.Logger
	hooks  domain.LifecycleHooks
	clock  func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithConfig sets stack bounds and tracked actions.
func WithConfig(cfg Config) Option {
	return func(c *Controller) {
		c.cfg = cfg.withDefaults()
	}
}

// WithAutosave enables autosave into cp.
func WithAutosave(cfg AutosaveConfig, cp Checkpointer) Option {
	return func(c *Controller) {
		c.autosave = cfg.withDefaults()
		c.checkpoints = cp
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Controller) {
		c.hooks = hooks
	}
}

// WithClock overrides the wall clock used for timestamps and throttling.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// New creates a controller for target.
func New(target Target, opts ...Option) *Controller {
	c := &Controller{
		target:   target,
		cfg:      Config{}.withDefaults(),
		autosave: AutosaveConfig{}.withDefaults(),
		logger:   logging.NewNop(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tracked = toSet(c.cfg.TrackedActions)
	return c
}

// Track records before as the state preceding a mutation of the given
// action and clears the redo stack. It is a no-op for untracked actions and
// while undo or redo is in progress.
func (c *Controller) Track(action string, before domain.State) bool {
	if c.restoring || !c.tracked[action] {
		return false
	}
	c.undo = pushBounded(c.undo, c.entry(before, action), c.cfg.MaxUndo)
	c.redo = nil
	return true
}

// Undo restores the newest undo entry, moving the current state onto the
// redo stack.
func (c *Controller) Undo(ctx context.Context) Result {
	return c.swap(ctx, domain.ActionUndo)
}

// Redo re-applies the newest redo entry, moving the current state onto the
// undo stack.
func (c *Controller) Redo(ctx context.Context) Result {
	return c.swap(ctx, domain.ActionRedo)
}

func (c *Controller) swap(ctx context.Context, op string) Result {
	start := c.clock()
	res := Result{
		UndoBefore: len(c.undo),
		RedoBefore: len(c.redo),
	}
	finish := func(err error) Result {
		res.UndoAfter = len(c.undo)
		res.RedoAfter = len(c.redo)
		res.Duration = c.clock().Sub(start)
		res.Success = err == nil
		if err != nil {
			res.Error = err.Error()
			c.logger.Debug("history operation failed", "operation", op, "err", err)
		}
		if c.hooks.OnHistory != nil {
			c.hooks.OnHistory(ctx, &domain.HistoryEvent{
				EventBase: domain.EventBase{Timestamp: c.clock()},
				Operation: op,
				Success:   res.Success,
				Duration:  res.Duration,
			})
		}
		return res
	}

	if c.restoring {
		return finish(errBusy)
	}
	from, to, maxTo := &c.undo, &c.redo, c.cfg.MaxRedo
	empty := errNothingToUndo
	if op == domain.ActionRedo {
		from, to, maxTo = &c.redo, &c.undo, c.cfg.MaxUndo
		empty = errNothingToRedo
	}
	if len(*from) == 0 {
		return finish(empty)
	}

	entry := (*from)[len(*from)-1]
	current := c.entry(c.target.State(), op)

	c.restoring = true
	err := c.target.Replace(ctx, entry.State, op)
	c.restoring = false
	if err != nil {
		return finish(err)
	}

	*from = (*from)[:len(*from)-1]
	*to = pushBounded(*to, current, maxTo)
	res.Entry = &entry
	return finish(nil)
}

// CanUndo reports whether an undo entry exists.
func (c *Controller) CanUndo() bool {
	return len(c.undo) > 0
}

// CanRedo reports whether a redo entry exists.
func (c *Controller) CanRedo() bool {
	return len(c.redo) > 0
}

// Entries returns copies of both stacks, oldest first.
func (c *Controller) Entries() (undo, redo []domain.HistoryEntry) {
	return copyEntries(c.undo), copyEntries(c.redo)
}

// Clear empties both stacks.
func (c *Controller) Clear() {
	c.undo = nil
	c.redo = nil
}

// Config returns the active configuration.
func (c *Controller) Config() Config {
	cfg := c.cfg
	cfg.TrackedActions = append([]string(nil), c.cfg.TrackedActions...)
	return cfg
}

// SetLimits changes the stack bounds, trimming the oldest entries.
func (c *Controller) SetLimits(maxUndo, maxRedo int) {
	c.cfg.MaxUndo, c.cfg.MaxRedo = maxUndo, maxRedo
	c.cfg = c.cfg.withDefaults()
	c.undo = trim(c.undo, c.cfg.MaxUndo)
	c.redo = trim(c.redo, c.cfg.MaxRedo)
}

// SetTrackedActions replaces the set of tracked actions.
func (c *Controller) SetTrackedActions(actions ...string) {
	c.cfg.TrackedActions = append([]string{}, actions...)
	c.tracked = toSet(actions)
}

func (c *Controller) entry(state domain.State, action string) domain.HistoryEntry {
	return domain.HistoryEntry{
		ID:        uuid.NewString(),
		State:     state.Clone(),
		Timestamp: c.clock(),
		Action:    action,
	}
}

func pushBounded(stack []domain.HistoryEntry, e domain.HistoryEntry, limit int) []domain.HistoryEntry {
	return trim(append(stack, e), limit)
}

// trim evicts the oldest entries beyond limit.
func trim(stack []domain.HistoryEntry, limit int) []domain.HistoryEntry {
	if over := len(stack) - limit; over > 0 {
		return append(stack[:0:0], stack[over:]...)
	}
	return stack
}

func copyEntries(in []domain.HistoryEntry) []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, len(in))
	for i, e := range in {
		out[i] = e
		out[i].State = e.State.Clone()
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}
