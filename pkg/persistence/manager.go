package persistence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/fable/internal/logging"
	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/ports"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// EngineVersion is stamped into envelopes written by this package.
const EngineVersion = "1.0.0"

// Target is the live state the manager snapshots and restores.
type Target interface {
	Story() *domain.Story
	State() domain.State
	Replace(ctx context.Context, state domain.State, action string) error
}

// EventLog is implemented by targets that keep recent flow events.
type EventLog interface {
	Events() []domain.FlowEvent
	SetEvents(events []domain.FlowEvent)
}

// Reporter is implemented by targets that can describe their runtime
// context for the optional envelope sections.
type Reporter interface {
	PerformanceState(ctx context.Context) map[string]any
	BranchingContext(ctx context.Context) map[string]any
	ValidationState(ctx context.Context) map[string]any
}

// Manager serializes a Target and manages its checkpoints.
// It is safe for concurrent use.
type Manager struct {
	target  Target
	storage ports.Storage
	logger  *slog.Logger
	hooks   domain.LifecycleHooks
	clock   func() time.Time
	version string
	cfg     CheckpointConfig

	mu          sync.Mutex
	checkpoints *orderedmap.OrderedMap[string, *domain.Checkpoint]
	created     int
}

// Option configures a Manager.
type Option func(*Manager)

// WithStorage attaches a storage backend.
func WithStorage(s ports.Storage) Option {
	return func(m *Manager) {
		m.storage = s
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.hooks = hooks
	}
}

// WithClock overrides the wall clock.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithEngineVersion overrides the version stamped into and compared
// against envelopes.
func WithEngineVersion(v string) Option {
	return func(m *Manager) {
		if v != "" {
			m.version = v
		}
	}
}

// WithCheckpointConfig sets checkpoint retention.
func WithCheckpointConfig(cfg CheckpointConfig) Option {
	return func(m *Manager) {
		m.cfg = cfg.withDefaults()
	}
}

// NewManager creates a manager for target.
func NewManager(target Target, opts ...Option) *Manager {
	m := &Manager{
		target:      target,
		logger:      logging.NewNop(),
		clock:       time.Now,
		version:     EngineVersion,
		cfg:         CheckpointConfig{}.withDefaults(),
		checkpoints: orderedmap.New[string, *domain.Checkpoint](),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Storage returns the attached backend, or nil.
func (m *Manager) Storage() ports.Storage {
	return m.storage
}

// Version returns the engine version used for compatibility checks.
func (m *Manager) Version() string {
	return m.version
}

func (m *Manager) report(ctx context.Context, op string, start time.Time, err error) {
	if m.hooks.OnPersistence == nil {
		return
	}
	ev := &domain.PersistenceEvent{
		EventBase: domain.EventBase{Timestamp: m.clock()},
		Operation: op,
		Success:   err == nil,
		Duration:  m.clock().Sub(start),
	}
	if err != nil {
		ev.Err = err.Error()
	}
	m.hooks.OnPersistence(ctx, ev)
}
