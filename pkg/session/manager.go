package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/fable"
	"github.com/aretw0/fable/internal/logging"
	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/persistence"
	"github.com/aretw0/fable/pkg/persistence/middleware"
	"github.com/aretw0/fable/pkg/ports"
	"github.com/google/uuid"
)

// DefaultLockTTL bounds how long a distributed session lock survives a
// crashed holder.
const DefaultLockTTL = 30 * time.Second

const (
	keyPrefix = "session/"
	stateKey  = "state"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager owns one engine per session over a shared story, serializes
// access per session and persists each session after it changes.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	story      *domain.Story
	store      ports.Storage
	engineOpts []fable.Option
	saveOpts   persistence.SaveOptions

	mu       sync.Mutex            // Global lock for the maps
	locks    map[string]*lockEntry // Map of active locks
	sessions map[string]*fable.Engine

	// revisions holds the envelope timestamp last written or read per
	// session, to detect writes by other replicas.
	revisions map[string]string

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithStorage persists sessions. Without it sessions live only in memory.
func WithStorage(store ports.Storage) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithLocker enables distributed locking. Sessions are then re-read from
// storage on every access, since another replica may have changed them.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithEngineOptions applies opts to every session engine.
func WithEngineOptions(opts ...fable.Option) Option {
	return func(m *Manager) {
		m.engineOpts = append(m.engineOpts, opts...)
	}
}

// WithSaveOptions controls how session state is written.
func WithSaveOptions(opts persistence.SaveOptions) Option {
	return func(m *Manager) {
		m.saveOpts = opts
	}
}

// NewManager creates a session manager for story.
func NewManager(story *domain.Story, opts ...Option) *Manager {
	m := &Manager{
		story:     story,
		saveOpts:  persistence.SaveOptions{Checksum: true, IncludeFlowEvents: true},
		locks:     make(map[string]*lockEntry),
		sessions:  make(map[string]*fable.Engine),
		revisions: make(map[string]string),
		lockTTL:   DefaultLockTTL,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Story returns the story every session plays.
func (m *Manager) Story() *domain.Story {
	return m.story
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, keyPrefix+sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Create starts a new session with a random ID.
func (m *Manager) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		eng, err := m.newEngine(id)
		if err != nil {
			return err
		}
		if err := m.persist(ctx, id, eng); err != nil {
			return err
		}
		m.cache(id, eng, "")
		return nil
	})
	if err != nil {
		return "", err
	}
	m.logger.Debug("session created", "session_id", id)
	return id, nil
}

// LoadOrStart returns the session, creating it at the story's initial node
// if it does not exist yet.
func (m *Manager) LoadOrStart(ctx context.Context, sessionID string) (*fable.Engine, error) {
	var eng *fable.Engine
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		eng, err = m.load(ctx, sessionID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("failed to check session existence: %w", err)
		}

		eng, err = m.newEngine(sessionID)
		if err != nil {
			return err
		}
		// Persist immediately to reserve the ID
		if err := m.persist(ctx, sessionID, eng); err != nil {
			return fmt.Errorf("failed to initialize session: %w", err)
		}
		m.cache(sessionID, eng, "")
		return nil
	})
	return eng, err
}

// Load returns an existing session or domain.ErrNotFound.
func (m *Manager) Load(ctx context.Context, sessionID string) (*fable.Engine, error) {
	var eng *fable.Engine
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		eng, err = m.load(ctx, sessionID)
		return err
	})
	return eng, err
}

// Update runs fn against the session under its lock and persists the
// session afterwards, even when fn fails after partially mutating it.
func (m *Manager) Update(ctx context.Context, sessionID string, fn func(context.Context, *fable.Engine) error) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		eng, err := m.load(ctx, sessionID)
		if err != nil {
			return err
		}
		fnErr := fn(ctx, eng)
		if err := m.persist(ctx, sessionID, eng); err != nil {
			return errors.Join(fnErr, err)
		}
		return fnErr
	})
}

// View runs fn against the session under its lock without persisting.
func (m *Manager) View(ctx context.Context, sessionID string, fn func(context.Context, *fable.Engine) error) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		eng, err := m.load(ctx, sessionID)
		if err != nil {
			return err
		}
		return fn(ctx, eng)
	})
}

// Delete removes the session and everything stored for it.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		m.mu.Lock()
		delete(m.sessions, sessionID)
		delete(m.revisions, sessionID)
		m.mu.Unlock()
		if m.store == nil {
			return nil
		}
		return m.namespace(sessionID).Clear(ctx)
	})
}

// List returns the known session IDs, sorted.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	m.mu.Lock()
	for id := range m.sessions {
		seen[id] = true
	}
	m.mu.Unlock()

	if m.store != nil {
		keys, err := m.store.List(ctx, keyPrefix)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			rest := strings.TrimPrefix(k, keyPrefix)
			if id, ok := strings.CutSuffix(rest, "/"+stateKey); ok {
				seen[id] = true
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Active reports how many engines are held in memory.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// load must run under the session lock.
func (m *Manager) load(ctx context.Context, sessionID string) (*fable.Engine, error) {
	m.mu.Lock()
	eng, cached := m.sessions[sessionID]
	m.mu.Unlock()
	if cached && (m.locker == nil || m.store == nil) {
		return eng, nil
	}
	if m.store == nil {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}

	data, err := m.namespace(sessionID).Load(ctx, stateKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}
	env, err := persistence.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	if cached && m.revision(sessionID) == env.Metadata.Timestamp {
		return eng, nil
	}

	if !cached {
		eng, err = m.newEngine(sessionID)
		if err != nil {
			return nil, err
		}
	}
	res := eng.LoadState(ctx, env, persistence.LoadOptions{VerifyChecksum: m.saveOpts.Checksum})
	if !res.Success {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, res.Err)
	}
	if !cached {
		if _, err := eng.LoadCheckpoints(ctx); err != nil {
			m.logger.Warn("failed to load checkpoints", "session_id", sessionID, "err", err)
		}
	}
	// Undo stacks from before another writer's change no longer apply.
	eng.ClearHistory()
	m.cache(sessionID, eng, env.Metadata.Timestamp)
	return eng, nil
}

func (m *Manager) persist(ctx context.Context, sessionID string, eng *fable.Engine) error {
	if m.store == nil {
		return nil
	}
	res := eng.SaveToStorage(ctx, stateKey, m.saveOpts)
	if !res.Success {
		return fmt.Errorf("failed to persist session %s: %w", sessionID, res.Err)
	}
	m.mu.Lock()
	m.revisions[sessionID] = res.Envelope.Metadata.Timestamp
	m.mu.Unlock()
	return nil
}

func (m *Manager) revision(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revisions[sessionID]
}

func (m *Manager) newEngine(sessionID string) (*fable.Engine, error) {
	opts := append([]fable.Option{}, m.engineOpts...)
	opts = append(opts, fable.WithSessionID(sessionID), fable.WithLogger(m.logger))
	if m.store != nil {
		opts = append(opts, fable.WithStorage(m.namespace(sessionID)), fable.WithPersistentCheckpoints())
	}
	return fable.New(m.story, opts...)
}

func (m *Manager) namespace(sessionID string) ports.Storage {
	return middleware.NewNamespace(keyPrefix + sessionID + "/")(m.store)
}

func (m *Manager) cache(sessionID string, eng *fable.Engine, revision string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = eng
	if revision != "" {
		m.revisions[sessionID] = revision
	}
}
