package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/fable"
	"github.com/aretw0/fable/internal/config"
	"github.com/aretw0/fable/internal/logging"
	"github.com/aretw0/fable/pkg/adapters/file"
	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/observability"
	"github.com/aretw0/fable/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
)

// App bundles what every long-running command needs: the story, the open
// storage backend and a session manager wired with logging and metrics.
type App struct {
	Config   config.Config
	Story    *domain.Story
	Backend  *Backend
	Sessions *session.Manager
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// NewApp loads the story at storyPath and opens the configured backend.
// A nil logger logs at cfg.LogLevel to stderr.
func NewApp(ctx context.Context, storyPath string, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = logging.New(cfg.Level(), logging.WithFormat(cfg.LogFormat))
	}

	story, err := file.LoadStory(storyPath)
	if err != nil {
		return nil, err
	}

	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	hooks := observability.LoggingHooks(logger).Merge(metrics.Hooks())
	opts := []session.Option{
		session.WithStorage(backend.Storage),
		session.WithLogger(logger),
		session.WithSaveOptions(cfg.SaveOptions()),
		session.WithEngineOptions(
			fable.WithLifecycleHooks(hooks),
			fable.WithHistoryConfig(cfg.History()),
			fable.WithCheckpointConfig(cfg.Checkpoints()),
		),
	}
	if cfg.AutosaveEnabled {
		opts = append(opts, session.WithEngineOptions(fable.WithAutosave(cfg.Autosave())))
	}
	if backend.Locker != nil {
		opts = append(opts, session.WithLocker(backend.Locker))
	}

	logger.Debug("app ready", "storage", backend.Name, "nodes", len(story.Nodes))
	return &App{
		Config:   cfg,
		Story:    story,
		Backend:  backend,
		Sessions: session.NewManager(story, opts...),
		Metrics:  metrics,
		Registry: reg,
		Logger:   logger,
	}, nil
}

// Close releases the storage backend.
func (a *App) Close() error {
	return a.Backend.Close()
}
