package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/fable"
	"github.com/aretw0/fable/internal/logging"
	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/persistence"
	"github.com/aretw0/fable/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// StoryURI addresses the story resource.
const StoryURI = "fable://story"

// DefaultSessionID is used when a tool call names no session.
const DefaultSessionID = "mcp"

// Scene is the structured result of every tool.
type Scene struct {
	SessionID string              `json:"sessionId" jsonschema_description:"Session the scene belongs to"`
	NodeID    string              `json:"nodeId" jsonschema_description:"Current node ID"`
	Text      string              `json:"text" jsonschema_description:"Narrative text of the current node"`
	Options   []domain.ChoiceView `json:"options" jsonschema_description:"Choices visible at this node, with lock reasons"`
	Terminal  bool                `json:"terminal" jsonschema_description:"Indicates if the story has ended"`
	Flags     map[string]any      `json:"flags" jsonschema_description:"Current story flags"`
	CanUndo   bool                `json:"canUndo"`
	CanRedo   bool                `json:"canRedo"`
}

// CheckpointResult is returned by create_checkpoint.
type CheckpointResult struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

type sessionArgs struct {
	SessionID string `json:"session_id"`
}

type choiceArgs struct {
	SessionID string `json:"session_id"`
	Index     int    `json:"index"`
}

type flagArgs struct {
	SessionID string `json:"session_id"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

type checkpointArgs struct {
	SessionID   string `json:"session_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type restoreArgs struct {
	SessionID    string `json:"session_id"`
	CheckpointID string `json:"checkpoint_id"`
}

// Server exposes story sessions as MCP tools.
type Server struct {
	sessions  *session.Manager
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP server over the session manager.
func NewServer(sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		sessions:  sessions,
		mcpServer: server.NewMCPServer("fable-mcp", fable.Version),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	sessionParam := mcp.WithString("session_id", mcp.Description("Session to act on (optional)"))

	s.mcpServer.AddTool(mcp.NewTool("get_scene",
		mcp.WithDescription("Show the current node, its choices and the story flags."),
		sessionParam,
		mcp.WithOutputSchema[Scene](),
	), mcp.NewStructuredToolHandler(s.handleGetScene))

	s.mcpServer.AddTool(mcp.NewTool("make_choice",
		mcp.WithDescription("Pick a choice by its zero-based index in the scene's options."),
		sessionParam,
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Zero-based option index")),
		mcp.WithOutputSchema[Scene](),
	), mcp.NewStructuredToolHandler(s.handleMakeChoice))

	s.mcpServer.AddTool(mcp.NewTool("set_flag",
		mcp.WithDescription("Set a story flag. The value is parsed as JSON, falling back to a plain string."),
		sessionParam,
		mcp.WithString("key", mcp.Required(), mcp.Description("Flag name")),
		mcp.WithString("value", mcp.Required(), mcp.Description("Flag value")),
		mcp.WithOutputSchema[Scene](),
	), mcp.NewStructuredToolHandler(s.handleSetFlag))

	s.mcpServer.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Revert the last state change."),
		sessionParam,
		mcp.WithOutputSchema[Scene](),
	), mcp.NewStructuredToolHandler(s.handleUndo))

	s.mcpServer.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Re-apply the last undone change."),
		sessionParam,
		mcp.WithOutputSchema[Scene](),
	), mcp.NewStructuredToolHandler(s.handleRedo))

	s.mcpServer.AddTool(mcp.NewTool("create_checkpoint",
		mcp.WithDescription("Snapshot the session under a name."),
		sessionParam,
		mcp.WithString("name", mcp.Description("Checkpoint name")),
		mcp.WithString("description", mcp.Description("Free-form note")),
		mcp.WithOutputSchema[CheckpointResult](),
	), mcp.NewStructuredToolHandler(s.handleCreateCheckpoint))

	s.mcpServer.AddTool(mcp.NewTool("restore_checkpoint",
		mcp.WithDescription("Return the session to a checkpoint."),
		sessionParam,
		mcp.WithString("checkpoint_id", mcp.Required(), mcp.Description("Checkpoint ID")),
		mcp.WithOutputSchema[Scene](),
	), mcp.NewStructuredToolHandler(s.handleRestoreCheckpoint))
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(StoryURI, "Story Definition",
		mcp.WithResourceDescription("The loaded story graph"),
		mcp.WithMIMEType("application/json"),
	), s.readStory)
}

func (s *Server) readStory(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(s.sessions.Story())
	if err != nil {
		return nil, fmt.Errorf("failed to encode story: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      StoryURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func sessionOf(id string) string {
	if id == "" {
		return DefaultSessionID
	}
	return id
}

// start makes sure the session exists. Tool calls never need an explicit
// create step.
func (s *Server) start(ctx context.Context, id string) error {
	_, err := s.sessions.LoadOrStart(ctx, id)
	return err
}

// update runs fn on the session and returns the resulting scene.
func (s *Server) update(ctx context.Context, id string, fn func(context.Context, *fable.Engine) error) (Scene, error) {
	id = sessionOf(id)
	if err := s.start(ctx, id); err != nil {
		return Scene{}, err
	}
	var scene Scene
	err := s.sessions.Update(ctx, id, func(ctx context.Context, eng *fable.Engine) error {
		if err := fn(ctx, eng); err != nil {
			return err
		}
		var err error
		scene, err = sceneOf(ctx, id, eng)
		return err
	})
	if err != nil {
		s.logger.Warn("mcp tool failed", "session_id", id, "err", err)
		return Scene{}, err
	}
	return scene, nil
}

func sceneOf(ctx context.Context, id string, eng *fable.Engine) (Scene, error) {
	node, err := eng.CurrentNode()
	if err != nil {
		return Scene{}, err
	}
	return Scene{
		SessionID: id,
		NodeID:    node.ID,
		Text:      node.Text,
		Options:   eng.Options(ctx),
		Terminal:  eng.IsTerminal(ctx),
		Flags:     eng.Flags(),
		CanUndo:   eng.CanUndo(),
		CanRedo:   eng.CanRedo(),
	}, nil
}

func (s *Server) handleGetScene(ctx context.Context, _ mcp.CallToolRequest, args sessionArgs) (Scene, error) {
	id := sessionOf(args.SessionID)
	if err := s.start(ctx, id); err != nil {
		return Scene{}, err
	}
	var scene Scene
	err := s.sessions.View(ctx, id, func(ctx context.Context, eng *fable.Engine) error {
		var err error
		scene, err = sceneOf(ctx, id, eng)
		return err
	})
	return scene, err
}

func (s *Server) handleMakeChoice(ctx context.Context, _ mcp.CallToolRequest, args choiceArgs) (Scene, error) {
	return s.update(ctx, args.SessionID, func(ctx context.Context, eng *fable.Engine) error {
		_, err := eng.MakeChoice(ctx, args.Index)
		return err
	})
}

func (s *Server) handleSetFlag(ctx context.Context, _ mcp.CallToolRequest, args flagArgs) (Scene, error) {
	if args.Key == "" {
		return Scene{}, errors.New("key is required")
	}
	var value any
	if err := json.Unmarshal([]byte(args.Value), &value); err != nil {
		value = args.Value
	}
	return s.update(ctx, args.SessionID, func(ctx context.Context, eng *fable.Engine) error {
		return eng.SetFlag(ctx, args.Key, value)
	})
}

func (s *Server) handleUndo(ctx context.Context, _ mcp.CallToolRequest, args sessionArgs) (Scene, error) {
	return s.update(ctx, args.SessionID, func(ctx context.Context, eng *fable.Engine) error {
		if res := eng.Undo(ctx); !res.Success {
			return fmt.Errorf("cannot undo: %s", res.Error)
		}
		return nil
	})
}

func (s *Server) handleRedo(ctx context.Context, _ mcp.CallToolRequest, args sessionArgs) (Scene, error) {
	return s.update(ctx, args.SessionID, func(ctx context.Context, eng *fable.Engine) error {
		if res := eng.Redo(ctx); !res.Success {
			return fmt.Errorf("cannot redo: %s", res.Error)
		}
		return nil
	})
}

func (s *Server) handleCreateCheckpoint(ctx context.Context, _ mcp.CallToolRequest, args checkpointArgs) (CheckpointResult, error) {
	id := sessionOf(args.SessionID)
	if err := s.start(ctx, id); err != nil {
		return CheckpointResult{}, err
	}
	var out CheckpointResult
	err := s.sessions.Update(ctx, id, func(ctx context.Context, eng *fable.Engine) error {
		cp, err := eng.CreateCheckpoint(ctx, args.Name, persistence.CheckpointOptions{Description: args.Description})
		if err != nil {
			return err
		}
		out = CheckpointResult{ID: cp.ID, Name: cp.Name, Timestamp: cp.Timestamp}
		return nil
	})
	return out, err
}

func (s *Server) handleRestoreCheckpoint(ctx context.Context, _ mcp.CallToolRequest, args restoreArgs) (Scene, error) {
	if args.CheckpointID == "" {
		return Scene{}, errors.New("checkpoint_id is required")
	}
	return s.update(ctx, args.SessionID, func(ctx context.Context, eng *fable.Engine) error {
		res := eng.RestoreFromCheckpoint(ctx, args.CheckpointID)
		if !res.Success {
			return fmt.Errorf("restore failed: %s", res.Error)
		}
		return nil
	})
}
