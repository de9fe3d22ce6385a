package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/fable"
	"github.com/aretw0/fable/internal/logging"
	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxBodyBytes bounds request bodies, save envelopes included.
const maxBodyBytes = 4 << 20

// Server exposes a session manager over HTTP.
type Server struct {
	Sessions *session.Manager
	Streams  *StreamManager

	logger  *slog.Logger
	metrics http.Handler
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// NewHandler creates the HTTP handler for sessions.
func NewHandler(sessions *session.Manager, opts ...Option) http.Handler {
	s := &Server{
		Sessions: sessions,
		Streams:  NewStreamManager(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams.logger = s.logger

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/story", s.GetStory)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Post("/", s.CreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Delete("/", s.DeleteSession)
			r.Get("/events", s.SubscribeEvents)
			r.Post("/choices/{index}", s.MakeChoice)
			r.Put("/flags/{key}", s.SetFlag)
			r.Delete("/flags/{key}", s.DeleteFlag)
			r.Post("/navigate/{node}", s.Navigate)
			r.Post("/undo", s.Undo)
			r.Post("/redo", s.Redo)
			r.Post("/reset", s.Reset)
			r.Get("/checkpoints", s.ListCheckpoints)
			r.Post("/checkpoints", s.CreateCheckpoint)
			r.Delete("/checkpoints/{cid}", s.DeleteCheckpoint)
			r.Post("/checkpoints/{cid}/restore", s.RestoreCheckpoint)
			r.Get("/save", s.Save)
			r.Post("/load", s.Load)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "fable-http",
		"version": strings.TrimSpace(fable.Version),
		"story":   s.Sessions.Story().Hash(),
	})
}

// GetStory handles the GET /story request.
func (s *Server) GetStory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Sessions.Story())
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error        string   `json:"error"`
	Rule         string   `json:"rule,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// statusError carries an explicit HTTP status for result-value failures.
type statusError struct {
	status   int
	err      error
	warnings []string
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func (s *Server) writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var serr *statusError
	var verr *domain.ChoiceValidationError
	var nerr *domain.NavigationError
	switch {
	case errors.As(err, &verr):
		status = http.StatusUnprocessableEntity
		resp.Rule = verr.Rule
		resp.Reason = verr.Reason
		resp.Alternatives = verr.AlternativeTexts()
	case errors.As(err, &nerr):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidEnvelope):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrStoryMismatch), errors.Is(err, domain.ErrIncompatibleVersion):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrChecksumMismatch):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &serr):
		status = serr.status
	}
	if errors.As(err, &serr) {
		resp.Warnings = serr.warnings
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	} else {
		s.logger.Debug("request rejected", "status", status, "err", err)
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &statusError{status: http.StatusBadRequest, err: errors.New("invalid request body: " + err.Error())}
	}
	return nil
}
