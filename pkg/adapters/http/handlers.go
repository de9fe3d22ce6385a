package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/aretw0/fable"
	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/persistence"
	"github.com/go-chi/chi/v5"
)

// SceneNode is the reader-facing part of a node.
type SceneNode struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Scene is what a client needs to render a session.
type Scene struct {
	SessionID string              `json:"sessionId"`
	Node      SceneNode           `json:"node"`
	Options   []domain.ChoiceView `json:"options"`
	Terminal  bool                `json:"terminal"`
	Flags     map[string]any      `json:"flags"`
	History   []string            `json:"history"`
	CanUndo   bool                `json:"canUndo"`
	CanRedo   bool                `json:"canRedo"`
}

func sceneOf(ctx context.Context, id string, eng *fable.Engine) (Scene, error) {
	node, err := eng.CurrentNode()
	if err != nil {
		return Scene{}, err
	}
	return Scene{
		SessionID: id,
		Node:      SceneNode{ID: node.ID, Text: node.Text},
		Options:   eng.Options(ctx),
		Terminal:  eng.IsTerminal(ctx),
		Flags:     eng.Flags(),
		History:   eng.History(),
		CanUndo:   eng.CanUndo(),
		CanRedo:   eng.CanRedo(),
	}, nil
}

// mutate runs fn under the session lock, replies with the resulting scene
// and broadcasts the state diff to subscribers.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, fn func(context.Context, *fable.Engine) error) {
	id := chi.URLParam(r, "id")
	var (
		scene         Scene
		before, after domain.State
	)
	err := s.Sessions.Update(r.Context(), id, func(ctx context.Context, eng *fable.Engine) error {
		before = eng.State()
		if err := fn(ctx, eng); err != nil {
			return err
		}
		after = eng.State()
		var err error
		scene, err = sceneOf(ctx, id, eng)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.Streams.BroadcastDiff(id, &before, &after)
	s.writeJSON(w, http.StatusOK, scene)
}

// view runs fn under the session lock without persisting.
func (s *Server) view(w http.ResponseWriter, r *http.Request, fn func(context.Context, *fable.Engine) (any, error)) {
	id := chi.URLParam(r, "id")
	var out any
	err := s.Sessions.View(r.Context(), id, func(ctx context.Context, eng *fable.Engine) error {
		var err error
		out, err = fn(ctx, eng)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Sessions.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

// CreateSession handles POST /sessions.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.Sessions.Create(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	eng, err := s.Sessions.Load(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	scene, err := sceneOf(r.Context(), id, eng)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/sessions/"+id)
	s.writeJSON(w, http.StatusCreated, scene)
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.view(w, r, func(ctx context.Context, eng *fable.Engine) (any, error) {
		return sceneOf(ctx, id, eng)
	})
}

// DeleteSession handles DELETE /sessions/{id}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MakeChoice handles POST /sessions/{id}/choices/{index}. The index is the
// position in the scene's options list.
func (s *Server) MakeChoice(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeError(w, &statusError{status: http.StatusBadRequest, err: errors.New("choice index must be an integer")})
		return
	}
	s.mutate(w, r, func(ctx context.Context, eng *fable.Engine) error {
		_, err := eng.MakeChoice(ctx, index)
		return err
	})
}

// SetFlag handles PUT /sessions/{id}/flags/{key}. The body is any JSON value.
func (s *Server) SetFlag(w http.ResponseWriter, r *http.Request) {
	var value any
	if err := decodeBody(w, r, &value); err != nil {
		s.writeError(w, err)
		return
	}
	key := chi.URLParam(r, "key")
	s.mutate(w, r, func(ctx context.Context, eng *fable.Engine) error {
		return eng.SetFlag(ctx, key, value)
	})
}

// DeleteFlag handles DELETE /sessions/{id}/flags/{key}.
func (s *Server) DeleteFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	s.mutate(w, r, func(ctx context.Context, eng *fable.Engine) error {
		if !eng.DeleteFlag(ctx, key) {
			return &statusError{status: http.StatusNotFound, err: errors.New("flag " + key + " is not set")}
		}
		return nil
	})
}

// Navigate handles POST /sessions/{id}/navigate/{node}.
func (s *Server) Navigate(w http.ResponseWriter, r *http.Request) {
	node := chi.URLParam(r, "node")
	s.mutate(w, r, func(ctx context.Context, eng *fable.Engine) error {
		return eng.GoToNode(ctx, node)
	})
}

// Undo handles POST /sessions/{id}/undo.
func (s *Server) Undo(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, eng *fable.Engine) error {
		if res := eng.Undo(ctx); !res.Success {
			return &statusError{status: http.StatusConflict, err: errors.New(res.Error)}
		}
		return nil
	})
}

// Redo handles POST /sessions/{id}/redo.
func (s *Server) Redo(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, eng *fable.Engine) error {
		if res := eng.Redo(ctx); !res.Success {
			return &statusError{status: http.StatusConflict, err: errors.New(res.Error)}
		}
		return nil
	})
}

// Reset handles POST /sessions/{id}/reset.
func (s *Server) Reset(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, eng *fable.Engine) error {
		eng.Reset(ctx)
		return nil
	})
}

// CheckpointRequest is the body of POST /sessions/{id}/checkpoints.
type CheckpointRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Tags        []string       `json:"tags"`
	Metadata    map[string]any `json:"metadata"`
}

// ListCheckpoints handles GET /sessions/{id}/checkpoints. The optional tag
// query parameter filters by tag.
func (s *Server) ListCheckpoints(w http.ResponseWriter, r *http.Request) {
	filter := persistence.CheckpointFilter{Tag: r.URL.Query().Get("tag")}
	s.view(w, r, func(ctx context.Context, eng *fable.Engine) (any, error) {
		return map[string][]domain.Checkpoint{"checkpoints": eng.ListCheckpoints(filter)}, nil
	})
}

// CreateCheckpoint handles POST /sessions/{id}/checkpoints.
func (s *Server) CreateCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req CheckpointRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			s.writeError(w, err)
			return
		}
	}
	var cp *domain.Checkpoint
	err := s.Sessions.Update(r.Context(), chi.URLParam(r, "id"), func(ctx context.Context, eng *fable.Engine) error {
		var err error
		cp, err = eng.CreateCheckpoint(ctx, req.Name, persistence.CheckpointOptions{
			Description: req.Description,
			Tags:        req.Tags,
			Metadata:    req.Metadata,
		})
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, cp)
}

// DeleteCheckpoint handles DELETE /sessions/{id}/checkpoints/{cid}.
func (s *Server) DeleteCheckpoint(w http.ResponseWriter, r *http.Request) {
	cid := chi.URLParam(r, "cid")
	err := s.Sessions.Update(r.Context(), chi.URLParam(r, "id"), func(ctx context.Context, eng *fable.Engine) error {
		if !eng.DeleteCheckpoint(ctx, cid) {
			return &statusError{status: http.StatusNotFound, err: errors.New("checkpoint " + cid + " not found")}
		}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RestoreCheckpoint handles POST /sessions/{id}/checkpoints/{cid}/restore.
func (s *Server) RestoreCheckpoint(w http.ResponseWriter, r *http.Request) {
	cid := chi.URLParam(r, "cid")
	s.mutate(w, r, func(ctx context.Context, eng *fable.Engine) error {
		return loadError(eng.RestoreFromCheckpoint(ctx, cid))
	})
}

// Save handles GET /sessions/{id}/save. Query flags: events, performance,
// branching and validation include the optional envelope sections.
func (s *Server) Save(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := persistence.SaveOptions{
		Checksum:                q.Get("checksum") != "false",
		IncludeFlowEvents:       q.Get("events") == "true",
		IncludePerformanceState: q.Get("performance") == "true",
		IncludeBranchingContext: q.Get("branching") == "true",
		IncludeValidationState:  q.Get("validation") == "true",
	}
	s.view(w, r, func(ctx context.Context, eng *fable.Engine) (any, error) {
		return eng.SaveState(ctx, opts)
	})
}

// Load handles POST /sessions/{id}/load with an envelope body. Checksums are
// verified unless verify=false.
func (s *Server) Load(w http.ResponseWriter, r *http.Request) {
	var env domain.SerializedState
	if err := decodeBody(w, r, &env); err != nil {
		s.writeError(w, err)
		return
	}
	opts := persistence.LoadOptions{VerifyChecksum: r.URL.Query().Get("verify") != "false"}
	s.mutate(w, r, func(ctx context.Context, eng *fable.Engine) error {
		return loadError(eng.LoadState(ctx, &env, opts))
	})
}

func loadError(res persistence.LoadResult) error {
	if res.Success {
		return nil
	}
	err := res.Err
	if err == nil {
		err = errors.New(res.Error)
	}
	return &statusError{status: http.StatusUnprocessableEntity, err: err, warnings: res.Warnings}
}
