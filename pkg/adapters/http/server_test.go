package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/fable/pkg/adapters/memory"
	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, opts ...Option) http.Handler {
	t.Helper()
	story, err := domain.NewStory("start",
		domain.Node{ID: "start", Text: "A locked door.", Choices: []domain.Choice{
			{Text: "open", NextNodeID: "vault", FlagRequirements: map[string]any{"hasKey": true}},
			{Text: "wait", NextNodeID: "start"},
		}},
		domain.Node{ID: "vault", Text: "Gold everywhere."},
	)
	require.NoError(t, err)
	return NewHandler(session.NewManager(story, session.WithStorage(memory.NewStore())), opts...)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createSession(t *testing.T, h http.Handler) Scene {
	t.Helper()
	w := do(t, h, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[Scene](t, w)
}

func TestServer_PlayThrough(t *testing.T) {
	h := newTestHandler(t)
	scene := createSession(t, h)
	assert.Equal(t, "start", scene.Node.ID)
	require.Len(t, scene.Options, 2)
	assert.False(t, scene.Options[0].Available)
	base := "/sessions/" + scene.SessionID

	w := do(t, h, http.MethodPost, base+"/choices/0", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	errResp := decode[ErrorResponse](t, w)
	assert.Equal(t, "flag-requirements", errResp.Rule)
	assert.Equal(t, []string{"wait"}, errResp.Alternatives)

	w = do(t, h, http.MethodPut, base+"/flags/hasKey", true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[Scene](t, w).Options[0].Available)

	w = do(t, h, http.MethodPost, base+"/choices/0", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	scene = decode[Scene](t, w)
	assert.Equal(t, "vault", scene.Node.ID)
	assert.True(t, scene.Terminal)
	assert.True(t, scene.CanUndo)

	w = do(t, h, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"start", "vault"}, decode[Scene](t, w).History)
}

func TestServer_Errors(t *testing.T) {
	h := newTestHandler(t)
	scene := createSession(t, h)
	base := "/sessions/" + scene.SessionID

	tests := []struct {
		method, path string
		body         any
		want         int
	}{
		{http.MethodGet, "/sessions/missing", nil, http.StatusNotFound},
		{http.MethodPost, "/sessions/missing/undo", nil, http.StatusNotFound},
		{http.MethodPost, base + "/choices/abc", nil, http.StatusBadRequest},
		{http.MethodPost, base + "/choices/9", nil, http.StatusBadRequest},
		{http.MethodPost, base + "/navigate/nowhere", nil, http.StatusBadRequest},
		{http.MethodPost, base + "/undo", nil, http.StatusConflict},
		{http.MethodPost, base + "/redo", nil, http.StatusConflict},
		{http.MethodDelete, base + "/flags/unset", nil, http.StatusNotFound},
		{http.MethodPost, base + "/checkpoints/nope/restore", nil, http.StatusNotFound},
		{http.MethodPost, base + "/load", map[string]any{"state": map[string]any{}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, w).Error)
		})
	}
}

func TestServer_UndoRedoReset(t *testing.T) {
	h := newTestHandler(t)
	base := "/sessions/" + createSession(t, h).SessionID

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, base+"/navigate/vault", nil).Code)

	w := do(t, h, http.MethodPost, base+"/undo", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	scene := decode[Scene](t, w)
	assert.Equal(t, "start", scene.Node.ID)
	assert.True(t, scene.CanRedo)

	w = do(t, h, http.MethodPost, base+"/redo", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "vault", decode[Scene](t, w).Node.ID)

	w = do(t, h, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"start"}, decode[Scene](t, w).History)
}

func TestServer_Checkpoints(t *testing.T) {
	h := newTestHandler(t)
	base := "/sessions/" + createSession(t, h).SessionID

	w := do(t, h, http.MethodPost, base+"/checkpoints", CheckpointRequest{Name: "door", Tags: []string{"act1"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cp := decode[domain.Checkpoint](t, w)
	assert.Equal(t, "door", cp.Name)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, base+"/navigate/vault", nil).Code)

	w = do(t, h, http.MethodGet, base+"/checkpoints?tag=act1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]domain.Checkpoint](t, w)["checkpoints"], 1)

	w = do(t, h, http.MethodPost, base+"/checkpoints/"+cp.ID+"/restore", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "start", decode[Scene](t, w).Node.ID)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, base+"/checkpoints/"+cp.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, base+"/checkpoints/"+cp.ID, nil).Code)
}

func TestServer_SaveAndLoad(t *testing.T) {
	h := newTestHandler(t)
	src := "/sessions/" + createSession(t, h).SessionID
	dst := "/sessions/" + createSession(t, h).SessionID

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, src+"/flags/gold", 7).Code)

	w := do(t, h, http.MethodGet, src+"/save?events=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decode[domain.SerializedState](t, w)
	assert.NotEmpty(t, env.Metadata.Checksum)
	assert.NotEmpty(t, env.FlowEvents)

	w = do(t, h, http.MethodPost, dst+"/load", env)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 7, decode[Scene](t, w).Flags["gold"])

	env.State.Flags["gold"] = 9000
	w = do(t, h, http.MethodPost, dst+"/load", env)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "tampered envelope must fail its checksum")

	env.Metadata.StoryID = "other"
	w = do(t, h, http.MethodPost, dst+"/load?verify=false", env)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestServer_ListAndDelete(t *testing.T) {
	h := newTestHandler(t)
	a := createSession(t, h).SessionID
	b := createSession(t, h).SessionID

	w := do(t, h, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.ElementsMatch(t, []string{a, b}, decode[map[string][]string](t, w)["sessions"])

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/sessions/"+a, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/sessions/"+a, nil).Code)
}

func TestServer_InfoAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fable_up 1\n"))
	})
	h := newTestHandler(t, WithMetricsHandler(metrics))

	w := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fable-http", decode[map[string]string](t, w)["app"])

	w = do(t, h, http.MethodGet, "/story", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "start", decode[domain.Story](t, w).InitialNodeID)

	w = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Contains(t, w.Body.String(), "fable_up 1")
}

func TestSubscribeEvents_Session(t *testing.T) {
	h := newTestHandler(t)
	id := createSession(t, h).SessionID
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sessions/"+id+"/events?watch=flags", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())

	// Node-only change is filtered out; the flag change comes through.
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/sessions/"+id+"/navigate/vault", nil).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, "/sessions/"+id+"/flags/foo", "bar").Code)

	for lines.Scan() {
		line := lines.Text()
		if strings.HasPrefix(line, "data: {") {
			assert.Contains(t, line, `"foo":"bar"`)
			assert.NotContains(t, line, "currentNodeId")
			return
		}
	}
	t.Fatal("expected a flag diff event")
}
