package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/forceview/pkg/cache"
	"github.com/matzehuels/forceview/pkg/config"
	errs "github.com/matzehuels/forceview/pkg/errors"
	"github.com/matzehuels/forceview/pkg/graph"
	"github.com/matzehuels/forceview/pkg/metrics"
	"github.com/matzehuels/forceview/pkg/observability"
	"github.com/matzehuels/forceview/pkg/pipeline"
	"github.com/matzehuels/forceview/pkg/session"
	"github.com/matzehuels/forceview/pkg/sim"
)

func pairGraph() graph.Graph {
	return graph.Graph{
		Nodes: []graph.Node{{ID: "a"}, {ID: "b"}},
		Edges: []graph.Edge{{From: "a", To: "b"}},
	}
}

func testSettings() config.File {
	f := config.Default()
	f.Server.Tick = 5 * time.Millisecond
	return f
}

func newTestServer(t *testing.T, settings config.File, runner *pipeline.Runner) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(Config{
		Settings: settings,
		Runner:   runner,
		Logger:   log.New(io.Discard),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close(context.Background())
	})
	return srv, ts
}

func fileRunner(t *testing.T) *pipeline.Runner {
	t.Helper()
	c, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)
	return pipeline.NewRunner(c, nil, log.New(io.Discard))
}

func do(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func create(t *testing.T, base string, body any) session.Snapshot {
	t.Helper()
	resp, data := do(t, http.MethodPost, base+"/simulations", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "/simulations/"+snap.ID, resp.Header.Get("Location"))
	return snap
}

func errorCode(t *testing.T, data []byte) errs.Code {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(data, &e))
	return e.Code
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, testSettings(), nil)
	resp, data := do(t, http.MethodGet, ts.URL+"/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var h healthResponse
	require.NoError(t, json.Unmarshal(data, &h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 0, h.Sessions)
	assert.NotEmpty(t, h.Build.Version)
}

func TestSessionLifecycle(t *testing.T) {
	srv, ts := newTestServer(t, testSettings(), nil)

	snap := create(t, ts.URL, map[string]any{
		"graph":  pairGraph(),
		"params": map[string]any{"link_length": 30},
	})
	assert.Equal(t, 30.0, snap.Params.LinkLength)
	assert.Equal(t, sim.DefaultRepulsion, snap.Params.Repulsion)
	assert.Len(t, snap.Layout.Nodes, 2)
	assert.Equal(t, 1, srv.Sessions())
	url := ts.URL + "/simulations/" + snap.ID

	resp, data := do(t, http.MethodPost, url+"/frames", map[string]any{"count": 10})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var frames framesResponse
	require.NoError(t, json.Unmarshal(data, &frames))
	assert.Equal(t, uint64(10), frames.Stats.Frame)
	assert.Len(t, frames.Positions, 2)

	resp, data = do(t, http.MethodPatch, url+"/params", map[string]any{"repulsion": 12})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var p sim.Params
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, 12.0, p.Repulsion)
	assert.Equal(t, 30.0, p.LinkLength)

	resp, data = do(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, uint64(10), snap.Layout.Frames)
	assert.Equal(t, 12.0, snap.Params.Repulsion)

	resp, data = do(t, http.MethodGet, ts.URL+"/simulations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list listResponse
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, snap.ID, list.Sessions[0].ID)
	assert.Equal(t, 1, list.Sessions[0].Edges)

	resp, _ = do(t, http.MethodDelete, url, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, srv.Sessions())

	resp, data = do(t, http.MethodGet, url, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, errs.ErrCodeSessionNotFound, errorCode(t, data))
}

func TestGrabThroughFrames(t *testing.T) {
	_, ts := newTestServer(t, testSettings(), nil)
	snap := create(t, ts.URL, map[string]any{"graph": pairGraph()})

	resp, data := do(t, http.MethodPost, ts.URL+"/simulations/"+snap.ID+"/frames", map[string]any{
		"pointer": map[string]float64{"x": 50, "y": 60},
		"grabbed": 0,
		"scale":   2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var frames framesResponse
	require.NoError(t, json.Unmarshal(data, &frames))
	assert.Equal(t, 0, frames.Stats.Grabbed)
	assert.Equal(t, [2]float64{50, 60}, frames.Positions[0])
}

func TestCreateErrors(t *testing.T) {
	settings := testSettings()
	settings.Server.MaxNodes = 2
	settings.Server.MaxSessions = 1
	_, ts := newTestServer(t, settings, nil)

	tests := []struct {
		name   string
		body   any
		status int
		code   errs.Code
	}{
		{
			name: "unknown edge endpoint",
			body: map[string]any{"graph": graph.Graph{
				Nodes: []graph.Node{{ID: "a"}},
				Edges: []graph.Edge{{From: "a", To: "z"}},
			}},
			status: http.StatusBadRequest,
			code:   errs.ErrCodeInvalidGraph,
		},
		{
			name:   "too many nodes",
			body:   map[string]any{"graph": graph.Graph{Nodes: []graph.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}}}},
			status: http.StatusServiceUnavailable,
			code:   errs.ErrCodeLimit,
		},
		{
			name:   "bad strategy",
			body:   map[string]any{"graph": pairGraph(), "strategy": "quadtree"},
			status: http.StatusBadRequest,
			code:   errs.ErrCodeInvalidInput,
		},
		{
			name:   "bad params",
			body:   map[string]any{"graph": pairGraph(), "params": map[string]any{"batch_fraction": 3}},
			status: http.StatusBadRequest,
			code:   errs.ErrCodeInvalidInput,
		},
		{
			name:   "unknown field",
			body:   map[string]any{"graph": pairGraph(), "gravity": 1},
			status: http.StatusBadRequest,
			code:   errs.ErrCodeInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := do(t, http.MethodPost, ts.URL+"/simulations", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(data))
			assert.Equal(t, tt.code, errorCode(t, data))
		})
	}

	create(t, ts.URL, map[string]any{"graph": pairGraph()})
	resp, data := do(t, http.MethodPost, ts.URL+"/simulations", map[string]any{"graph": pairGraph()})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, errs.ErrCodeLimit, errorCode(t, data))
}

func TestRequestErrors(t *testing.T) {
	_, ts := newTestServer(t, testSettings(), nil)
	snap := create(t, ts.URL, map[string]any{"graph": pairGraph()})
	url := ts.URL + "/simulations/" + snap.ID

	resp, data := do(t, http.MethodGet, ts.URL+"/simulations/not-a-session", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, errs.ErrCodeInvalidInput, errorCode(t, data))

	resp, _ = do(t, http.MethodGet, ts.URL+"/simulations/00000000-0000-4000-8000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, url+"/frames", map[string]any{"count": 1_000_000})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, url+"/frames", map[string]any{"scale": -1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPatch, url+"/params", map[string]any{"dt": -1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data = do(t, http.MethodGet, url+"/render?format=gif", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, errs.ErrCodeInvalidFormat, errorCode(t, data))
}

func TestRenderDOT(t *testing.T) {
	_, ts := newTestServer(t, testSettings(), nil)
	snap := create(t, ts.URL, map[string]any{"graph": pairGraph()})

	resp, data := do(t, http.MethodGet, ts.URL+"/simulations/"+snap.ID+"/render?format=dot&labels=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Equal(t, "text/vnd.graphviz", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(data), "graph")
	assert.Contains(t, string(data), `"a"`)
}

func TestHeadlessLayoutCaches(t *testing.T) {
	_, ts := newTestServer(t, testSettings(), fileRunner(t))
	body := map[string]any{
		"graph":   pairGraph(),
		"options": map[string]any{"frames": 30},
	}

	resp, data := do(t, http.MethodPost, ts.URL+"/layouts", body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	var l graph.Layout
	require.NoError(t, json.Unmarshal(data, &l))
	assert.Len(t, l.Nodes, 2)
	assert.LessOrEqual(t, l.Frames, uint64(30))

	resp, _ = do(t, http.MethodPost, ts.URL+"/layouts", body)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))
}

func TestResumeRestoresSavedPositions(t *testing.T) {
	_, ts := newTestServer(t, testSettings(), fileRunner(t))

	first := create(t, ts.URL, map[string]any{"graph": pairGraph()})
	url := ts.URL + "/simulations/" + first.ID
	resp, _ := do(t, http.MethodPost, url+"/frames", map[string]any{"count": 25})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data := do(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(data, &first))
	resp, _ = do(t, http.MethodDelete, url, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	second := create(t, ts.URL, map[string]any{"graph": pairGraph(), "resume": true})
	require.Len(t, second.Layout.Nodes, 2)
	for i, n := range second.Layout.Nodes {
		assert.Equal(t, first.Layout.Nodes[i].ID, n.ID)
		assert.Equal(t, math.Round(first.Layout.Nodes[i].X), n.X)
		assert.Equal(t, math.Round(first.Layout.Nodes[i].Y), n.Y)
	}
}

func TestEvictExpired(t *testing.T) {
	srv, ts := newTestServer(t, testSettings(), nil)
	create(t, ts.URL, map[string]any{"graph": pairGraph()})

	assert.Equal(t, 0, srv.EvictExpired(context.Background(), time.Now()))
	assert.Equal(t, 1, srv.EvictExpired(context.Background(), time.Now().Add(time.Hour)))
	assert.Equal(t, 0, srv.Sessions())
}

func TestApplyConfig(t *testing.T) {
	srv, ts := newTestServer(t, testSettings(), nil)
	snap := create(t, ts.URL, map[string]any{"graph": pairGraph()})

	reloaded := testSettings()
	reloaded.Simulation.Repulsion = 5
	reloaded.Simulation.LinkLength = 99
	srv.ApplyConfig(reloaded)

	resp, data := do(t, http.MethodGet, ts.URL+"/simulations/"+snap.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, 5.0, snap.Params.Repulsion)
	assert.Equal(t, 99.0, snap.Params.LinkLength)
	assert.Equal(t, 5.0, srv.Settings().Simulation.Repulsion)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.Register()
	defer observability.Reset()
	_, ts := newTestServer(t, testSettings(), nil)
	create(t, ts.URL, map[string]any{"graph": pairGraph()})

	resp, data := do(t, http.MethodGet, ts.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "forceview_http_requests_total")
}

// streamMessage covers every server message type.
type streamMessage struct {
	Type      string         `json:"type"`
	Layout    *graph.Layout  `json:"layout"`
	Stats     sim.FrameStats `json:"stats"`
	Positions [][2]float64   `json:"positions"`
}

func TestStream(t *testing.T) {
	_, ts := newTestServer(t, testSettings(), nil)
	snap := create(t, ts.URL, map[string]any{"graph": pairGraph()})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/simulations/" + snap.ID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))

	var msg streamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, msgLayout, msg.Type)
	require.NotNil(t, msg.Layout)
	assert.Len(t, msg.Layout.Nodes, 2)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"pointer": map[string]float64{"x": 100, "y": -100},
		"grabbed": 1,
	}))

	grabbed := false
	for range 500 {
		msg = streamMessage{}
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, msgFrame, msg.Type)
		if msg.Stats.Grabbed == 1 && msg.Positions[1] == [2]float64{100, -100} {
			grabbed = true
			break
		}
	}
	assert.True(t, grabbed, "grabbed node never followed the pointer")

	resp, _ := do(t, http.MethodDelete, ts.URL+"/simulations/"+snap.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	for {
		if err = conn.ReadJSON(&msg); err != nil {
			break
		}
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestStreamUnknownSession(t *testing.T) {
	_, ts := newTestServer(t, testSettings(), nil)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/simulations/00000000-0000-4000-8000-000000000000/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
