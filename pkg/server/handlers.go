package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/matzehuels/forceview/pkg/buildinfo"
	errs "github.com/matzehuels/forceview/pkg/errors"
	"github.com/matzehuels/forceview/pkg/graph"
	"github.com/matzehuels/forceview/pkg/pipeline"
	"github.com/matzehuels/forceview/pkg/render/nodelink"
	"github.com/matzehuels/forceview/pkg/session"
	"github.com/matzehuels/forceview/pkg/sim"
)

// point is a JSON coordinate pair.
type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p point) vec() r2.Vec { return r2.Vec{X: p.X, Y: p.Y} }

// createRequest starts a session. Fields left out fall back to the server
// configuration; params may be partial.
type createRequest struct {
	Graph       graph.Graph   `json:"graph"`
	Params      sim.Params    `json:"params"`
	Strategy    string        `json:"strategy"`
	HoverPolicy string        `json:"hover_policy"`
	Seed        uint64        `json:"seed"`
	Governor    *bool         `json:"governor"`
	Resume      bool          `json:"resume"`
	Layout      *graph.Layout `json:"layout"`
}

// framesRequest advances a session. Input fields left out keep their
// previous values.
type framesRequest struct {
	Count   int      `json:"count" validate:"gte=0,lte=10000"`
	Pointer *point   `json:"pointer"`
	Grabbed *int     `json:"grabbed"`
	Scale   *float64 `json:"scale" validate:"omitempty,gt=0"`
}

// framesResponse reports the last frame and the resulting positions.
type framesResponse struct {
	Stats     sim.FrameStats `json:"stats"`
	Positions [][2]float64   `json:"positions"`
}

type listResponse struct {
	Sessions []sessionSummary `json:"sessions"`
}

type sessionSummary struct {
	ID         string  `json:"id"`
	Nodes      int     `json:"nodes"`
	Edges      int     `json:"edges"`
	Frame      uint64  `json:"frame"`
	Settleness float64 `json:"settleness"`
}

type healthResponse struct {
	Status   string         `json:"status"`
	Sessions int            `json:"sessions"`
	Build    buildinfo.Info `json:"build"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Sessions: s.store.Len(), Build: buildinfo.Get()})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	settings := s.Settings()
	req := createRequest{
		Params:      settings.Simulation.Params,
		Strategy:    settings.Simulation.Strategy,
		HoverPolicy: settings.Simulation.HoverPolicy,
		Seed:        settings.Simulation.Seed,
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.newSession(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.store.Add(sess); err != nil {
		_ = sess.Close()
		s.writeError(w, err)
		return
	}
	s.logger.Info("session created", "session", sess.ID, "nodes", sess.Model.Len(), "edges", len(sess.Model.Sources))
	w.Header().Set("Location", "/simulations/"+sess.ID)
	s.writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) newSession(ctx context.Context, req createRequest) (*session.Session, error) {
	settings := s.Settings()
	if n := len(req.Graph.Nodes); n > settings.Server.MaxNodes {
		return nil, errs.New(errs.ErrCodeLimit, "graph has %d nodes, limit is %d", n, settings.Server.MaxNodes)
	}
	m, err := graph.ToBuffers(req.Graph, settings.Simulation.Radius)
	if err != nil {
		return nil, err
	}

	simCfg := settings.Simulation
	simCfg.Strategy = req.Strategy
	simCfg.HoverPolicy = req.HoverPolicy
	simOpts, err := simCfg.SimOptions()
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeInvalidInput, err, "simulation options")
	}
	if req.Seed != 0 {
		simOpts = append(simOpts, sim.WithSeed(req.Seed))
	}
	simOpts = append(simOpts, sim.WithSink(sim.LoggerSink(s.logger)))

	opts := session.Options{
		Params:     req.Params,
		SimOptions: simOpts,
		TTL:        settings.Server.SessionTTL,
	}
	governed := settings.Governor.Enabled
	if req.Governor != nil {
		governed = *req.Governor
	}
	if governed {
		opts.Governor = &session.GovernorOptions{
			TargetFPS:   settings.Governor.TargetFPS,
			MinFraction: settings.Governor.MinFraction,
		}
	}

	switch {
	case req.Layout != nil:
		pos, ok := req.Layout.Positions(m)
		if !ok {
			return nil, errs.New(errs.ErrCodeInvalidInput, "layout does not match graph")
		}
		opts.Positions = pos
	case req.Resume:
		pos, ok, err := s.runner.LoadState(ctx, req.Graph, m)
		if err != nil {
			s.logger.Warn("load saved state", "error", err)
		}
		if ok {
			opts.Positions = pos
		}
	}
	return session.New(req.Graph, m, opts)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	sessions := s.store.List()
	resp := listResponse{Sessions: make([]sessionSummary, 0, len(sessions))}
	for _, sess := range sessions {
		snap := sess.Snapshot()
		resp.Sessions = append(resp.Sessions, sessionSummary{
			ID:         sess.ID,
			Nodes:      sess.Model.Len(),
			Edges:      len(sess.Model.Sources),
			Frame:      snap.Stats.Frame,
			Settleness: snap.Layout.Settleness,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// session resolves the {id} URL parameter.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	sess.Touch()
	return sess, true
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	req := framesRequest{Count: 1}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := errs.ValidateStruct(errs.ErrCodeInvalidInput, req); err != nil {
		s.writeError(w, err)
		return
	}

	in := sess.Input()
	if req.Pointer != nil {
		in.Pointer = req.Pointer.vec()
	}
	if req.Grabbed != nil {
		in.Grabbed = *req.Grabbed
	}
	if req.Scale != nil {
		in.Scale = *req.Scale
	}
	sess.SetInput(in)

	stats, err := sess.Advance(r.Context(), req.Count)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, framesResponse{Stats: stats, Positions: sess.Positions()})
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	p := sess.Params()
	if err := decodeJSON(w, r, &p); err != nil {
		s.writeError(w, err)
		return
	}
	if err := sess.SetParams(p); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess.Params())
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = nodelink.FormatSVG
	}
	settings := s.Settings()
	opts := settings.Options()
	opts.Formats = []string{format}
	opts.Logger = s.logger
	if q := r.URL.Query().Get("labels"); q != "" {
		opts.Labels = q == "true" || q == "1"
	}

	artifacts, err := s.runner.Render(r.Context(), sess.Layout(), opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifacts[format])
}

func contentType(format string) string {
	switch format {
	case nodelink.FormatSVG:
		return "image/svg+xml"
	case nodelink.FormatPNG:
		return "image/png"
	case nodelink.FormatPDF:
		return "application/pdf"
	case nodelink.FormatJSON:
		return "application/json"
	default:
		return "text/vnd.graphviz"
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Remove(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.release(r.Context(), sess)
	s.logger.Info("session closed", "session", sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

// layoutRequest runs a headless simulation.
type layoutRequest struct {
	Graph   graph.Graph      `json:"graph"`
	Options pipeline.Options `json:"options"`
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	settings := s.Settings()
	req := layoutRequest{Options: settings.Options()}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if n := len(req.Graph.Nodes); n > settings.Server.MaxNodes {
		s.writeError(w, errs.New(errs.ErrCodeLimit, "graph has %d nodes, limit is %d", n, settings.Server.MaxNodes))
		return
	}
	req.Options.Logger = s.logger
	res, err := s.runner.SimulateWithCacheInfo(r.Context(), req.Graph, req.Options)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("X-Cache", cacheHeader(res.CacheHit))
	s.writeJSON(w, http.StatusOK, res.Layout)
}

func cacheHeader(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}
