// Package session holds live simulations driven by a host between frames.
//
// A [Session] owns one [sim.Simulation] together with the user input of the
// host that drives it (pointer, grabbed node, camera scale) and an optional
// frame-rate [sim.Governor]. Every method is safe for concurrent use, so an
// HTTP handler, a websocket reader and a ticker may share one session.
//
// A [Store] keeps sessions by ID with a capacity limit and idle expiry:
//
//	store := session.NewStore(64)
//	sess, err := session.New(g, m, session.Options{Params: params, TTL: 30 * time.Minute})
//	if err := store.Add(sess); err != nil {
//	    return err
//	}
//	stats, err := sess.Step(ctx)
//
// Expired sessions are removed by [Store.Expired], which hands them back to
// the caller for saving and closing.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r2"

	errs "github.com/matzehuels/forceview/pkg/errors"
	"github.com/matzehuels/forceview/pkg/graph"
	"github.com/matzehuels/forceview/pkg/observability"
	"github.com/matzehuels/forceview/pkg/sim"
)

// Sentinel errors for session operations.
var (
	// ErrNotFound is returned when a session does not exist or has expired.
	ErrNotFound = errs.New(errs.ErrCodeSessionNotFound, "session not found")

	// ErrLimit is returned when a store is full.
	ErrLimit = errs.New(errs.ErrCodeLimit, "session limit reached")
)

// DefaultTTL is the idle time after which a session expires.
const DefaultTTL = 30 * time.Minute

// Input is the host-side state fed into every frame.
type Input struct {
	Pointer r2.Vec
	Grabbed int
	Scale   float64
}

// NoInput is an input with nothing grabbed at unit zoom.
func NoInput() Input {
	return Input{Grabbed: sim.NoNode, Scale: 1}
}

// GovernorOptions enables the frame-rate governor.
type GovernorOptions struct {
	TargetFPS   float64
	MinFraction float64
}

// Options configures a new Session.
type Options struct {
	Params sim.Params

	// SimOptions are passed to sim.New (strategy, hover policy, seed, sink).
	SimOptions []sim.Option

	// Positions seeds node positions. Nil places nodes on a spiral.
	Positions []r2.Vec

	// Governor enables frame-rate adaptation when non-nil.
	Governor *GovernorOptions

	// TTL is the idle expiry. Zero uses DefaultTTL.
	TTL time.Duration

	// Now overrides the clock.
	Now func() time.Time
}

// Session is one live simulation.
type Session struct {
	ID        string
	Graph     graph.Graph
	Model     *graph.Model
	CreatedAt time.Time

	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	sim       *sim.Simulation
	governor  *sim.Governor
	input     Input
	lastFrame time.Time
	expiresAt time.Time
	closeOnce sync.Once
}

// New creates a session for g bound to m.
func New(g graph.Graph, m *graph.Model, opts Options) (*Session, error) {
	if opts.Positions != nil && len(opts.Positions) != m.Len() {
		return nil, errs.New(errs.ErrCodeInvalidInput, "got %d positions for %d nodes", len(opts.Positions), m.Len())
	}
	params := opts.Params.WithDefaults()
	if err := errs.ValidateStruct(errs.ErrCodeInvalidInput, params); err != nil {
		return nil, err
	}
	s, err := sim.New(m.Buffers(opts.Positions), params, opts.SimOptions...)
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	sess := &Session{
		ID:        uuid.NewString(),
		Graph:     g,
		Model:     m,
		CreatedAt: now(),
		ttl:       ttl,
		now:       now,
		sim:       s,
		input:     NoInput(),
	}
	sess.expiresAt = sess.CreatedAt.Add(ttl)

	if opts.Governor != nil {
		sess.governor = sim.NewGovernor(opts.Governor.TargetFPS, opts.Governor.MinFraction, params.Repulsion)
		if err := sess.governor.Attach(s); err != nil {
			return nil, err
		}
	}
	observability.Simulation().OnSessionOpen(context.Background(), m.Len())
	return sess, nil
}

// SetInput replaces the input used by subsequent frames. A non-positive
// scale is treated as 1.
func (s *Session) SetInput(in Input) {
	if !(in.Scale > 0) {
		in.Scale = 1
	}
	s.mu.Lock()
	s.input = in
	s.mu.Unlock()
}

// Input returns the current input.
func (s *Session) Input() Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// Step advances one frame with the current input.
func (s *Session) Step(ctx context.Context) (sim.FrameStats, error) {
	return s.Advance(ctx, 1)
}

// Advance runs up to n frames with the current input and returns the stats
// of the last one. It stops early when ctx is done.
func (s *Session) Advance(ctx context.Context, n int) (sim.FrameStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hooks := observability.Simulation()
	for range n {
		if err := ctx.Err(); err != nil {
			return s.sim.Stats(), errs.Wrap(errs.ErrCodeTimeout, err, "advance stopped after frame %d", s.sim.Frames())
		}
		start := s.now()
		if _, err := s.sim.AdvanceFrame(s.input.Pointer, s.input.Grabbed, s.input.Scale); err != nil {
			return sim.FrameStats{}, err
		}
		end := s.now()
		stats := s.sim.Stats()
		hooks.OnFrame(ctx, stats.Settleness, stats.WindowEnd-stats.WindowStart, end.Sub(start))

		if s.governor != nil {
			if !s.lastFrame.IsZero() {
				if _, err := s.governor.Observe(s.sim, end.Sub(s.lastFrame)); err != nil {
					return stats, err
				}
			}
			s.lastFrame = end
		}
	}
	s.expiresAt = s.now().Add(s.ttl)
	return s.sim.Stats(), nil
}

// Params returns the uncompensated parameters: with a governor attached the
// repulsion reported is the governor's base value.
func (s *Session) Params() sim.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.sim.Params()
	if s.governor != nil {
		p.Repulsion = s.governor.BaseRepulsion()
		p.BatchFraction = 1
	}
	return p
}

// SetParams applies p between frames. With a governor attached, p.Repulsion
// becomes the new base and the batch fraction stays under governor control.
func (s *Session) SetParams(p sim.Params) error {
	p = p.WithDefaults()
	if err := errs.ValidateStruct(errs.ErrCodeInvalidInput, p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sim.SetParams(p); err != nil {
		return err
	}
	if s.governor != nil {
		s.governor.SetBaseRepulsion(p.Repulsion)
		return s.governor.Attach(s.sim)
	}
	return nil
}

// Snapshot describes a session at one instant.
type Snapshot struct {
	ID         string         `json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
	Strategy   string         `json:"strategy"`
	Params     sim.Params     `json:"params"`
	Stats      sim.FrameStats `json:"stats"`
	Fraction   float64        `json:"fraction"`
	AverageFPS float64        `json:"average_fps,omitempty"`
	Layout     graph.Layout   `json:"layout"`
}

// Snapshot captures the session state including a layout of the current
// positions.
func (s *Session) Snapshot() Snapshot {
	params := s.Params()
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.expiresAt,
		Strategy:  s.sim.Strategy().String(),
		Params:    params,
		Stats:     s.sim.Stats(),
		Fraction:  s.sim.Params().BatchFraction,
		Layout:    s.layout(),
	}
	if s.governor != nil {
		snap.AverageFPS = s.governor.AverageFPS()
	}
	return snap
}

// Layout returns the current positions as a layout.
func (s *Session) Layout() graph.Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout()
}

func (s *Session) layout() graph.Layout {
	l := graph.NewLayout(s.Model, s.sim.Positions())
	p := s.sim.Params()
	l.Params = &p
	l.Strategy = s.sim.Strategy().String()
	l.Frames = s.sim.Frames()
	l.Settleness = s.sim.Settleness()
	return l
}

// Positions returns a copy of the node positions as coordinate pairs.
func (s *Session) Positions() [][2]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := s.sim.Positions()
	out := make([][2]float64, len(pos))
	for i, p := range pos {
		out[i] = [2]float64{p.X, p.Y}
	}
	return out
}

// Nearby returns the nodes whose disc lies within radius of p.
func (s *Session) Nearby(p r2.Vec, radius float64) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sim.Nearby(p, radius)
}

// Touch extends the expiry by the session TTL.
func (s *Session) Touch() {
	s.mu.Lock()
	s.expiresAt = s.now().Add(s.ttl)
	s.mu.Unlock()
}

// IsExpired reports whether the session has been idle past its TTL.
func (s *Session) IsExpired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.After(s.expiresAt)
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sim.Closed()
}

// Close releases the simulation. Further frames fail with sim.ErrClosed.
// Closing twice is a no-op.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		err = s.sim.Close()
		s.mu.Unlock()
		observability.Simulation().OnSessionClose(context.Background())
	})
	return err
}
