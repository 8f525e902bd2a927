package sim

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	errs "github.com/matzehuels/forceview/pkg/errors"
)

// ErrClosed is returned by every method of a closed Simulation.
var ErrClosed = errs.New(errs.ErrCodeClosed, "simulation is closed")

// Buffers are the host-owned arrays a Simulation operates on.
// The engine writes Positions in place and never resizes any slice.
type Buffers struct {
	Positions []r2.Vec
	Radii     []float64
	Sources   []int
	Targets   []int
}

// FrameStats describes the most recent frame.
type FrameStats struct {
	Frame       uint64  `json:"frame"`
	WindowStart int     `json:"window_start"`
	WindowEnd   int     `json:"window_end"`
	Settleness  float64 `json:"settleness"`
	Active      int     `json:"active"`
	Grabbed     int     `json:"grabbed"`
	Hovered     int     `json:"hovered"`
}

// Simulation is the state of one force-directed layout.
type Simulation struct {
	positions []r2.Vec
	radii     []float64
	sources   []int
	targets   []int
	n         int

	forces        []r2.Vec
	connected     []r2.Vec
	lastConnected []r2.Vec
	linkCounts    []int
	maxNeighbor   []float64
	grid          *Grid

	maxRadius float64
	minRadius float64

	params          Params
	batchSize       int
	batchesPerRound int
	batchOffset     int
	settleness      float64
	hovered         int

	strategy Strategy
	hover    HoverPolicy
	sink     Sink
	rng      *rand.Rand

	frames uint64
	stats  FrameStats
	closed bool
}

// Option configures a Simulation.
type Option func(*Simulation)

// WithSink routes diagnostics to sink. The default discards them.
func WithSink(sink Sink) Option {
	return func(s *Simulation) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithSeed makes the separating nudges reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Simulation) {
		s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithStrategy selects the repulsion strategy.
func WithStrategy(st Strategy) Option {
	return func(s *Simulation) { s.strategy = st }
}

// WithHoverPolicy selects how hover misses are handled.
func WithHoverPolicy(h HoverPolicy) Option {
	return func(s *Simulation) { s.hover = h }
}

// New creates a simulation over the given buffers.
//
// Radii must be positive and as long as Positions, and Targets as long as
// Sources. Edges with an endpoint outside [0, len(Positions)) are reported to
// the sink and ignored. An empty node set is valid; its frames do nothing.
func New(buf Buffers, p Params, opts ...Option) (*Simulation, error) {
	n := len(buf.Positions)
	if len(buf.Radii) != n {
		return nil, errs.New(errs.ErrCodeInvalidInput, "got %d radii for %d nodes", len(buf.Radii), n)
	}
	if len(buf.Targets) != len(buf.Sources) {
		return nil, errs.New(errs.ErrCodeInvalidInput, "got %d edge targets for %d edge sources", len(buf.Targets), len(buf.Sources))
	}
	for i, r := range buf.Radii {
		if !(r > 0) || math.IsInf(r, 0) {
			return nil, errs.New(errs.ErrCodeInvalidInput, "radius of node %d must be positive and finite, got %v", i, r)
		}
	}

	now := uint64(time.Now().UnixNano())
	s := &Simulation{
		positions:     buf.Positions,
		radii:         buf.Radii,
		sources:       buf.Sources,
		targets:       buf.Targets,
		n:             n,
		forces:        make([]r2.Vec, n),
		connected:     make([]r2.Vec, n),
		lastConnected: make([]r2.Vec, n),
		linkCounts:    make([]int, n),
		maxNeighbor:   make([]float64, n),
		params:        p,
		settleness:    1,
		hovered:       NoNode,
		sink:          Discard,
		rng:           rand.New(rand.NewPCG(now, now>>17|1)),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, r := range s.radii {
		s.maxRadius = max(s.maxRadius, r)
		if s.minRadius == 0 || r < s.minRadius {
			s.minRadius = r
		}
	}
	for e := range s.sources {
		src, dst, ok := s.edge(e)
		if !ok || src == dst {
			continue
		}
		s.linkCounts[src]++
		s.linkCounts[dst]++
		s.maxNeighbor[src] = max(s.maxNeighbor[src], s.radii[dst])
		s.maxNeighbor[dst] = max(s.maxNeighbor[dst], s.radii[src])
	}
	s.grid = NewGrid(s.maxRadius)
	s.batchSize, s.batchesPerRound = batchSizing(n, p.BatchFraction)

	s.report(LevelDebug, "simulation created",
		"nodes", n, "edges", len(s.sources), "batch_size", s.batchSize, "strategy", s.strategy)
	return s, nil
}

// edge returns the endpoints of edge e, reporting out-of-range ones.
func (s *Simulation) edge(e int) (src, dst int, ok bool) {
	src, dst = s.sources[e], s.targets[e]
	if src < 0 || src >= s.n || dst < 0 || dst >= s.n {
		s.report(LevelWarn, "edge endpoint out of range", "edge", e, "source", src, "target", dst, "nodes", s.n)
		return src, dst, false
	}
	return src, dst, true
}

// Close releases the engine-owned arrays. Host buffers are left untouched.
func (s *Simulation) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	s.forces, s.connected, s.lastConnected = nil, nil, nil
	s.linkCounts, s.maxNeighbor = nil, nil
	s.grid = nil
	s.report(LevelDebug, "simulation closed", "frames", s.frames)
	return nil
}

// Closed reports whether Close has been called.
func (s *Simulation) Closed() bool { return s.closed }

// SetPosition moves node i. It is meant for hosts restoring saved layouts.
func (s *Simulation) SetPosition(i int, x, y float64) {
	s.positions[i] = r2.Vec{X: x, Y: y}
}

// SetDt sets the integration step.
func (s *Simulation) SetDt(v float64) error {
	if s.closed {
		return ErrClosed
	}
	s.params.Dt = v
	return nil
}

// SetAttractionForce sets the spring strength.
func (s *Simulation) SetAttractionForce(v float64) error {
	if s.closed {
		return ErrClosed
	}
	s.params.Attraction = v
	return nil
}

// SetLinkLength sets the resting rim gap of linked nodes.
func (s *Simulation) SetLinkLength(v float64) error {
	if s.closed {
		return ErrClosed
	}
	s.params.LinkLength = v
	return nil
}

// SetRepulsionForce sets the repulsion strength.
func (s *Simulation) SetRepulsionForce(v float64) error {
	if s.closed {
		return ErrClosed
	}
	s.params.Repulsion = v
	return nil
}

// SetCentralForce sets the centring strength.
func (s *Simulation) SetCentralForce(v float64) error {
	if s.closed {
		return ErrClosed
	}
	s.params.Central = v
	return nil
}

// SetBatchFractionSize sets the batch fraction and recomputes the batch size.
func (s *Simulation) SetBatchFractionSize(v float64) error {
	if s.closed {
		return ErrClosed
	}
	s.params.BatchFraction = v
	s.batchSize, s.batchesPerRound = batchSizing(s.n, v)
	return nil
}

// SetParams replaces every parameter at once.
func (s *Simulation) SetParams(p Params) error {
	if s.closed {
		return ErrClosed
	}
	s.params = p
	s.batchSize, s.batchesPerRound = batchSizing(s.n, p.BatchFraction)
	return nil
}

// Params returns the current parameters.
func (s *Simulation) Params() Params { return s.params }

// NodeCount returns the number of nodes.
func (s *Simulation) NodeCount() int { return s.n }

// EdgeCount returns the number of edges, including ignored ones.
func (s *Simulation) EdgeCount() int { return len(s.sources) }

// Positions returns the host position buffer.
func (s *Simulation) Positions() []r2.Vec { return s.positions }

// Radii returns the host radius buffer.
func (s *Simulation) Radii() []float64 { return s.radii }

// Settleness returns the settling signal: about 1 while the layout moves,
// decaying toward 0 as it comes to rest.
func (s *Simulation) Settleness() float64 { return s.settleness }

// BatchSize returns the number of nodes per batch.
func (s *Simulation) BatchSize() int { return s.batchSize }

// BatchesPerRound returns how many batches cover every node once.
func (s *Simulation) BatchesPerRound() int { return s.batchesPerRound }

// BatchOffset returns the first node of the next window.
func (s *Simulation) BatchOffset() int { return s.batchOffset }

// Hovered returns the last node found under the pointer, or NoNode.
func (s *Simulation) Hovered() int { return s.hovered }

// MaxRadius returns the largest node radius.
func (s *Simulation) MaxRadius() float64 { return s.maxRadius }

// MinRadius returns the smallest node radius.
func (s *Simulation) MinRadius() float64 { return s.minRadius }

// LinkCount returns the number of valid, non-loop edges touching node i.
// It returns 0 once the simulation is closed.
func (s *Simulation) LinkCount(i int) int {
	if s.closed {
		return 0
	}
	return s.linkCounts[i]
}

// MaxNeighborRadius returns the largest radius among the neighbours of node i.
func (s *Simulation) MaxNeighborRadius(i int) float64 {
	if s.closed {
		return 0
	}
	return s.maxNeighbor[i]
}

// Strategy returns the repulsion strategy.
func (s *Simulation) Strategy() Strategy { return s.strategy }

// Frames returns the number of frames advanced.
func (s *Simulation) Frames() uint64 { return s.frames }

// Stats returns a summary of the last frame.
func (s *Simulation) Stats() FrameStats { return s.stats }

// Nearby returns the nodes within radius of p, nearest first.
// It refreshes the spatial grid from the current positions.
func (s *Simulation) Nearby(p r2.Vec, radius float64) ([]int, error) {
	if s.closed {
		return nil, ErrClosed
	}
	s.grid.Rebuild(s.positions)
	var out []int
	for _, i := range s.grid.Query(p, radius) {
		if r2.Norm(r2.Sub(s.positions[i], p)) <= radius {
			out = append(out, i)
		}
	}
	slices.SortStableFunc(out, func(a, b int) int {
		return cmp.Compare(r2.Norm2(r2.Sub(s.positions[a], p)), r2.Norm2(r2.Sub(s.positions[b], p)))
	})
	return out, nil
}

func (s *Simulation) jitter(scale float64) r2.Vec {
	return r2.Vec{
		X: (s.rng.Float64() - 0.5) * scale,
		Y: (s.rng.Float64() - 0.5) * scale,
	}
}
