package graph

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/matzehuels/forceview/pkg/sim"
)

// Default radius range for degree-sized nodes.
const (
	DefaultMinRadius = 3.0
	DefaultMaxRadius = 7.0
)

// degreeSaturation is the fraction of the highest degree at which a node
// reaches the maximum radius.
const degreeSaturation = 0.8

// RadiusOptions controls how nodes without an explicit radius are sized.
type RadiusOptions struct {
	Min float64 `json:"min" toml:"min" yaml:"min" validate:"gte=0"`
	Max float64 `json:"max" toml:"max" yaml:"max" validate:"gte=0"`
}

// DefaultRadiusOptions returns the default radius range.
func DefaultRadiusOptions() RadiusOptions {
	return RadiusOptions{Min: DefaultMinRadius, Max: DefaultMaxRadius}
}

func (o RadiusOptions) withDefaults() RadiusOptions {
	if o.Min <= 0 {
		o.Min = DefaultMinRadius
	}
	if o.Max < o.Min {
		o.Max = max(DefaultMaxRadius, o.Min)
	}
	return o
}

// InOutQuadBlend eases from start to end as t goes from 0 to 1, fast at
// first and flattening out toward end.
func InOutQuadBlend(start, end, t float64) float64 {
	t /= 2
	eased := 2*t*(1-t) + 0.5
	eased -= 0.5
	eased *= 2
	return start + (end-start)*eased
}

// Radii returns the radius of every node in graph order. Explicit radii are
// kept; the rest grow with degree from opts.Min to opts.Max.
func Radii(g Graph, opts RadiusOptions) []float64 {
	opts = opts.withDefaults()
	deg := g.Degrees()
	maxDeg := 0
	for _, d := range deg {
		maxDeg = max(maxDeg, d)
	}

	out := make([]float64, len(g.Nodes))
	for i, n := range g.Nodes {
		if n.Radius > 0 {
			out[i] = n.Radius
			continue
		}
		t := 0.0
		if maxDeg > 0 {
			t = min(float64(deg[n.ID])/(degreeSaturation*float64(maxDeg)), 1)
		}
		out[i] = InOutQuadBlend(opts.Min, opts.Max, t)
	}
	return out
}

// Model is a graph bound to simulation indices. Nodes are ordered by
// descending radius, which keeps large nodes at the centre of the seed
// spiral.
type Model struct {
	Nodes   []Node
	Edges   []Edge
	Radii   []float64
	Sources []int
	Targets []int

	index map[string]int
}

// ToBuffers validates g and binds it to simulation indices.
func ToBuffers(g Graph, opts RadiusOptions) (*Model, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	radii := Radii(g, opts)

	order := make([]int, len(g.Nodes))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(radii[b], radii[a])
	})

	m := &Model{
		Nodes:   make([]Node, len(order)),
		Edges:   append([]Edge(nil), g.Edges...),
		Radii:   make([]float64, len(order)),
		Sources: make([]int, len(g.Edges)),
		Targets: make([]int, len(g.Edges)),
		index:   make(map[string]int, len(order)),
	}
	for k, i := range order {
		m.Nodes[k] = g.Nodes[i]
		m.Radii[k] = radii[i]
		m.index[g.Nodes[i].ID] = k
	}
	for e, edge := range g.Edges {
		m.Sources[e] = m.index[edge.From]
		m.Targets[e] = m.index[edge.To]
	}
	return m, nil
}

// Len returns the number of nodes.
func (m *Model) Len() int { return len(m.Nodes) }

// Index returns the simulation index of a node ID.
func (m *Model) Index(id string) (int, bool) {
	i, ok := m.index[id]
	return i, ok
}

// Buffers returns simulation buffers over the model with the given
// positions. Passing nil seeds positions on a spiral.
func (m *Model) Buffers(positions []r2.Vec) sim.Buffers {
	if positions == nil {
		positions = sim.SpiralPositions(m.Radii)
	}
	return sim.Buffers{
		Positions: positions,
		Radii:     m.Radii,
		Sources:   m.Sources,
		Targets:   m.Targets,
	}
}

// Graph returns the model as a Graph in simulation order with every radius
// filled in.
func (m *Model) Graph() Graph {
	g := Graph{Nodes: make([]Node, len(m.Nodes)), Edges: append([]Edge(nil), m.Edges...)}
	for i, n := range m.Nodes {
		n.Radius = m.Radii[i]
		g.Nodes[i] = n
	}
	return g
}
