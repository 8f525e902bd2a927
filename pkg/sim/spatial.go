package sim

import (
	"math"
	"slices"

	"github.com/tidwall/btree"
	"gonum.org/v1/gonum/spatial/r2"
)

// CellKey identifies a grid cell by its packed integer coordinates.
type CellKey uint64

// MakeCellKey packs integer cell coordinates into a key.
func MakeCellKey(x, y int32) CellKey {
	return CellKey(uint64(uint32(x))<<32 | uint64(uint32(y)))
}

// Coords unpacks the integer cell coordinates.
func (k CellKey) Coords() (x, y int32) {
	return int32(uint32(k >> 32)), int32(uint32(k))
}

// CenterMethod selects how a cell's representative position is computed.
type CenterMethod int

const (
	// CenterAverage is the plain mean of member positions.
	CenterAverage CenterMethod = iota
	// CenterWeighted is the mean of member positions weighted by radius.
	CenterWeighted
	// CenterGeometric is the geometric centre of the cell.
	CenterGeometric
)

// Aggregate summarises the occupants of one cell.
type Aggregate struct {
	Key      CellKey
	Position r2.Vec
	Count    int
	Weight   float64 // sum of member weights, or Count when no weights are given
}

type cell struct {
	key     CellKey
	members []int
}

type entry struct {
	pos   r2.Vec
	cells []CellKey
}

// Grid is a uniform spatial partition of node indices.
//
// Cells are kept in a B-tree ordered by key so aggregate iteration is
// deterministic. A node inserted with a radius occupies every cell its
// bounding box overlaps; Rebuild places each node in its home cell only.
type Grid struct {
	pitch float64
	cells *btree.BTreeG[*cell]
	nodes map[int]*entry
}

func cellLess(a, b *cell) bool { return a.key < b.key }

// NewGrid returns an empty grid with the given cell pitch.
// A non-positive or non-finite pitch is replaced by 1.
func NewGrid(pitch float64) *Grid {
	if !(pitch > 0) || math.IsInf(pitch, 0) {
		pitch = 1
	}
	return &Grid{
		pitch: pitch,
		cells: btree.NewBTreeG[*cell](cellLess),
		nodes: make(map[int]*entry),
	}
}

// Pitch returns the cell side length.
func (g *Grid) Pitch() float64 { return g.pitch }

// Len returns the number of occupied cells.
func (g *Grid) Len() int { return g.cells.Len() }

// NodeCount returns the number of indexed nodes.
func (g *Grid) NodeCount() int { return len(g.nodes) }

// CellOf returns the key of the cell containing p.
func (g *Grid) CellOf(p r2.Vec) CellKey {
	return MakeCellKey(g.coord(p.X), g.coord(p.Y))
}

func (g *Grid) coord(v float64) int32 {
	c := math.Floor(v / g.pitch)
	switch {
	case c > math.MaxInt32:
		return math.MaxInt32
	case c < math.MinInt32:
		return math.MinInt32
	case math.IsNaN(c):
		return 0
	}
	return int32(c)
}

// CellCenter returns the geometric centre of the cell.
func (g *Grid) CellCenter(k CellKey) r2.Vec {
	x, y := k.Coords()
	return r2.Vec{
		X: (float64(x) + 0.5) * g.pitch,
		Y: (float64(y) + 0.5) * g.pitch,
	}
}

// cellRange returns the keys of every cell overlapping the square of half
// side radius around p.
func (g *Grid) cellRange(p r2.Vec, radius float64) []CellKey {
	if !(radius > 0) {
		return []CellKey{g.CellOf(p)}
	}
	x0, x1 := g.coord(p.X-radius), g.coord(p.X+radius)
	y0, y1 := g.coord(p.Y-radius), g.coord(p.Y+radius)
	var keys []CellKey
	for x := int64(x0); x <= int64(x1); x++ {
		for y := int64(y0); y <= int64(y1); y++ {
			keys = append(keys, MakeCellKey(int32(x), int32(y)))
		}
	}
	return keys
}

// Insert adds node i at p. With a positive radius the node occupies every
// cell overlapping its bounding box. Inserting an index that is already
// present moves it.
func (g *Grid) Insert(i int, p r2.Vec, radius float64) {
	if _, ok := g.nodes[i]; ok {
		g.Remove(i)
	}
	e := &entry{pos: p, cells: g.cellRange(p, radius)}
	for _, k := range e.cells {
		c, ok := g.cells.Get(&cell{key: k})
		if !ok {
			c = &cell{key: k}
			g.cells.Set(c)
		}
		c.members = append(c.members, i)
	}
	g.nodes[i] = e
}

// Remove deletes node i from every cell it occupies. Empty cells are dropped.
func (g *Grid) Remove(i int) {
	e, ok := g.nodes[i]
	if !ok {
		return
	}
	for _, k := range e.cells {
		c, ok := g.cells.Get(&cell{key: k})
		if !ok {
			continue
		}
		if idx := slices.Index(c.members, i); idx >= 0 {
			c.members = slices.Delete(c.members, idx, idx+1)
		}
		if len(c.members) == 0 {
			g.cells.Delete(c)
		}
	}
	delete(g.nodes, i)
}

// Clear removes every node.
func (g *Grid) Clear() {
	g.cells = btree.NewBTreeG[*cell](cellLess)
	clear(g.nodes)
}

// Rebuild replaces the contents with node i at positions[i] for every i,
// each in its home cell.
func (g *Grid) Rebuild(positions []r2.Vec) {
	g.Clear()
	for i, p := range positions {
		k := g.CellOf(p)
		c, ok := g.cells.Get(&cell{key: k})
		if !ok {
			c = &cell{key: k}
			g.cells.Set(c)
		}
		c.members = append(c.members, i)
		g.nodes[i] = &entry{pos: p, cells: []CellKey{k}}
	}
}

// Members returns the node indices in cell k. The slice must not be modified.
func (g *Grid) Members(k CellKey) []int {
	if c, ok := g.cells.Get(&cell{key: k}); ok {
		return c.members
	}
	return nil
}

// CellsOf returns the cells occupied by node i.
func (g *Grid) CellsOf(i int) []CellKey {
	if e, ok := g.nodes[i]; ok {
		return e.cells
	}
	return nil
}

// Query returns the sorted, de-duplicated indices of nodes occupying any cell
// that overlaps the square of half side radius around p. It is a broad phase:
// callers filter by exact distance when they need it.
func (g *Grid) Query(p r2.Vec, radius float64) []int {
	var out []int
	for _, k := range g.cellRange(p, radius) {
		if c, ok := g.cells.Get(&cell{key: k}); ok {
			out = append(out, c.members...)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Aggregates returns one summary per occupied cell in key order.
// weights is indexed by node; nil weights every node by 1.
func (g *Grid) Aggregates(method CenterMethod, weights []float64) []Aggregate {
	out := make([]Aggregate, 0, g.cells.Len())
	g.cells.Scan(func(c *cell) bool {
		out = append(out, g.aggregate(c, method, weights))
		return true
	})
	return out
}

// FarAggregates is like Aggregates but skips cells overlapping the square of
// half side radius around p. Hosts combine it with Query to treat near nodes
// exactly and far ones in bulk.
func (g *Grid) FarAggregates(p r2.Vec, radius float64, method CenterMethod, weights []float64) []Aggregate {
	near := make(map[CellKey]struct{})
	for _, k := range g.cellRange(p, radius) {
		near[k] = struct{}{}
	}
	var out []Aggregate
	g.cells.Scan(func(c *cell) bool {
		if _, skip := near[c.key]; !skip {
			out = append(out, g.aggregate(c, method, weights))
		}
		return true
	})
	return out
}

func (g *Grid) aggregate(c *cell, method CenterMethod, weights []float64) Aggregate {
	a := Aggregate{Key: c.key, Count: len(c.members)}
	var sum, wsum r2.Vec
	for _, i := range c.members {
		w := 1.0
		if weights != nil && i < len(weights) {
			w = weights[i]
		}
		p := g.nodes[i].pos
		sum = r2.Add(sum, p)
		wsum = r2.Add(wsum, r2.Scale(w, p))
		a.Weight += w
	}
	switch method {
	case CenterGeometric:
		a.Position = g.CellCenter(c.key)
	case CenterWeighted:
		if a.Weight > 0 {
			a.Position = r2.Scale(1/a.Weight, wsum)
			break
		}
		fallthrough
	default:
		if a.Count > 0 {
			a.Position = r2.Scale(1/float64(a.Count), sum)
		}
	}
	return a
}
