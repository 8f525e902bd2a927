package graph

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r2"

	errs "github.com/matzehuels/forceview/pkg/errors"
	"github.com/matzehuels/forceview/pkg/sim"
)

// =============================================================================
// Layout - Positioned Graph
// =============================================================================

// Layout is a graph with simulated positions.
//
// Nodes appear in simulation order. Params, Strategy, Frames and
// Settleness record how the layout was produced.
type Layout struct {
	Nodes []PlacedNode `json:"nodes"`
	Edges []Edge       `json:"edges,omitempty"`

	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	Params     *sim.Params `json:"params,omitempty"`
	Strategy   string      `json:"strategy,omitempty"`
	Frames     uint64      `json:"frames"`
	Settleness float64     `json:"settleness"`
}

// PlacedNode is a node with a position.
type PlacedNode struct {
	ID     string         `json:"id"`
	Label  string         `json:"label,omitempty"`
	X      float64        `json:"x"`
	Y      float64        `json:"y"`
	Radius float64        `json:"radius"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Position returns the node position as a vector.
func (n PlacedNode) Position() r2.Vec { return r2.Vec{X: n.X, Y: n.Y} }

// DisplayLabel returns the label if set, otherwise the ID.
func (n PlacedNode) DisplayLabel() string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

// NewLayout snapshots the positions of a model. positions must be indexed
// like m.Nodes.
func NewLayout(m *Model, positions []r2.Vec) Layout {
	l := Layout{
		Nodes: make([]PlacedNode, len(m.Nodes)),
		Edges: append([]Edge(nil), m.Edges...),
	}
	for i, n := range m.Nodes {
		l.Nodes[i] = PlacedNode{
			ID:     n.ID,
			Label:  n.Label,
			X:      positions[i].X,
			Y:      positions[i].Y,
			Radius: m.Radii[i],
			Meta:   n.Meta,
		}
	}
	lo, hi := l.Bounds()
	l.Width, l.Height = hi.X-lo.X, hi.Y-lo.Y
	return l
}

// Bounds returns the corners of the box enclosing every node disc.
// An empty layout has zero bounds.
func (l Layout) Bounds() (lo, hi r2.Vec) {
	if len(l.Nodes) == 0 {
		return r2.Vec{}, r2.Vec{}
	}
	lo = r2.Vec{X: math.Inf(1), Y: math.Inf(1)}
	hi = r2.Vec{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, n := range l.Nodes {
		lo.X = min(lo.X, n.X-n.Radius)
		lo.Y = min(lo.Y, n.Y-n.Radius)
		hi.X = max(hi.X, n.X+n.Radius)
		hi.Y = max(hi.Y, n.Y+n.Radius)
	}
	return lo, hi
}

// Positions maps the layout back onto a model's indices. It reports false
// when the layout does not cover every node of the model.
func (l Layout) Positions(m *Model) ([]r2.Vec, bool) {
	out := make([]r2.Vec, m.Len())
	found := 0
	for _, n := range l.Nodes {
		if i, ok := m.Index(n.ID); ok {
			out[i] = n.Position()
			found++
		}
	}
	return out, found == m.Len() && len(l.Nodes) == m.Len()
}

// Graph returns the structural part of the layout.
func (l Layout) Graph() Graph {
	g := Graph{Nodes: make([]Node, len(l.Nodes)), Edges: append([]Edge(nil), l.Edges...)}
	for i, n := range l.Nodes {
		g.Nodes[i] = Node{ID: n.ID, Label: n.Label, Radius: n.Radius, Meta: n.Meta}
	}
	return g
}

// =============================================================================
// Layout Serialization API
// =============================================================================

// MarshalLayout serializes a Layout to pretty-printed JSON bytes.
func MarshalLayout(l Layout) ([]byte, error) {
	return json.MarshalIndent(l, "", "  ")
}

// UnmarshalLayout deserializes JSON bytes into a Layout.
// Every node needs an ID and a positive radius, and every edge must name
// known nodes.
func UnmarshalLayout(data []byte) (Layout, error) {
	var l Layout
	if err := json.Unmarshal(data, &l); err != nil {
		return Layout{}, errs.Wrap(errs.ErrCodeInvalidFormat, err, "unmarshal layout")
	}
	for _, n := range l.Nodes {
		if !(n.Radius > 0) {
			return Layout{}, errs.New(errs.ErrCodeInvalidGraph, "layout node %q has no radius", n.ID)
		}
	}
	if err := l.Graph().Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// WriteLayoutFile writes a Layout to a JSON file.
func WriteLayoutFile(l Layout, path string) error {
	data, err := MarshalLayout(l)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadLayoutFile reads a Layout from a JSON file.
func ReadLayoutFile(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Layout{}, errs.Wrap(errs.ErrCodeFileNotFound, err, "layout file %s", path)
		}
		return Layout{}, fmt.Errorf("read %s: %w", path, err)
	}
	return UnmarshalLayout(data)
}
