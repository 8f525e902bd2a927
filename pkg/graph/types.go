package graph

import (
	"maps"

	errs "github.com/matzehuels/forceview/pkg/errors"
)

// =============================================================================
// Graph - Node-Link Serialization
// =============================================================================

// Graph is the canonical serialization format for input graphs.
// Used for files, API requests and cache keys.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// =============================================================================
// Node
// =============================================================================

// Node is a graph vertex. Radius is optional; nodes without one are sized
// from their degree when the graph is bound to a simulation.
type Node struct {
	ID     string         `json:"id"`
	Label  string         `json:"label,omitempty"`
	Radius float64        `json:"radius,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// DisplayLabel returns the label if set, otherwise the ID.
func (n *Node) DisplayLabel() string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

// =============================================================================
// Edge
// =============================================================================

// Edge links two nodes by ID. Direction is kept for round-trips but has no
// effect on the layout.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks that node IDs are non-empty and unique, radii are not
// negative, and every edge endpoint names a node.
func (g Graph) Validate() error {
	seen := make(map[string]struct{}, len(g.Nodes))
	for i, n := range g.Nodes {
		if n.ID == "" {
			return errs.New(errs.ErrCodeInvalidGraph, "node %d has an empty id", i)
		}
		if _, dup := seen[n.ID]; dup {
			return errs.New(errs.ErrCodeInvalidGraph, "duplicate node id %q", n.ID)
		}
		if n.Radius < 0 {
			return errs.New(errs.ErrCodeInvalidGraph, "node %q has negative radius %v", n.ID, n.Radius)
		}
		seen[n.ID] = struct{}{}
	}
	for _, e := range g.Edges {
		if _, ok := seen[e.From]; !ok {
			return errs.New(errs.ErrCodeInvalidGraph, "edge %s→%s: unknown node %q", e.From, e.To, e.From)
		}
		if _, ok := seen[e.To]; !ok {
			return errs.New(errs.ErrCodeInvalidGraph, "edge %s→%s: unknown node %q", e.From, e.To, e.To)
		}
	}
	return nil
}

// Degrees returns the number of non-loop edges touching each node, by ID.
func (g Graph) Degrees() map[string]int {
	deg := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		deg[n.ID] = 0
	}
	for _, e := range g.Edges {
		if e.From == e.To {
			continue
		}
		deg[e.From]++
		deg[e.To]++
	}
	return deg
}

// Clone returns a deep copy of the node and edge slices.
// Metadata maps are copied shallowly.
func (g Graph) Clone() Graph {
	out := Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: append([]Edge(nil), g.Edges...),
	}
	for i, n := range g.Nodes {
		if n.Meta != nil {
			n.Meta = maps.Clone(n.Meta)
		}
		out.Nodes[i] = n
	}
	return out
}
