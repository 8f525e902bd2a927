package pipeline

import (
	"context"
	"encoding/json"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/matzehuels/forceview/pkg/cache"
	"github.com/matzehuels/forceview/pkg/graph"
)

// State is a saved set of node positions. Coordinates are rounded to
// integers, which is plenty for a restart and keeps entries small.
type State struct {
	Nodes     []string `json:"nodes"`
	Positions [][2]int `json:"positions"`
}

// NewState snapshots a layout.
func NewState(l graph.Layout) State {
	st := State{
		Nodes:     make([]string, len(l.Nodes)),
		Positions: make([][2]int, len(l.Nodes)),
	}
	for i, n := range l.Nodes {
		st.Nodes[i] = n.ID
		st.Positions[i] = [2]int{int(math.Round(n.X)), int(math.Round(n.Y))}
	}
	return st
}

// Apply maps the state onto a model's indices. It reports false unless the
// state covers exactly the model's nodes.
func (st State) Apply(m *graph.Model) ([]r2.Vec, bool) {
	if len(st.Nodes) != m.Len() || len(st.Positions) != len(st.Nodes) {
		return nil, false
	}
	out := make([]r2.Vec, m.Len())
	seen := make([]bool, m.Len())
	for k, id := range st.Nodes {
		i, ok := m.Index(id)
		if !ok || seen[i] {
			return nil, false
		}
		seen[i] = true
		out[i] = r2.Vec{X: float64(st.Positions[k][0]), Y: float64(st.Positions[k][1])}
	}
	return out, true
}

// SaveState stores the positions of l under the state key of g.
func (r *Runner) SaveState(ctx context.Context, g graph.Graph, l graph.Layout) error {
	hash, err := GraphHash(g)
	if err != nil {
		return err
	}
	data, err := json.Marshal(NewState(l))
	if err != nil {
		return err
	}
	return r.Cache.Set(ctx, r.Keyer.StateKey(hash), data, cache.TTLState)
}

// LoadState returns positions saved for g, mapped onto m. It reports false
// when nothing usable is stored.
func (r *Runner) LoadState(ctx context.Context, g graph.Graph, m *graph.Model) ([]r2.Vec, bool, error) {
	hash, err := GraphHash(g)
	if err != nil {
		return nil, false, err
	}
	data, hit, err := r.Cache.Get(ctx, r.Keyer.StateKey(hash))
	if err != nil || !hit {
		return nil, false, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		r.Logger.Warn("discarding unreadable saved state", "error", err)
		return nil, false, nil
	}
	positions, ok := st.Apply(m)
	if !ok {
		r.Logger.Debug("saved state does not match graph", "saved", len(st.Nodes), "nodes", m.Len())
	}
	return positions, ok, nil
}
