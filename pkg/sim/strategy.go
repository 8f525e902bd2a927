package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Strategy selects how repulsion is computed each frame.
type Strategy int

const (
	// Pairwise gives a rotating window of nodes an exact repulsion pass
	// against every other node.
	Pairwise Strategy = iota

	// GridAggregate moves every node every frame, repelling it from one
	// radius-weighted mass per occupied grid cell. It is cheaper per node
	// but coarser, and is never selected automatically.
	GridAggregate
)

// String returns the strategy name.
func (st Strategy) String() string {
	switch st {
	case Pairwise:
		return "pairwise"
	case GridAggregate:
		return "grid"
	default:
		return fmt.Sprintf("Strategy(%d)", int(st))
	}
}

// ParseStrategy parses "pairwise" or "grid". The empty string is pairwise.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "pairwise":
		return Pairwise, nil
	case "grid":
		return GridAggregate, nil
	}
	return Pairwise, fmt.Errorf("unknown strategy %q", s)
}

// coincidentDist2 is the squared distance below which a node sits on top
// of a cell mass.
const coincidentDist2 = 1e-5

// pairwisePass runs repulsion, centring and integration for the current
// window and advances the batch offset.
func (s *Simulation) pairwisePass(in *frameInput) (start, end int, churnSum float64) {
	start, end = s.window()
	mix := s.params.BatchFraction / 2
	maxForce := s.maxRadius * s.maxRadius
	next := s.batchOffset

	for i := start; i < end; i++ {
		next = (i + 1) % s.n
		p := s.positions[i]
		r := s.radii[i]

		var f r2.Vec
		for j := 0; j < s.n; j++ {
			if i == start && in.wantsHover() {
				s.pick(in, j)
			}
			if i == j {
				continue
			}
			delta := r2.Sub(p, s.positions[j])
			d2 := r2.Norm2(delta)
			if d2 <= degenerateDist2 {
				s.positions[i] = r2.Add(s.positions[i], s.jitter(r+s.radii[j]))
				continue
			}
			f = r2.Add(f, repulsion(delta, d2, r, s.radii[j], s.maxRadius, s.params.Repulsion))
		}
		f = r2.Add(f, Central(p, r, s.maxRadius, s.params.Central))

		f = r2.Add(r2.Scale(mix, f), r2.Scale(1-mix, s.forces[i]))
		f = clampNorm(r2.Scale(s.settleness, f), maxForce)
		s.forces[i] = r2.Scale(forceDamping, f)
		s.positions[i] = r2.Add(s.positions[i], r2.Scale(s.params.Dt, s.forces[i]))
		if i == in.grabbed {
			s.positions[i] = in.pointer
		}

		churnSum += churn(s.connected[i], s.lastConnected[i])
	}
	s.batchOffset = next
	return start, end, churnSum
}

// aggregatePass moves every node using the link forces of this frame and
// the cell masses of the spatial grid.
func (s *Simulation) aggregatePass(in *frameInput) (start, end int, churnSum float64) {
	s.grid.Rebuild(s.positions)
	cells := s.grid.Aggregates(CenterWeighted, s.radii)
	dt := s.params.Dt
	maxForce := s.maxRadius * s.maxRadius

	for j := 0; j < s.n && in.wantsHover(); j++ {
		s.pick(in, j)
	}

	for i := 0; i < s.n; i++ {
		p := s.positions[i]
		r := s.radii[i]
		home := s.grid.CellOf(p)

		var push r2.Vec
		for _, c := range cells {
			pos, w := c.Position, c.Weight
			if c.Key == home {
				// The node's own contribution is taken out of its cell.
				w -= r
				if w <= 0 {
					continue
				}
				pos = r2.Scale(1/w, r2.Sub(r2.Scale(c.Weight, c.Position), r2.Scale(r, p)))
			}
			delta := r2.Sub(p, pos)
			d2 := r2.Norm2(delta)
			if d2 <= coincidentDist2 {
				push.X++
				continue
			}
			push = r2.Add(push, r2.Scale(s.params.Repulsion*w/(s.maxRadius*d2), delta))
		}

		f := clampNorm(r2.Scale(s.settleness, r2.Add(s.forces[i], push)), maxForce)
		s.forces[i] = r2.Scale(forceDamping, f)
		moved := r2.Add(s.positions[i], r2.Scale(dt, s.forces[i]))
		moved = r2.Sub(moved, r2.Scale(s.params.Central*dt*s.settleness, unit(p)))
		if math.IsNaN(moved.X) || math.IsNaN(moved.Y) {
			moved = r2.Add(p, s.jitter(r))
		}
		s.positions[i] = moved
		if i == in.grabbed {
			s.positions[i] = in.pointer
		}

		churnSum += churn(s.connected[i], s.lastConnected[i])
	}
	s.batchOffset = 0
	return 0, s.n, churnSum
}
