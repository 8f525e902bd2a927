package sim

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// AdvanceFrame runs one simulation step.
//
// pointer is the pointer position in simulation space. grabbed is the index
// of the node held by the user, or any negative value for none. cameraScale
// is the current zoom; hover hit radii shrink with its square root.
//
// It returns the grabbed node when one is held, otherwise the hovered node,
// otherwise NoNode.
func (s *Simulation) AdvanceFrame(pointer r2.Vec, grabbed int, cameraScale float64) (int, error) {
	if s.closed {
		return NoNode, ErrClosed
	}
	s.frames++

	in := &frameInput{pointer: pointer, cameraScale: cameraScale}
	in.grabbed = s.grab(pointer, grabbed)
	if s.n == 0 {
		s.stats = FrameStats{Frame: s.frames, Settleness: s.settleness, Active: NoNode, Grabbed: NoNode, Hovered: NoNode}
		return NoNode, nil
	}

	s.linkPass()

	var start, end int
	var churnSum float64
	switch s.strategy {
	case GridAggregate:
		start, end, churnSum = s.aggregatePass(in)
	default:
		start, end, churnSum = s.pairwisePass(in)
	}
	s.finishHover(in)
	s.settle(churnSum, end-start)

	active := s.hovered
	if in.grabbed != NoNode {
		s.positions[in.grabbed] = pointer
		active = in.grabbed
	}

	s.stats = FrameStats{
		Frame:       s.frames,
		WindowStart: start,
		WindowEnd:   end,
		Settleness:  s.settleness,
		Active:      active,
		Grabbed:     in.grabbed,
		Hovered:     s.hovered,
	}
	return active, nil
}

// linkPass accumulates spring forces and connected deltas for every edge.
func (s *Simulation) linkPass() {
	s.connected, s.lastConnected = s.lastConnected, s.connected
	clear(s.connected)
	clear(s.forces)

	multiplier := min(s.params.Attraction, 1)
	for e := range s.sources {
		src, dst, ok := s.edge(e)
		if !ok || src == dst {
			continue
		}
		sp, tp := s.positions[src], s.positions[dst]
		delta := r2.Sub(tp, sp)
		s.connected[src] = r2.Add(s.connected[src], delta)
		s.connected[dst] = r2.Sub(s.connected[dst], delta)

		if r2.Norm2(delta) <= degenerateDist2 {
			s.positions[src] = r2.Add(sp, s.jitter(s.radii[src]+s.radii[dst]))
			continue
		}

		fs, ft := SpringForces(sp, tp, s.radii[src], s.radii[dst],
			s.maxNeighbor[src], s.maxNeighbor[dst], s.params.LinkLength, multiplier)
		s.forces[src] = r2.Add(s.forces[src], r2.Scale(1/float64(s.linkCounts[src]), fs))
		s.forces[dst] = r2.Add(s.forces[dst], r2.Scale(1/float64(s.linkCounts[dst]), ft))
	}
}
