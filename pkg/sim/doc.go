// Package sim implements the frame-driven force-directed layout engine.
//
// A [Simulation] borrows node and edge buffers owned by the host (positions,
// radii, edge endpoints) and advances them one animation frame at a time with
// [Simulation.AdvanceFrame]. Each frame does a bounded amount of work:
//
//  1. The grabbed node, if any, is pinned to the pointer.
//  2. Spring forces are accumulated for every edge (O(edges)).
//  3. A window of nodes receives a full repulsion and centring pass against all
//     other nodes (O(window x nodes)). The window size follows the batch
//     fraction and shrinks as the layout settles.
//  4. Forces are blended, clamped, damped and integrated for the window.
//  5. The settleness signal is updated from the change in edge directions.
//
// The window rotates through the node range, so every node is revisited over
// a few frames regardless of how the window size fluctuates.
//
// # Ownership
//
// Host slices are never copied or resized. The engine owns its derived arrays
// (forces, connected deltas, link statistics, the spatial [Grid]) and releases
// them in [Simulation.Close]. Every entry point returns [ErrClosed] afterwards.
//
// # Concurrency
//
// A Simulation is not safe for concurrent use. Hosts serialise frames, setter
// calls and position writes themselves.
//
// # Diagnostics
//
// Out-of-range edge endpoints and grab indices are reported to the [Sink]
// configured with [WithSink] and skipped. [LoggerSink] adapts a
// charmbracelet logger.
//
// # Example
//
//	positions := sim.SpiralPositions(radii)
//	s, err := sim.New(sim.Buffers{
//	    Positions: positions,
//	    Radii:     radii,
//	    Sources:   sources,
//	    Targets:   targets,
//	}, sim.DefaultParams(), sim.WithSink(sim.LoggerSink(logger)))
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	for frame := range frames {
//	    active, err := s.AdvanceFrame(frame.Pointer, frame.Grabbed, frame.Zoom)
//	    ...
//	}
package sim
