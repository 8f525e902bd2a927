package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// NoNode is returned when no node is grabbed or hovered.
const NoNode = -1

// HoverPolicy controls what happens to the hovered node when the pointer
// misses every node.
type HoverPolicy int

const (
	// HoverSticky keeps the last hovered node until another one is hit.
	HoverSticky HoverPolicy = iota
	// HoverClear resets the hovered node to NoNode on a miss.
	HoverClear
)

// String returns the policy name.
func (h HoverPolicy) String() string {
	switch h {
	case HoverSticky:
		return "sticky"
	case HoverClear:
		return "clear"
	default:
		return fmt.Sprintf("HoverPolicy(%d)", int(h))
	}
}

// ParseHoverPolicy parses "sticky" or "clear". The empty string is sticky.
func ParseHoverPolicy(s string) (HoverPolicy, error) {
	switch s {
	case "", "sticky":
		return HoverSticky, nil
	case "clear":
		return HoverClear, nil
	}
	return HoverSticky, fmt.Errorf("unknown hover policy %q", s)
}

// frameInput is the interaction state of one frame.
type frameInput struct {
	pointer     r2.Vec
	grabbed     int // validated; NoNode when nothing is held
	cameraScale float64
	hit         bool // a node was found under the pointer this frame
}

// grab resets settleness for any grab request, then validates the index and
// pins the node. An out-of-range index is reported and treated as no grab.
func (s *Simulation) grab(pointer r2.Vec, grabbed int) int {
	if grabbed < 0 {
		return NoNode
	}
	s.settleness = 1
	if grabbed >= s.n {
		s.report(LevelWarn, "grabbed node out of range", "node", grabbed, "nodes", s.n)
		return NoNode
	}
	s.positions[grabbed] = pointer
	return grabbed
}

// wantsHover reports whether this frame still looks for a node under the
// pointer.
func (f *frameInput) wantsHover() bool {
	return f.grabbed == NoNode && !f.hit
}

// pick tests node j against the pointer and records a hit.
func (s *Simulation) pick(f *frameInput, j int) {
	if hoverHit(s.positions[j], f.pointer, s.radii[j], f.cameraScale) {
		s.hovered = j
		f.hit = true
	}
}

// finishHover applies the hover policy once the scan is over.
func (s *Simulation) finishHover(f *frameInput) {
	if f.grabbed == NoNode && !f.hit && s.hover == HoverClear {
		s.hovered = NoNode
	}
}

// hoverHit reports whether the pointer lies inside a node whose on-screen
// radius is r at the given zoom.
func hoverHit(p, pointer r2.Vec, r, cameraScale float64) bool {
	if !(cameraScale > 0) {
		cameraScale = 1
	}
	return r2.Norm(r2.Sub(p, pointer)) < r/math.Sqrt(cameraScale)
}
