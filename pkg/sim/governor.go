package sim

import "time"

// Governor defaults.
const (
	DefaultTargetFPS   = 40.0
	DefaultMinFraction = 0.3
)

const (
	fpsSmoothing = 0.95
	slowFactor   = 0.8
	fastFactor   = 1.2
)

// Governor adapts the batch fraction of a simulation to a frame-rate target.
//
// When frames are slow it shrinks the fraction, so fewer nodes get a
// repulsion pass per frame, and raises the repulsion strength to
// baseRepulsion/fraction so the layout keeps its spread.
type Governor struct {
	targetFPS   float64
	minFraction float64
	base        float64
	fraction    float64
	avgFPS      float64
}

// NewGovernor returns a governor starting at fraction 1 for the given base
// repulsion. Non-positive targets and fractions fall back to the defaults.
func NewGovernor(targetFPS, minFraction, baseRepulsion float64) *Governor {
	if !(targetFPS > 0) {
		targetFPS = DefaultTargetFPS
	}
	if !(minFraction > 0) || minFraction > 1 {
		minFraction = DefaultMinFraction
	}
	return &Governor{
		targetFPS:   targetFPS,
		minFraction: minFraction,
		base:        baseRepulsion,
		fraction:    1,
		avgFPS:      targetFPS * 2,
	}
}

// Attach applies the governor's current fraction and compensated repulsion
// to s.
func (g *Governor) Attach(s *Simulation) error {
	if err := s.SetBatchFractionSize(g.fraction); err != nil {
		return err
	}
	return s.SetRepulsionForce(g.base / g.fraction)
}

// Observe records the duration of the last frame and adjusts s when the
// smoothed frame rate leaves the target band. It reports whether s changed.
func (g *Governor) Observe(s *Simulation, frame time.Duration) (bool, error) {
	if s.Closed() {
		return false, ErrClosed
	}
	if frame <= 0 {
		return false, nil
	}
	fps := 1 / frame.Seconds()
	g.avgFPS = g.avgFPS*fpsSmoothing + fps*(1-fpsSmoothing)

	step := 0.5 / g.targetFPS
	switch {
	case g.avgFPS < g.targetFPS*slowFactor && g.fraction > g.minFraction:
		g.fraction = max(g.fraction-step, g.minFraction)
	case g.avgFPS > g.targetFPS*fastFactor && g.fraction < 1:
		g.fraction = min(g.fraction+step, 1)
	default:
		return false, nil
	}
	return true, g.Attach(s)
}

// SetBaseRepulsion changes the uncompensated repulsion, for example after a
// configuration reload.
func (g *Governor) SetBaseRepulsion(v float64) { g.base = v }

// BaseRepulsion returns the uncompensated repulsion.
func (g *Governor) BaseRepulsion() float64 { return g.base }

// Fraction returns the current batch fraction.
func (g *Governor) Fraction() float64 { return g.fraction }

// AverageFPS returns the smoothed frame rate.
func (g *Governor) AverageFPS() float64 { return g.avgFPS }

// TargetFPS returns the frame-rate target.
func (g *Governor) TargetFPS() float64 { return g.targetFPS }
