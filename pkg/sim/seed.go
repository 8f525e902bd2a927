package sim

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// spiralTurns is the number of turns the seed spiral makes over all nodes.
const spiralTurns = 7.41

// SpiralPositions returns starting positions on a spiral around the origin.
// Larger nodes start closer to the centre, so callers that order nodes by
// descending radius get a compact initial layout.
func SpiralPositions(radii []float64) []r2.Vec {
	n := len(radii)
	out := make([]r2.Vec, n)
	if n == 0 {
		return out
	}
	var sum, maxR float64
	for _, r := range radii {
		sum += r
		maxR = max(maxR, r)
	}
	if maxR <= 0 {
		maxR = 1
	}
	spawn := sum / float64(n) * math.Sqrt(float64(n)) * 2
	for i, r := range radii {
		dist := (1 - r/maxR) * spawn
		angle := float64(i) / float64(n) * spiralTurns * 2 * math.Pi
		out[i] = r2.Vec{X: math.Cos(angle) * dist, Y: math.Sin(angle) * dist}
	}
	return out
}
