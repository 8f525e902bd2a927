package sim

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

const (
	// plateauBaseline is the floor of the near-field repulsion shaping.
	plateauBaseline = 0.01
	// centralScale divides the central strength.
	centralScale = 1000.0
	// degenerateDist2 is the squared distance at or below which a pair is
	// treated as coincident and separated by a random nudge.
	degenerateDist2 = 1.0
)

// Plateau is a smooth bump: 1 at x = 0, falling toward baseline as |x|
// grows past width.
func Plateau(x, width, baseline float64) float64 {
	xw := x / width
	return (1-baseline)/(1+xw*xw) + baseline
}

// SpringForces returns the link force on each endpoint of an edge between a
// source at sp with radius rs and a target at tp with radius rt.
//
// Each endpoint is pulled toward the point where the rim gap equals
// linkLength. The pull is scaled by multiplier (the clamped attraction) and
// by the ratio of the other endpoint's radius to the largest neighbour radius
// of the endpoint itself, so small nodes move toward large ones.
// The caller divides by link counts and handles |tp-sp| <= 1.
func SpringForces(sp, tp r2.Vec, rs, rt, maxNeighborSource, maxNeighborTarget, linkLength, multiplier float64) (onSource, onTarget r2.Vec) {
	delta := r2.Sub(tp, sp)
	dist := r2.Norm(delta)
	if dist == 0 {
		return r2.Vec{}, r2.Vec{}
	}
	stretch := r2.Scale((dist-rs-rt-linkLength)/dist, delta)
	onSource = r2.Scale(multiplier*rt/maxNeighborSource, stretch)
	onTarget = r2.Scale(-multiplier*rs/maxNeighborTarget, stretch)
	return onSource, onTarget
}

// Repulsion returns the repulsive force on node i (at pi, radius ri) from
// node j. It is zero for coincident pairs (squared distance <= 1), which the
// frame loop separates with a random nudge instead.
//
// The kernel is symmetric for equal radii. For unequal radii the smaller
// node is pushed harder than the larger one.
func Repulsion(pi r2.Vec, ri float64, pj r2.Vec, rj, maxRadius, strength float64) r2.Vec {
	delta := r2.Sub(pi, pj)
	d2 := r2.Norm2(delta)
	if d2 <= degenerateDist2 {
		return r2.Vec{}
	}
	return repulsion(delta, d2, ri, rj, maxRadius, strength)
}

func repulsion(delta r2.Vec, d2, ri, rj, maxRadius, strength float64) r2.Vec {
	si, sj := ri/maxRadius, rj/maxRadius
	ratio := (sj * sj * sj) / (si * si * si)
	d := math.Sqrt(d2)
	f := (Plateau(d, 2*(ri+rj), plateauBaseline)*ratio + si) / d2 * strength
	return r2.Scale(f, delta)
}

// Central returns the pull toward the origin on a node at p with radius r.
// Larger nodes are pulled harder.
func Central(p r2.Vec, r, maxRadius, strength float64) r2.Vec {
	s := r / maxRadius
	f := r2.Norm(p) * strength / centralScale * s * s
	return r2.Scale(-f, p)
}

// unit returns v scaled to length 1, or the zero vector for a zero input.
func unit(v r2.Vec) r2.Vec {
	n := r2.Norm(v)
	if n == 0 {
		return r2.Vec{}
	}
	return r2.Scale(1/n, v)
}

// clampNorm limits the length of v to max.
func clampNorm(v r2.Vec, max float64) r2.Vec {
	if n := r2.Norm(v); n > max {
		return r2.Scale(max/n, v)
	}
	return v
}
