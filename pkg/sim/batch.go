package sim

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

const (
	minBatchNodes = 50

	// Window length is batchSize * ln(windowBase * settleness) / windowScale,
	// so a fully excited layout processes about 2.3 batches per frame and a
	// settled one processes a single node.
	windowBase  = 50.0
	windowScale = 1.7

	settleDecay = 0.95
	settleGain  = 0.01
	settleCap   = 5.0

	forceDamping = 0.9
)

// batchSizing derives the batch size and the number of batches per round for
// n nodes at the given fraction.
func batchSizing(n int, fraction float64) (size, perRound int) {
	if n <= 0 {
		return 1, 1
	}
	size = int(float64(n) * fraction)
	size = max(size, min(minBatchNodes, n))
	size = min(size, n)
	size = max(size, 1)
	perRound = max((n+size-1)/size, 1)
	return size, perRound
}

// windowLength returns how many nodes receive a repulsion pass this frame.
func windowLength(batchSize int, settleness float64) int {
	l := math.Ceil(float64(batchSize) * math.Log(windowBase*settleness) / windowScale)
	if math.IsNaN(l) || l < 1 {
		return 1
	}
	if l > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(l)
}

// window returns the node range processed this frame.
func (s *Simulation) window() (start, end int) {
	start = s.batchOffset
	end = min(start+windowLength(s.batchSize, s.settleness), s.n)
	return start, end
}

// churn measures how much the summed edge vector of a node changed between
// frames, in length and in direction.
func churn(cur, last r2.Vec) float64 {
	return (r2.Norm(r2.Sub(cur, last)) + r2.Norm(r2.Sub(unit(cur), unit(last)))) / 2
}

// settle folds the mean churn of the processed nodes into the settleness
// signal.
func (s *Simulation) settle(churnSum float64, count int) {
	var mean float64
	if count > 0 {
		mean = churnSum / float64(count)
	}
	s.settleness = s.settleness*settleDecay + min(mean, settleCap)*settleGain
}
