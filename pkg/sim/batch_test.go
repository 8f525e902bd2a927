package sim

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
)

func TestBatchSizing(t *testing.T) {
	tests := []struct {
		name         string
		n            int
		fraction     float64
		wantSize     int
		wantPerRound int
	}{
		{"empty", 0, 1, 1, 1},
		{"single node", 1, 0.1, 1, 1},
		{"small graph uses every node", 10, 0.1, 10, 1},
		{"fraction of large graph", 1000, 0.1, 100, 10},
		{"minimum batch", 1000, 0.01, 50, 20},
		{"whole graph", 1000, 1, 1000, 1},
		{"uneven rounds", 101, 0.5, 50, 3},
		{"fraction above one", 20, 3, 20, 1},
		{"zero fraction", 200, 0, 50, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, perRound := batchSizing(tt.n, tt.fraction)
			if size != tt.wantSize || perRound != tt.wantPerRound {
				t.Errorf("batchSizing(%d, %v) = (%d, %d), want (%d, %d)",
					tt.n, tt.fraction, size, perRound, tt.wantSize, tt.wantPerRound)
			}
		})
	}
}

func TestWindowLength(t *testing.T) {
	tests := []struct {
		name       string
		batchSize  int
		settleness float64
		want       int
	}{
		{"excited", 100, 1, 231},
		{"half settled", 100, 0.5, 190},
		{"log of one", 100, 0.02, 1},
		{"fully settled", 100, 0, 1},
		{"negative settleness", 100, -1, 1},
		{"tiny batch", 1, 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := windowLength(tt.batchSize, tt.settleness); got != tt.want {
				t.Errorf("windowLength(%d, %v) = %d, want %d", tt.batchSize, tt.settleness, got, tt.want)
			}
		})
	}
}

func TestChurn(t *testing.T) {
	tests := []struct {
		name      string
		cur, last r2.Vec
		want      float64
	}{
		{"no edges", r2.Vec{}, r2.Vec{}, 0},
		{"unchanged", r2.Vec{X: 3, Y: 4}, r2.Vec{X: 3, Y: 4}, 0},
		{"first frame", r2.Vec{X: 3, Y: 4}, r2.Vec{}, 3},
		{"stretched", r2.Vec{X: 10, Y: 0}, r2.Vec{X: 4, Y: 0}, 3},
		{"reversed", r2.Vec{X: 1, Y: 0}, r2.Vec{X: -1, Y: 0}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := churn(tt.cur, tt.last); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("churn(%v, %v) = %v, want %v", tt.cur, tt.last, got, tt.want)
			}
		})
	}
}

func TestSettle(t *testing.T) {
	tests := []struct {
		name     string
		start    float64
		churnSum float64
		count    int
		want     float64
	}{
		{"still", 1, 0, 10, 0.95},
		{"moving", 1, 20, 10, 0.97},
		{"capped", 1, 1000, 10, 1.0},
		{"empty window", 0.5, 0, 0, 0.475},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Simulation{settleness: tt.start}
			s.settle(tt.churnSum, tt.count)
			if math.Abs(s.settleness-tt.want) > 1e-12 {
				t.Errorf("settleness = %v, want %v", s.settleness, tt.want)
			}
		})
	}
}
