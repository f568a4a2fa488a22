package calib

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// Optimizer is a bounded global optimizer used to seed a calibration run
// before the local Levenberg-Marquardt refinement.
type Optimizer interface {
	// Run minimizes eval over the box [lower, upper] and returns the best
	// point and its cost.
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}

// MayflyOptimizer adapts the external mayfly population search to the
// Optimizer interface. The library works on a scalar-bounded box, so the
// search runs in the unit cube and the adapter maps points onto the
// per-dimension bounds inside the objective closure.
type MayflyOptimizer struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a mayfly optimizer adapter.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyOptimizer {
	return &MayflyOptimizer{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

func (m *MayflyOptimizer) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	fromUnit := func(u []float64) []float64 {
		x := make([]float64, dim)
		for i := 0; i < dim; i++ {
			x[i] = lower[i] + u[i]*(upper[i]-lower[i])
		}
		return x
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(u []float64) float64 {
		return eval(fromUnit(u))
	}
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		// Fall back to the box center.
		center := make([]float64, dim)
		for i := range center {
			center[i] = 0.5
		}
		x := fromUnit(center)
		return x, eval(x)
	}

	return fromUnit(result.GlobalBest.Position), result.GlobalBest.Cost
}

// checkFiniteBounds verifies that a global pre-search has a finite box to
// work in.
func checkFiniteBounds(lower, upper []float64) error {
	for i := range lower {
		if math.IsInf(lower[i], 0) || math.IsInf(upper[i], 0) {
			return fmt.Errorf("global search needs finite bounds, dimension %d is unbounded", i)
		}
	}
	return nil
}
