package lm

import (
	"fmt"
	"math"
	"testing"
)

func TestNumJacobianMatchesAnalytic(t *testing.T) {
	residual := func(x []float64) ([]float64, error) {
		return []float64{
			x[0] * x[0],
			x[0] * x[1],
			math.Exp(x[1]),
		}, nil
	}
	analytic := func(x []float64) [][]float64 {
		return [][]float64{
			{2 * x[0], 0},
			{x[1], x[0]},
			{0, math.Exp(x[1])},
		}
	}

	x := []float64{1.5, -0.5}
	numJac := NumJacobian(residual)

	got, err := numJac(x)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := analytic(x)
	for i := range want {
		for j := range want[i] {
			if diff := math.Abs(got[i][j] - want[i][j]); diff > 1e-6 {
				t.Errorf("jacobian[%d][%d]: expected %g, got %g (diff %g)", i, j, want[i][j], got[i][j], diff)
			}
		}
	}
}

func TestNumJacobianPropagatesError(t *testing.T) {
	numJac := NumJacobian(func(x []float64) ([]float64, error) {
		return nil, fmt.Errorf("forward run failed")
	})

	if _, err := numJac([]float64{1}); err == nil {
		t.Error("expected error from failing residual function")
	}
}

func TestNumJacobianDoesNotMutateInput(t *testing.T) {
	numJac := NumJacobian(func(x []float64) ([]float64, error) {
		return []float64{x[0] + x[1]}, nil
	})

	x := []float64{1, 2}
	if _, err := numJac(x); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if x[0] != 1 || x[1] != 2 {
		t.Errorf("input vector mutated: %v", x)
	}
}
