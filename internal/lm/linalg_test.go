package lm

import (
	"errors"
	"math"
	"testing"
)

func TestSolveLinearKnownSystem(t *testing.T) {
	// 2x + y = 3, x + 3y = 5 -> x = 0.8, y = 1.4
	a := [][]float64{{2, 1}, {1, 3}}
	b := []float64{3, 5}

	x, err := solveLinear(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(x[0]-0.8) > 1e-12 || math.Abs(x[1]-1.4) > 1e-12 {
		t.Errorf("expected [0.8, 1.4], got %v", x)
	}
}

func TestSolveLinearNeedsPivoting(t *testing.T) {
	// Zero leading pivot forces a row swap.
	a := [][]float64{{0, 1}, {1, 0}}
	b := []float64{2, 3}

	x, err := solveLinear(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if x[0] != 3 || x[1] != 2 {
		t.Errorf("expected [3, 2], got %v", x)
	}
}

func TestSolveLinearSingular(t *testing.T) {
	a := [][]float64{{1, 2}, {2, 4}}
	b := []float64{1, 2}

	if _, err := solveLinear(a, b); !errors.Is(err, errSingular) {
		t.Errorf("expected singular matrix error, got %v", err)
	}
}

func TestNormalMatrixAndGradient(t *testing.T) {
	jac := [][]float64{
		{1, 2},
		{3, 4},
		{5, 6},
	}
	r := []float64{1, 1, 1}

	a := normalMatrix(jac, 2)
	wantA := [][]float64{{35, 44}, {44, 56}}
	for i := range wantA {
		for j := range wantA[i] {
			if a[i][j] != wantA[i][j] {
				t.Errorf("normal matrix [%d][%d]: expected %g, got %g", i, j, wantA[i][j], a[i][j])
			}
		}
	}

	g := gradient(jac, r, 2)
	if g[0] != 9 || g[1] != 12 {
		t.Errorf("expected gradient [9, 12], got %v", g)
	}
}

func TestDampedSystemScaleInvariance(t *testing.T) {
	// Damping multiplies the diagonal, so rescaling a parameter rescales
	// its damping term proportionally.
	a := [][]float64{{4, 0}, {0, 100}}
	damped := dampedSystem(a, 0.5)

	if damped[0][0] != 6 {
		t.Errorf("expected 4 + 0.5*4 = 6, got %g", damped[0][0])
	}
	if damped[1][1] != 150 {
		t.Errorf("expected 100 + 0.5*100 = 150, got %g", damped[1][1])
	}
}

func TestDampedSystemFloorsZeroDiagonal(t *testing.T) {
	a := [][]float64{{1, 0}, {0, 0}}
	damped := dampedSystem(a, 1)

	if damped[1][1] <= 0 {
		t.Errorf("zero diagonal entry must be floored, got %g", damped[1][1])
	}

	rhs := []float64{1, 1}
	if _, err := solveLinear(damped, rhs); err != nil {
		t.Errorf("floored system should be solvable: %v", err)
	}
}

func TestNorm2(t *testing.T) {
	if got := norm2([]float64{3, 4}); got != 5 {
		t.Errorf("expected 5, got %g", got)
	}
	if got := sumSquares([]float64{3, 4}); got != 25 {
		t.Errorf("expected 25, got %g", got)
	}
}
