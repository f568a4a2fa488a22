package lm

import (
	"errors"
	"math"
)

// errSingular is returned by solveLinear when elimination hits a zero pivot.
// The solver reacts by adding regularization before giving up.
var errSingular = errors.New("singular matrix")

// normalMatrix computes A = J^T J for an m-by-n Jacobian.
func normalMatrix(jac [][]float64, n int) [][]float64 {
	a := make([][]float64, n)
	for i := range a {
		a[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sum := 0.0
			for k := range jac {
				sum += jac[k][i] * jac[k][j]
			}
			a[i][j] = sum
			a[j][i] = sum
		}
	}
	return a
}

// gradient computes g = J^T r.
func gradient(jac [][]float64, r []float64, n int) []float64 {
	g := make([]float64, n)
	for j := 0; j < n; j++ {
		sum := 0.0
		for k := range jac {
			sum += jac[k][j] * r[k]
		}
		g[j] = sum
	}
	return g
}

// dampedSystem builds A + lambda*diag(A) with zero diagonal entries floored,
// so that damping keeps the system solvable even when a Jacobian column
// vanishes at the current point.
func dampedSystem(a [][]float64, lambda float64) [][]float64 {
	n := len(a)

	floor := 0.0
	for i := 0; i < n; i++ {
		if a[i][i] > floor {
			floor = a[i][i]
		}
	}
	floor *= machEps
	if floor == 0 {
		floor = machEps
	}

	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		copy(out[i], a[i])
		d := a[i][i]
		if d < floor {
			d = floor
		}
		out[i][i] += lambda * d
	}
	return out
}

// solveLinear solves A x = b in place via Gaussian elimination with partial
// pivoting. A and b are consumed as scratch space.
func solveLinear(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)

	for col := 0; col < n; col++ {
		pivot := col
		maxAbs := math.Abs(a[col][col])
		for r := col + 1; r < n; r++ {
			if abs := math.Abs(a[r][col]); abs > maxAbs {
				maxAbs = abs
				pivot = r
			}
		}
		if maxAbs == 0 {
			return nil, errSingular
		}
		if pivot != col {
			a[col], a[pivot] = a[pivot], a[col]
			b[col], b[pivot] = b[pivot], b[col]
		}
		for r := col + 1; r < n; r++ {
			factor := a[r][col] / a[col][col]
			if factor == 0 {
				continue
			}
			for c := col; c < n; c++ {
				a[r][c] -= factor * a[col][c]
			}
			b[r] -= factor * b[col]
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		if a[i][i] == 0 {
			return nil, errSingular
		}
		sum := b[i]
		for j := i + 1; j < n; j++ {
			sum -= a[i][j] * x[j]
		}
		x[i] = sum / a[i][i]
	}
	return x, nil
}

// norm2 computes the Euclidean norm of v.
func norm2(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// sumSquares computes the inner product of a vector with itself.
func sumSquares(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return sum
}

// allFinite reports whether every element of v is finite.
func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
