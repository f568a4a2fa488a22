package lm

import (
	"math"
)

// ResidualFunc maps a parameter vector of length n to a residual vector of
// length m (model minus observation). It is treated as a pure function.
type ResidualFunc func(x []float64) ([]float64, error)

// JacobianFunc maps a parameter vector to the m-by-n matrix of partial
// derivatives of the residuals with respect to the parameters.
type JacobianFunc func(x []float64) ([][]float64, error)

// Problem bundles the caller-supplied callbacks for one optimization run.
// Jacobian may be nil, in which case the solver falls back to a
// forward-difference approximation built from Residual.
type Problem struct {
	Residual ResidualFunc
	Jacobian JacobianFunc
}

// jacobianOrNumeric returns the analytic Jacobian when supplied, otherwise a
// finite-difference approximation around Residual.
func (p Problem) jacobianOrNumeric() JacobianFunc {
	if p.Jacobian != nil {
		return p.Jacobian
	}
	return NumJacobian(p.Residual)
}

// NumJacobian builds a forward-difference Jacobian approximation for fn.
// The step for component i is sqrt(machine epsilon) * max(|x_i|, 1).
func NumJacobian(fn ResidualFunc) JacobianFunc {
	return func(x []float64) ([][]float64, error) {
		r0, err := fn(x)
		if err != nil {
			return nil, err
		}

		n := len(x)
		m := len(r0)
		jac := make([][]float64, m)
		for i := range jac {
			jac[i] = make([]float64, n)
		}

		xp := make([]float64, n)
		copy(xp, x)

		step := math.Sqrt(machEps)
		for j := 0; j < n; j++ {
			h := step * math.Max(math.Abs(x[j]), 1)
			xp[j] = x[j] + h
			// Use the actually representable step
			h = xp[j] - x[j]

			rp, err := fn(xp)
			if err != nil {
				return nil, err
			}
			if len(rp) != m {
				return nil, &DimensionError{Context: "perturbed residual", Want: m, Got: len(rp)}
			}

			for i := 0; i < m; i++ {
				jac[i][j] = (rp[i] - r0[i]) / h
			}
			xp[j] = x[j]
		}

		return jac, nil
	}
}

const machEps = 2.220446049250313e-16
