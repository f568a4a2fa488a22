package lm

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

// Solve minimizes the sum of squared residuals with the Levenberg-Marquardt
// method, starting from x0. The damping term uses diag(J^T J) rather than the
// identity, which keeps steps invariant under parameter rescaling.
//
// The returned result is valid even when err is non-nil: it carries the best
// parameters found and the partial cost trace. Solve never mutates x0 and the
// result does not alias any caller-owned slice. The context is checked once
// per outer iteration (cooperative cancellation; a single damped linear solve
// is the only blocking step and is expected to be fast).
func Solve(ctx context.Context, p Problem, x0 []float64, opts Options) (*Result, error) {
	if p.Residual == nil {
		return nil, fmt.Errorf("problem has no residual function")
	}
	if len(x0) == 0 {
		return nil, fmt.Errorf("empty initial parameter vector")
	}
	opts = opts.sanitize()

	n := len(x0)
	x := make([]float64, n)
	copy(x, x0)

	jacFn := p.jacobianOrNumeric()

	// cost tracks the sum of squares at the current accepted x; fail reports
	// it so the partial result's Cost always matches the returned X.
	var cost float64

	res := &Result{Status: StatusFailed}
	fail := func(err error) (*Result, error) {
		res.X = append([]float64(nil), x...)
		res.Cost = cost
		res.Status = StatusFailed
		return res, err
	}

	r, err := p.Residual(x)
	if err != nil {
		return fail(&EvalError{Op: "residual", Iteration: 0, Err: err})
	}
	m := len(r)
	if m == 0 {
		return fail(&EvalError{Op: "residual", Iteration: 0, Err: fmt.Errorf("empty residual vector")})
	}
	if !allFinite(r) {
		return fail(&EvalError{Op: "residual", Iteration: 0, Err: fmt.Errorf("non-finite residual at initial point")})
	}

	cost = sumSquares(r)
	res.Cost = cost
	res.Trace = append(res.Trace, cost)

	lambda := opts.LambdaInit
	if opts.OnIteration != nil {
		opts.OnIteration(IterationRecord{Iteration: 0, Cost: cost, Lambda: lambda})
	}

	slog.Debug("solver start", "n", n, "m", m, "initial_cost", cost, "lambda", lambda)

	finish := func(status Status, iter int) (*Result, error) {
		res.X = append([]float64(nil), x...)
		res.Cost = cost
		res.Status = status
		res.Iterations = iter
		return res, nil
	}

	for iter := 1; iter <= opts.MaxIterations; iter++ {
		select {
		case <-ctx.Done():
			return finish(StatusCancelled, iter-1)
		default:
		}

		jac, err := jacFn(x)
		if err != nil {
			res.Iterations = iter - 1
			return fail(&EvalError{Op: "jacobian", Iteration: iter, Err: err})
		}
		if len(jac) != m {
			res.Iterations = iter - 1
			return fail(&EvalError{Op: "jacobian", Iteration: iter,
				Err: &DimensionError{Context: "jacobian rows", Want: m, Got: len(jac)}})
		}
		for _, row := range jac {
			if len(row) != n {
				res.Iterations = iter - 1
				return fail(&EvalError{Op: "jacobian", Iteration: iter,
					Err: &DimensionError{Context: "jacobian columns", Want: n, Got: len(row)}})
			}
		}

		a := normalMatrix(jac, n)
		g := gradient(jac, r, n)
		gradNorm := norm2(g)
		res.GradNorm = gradNorm

		if gradNorm < opts.TolG {
			slog.Debug("gradient convergence", "iteration", iter, "grad_norm", gradNorm)
			return finish(StatusConverged, iter-1)
		}

		negG := make([]float64, n)
		for i := range g {
			negG[i] = -g[i]
		}

		// Inner accept/reject loop: keep inflating lambda until a step
		// lowers the cost or lambda hits the ceiling.
		var step []float64
		var stepNorm float64
		accepted := false
		for !accepted {
			step, err = solveDamped(a, negG, lambda, iter)
			if err != nil {
				res.Iterations = iter - 1
				return fail(err)
			}

			trial := make([]float64, n)
			for i := range x {
				trial[i] = x[i] + step[i]
			}

			rTrial, err := p.Residual(trial)
			if err != nil {
				res.Iterations = iter - 1
				return fail(&EvalError{Op: "residual", Iteration: iter, Err: err})
			}
			if len(rTrial) != m {
				res.Iterations = iter - 1
				return fail(&EvalError{Op: "residual", Iteration: iter,
					Err: &DimensionError{Context: "residual", Want: m, Got: len(rTrial)}})
			}

			trialCost := sumSquares(rTrial)

			// A non-finite trial cost counts as a rejected step, the
			// same as any step that fails to lower the cost.
			if !math.IsNaN(trialCost) && trialCost < cost {
				x = trial
				r = rTrial
				cost = trialCost
				lambda *= opts.LambdaDecrease
				stepNorm = norm2(step)
				accepted = true
			} else {
				lambda *= opts.LambdaIncrease
				if lambda > opts.LambdaCeiling {
					slog.Warn("damping exceeded ceiling",
						"iteration", iter, "lambda", lambda, "cost", cost)
					return finish(StatusDiverged, iter-1)
				}
			}
		}

		res.Trace = append(res.Trace, cost)
		if opts.OnIteration != nil {
			opts.OnIteration(IterationRecord{
				Iteration: iter,
				Cost:      cost,
				Lambda:    lambda,
				GradNorm:  gradNorm,
				StepNorm:  stepNorm,
			})
		}

		if stepNorm < opts.TolX {
			slog.Debug("step convergence", "iteration", iter, "step_norm", stepNorm)
			return finish(StatusConverged, iter)
		}
	}

	slog.Debug("iteration budget exhausted", "iterations", opts.MaxIterations, "cost", cost)
	return finish(StatusMaxIterations, opts.MaxIterations)
}

// solveDamped solves (A + lambda*diag(A)) step = negG. When elimination finds
// the damped system singular, it retries with a growing ridge on the diagonal
// before reporting a LinAlgError.
func solveDamped(a [][]float64, negG []float64, lambda float64, iter int) ([]float64, error) {
	n := len(negG)

	maxDiag := 0.0
	for i := 0; i < n; i++ {
		if a[i][i] > maxDiag {
			maxDiag = a[i][i]
		}
	}
	if maxDiag == 0 {
		maxDiag = 1
	}

	ridge := 0.0
	for attempt := 0; attempt < 4; attempt++ {
		damped := dampedSystem(a, lambda)
		if ridge > 0 {
			for i := 0; i < n; i++ {
				damped[i][i] += ridge
			}
		}

		rhs := make([]float64, n)
		copy(rhs, negG)

		step, err := solveLinear(damped, rhs)
		if err == nil && allFinite(step) {
			return step, nil
		}

		if ridge == 0 {
			ridge = maxDiag * 1e-12
		} else {
			ridge *= 1e4
		}
		slog.Debug("regularizing singular system", "iteration", iter, "ridge", ridge)
	}

	return nil, &LinAlgError{Iteration: iter, Reason: "damped normal equations singular after regularization"}
}
