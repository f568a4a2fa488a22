package lm

// Status describes how a solver run terminated.
type Status string

const (
	// StatusConverged means the step norm or gradient norm fell below tolerance.
	StatusConverged Status = "converged"

	// StatusMaxIterations means the iteration budget ran out first.
	StatusMaxIterations Status = "max_iterations"

	// StatusDiverged means lambda exceeded its ceiling without finding a
	// cost-decreasing step.
	StatusDiverged Status = "diverged"

	// StatusFailed means a residual/Jacobian evaluation or the linear solve
	// failed; Solve also returns a typed error in this case.
	StatusFailed Status = "failed"

	// StatusCancelled means the context was cancelled between iterations.
	StatusCancelled Status = "cancelled"
)

// Result holds the outcome of a solver run. It is immutable once returned:
// the solver hands over freshly allocated slices and keeps no references.
type Result struct {
	// X is the best parameter vector found, even on non-convergence.
	X []float64 `json:"x"`

	// Cost is the sum of squared residuals at X.
	Cost float64 `json:"cost"`

	// GradNorm is the gradient norm at the last evaluated Jacobian.
	GradNorm float64 `json:"gradNorm"`

	// Status records the termination kind.
	Status Status `json:"status"`

	// Iterations is the number of accepted iterations performed.
	Iterations int `json:"iterations"`

	// Trace holds the cost after the initial evaluation and each accepted
	// step. It is non-increasing by construction of the accept/reject rule.
	Trace []float64 `json:"trace"`
}

// Converged reports whether the run satisfied a convergence tolerance.
func (r *Result) Converged() bool {
	return r.Status == StatusConverged
}
