package lm

import "fmt"

// EvalError indicates that the residual or Jacobian function failed at the
// current point. The run is aborted and the partial result (best parameters
// and trace so far) is still returned by Solve.
type EvalError struct {
	// Op identifies which callback failed: "residual" or "jacobian"
	Op string

	// Iteration is the solver iteration during which the failure occurred
	// (0 for the initial evaluation)
	Iteration int

	// Err is the underlying error from the callback, if any
	Err error
}

func (e *EvalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s evaluation failed at iteration %d: %v", e.Op, e.Iteration, e.Err)
	}
	return fmt.Sprintf("%s evaluation failed at iteration %d", e.Op, e.Iteration)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

func (e *EvalError) Is(target error) bool {
	_, ok := target.(*EvalError)
	return ok
}

// LinAlgError indicates that the damped normal-equations system could not be
// solved, even after the regularization retry ladder.
type LinAlgError struct {
	Iteration int
	Reason    string
}

func (e *LinAlgError) Error() string {
	return fmt.Sprintf("linear solve failed at iteration %d: %s", e.Iteration, e.Reason)
}

func (e *LinAlgError) Is(target error) bool {
	_, ok := target.(*LinAlgError)
	return ok
}

// DimensionError indicates inconsistent problem dimensions, e.g. a Jacobian
// whose shape does not match the residual vector.
type DimensionError struct {
	Context string
	Want    int
	Got     int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch in %s: want %d, got %d", e.Context, e.Want, e.Got)
}

func (e *DimensionError) Is(target error) bool {
	_, ok := target.(*DimensionError)
	return ok
}
