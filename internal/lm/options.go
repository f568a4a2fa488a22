package lm

// Options controls the Levenberg-Marquardt iteration. The zero value is not
// usable directly; call DefaultOptions or let sanitize fill in defaults.
type Options struct {
	// MaxIterations is the outer iteration budget. Reaching it without
	// satisfying a tolerance yields StatusMaxIterations, not an error.
	MaxIterations int

	// TolX stops the iteration when the accepted step norm falls below it.
	TolX float64

	// TolG stops the iteration when the gradient norm falls below it.
	TolG float64

	// LambdaInit is the initial damping parameter.
	LambdaInit float64

	// LambdaIncrease multiplies lambda after a rejected step (> 1).
	LambdaIncrease float64

	// LambdaDecrease multiplies lambda after an accepted step (< 1).
	LambdaDecrease float64

	// LambdaCeiling aborts the run with StatusDiverged once lambda exceeds it.
	LambdaCeiling float64

	// OnIteration, if set, is called once per accepted iteration and once
	// for the initial evaluation. It must not retain the record's slices.
	OnIteration func(IterationRecord)
}

// IterationRecord describes one accepted solver iteration.
type IterationRecord struct {
	Iteration int     `json:"iteration"`
	Cost      float64 `json:"cost"`
	Lambda    float64 `json:"lambda"`
	GradNorm  float64 `json:"gradNorm"`
	StepNorm  float64 `json:"stepNorm"`
}

// DefaultOptions returns the solver defaults.
func DefaultOptions() Options {
	return Options{
		MaxIterations:  100,
		TolX:           1e-8,
		TolG:           1e-10,
		LambdaInit:     1e-3,
		LambdaIncrease: 10,
		LambdaDecrease: 0.1,
		LambdaCeiling:  1e12,
	}
}

// sanitize replaces unset or invalid fields with defaults.
func (o Options) sanitize() Options {
	def := DefaultOptions()
	if o.MaxIterations <= 0 {
		o.MaxIterations = def.MaxIterations
	}
	if o.TolX <= 0 {
		o.TolX = def.TolX
	}
	if o.TolG <= 0 {
		o.TolG = def.TolG
	}
	if o.LambdaInit <= 0 {
		o.LambdaInit = def.LambdaInit
	}
	if o.LambdaIncrease <= 1 {
		o.LambdaIncrease = def.LambdaIncrease
	}
	if o.LambdaDecrease <= 0 || o.LambdaDecrease >= 1 {
		o.LambdaDecrease = def.LambdaDecrease
	}
	if o.LambdaCeiling <= o.LambdaInit {
		o.LambdaCeiling = def.LambdaCeiling
	}
	return o
}
