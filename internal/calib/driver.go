package calib

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/hydrosolve/gwcalib/internal/forward"
	"github.com/hydrosolve/gwcalib/internal/lm"
	"github.com/hydrosolve/gwcalib/internal/model"
)

// RunResult is the outcome of a single calibration run.
type RunResult struct {
	Model       string             `json:"model"`
	Names       []string           `json:"names"`
	X           []float64          `json:"x"`
	Params      map[string]float64 `json:"params"`
	InitialCost float64            `json:"initialCost"`
	FinalCost   float64            `json:"finalCost"`
	Status      lm.Status          `json:"status"`
	Iterations  int                `json:"iterations"`
	Trace       []float64          `json:"trace"`
	Elapsed     time.Duration      `json:"elapsed"`
}

// Run calibrates the model against the observations, starting from the
// parameter set's initial values.
func Run(ctx context.Context, m forward.Model, ps *model.ParamSet, obs []model.Observation, opts lm.Options) (*RunResult, error) {
	return RunFrom(ctx, m, ps, obs, ps.Vector(), opts)
}

// RunFrom calibrates from an explicit solver-space starting vector. Each call
// owns its own closures and scratch state, so independent runs can execute
// concurrently against the same model and parameter set.
func RunFrom(ctx context.Context, m forward.Model, ps *model.ParamSet, obs []model.Observation, x0 []float64, opts lm.Options) (*RunResult, error) {
	if err := model.ValidateObservations(obs); err != nil {
		return nil, err
	}

	times := model.Times(obs)
	problem := lm.Problem{
		Residual: residualFunc(m, ps, obs, times),
	}
	if gm, ok := m.(forward.GradModel); ok {
		problem.Jacobian = jacobianFunc(gm, ps, obs, times)
	}

	slog.Debug("calibration run", "model", m.Name(), "dim", ps.Dim(), "observations", len(obs))

	start := time.Now()
	result, err := lm.Solve(ctx, problem, x0, opts)
	elapsed := time.Since(start)

	if result == nil {
		return nil, err
	}

	run := &RunResult{
		Model:      m.Name(),
		Names:      ps.Names(),
		X:          result.X,
		FinalCost:  result.Cost,
		Status:     result.Status,
		Iterations: result.Iterations,
		Trace:      result.Trace,
		Elapsed:    elapsed,
	}
	if len(result.Trace) > 0 {
		run.InitialCost = result.Trace[0]
	}
	if params, applyErr := ps.Apply(ps.Clamp(result.X)); applyErr == nil {
		run.Params = params
	}

	return run, err
}

// residualFunc builds the solver's residual closure: project the trial vector
// into bounds, map it onto named parameters, run the forward model and weight
// the differences against the observations.
func residualFunc(m forward.Model, ps *model.ParamSet, obs []model.Observation, times []float64) lm.ResidualFunc {
	return func(x []float64) ([]float64, error) {
		params, err := ps.Apply(ps.Clamp(x))
		if err != nil {
			return nil, err
		}
		pred, err := m.Predict(params, times)
		if err != nil {
			return nil, err
		}
		return model.Residuals(obs, pred)
	}
}

// jacobianFunc chains a model's analytic gradients through the observation
// weights and the log transform of the parameter mapping.
func jacobianFunc(m forward.GradModel, ps *model.ParamSet, obs []model.Observation, times []float64) lm.JacobianFunc {
	adjustable := ps.Adjustable()
	return func(x []float64) ([][]float64, error) {
		clamped := ps.Clamp(x)
		params, err := ps.Apply(clamped)
		if err != nil {
			return nil, err
		}
		_, grad, err := m.PredictGrad(params, times)
		if err != nil {
			return nil, err
		}

		jac := make([][]float64, len(obs))
		for i := range jac {
			jac[i] = make([]float64, len(adjustable))
		}
		for j, p := range adjustable {
			col, ok := grad[p.Name]
			if !ok {
				// Model exposes no derivative for this parameter;
				// a zero column lets damping carry the step.
				continue
			}
			// d(param)/d(x) for log10-scaled parameters.
			chain := 1.0
			if p.Log {
				chain = math.Ln10 * params[p.Name]
			}
			for i, o := range obs {
				jac[i][j] = o.Weight * col[i] * chain
			}
		}
		return jac, nil
	}
}

// costFunc evaluates the sum of squared residuals at a solver-space point,
// mapping evaluation failures to +Inf. Used by the global pre-search stage.
func costFunc(m forward.Model, ps *model.ParamSet, obs []model.Observation) func([]float64) float64 {
	times := model.Times(obs)
	residual := residualFunc(m, ps, obs, times)
	return func(x []float64) float64 {
		r, err := residual(x)
		if err != nil {
			return math.Inf(1)
		}
		sum := 0.0
		for _, v := range r {
			sum += v * v
		}
		return sum
	}
}
