package calib

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"github.com/hydrosolve/gwcalib/internal/forward"
	"github.com/hydrosolve/gwcalib/internal/lm"
	"github.com/hydrosolve/gwcalib/internal/model"
)

// MultistartOptions configures a multi-start calibration.
type MultistartOptions struct {
	// Starts is the number of independent starting points (default 1).
	Starts int

	// Workers bounds the number of concurrent runs (default NumCPU).
	Workers int

	// Seed drives the starting-point sampler.
	Seed int64

	// Patience enables early stopping: after this many completed runs in a
	// row without a Threshold-relative improvement of the best cost, the
	// remaining starts are cancelled. 0 disables.
	Patience int

	// Threshold is the minimum relative improvement that counts as progress.
	Threshold float64

	// Global, if set, replaces the first starting point with the result of
	// a global pre-search over the parameter box. Requires finite bounds.
	Global Optimizer
}

// MultistartResult aggregates the outcome of a multi-start calibration.
type MultistartResult struct {
	// Best is the run with the lowest final cost among usable runs.
	Best *RunResult

	// Runs holds all completed runs in completion order.
	Runs []*RunResult

	// StoppedEarly reports whether the patience budget cancelled the tail.
	StoppedEarly bool
}

// Multistart calibrates from several starting points in parallel. The runs
// share nothing but the (stateless) forward model: each owns its vector,
// damping state and trace, so no locks guard the solver itself.
func Multistart(ctx context.Context, m forward.Model, ps *model.ParamSet, obs []model.Observation, lmOpts lm.Options, msOpts MultistartOptions) (*MultistartResult, error) {
	if err := model.ValidateObservations(obs); err != nil {
		return nil, err
	}

	starts := msOpts.Starts
	if starts <= 0 {
		starts = 1
	}
	workers := msOpts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > starts {
		workers = starts
	}

	points := samplePoints(ps, starts, msOpts.Seed)

	if msOpts.Global != nil {
		lower, upper := ps.Bounds()
		if err := checkFiniteBounds(lower, upper); err != nil {
			slog.Warn("skipping global pre-search", "error", err)
		} else {
			seed, cost := msOpts.Global.Run(costFunc(m, ps, obs), lower, upper, ps.Dim())
			slog.Info("global pre-search complete", "cost", cost)
			points[0] = seed
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	results := make(chan *RunResult, starts)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				run, err := RunFrom(runCtx, m, ps, obs, points[idx], lmOpts)
				if err != nil {
					slog.Warn("calibration start failed", "start", idx, "error", err)
				}
				results <- run
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := 0; i < starts; i++ {
			select {
			case jobs <- i:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	tracker := NewTracker(msOpts.Patience, msOpts.Threshold)
	out := &MultistartResult{}

	for run := range results {
		if run == nil {
			continue
		}
		out.Runs = append(out.Runs, run)

		if usable(run) && !out.StoppedEarly {
			if tracker.Update(run.FinalCost) {
				slog.Info("multistart early stop",
					"completed", len(out.Runs),
					"best_cost", tracker.Best(),
				)
				out.StoppedEarly = true
				cancel()
			}
		}
	}

	for _, run := range out.Runs {
		if !usable(run) {
			continue
		}
		if out.Best == nil || run.FinalCost < out.Best.FinalCost {
			out.Best = run
		}
	}
	if out.Best == nil {
		return out, fmt.Errorf("no calibration start produced a usable result")
	}

	slog.Info("multistart complete",
		"starts", starts,
		"completed", len(out.Runs),
		"best_cost", out.Best.FinalCost,
		"best_status", out.Best.Status,
	)
	return out, nil
}

// usable filters runs whose final point is meaningful for best-of selection.
func usable(run *RunResult) bool {
	switch run.Status {
	case lm.StatusConverged, lm.StatusMaxIterations:
		return true
	default:
		return false
	}
}

// samplePoints draws solver-space starting points. The first point is always
// the configured initial vector; the rest are uniform in the bounds where
// finite (log-uniform in original space for log-scaled parameters) and unit
// perturbations of the initial value where not.
func samplePoints(ps *model.ParamSet, starts int, seed int64) [][]float64 {
	x0 := ps.Vector()
	lower, upper := ps.Bounds()
	rng := rand.New(rand.NewSource(seed))

	points := make([][]float64, starts)
	points[0] = x0
	for i := 1; i < starts; i++ {
		x := make([]float64, len(x0))
		for j := range x {
			if !math.IsInf(lower[j], 0) && !math.IsInf(upper[j], 0) {
				x[j] = lower[j] + rng.Float64()*(upper[j]-lower[j])
			} else {
				x[j] = x0[j] + (2*rng.Float64() - 1)
			}
		}
		points[i] = x
	}
	return points
}
