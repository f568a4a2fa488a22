package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hydrosolve/gwcalib/internal/calib"
	"github.com/hydrosolve/gwcalib/internal/config"
	"github.com/hydrosolve/gwcalib/internal/lm"
	"github.com/hydrosolve/gwcalib/internal/store"
)

// runJob executes a calibration run in the background.
// If runStore is not nil, the outcome is persisted as a run record; with
// checkpointInterval > 0 intermediate records are saved periodically so a
// crashed server leaves a usable best-so-far behind.
func runJob(ctx context.Context, jm *JobManager, runStore store.Store, dataDir, jobID string) error {
	// Get the job
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	// Update state to running
	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}

	slog.Info("Starting run", "run_id", jobID, "case", job.Config.CasePath)

	// Load the calibration case
	c, err := config.Load(job.Config.CasePath)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to load case: %w", err))
		return err
	}

	m, err := c.ForwardModel()
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	ps, err := c.ParamSet()
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	jm.UpdateJob(jobID, func(j *Job) {
		j.Model = m.Name()
		j.ParamNames = ps.Names()
	})

	slog.Info("Loaded case", "run_id", jobID, "model", m.Name(),
		"dim", ps.Dim(), "observations", len(c.Observations))

	starts := job.Config.Starts
	if starts <= 0 {
		starts = c.Multistart.Starts
	}

	// For a single-start run the trace mirrors every accepted iteration; for
	// a multi-start run the concurrent workers would interleave, so the best
	// run's cost trace is written after the fact instead.
	var tw *store.TraceWriter
	if dataDir != "" && starts <= 1 {
		tw, err = store.NewTraceWriter(dataDir, jobID, false)
		if err != nil {
			slog.Warn("Trace disabled", "run_id", jobID, "error", err)
			tw = nil
		} else {
			defer tw.Close()
		}
	}

	opts := c.SolverOptions()
	opts.OnIteration = func(rec lm.IterationRecord) {
		jm.UpdateJob(jobID, func(j *Job) {
			recordProgress(j, rec)
		})
		if tw != nil {
			tw.Write(store.TraceEntry{
				Iteration: rec.Iteration,
				Cost:      rec.Cost,
				Lambda:    rec.Lambda,
				GradNorm:  rec.GradNorm,
				StepNorm:  rec.StepNorm,
			})
		}
	}

	// Check for cancellation before starting expensive operation
	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	// Start progress monitoring goroutine
	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, progressDone)

	// Start checkpoint monitoring goroutine if enabled. The done channel is
	// closed exactly once after the run, whether or not the monitor started.
	checkpointDone := make(chan struct{})
	if runStore != nil && job.Config.CheckpointInterval > 0 {
		go monitorCheckpoints(ctx, jm, runStore, jobID, checkpointDone)
	}

	start := time.Now()
	var best *calib.RunResult
	var runErr error

	if starts > 1 {
		msOpts := multistartOptions(c, job.Config, starts)
		var ms *calib.MultistartResult
		ms, runErr = calib.Multistart(ctx, m, ps, c.Observations, opts, msOpts)
		if ms != nil {
			best = ms.Best
		}
	} else {
		best, runErr = calib.Run(ctx, m, ps, c.Observations, opts)
	}

	close(progressDone)
	close(checkpointDone)
	elapsed := time.Since(start)

	if best == nil || (runErr != nil && best.Status == lm.StatusFailed) {
		if runErr == nil {
			runErr = fmt.Errorf("calibration produced no result")
		}
		markJobFailed(jm, jobID, runErr)
		return runErr
	}

	if best.Status == lm.StatusCancelled {
		markJobCancelled(jm, jobID)
		return context.Canceled
	}

	// Update job with results
	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.BestParams = best.X
		j.BestCost = best.FinalCost
		j.InitialCost = best.InitialCost
		j.Iterations = best.Iterations
		j.Status = string(best.Status)
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	slog.Info("Run completed",
		"run_id", jobID,
		"elapsed", elapsed,
		"initial_cost", best.InitialCost,
		"best_cost", best.FinalCost,
		"status", best.Status,
	)

	if runStore != nil {
		if err := persistRun(runStore, dataDir, jobID, job.Config, best, starts > 1); err != nil {
			slog.Error("Failed to persist run", "run_id", jobID, "error", err)
		}
	}

	// Broadcast final completion event
	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     StateCompleted,
		Iteration: best.Iterations,
		BestCost:  best.FinalCost,
		Timestamp: time.Now(),
	})

	return nil
}

// recordProgress folds one solver iteration record into the job. Set-once
// flags mark the cost fields as populated, so a run whose true initial or
// best cost is zero is not mistaken for an unstarted one. For multi-start
// runs the cheapest values across starts win.
func recordProgress(j *Job, rec lm.IterationRecord) {
	if rec.Iteration == 0 && (!j.initialCostSet || rec.Cost < j.InitialCost) {
		j.InitialCost = rec.Cost
		j.initialCostSet = true
	}
	if rec.Iteration > j.Iterations {
		j.Iterations = rec.Iteration
	}
	if !j.bestCostSet || rec.Cost < j.BestCost {
		j.BestCost = rec.Cost
		j.bestCostSet = true
	}
}

// multistartOptions merges the case's multistart block with per-request
// overrides from the launch config.
func multistartOptions(c *config.Case, rc RunConfig, starts int) calib.MultistartOptions {
	msOpts := calib.MultistartOptions{
		Starts:    starts,
		Workers:   c.Multistart.Workers,
		Seed:      c.Multistart.Seed,
		Patience:  c.Multistart.Patience,
		Threshold: c.Multistart.Threshold,
	}
	if rc.Workers > 0 {
		msOpts.Workers = rc.Workers
	}
	if rc.Seed != 0 {
		msOpts.Seed = rc.Seed
	}
	if rc.Global || c.Multistart.Global {
		msOpts.Global = calib.NewMayfly(c.Multistart.GlobalIters, c.Multistart.GlobalPop, msOpts.Seed)
	}
	return msOpts
}

// persistRun writes the final run record, and for multi-start runs backfills
// the trace from the winning run's cost history.
func persistRun(runStore store.Store, dataDir, jobID string, rc RunConfig, best *calib.RunResult, multistart bool) error {
	record := store.NewRunRecord(
		jobID,
		best.Model,
		best.Names,
		best.X,
		best.InitialCost,
		best.FinalCost,
		string(best.Status),
		best.Iterations,
		rc,
	)
	if err := runStore.SaveRun(jobID, record); err != nil {
		return err
	}

	if multistart && dataDir != "" && len(best.Trace) > 0 {
		tw, err := store.NewTraceWriter(dataDir, jobID, false)
		if err != nil {
			return err
		}
		defer tw.Close()
		for i, cost := range best.Trace {
			if err := tw.Write(store.TraceEntry{Iteration: i, Cost: cost}); err != nil {
				return err
			}
		}
	}
	return nil
}

// monitorProgress periodically broadcasts progress events during calibration
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond) // Throttle to 2 updates per second
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Get current job state
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}

			// Broadcast progress event
			jm.broadcaster.Broadcast(ProgressEvent{
				JobID:     jobID,
				State:     job.State,
				Iteration: job.Iterations,
				BestCost:  job.BestCost,
				Timestamp: time.Now(),
			})
		}
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Run failed", "run_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Run cancelled", "run_id", jobID)
}

// monitorCheckpoints periodically saves run records during calibration
func monitorCheckpoints(ctx context.Context, jm *JobManager, runStore store.Store, jobID string, done chan struct{}) {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return
	}

	interval := time.Duration(job.Config.CheckpointInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveCheckpoint(jm, runStore, jobID); err != nil {
				slog.Error("Failed to save checkpoint", "run_id", jobID, "error", err)
			}
		}
	}
}

// saveCheckpoint persists the current best-so-far as a run record
func saveCheckpoint(jm *JobManager, runStore store.Store, jobID string) error {
	// Get current job state
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	// The best vector is only known once the run finishes; until then the
	// checkpoint carries cost progress with the initial names.
	if job.Model == "" || len(job.ParamNames) == 0 {
		slog.Debug("Skipping checkpoint, case not loaded yet", "run_id", jobID)
		return nil
	}

	params := job.BestParams
	if len(params) == 0 {
		params = make([]float64, len(job.ParamNames))
	}

	record := store.NewRunRecord(
		jobID,
		job.Model,
		job.ParamNames,
		params,
		job.InitialCost,
		job.BestCost,
		"running",
		job.Iterations,
		job.Config,
	)

	if err := runStore.SaveRun(jobID, record); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Info("Checkpoint saved",
		"run_id", jobID,
		"iteration", job.Iterations,
		"best_cost", job.BestCost,
	)
	return nil
}
