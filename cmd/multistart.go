package main

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hydrosolve/gwcalib/internal/calib"
	"github.com/hydrosolve/gwcalib/internal/store"
)

var (
	msCasePath string
	msDataDir  string
	msStarts   int
	msWorkers  int
	msSeed     int64
	msGlobal   bool
	msNoSave   bool
)

var multistartCmd = &cobra.Command{
	Use:   "multistart",
	Short: "Run a multi-start calibration",
	Long: `Calibrates from several starting points in parallel and keeps the best
result. Starting points are sampled inside the parameter bounds; with --global
the first point comes from a mayfly pre-search over the parameter box instead.`,
	RunE: runMultistart,
}

func init() {
	multistartCmd.Flags().StringVar(&msCasePath, "case", "", "Calibration case file (required)")
	multistartCmd.Flags().StringVar(&msDataDir, "data-dir", "./data", "Base directory for run storage")
	multistartCmd.Flags().IntVar(&msStarts, "starts", 0, "Number of starts (overrides the case file)")
	multistartCmd.Flags().IntVar(&msWorkers, "workers", 0, "Concurrent runs (default NumCPU)")
	multistartCmd.Flags().Int64Var(&msSeed, "seed", 0, "Sampling seed (overrides the case file)")
	multistartCmd.Flags().BoolVar(&msGlobal, "global", false, "Seed the first start with a global pre-search")
	multistartCmd.Flags().BoolVar(&msNoSave, "no-save", false, "Do not persist the run record")

	multistartCmd.MarkFlagRequired("case")
	rootCmd.AddCommand(multistartCmd)
}

func runMultistart(cmd *cobra.Command, args []string) error {
	c, m, ps, err := loadCase(msCasePath)
	if err != nil {
		return err
	}

	msOpts := calib.MultistartOptions{
		Starts:    c.Multistart.Starts,
		Workers:   c.Multistart.Workers,
		Seed:      c.Multistart.Seed,
		Patience:  c.Multistart.Patience,
		Threshold: c.Multistart.Threshold,
	}
	if msStarts > 0 {
		msOpts.Starts = msStarts
	}
	if msWorkers > 0 {
		msOpts.Workers = msWorkers
	}
	if msSeed != 0 {
		msOpts.Seed = msSeed
	}
	if msGlobal || c.Multistart.Global {
		msOpts.Global = calib.NewMayfly(c.Multistart.GlobalIters, c.Multistart.GlobalPop, msOpts.Seed)
	}

	slog.Info("Starting multi-start calibration",
		"case", c.Name, "model", m.Name(),
		"starts", msOpts.Starts, "global", msOpts.Global != nil)

	ms, err := calib.Multistart(cmd.Context(), m, ps, c.Observations, c.SolverOptions(), msOpts)
	if err != nil {
		return err
	}

	if ms.StoppedEarly {
		fmt.Printf("Stopped early after %d of %d starts\n", len(ms.Runs), msOpts.Starts)
	} else {
		fmt.Printf("Completed %d starts\n", len(ms.Runs))
	}
	printRunResult(ms.Best)

	if !msNoSave {
		runID := uuid.New().String()
		if err := saveRunResult(msDataDir, runID, msCasePath, ms.Best); err != nil {
			return err
		}
		if err := saveBestTrace(msDataDir, runID, ms.Best); err != nil {
			slog.Warn("Failed to save trace", "run_id", runID, "error", err)
		}
		fmt.Printf("\nBest run saved as %s\n", runID)
	}

	return nil
}

// saveBestTrace backfills the trace file from the winning run's cost history.
func saveBestTrace(dataDir, runID string, best *calib.RunResult) error {
	if len(best.Trace) == 0 {
		return nil
	}
	tw, err := store.NewTraceWriter(dataDir, runID, false)
	if err != nil {
		return err
	}
	defer tw.Close()
	for i, cost := range best.Trace {
		if err := tw.Write(store.TraceEntry{Iteration: i, Cost: cost}); err != nil {
			return err
		}
	}
	return nil
}
