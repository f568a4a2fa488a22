package main

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hydrosolve/gwcalib/internal/calib"
	"github.com/hydrosolve/gwcalib/internal/config"
	"github.com/hydrosolve/gwcalib/internal/forward"
	"github.com/hydrosolve/gwcalib/internal/lm"
	"github.com/hydrosolve/gwcalib/internal/model"
	"github.com/hydrosolve/gwcalib/internal/store"
)

var (
	casePath string
	dataDir  string
	noSave   bool
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Run a single calibration",
	Long: `Fits the case's forward model to its observations with the
Levenberg-Marquardt solver, starting from the configured initial values.
The run record and iteration trace are saved under the data directory.`,
	RunE: runCalibrate,
}

func init() {
	calibrateCmd.Flags().StringVar(&casePath, "case", "", "Calibration case file (required)")
	calibrateCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Base directory for run storage")
	calibrateCmd.Flags().BoolVar(&noSave, "no-save", false, "Do not persist the run record")

	calibrateCmd.MarkFlagRequired("case")
	rootCmd.AddCommand(calibrateCmd)
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	c, m, ps, err := loadCase(casePath)
	if err != nil {
		return err
	}

	slog.Info("Starting calibration", "case", c.Name, "model", m.Name(), "dim", ps.Dim())

	runID := uuid.New().String()
	opts := c.SolverOptions()

	var tw *store.TraceWriter
	if !noSave {
		tw, err = store.NewTraceWriter(dataDir, runID, false)
		if err != nil {
			return fmt.Errorf("failed to open trace: %w", err)
		}
		defer tw.Close()
		opts.OnIteration = traceHook(tw)
	}

	result, err := calib.Run(cmd.Context(), m, ps, c.Observations, opts)
	if result == nil {
		return err
	}
	if err != nil {
		slog.Warn("Calibration ended with error", "error", err, "status", result.Status)
	}

	printRunResult(result)

	if !noSave {
		if err := saveRunResult(dataDir, runID, casePath, result); err != nil {
			return err
		}
		fmt.Printf("\nRun saved as %s\n", runID)
	}

	return nil
}

// loadCase loads a case file and builds its model and parameter set.
func loadCase(path string) (*config.Case, forward.Model, *model.ParamSet, error) {
	c, err := config.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}
	m, err := c.ForwardModel()
	if err != nil {
		return nil, nil, nil, err
	}
	ps, err := c.ParamSet()
	if err != nil {
		return nil, nil, nil, err
	}
	return c, m, ps, nil
}

// traceHook adapts solver iteration records to trace entries.
func traceHook(tw *store.TraceWriter) func(lm.IterationRecord) {
	return func(rec lm.IterationRecord) {
		tw.Write(store.TraceEntry{
			Iteration: rec.Iteration,
			Cost:      rec.Cost,
			Lambda:    rec.Lambda,
			GradNorm:  rec.GradNorm,
			StepNorm:  rec.StepNorm,
		})
	}
}

// saveRunResult persists a completed run as a run record.
func saveRunResult(dataDir, runID, casePath string, result *calib.RunResult) error {
	st, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	record := store.NewRunRecord(
		runID,
		result.Model,
		result.Names,
		result.X,
		result.InitialCost,
		result.FinalCost,
		string(result.Status),
		result.Iterations,
		store.RunConfig{CasePath: casePath},
	)
	if err := st.SaveRun(runID, record); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// printRunResult writes a calibration summary to stdout.
func printRunResult(result *calib.RunResult) {
	fmt.Printf("Status: %s (%d iterations, %s)\n", result.Status, result.Iterations,
		result.Elapsed.Round(time.Millisecond))
	fmt.Printf("Cost: %.6g -> %.6g\n", result.InitialCost, result.FinalCost)

	if len(result.Params) == 0 {
		return
	}

	names := make([]string, 0, len(result.Params))
	for name := range result.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PARAMETER\tVALUE")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%.6g\n", name, result.Params[name])
	}
	w.Flush()
}
