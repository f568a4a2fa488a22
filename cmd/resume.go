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
	resumeDataDir  string
	resumeCasePath string
)

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Resume calibration from a stored run",
	Long: `Restarts the solver from a stored run's best parameter vector. The
case file must match the stored run's model and parameter layout; by default
the case path recorded with the run is used.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeDataDir, "data-dir", "./data", "Base directory for run storage")
	resumeCmd.Flags().StringVar(&resumeCasePath, "case", "", "Case file (defaults to the one recorded with the run)")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st, err := store.NewFSStore(resumeDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	record, err := st.LoadRun(runID)
	if err != nil {
		return err
	}

	casePath := resumeCasePath
	if casePath == "" {
		casePath = record.Config.CasePath
	}
	if casePath == "" {
		return fmt.Errorf("run %s has no recorded case file, use --case", runID)
	}

	c, m, ps, err := loadCase(casePath)
	if err != nil {
		return err
	}

	checkConfig := store.RunConfig{CasePath: record.Config.CasePath}
	if resumeCasePath != "" {
		checkConfig.CasePath = resumeCasePath
		record.Config.CasePath = resumeCasePath
	}
	if err := record.IsCompatible(checkConfig, m.Name(), ps.Names()); err != nil {
		return fmt.Errorf("stored run does not match case: %w", err)
	}

	slog.Info("Resuming calibration",
		"run_id", runID, "case", c.Name,
		"from_cost", record.FinalCost, "from_status", record.Status)

	newID := uuid.New().String()
	opts := c.SolverOptions()

	tw, err := store.NewTraceWriter(resumeDataDir, newID, false)
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer tw.Close()
	opts.OnIteration = traceHook(tw)

	result, err := calib.RunFrom(cmd.Context(), m, ps, c.Observations, record.BestParams, opts)
	if result == nil {
		return err
	}
	if err != nil {
		slog.Warn("Calibration ended with error", "error", err, "status", result.Status)
	}

	printRunResult(result)

	if err := saveRunResult(resumeDataDir, newID, casePath, result); err != nil {
		return err
	}
	fmt.Printf("\nResumed run saved as %s\n", newID)

	return nil
}
