package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/hydrosolve/gwcalib/internal/store"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Query server status or a specific run",
	Long: `Queries the server for run status information.
If no run-id is provided, lists all runs.
If run-id is provided, shows detailed status and the cost trace for that run.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		// List all runs
		url := fmt.Sprintf("%s/api/v1/runs", serverURL)
		return listServerRuns(url)
	}

	// Get specific run status
	runID := args[0]
	url := fmt.Sprintf("%s/api/v1/runs/%s/status", serverURL, runID)
	return getRunStatus(url, runID)
}

func listServerRuns(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var runs []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	fmt.Printf("Found %d run(s):\n\n", len(runs))
	for _, run := range runs {
		fmt.Printf("Run ID: %s\n", run["id"])
		fmt.Printf("  State: %s\n", run["state"])
		if config, ok := run["config"].(map[string]any); ok {
			fmt.Printf("  Case: %s\n", config["casePath"])
		}
		if cost, ok := run["bestCost"].(float64); ok && cost > 0 {
			fmt.Printf("  Cost: %.6g -> %.6g\n", run["initialCost"], cost)
		}
		fmt.Println()
	}

	return nil
}

func getRunStatus(url, runID string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("run not found: %s", runID)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	// Display status
	fmt.Printf("Run: %s\n", status["id"])
	fmt.Printf("State: %s\n", status["state"])
	if model, ok := status["model"].(string); ok && model != "" {
		fmt.Printf("Model: %s\n", model)
	}
	fmt.Println()

	if config, ok := status["config"].(map[string]any); ok {
		fmt.Println("Configuration:")
		fmt.Printf("  Case: %s\n", config["casePath"])
		if starts, ok := config["starts"].(float64); ok && starts > 0 {
			fmt.Printf("  Starts: %v\n", starts)
		}
		fmt.Println()
	}

	fmt.Println("Progress:")
	if initial, ok := status["initialCost"].(float64); ok && initial > 0 {
		fmt.Printf("  Initial Cost: %.6g\n", initial)
	}
	if best, ok := status["bestCost"].(float64); ok && best > 0 {
		fmt.Printf("  Best Cost: %.6g\n", best)
		if initial, ok := status["initialCost"].(float64); ok && initial > 0 {
			improvement := initial - best
			fmt.Printf("  Improvement: %.6g (%.1f%%)\n", improvement, improvement/initial*100)
		}
	}
	if iters, ok := status["iterations"].(float64); ok {
		fmt.Printf("  Iterations: %.0f\n", iters)
	}
	if elapsed, ok := status["elapsed"].(float64); ok {
		fmt.Printf("  Elapsed: %s\n", time.Duration(elapsed*float64(time.Second)).Round(time.Millisecond))
	}
	if errMsg, ok := status["error"].(string); ok && errMsg != "" {
		fmt.Printf("\nError: %s\n", errMsg)
	}

	return printServerTrace(runID)
}

// printServerTrace fetches the run's trace from the server and renders it as
// a terminal chart. Runs without a trace are not an error.
func printServerTrace(runID string) error {
	resp, err := http.Get(fmt.Sprintf("%s/api/v1/runs/%s/trace", serverURL, runID))
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var entries []store.TraceEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil
	}
	if len(entries) < 2 {
		return nil
	}

	costs := make([]float64, len(entries))
	for i, e := range entries {
		costs[i] = e.Cost
	}

	fmt.Println("\nCost trace:")
	fmt.Println(asciigraph.Plot(costs,
		asciigraph.Height(10),
		asciigraph.Width(60),
		asciigraph.Caption(fmt.Sprintf("%d iterations", len(costs)-1)),
	))
	return nil
}
