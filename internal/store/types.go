package store

import (
	"fmt"
	"time"
)

// RunConfig is the persisted copy of how a calibration run was launched.
// It lives here rather than in the server package to avoid import cycles.
type RunConfig struct {
	CasePath           string `json:"casePath"`
	Starts             int    `json:"starts,omitempty"`
	Workers            int    `json:"workers,omitempty"`
	Seed               int64  `json:"seed,omitempty"`
	Global             bool   `json:"global,omitempty"`
	CheckpointInterval int    `json:"checkpointInterval,omitempty"` // seconds, 0 = disabled
}

// RunRecord is the persisted outcome of a calibration run. Only the best
// parameter vector and summary figures are saved; solver-internal state
// (damping, Jacobian) is cheap to rebuild, so seeding a new run simply
// restarts the solver from the stored vector.
type RunRecord struct {
	// RunID is the unique identifier for this calibration run.
	RunID string `json:"runId"`

	// Model is the forward model name.
	Model string `json:"model"`

	// ParamNames lists the adjustable parameters in vector order.
	ParamNames []string `json:"paramNames"`

	// BestParams is the solver-space vector that achieved FinalCost.
	BestParams []float64 `json:"bestParams"`

	// InitialCost and FinalCost bracket the cost improvement.
	InitialCost float64 `json:"initialCost"`
	FinalCost   float64 `json:"finalCost"`

	// Status is the solver termination status ("converged", ...).
	Status string `json:"status"`

	// Iterations is the number of accepted solver iterations.
	Iterations int `json:"iterations"`

	// Timestamp records when this record was written.
	Timestamp time.Time `json:"timestamp"`

	// Config holds the launch configuration, used to check compatibility
	// when a stored run seeds a new one.
	Config RunConfig `json:"config"`
}

// RunInfo is record metadata without the parameter vector, for listings.
type RunInfo struct {
	RunID      string    `json:"runId"`
	Model      string    `json:"model"`
	FinalCost  float64   `json:"finalCost"`
	Status     string    `json:"status"`
	Iterations int       `json:"iterations"`
	Timestamp  time.Time `json:"timestamp"`
	CasePath   string    `json:"casePath"`
}

// NewRunRecord assembles a persistable record from run state.
func NewRunRecord(runID, modelName string, paramNames []string, bestParams []float64, initialCost, finalCost float64, status string, iterations int, config RunConfig) *RunRecord {
	return &RunRecord{
		RunID:       runID,
		Model:       modelName,
		ParamNames:  paramNames,
		BestParams:  bestParams,
		InitialCost: initialCost,
		FinalCost:   finalCost,
		Status:      status,
		Iterations:  iterations,
		Timestamp:   time.Now(),
		Config:      config,
	}
}

// ToInfo strips the record down to listing metadata.
func (r *RunRecord) ToInfo() RunInfo {
	return RunInfo{
		RunID:      r.RunID,
		Model:      r.Model,
		FinalCost:  r.FinalCost,
		Status:     r.Status,
		Iterations: r.Iterations,
		Timestamp:  r.Timestamp,
		CasePath:   r.Config.CasePath,
	}
}

// Validate checks the record before it is persisted or after it is loaded.
func (r *RunRecord) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if r.Model == "" {
		return &ValidationError{Field: "Model", Reason: "cannot be empty"}
	}
	if len(r.BestParams) == 0 {
		return &ValidationError{Field: "BestParams", Reason: "cannot be empty"}
	}
	if len(r.ParamNames) != len(r.BestParams) {
		return &ValidationError{
			Field:  "ParamNames",
			Reason: fmt.Sprintf("length mismatch: %d names for %d parameters", len(r.ParamNames), len(r.BestParams)),
		}
	}
	if r.Status == "" {
		return &ValidationError{Field: "Status", Reason: "cannot be empty"}
	}
	if r.Iterations < 0 {
		return &ValidationError{Field: "Iterations", Reason: "cannot be negative"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents an invalid run record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks whether this record can seed a run of the given
// configuration: the case file, model and parameter layout must match.
func (r *RunRecord) IsCompatible(config RunConfig, modelName string, paramNames []string) error {
	if r.Config.CasePath != config.CasePath {
		return &CompatibilityError{Field: "CasePath", Expected: r.Config.CasePath, Actual: config.CasePath}
	}
	if r.Model != modelName {
		return &CompatibilityError{Field: "Model", Expected: r.Model, Actual: modelName}
	}
	if len(r.ParamNames) != len(paramNames) {
		return &CompatibilityError{
			Field:    "ParamNames",
			Expected: fmt.Sprintf("%d", len(r.ParamNames)),
			Actual:   fmt.Sprintf("%d", len(paramNames)),
		}
	}
	for i := range paramNames {
		if r.ParamNames[i] != paramNames[i] {
			return &CompatibilityError{Field: "ParamNames", Expected: r.ParamNames[i], Actual: paramNames[i]}
		}
	}
	return nil
}

// CompatibilityError represents a stored run that does not match the case it
// is asked to seed.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
