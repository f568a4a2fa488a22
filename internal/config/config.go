package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hydrosolve/gwcalib/internal/forward"
	"github.com/hydrosolve/gwcalib/internal/lm"
	"github.com/hydrosolve/gwcalib/internal/model"
)

// Case is a calibration case file: which forward model to run, which
// parameters to adjust, which observations to fit and how to drive the
// solver. All run-scoped knobs live here; there is no ambient global state.
type Case struct {
	Name         string              `yaml:"name"`
	Model        string              `yaml:"model"`
	Meta         map[string]float64  `yaml:"meta"`
	Parameters   []model.Param       `yaml:"parameters"`
	Observations []model.Observation `yaml:"observations"`
	Solver       SolverConfig        `yaml:"solver"`
	Multistart   MultistartConfig    `yaml:"multistart"`
}

// SolverConfig mirrors lm.Options in YAML form. Zero values fall back to the
// solver defaults.
type SolverConfig struct {
	MaxIterations  int     `yaml:"max_iterations"`
	TolX           float64 `yaml:"tol_x"`
	TolG           float64 `yaml:"tol_g"`
	LambdaInit     float64 `yaml:"lambda_init"`
	LambdaIncrease float64 `yaml:"lambda_increase"`
	LambdaDecrease float64 `yaml:"lambda_decrease"`
	LambdaCeiling  float64 `yaml:"lambda_ceiling"`
}

// MultistartConfig configures the optional multi-start stage.
type MultistartConfig struct {
	Starts      int     `yaml:"starts"`
	Workers     int     `yaml:"workers"`
	Seed        int64   `yaml:"seed"`
	Patience    int     `yaml:"patience"`
	Threshold   float64 `yaml:"threshold"`
	Global      bool    `yaml:"global"`
	GlobalIters int     `yaml:"global_iters"`
	GlobalPop   int     `yaml:"global_pop"`
}

// DefaultCase returns the baseline a case file is decoded over.
func DefaultCase() *Case {
	return &Case{
		Model: "expdecay",
		Multistart: MultistartConfig{
			Starts:      1,
			Seed:        42,
			Threshold:   0.001,
			GlobalIters: 50,
			GlobalPop:   30,
		},
	}
}

// Load reads and validates a case file.
func Load(path string) (*Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read case file: %w", err)
	}

	c := DefaultCase()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse case file: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes a case file.
func Save(path string, c *Case) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal case: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the case for completeness.
func (c *Case) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("case has no model")
	}
	if len(c.Parameters) == 0 {
		return fmt.Errorf("case has no parameters")
	}
	if err := model.ValidateObservations(c.Observations); err != nil {
		return err
	}
	return nil
}

// ParamSet builds the validated parameter set for this case.
func (c *Case) ParamSet() (*model.ParamSet, error) {
	return model.NewParamSet(c.Parameters)
}

// ForwardModel constructs the case's forward model.
func (c *Case) ForwardModel() (forward.Model, error) {
	return forward.New(c.Model, c.Meta)
}

// SolverOptions converts the YAML solver block to solver options, filling
// unset fields with defaults.
func (c *Case) SolverOptions() lm.Options {
	def := lm.DefaultOptions()
	opts := lm.Options{
		MaxIterations:  c.Solver.MaxIterations,
		TolX:           c.Solver.TolX,
		TolG:           c.Solver.TolG,
		LambdaInit:     c.Solver.LambdaInit,
		LambdaIncrease: c.Solver.LambdaIncrease,
		LambdaDecrease: c.Solver.LambdaDecrease,
		LambdaCeiling:  c.Solver.LambdaCeiling,
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}
	if opts.TolX <= 0 {
		opts.TolX = def.TolX
	}
	if opts.TolG <= 0 {
		opts.TolG = def.TolG
	}
	if opts.LambdaInit <= 0 {
		opts.LambdaInit = def.LambdaInit
	}
	if opts.LambdaIncrease <= 1 {
		opts.LambdaIncrease = def.LambdaIncrease
	}
	if opts.LambdaDecrease <= 0 || opts.LambdaDecrease >= 1 {
		opts.LambdaDecrease = def.LambdaDecrease
	}
	if opts.LambdaCeiling <= opts.LambdaInit {
		opts.LambdaCeiling = def.LambdaCeiling
	}
	return opts
}
