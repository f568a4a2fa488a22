package model

import (
	"fmt"
	"math"
)

// Parameter status values. A fixed parameter keeps its initial value and is
// excluded from the optimization vector.
const (
	StatusOpt   = "opt"
	StatusFixed = "fixed"
)

// Param is one calibration parameter. It replaces the nested key/value
// dictionaries of older calibration tools with an explicit typed record;
// absent fields decode to the conventional defaults (Min -Inf, Max +Inf,
// Init 0, Status "opt").
type Param struct {
	Name   string  `yaml:"name"`
	Init   float64 `yaml:"init"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
	Log    bool    `yaml:"log"`
	Status string  `yaml:"status"`
}

// UnmarshalYAML decodes a parameter, applying the defaulting conventions for
// keys that are absent from the document.
func (p *Param) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type raw struct {
		Name   string   `yaml:"name"`
		Init   *float64 `yaml:"init"`
		Min    *float64 `yaml:"min"`
		Max    *float64 `yaml:"max"`
		Log    bool     `yaml:"log"`
		Status string   `yaml:"status"`
	}

	var r raw
	if err := unmarshal(&r); err != nil {
		return err
	}

	p.Name = r.Name
	p.Log = r.Log

	p.Init = 0
	if r.Init != nil {
		p.Init = *r.Init
	}
	p.Min = math.Inf(-1)
	if r.Min != nil {
		p.Min = *r.Min
	}
	p.Max = math.Inf(1)
	if r.Max != nil {
		p.Max = *r.Max
	}
	p.Status = StatusOpt
	if r.Status != "" {
		p.Status = r.Status
	}

	return nil
}

// Adjustable reports whether the parameter takes part in the optimization.
func (p Param) Adjustable() bool {
	return p.Status != StatusFixed
}

// Validate checks the parameter definition for internal consistency.
func (p Param) Validate() error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Reason: "cannot be empty"}
	}
	if p.Status != StatusOpt && p.Status != StatusFixed {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", p.Status)}
	}
	if p.Min > p.Max {
		return &ValidationError{Field: "min", Reason: "lower bound exceeds upper bound"}
	}
	if p.Init < p.Min || p.Init > p.Max {
		return &ValidationError{Field: "init", Reason: "initial value outside bounds"}
	}
	if p.Log {
		if p.Init <= 0 {
			return &ValidationError{Field: "init", Reason: "log-transformed parameter needs a positive initial value"}
		}
		if !math.IsInf(p.Min, -1) && p.Min <= 0 {
			return &ValidationError{Field: "min", Reason: "log-transformed parameter needs a positive lower bound"}
		}
	}
	return nil
}

// ValidationError describes an invalid parameter or observation definition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// ParamSet is an ordered collection of parameters. The order defines the
// layout of the solver-space vector.
type ParamSet struct {
	Params []Param
}

// NewParamSet validates the definitions and returns a set.
func NewParamSet(params []Param) (*ParamSet, error) {
	seen := make(map[string]bool, len(params))
	adjustable := 0
	for _, p := range params {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate parameter name %q", p.Name)
		}
		seen[p.Name] = true
		if p.Adjustable() {
			adjustable++
		}
	}
	if adjustable == 0 {
		return nil, fmt.Errorf("no adjustable parameters")
	}
	return &ParamSet{Params: params}, nil
}

// Adjustable returns the parameters that take part in the optimization,
// in set order.
func (ps *ParamSet) Adjustable() []Param {
	out := make([]Param, 0, len(ps.Params))
	for _, p := range ps.Params {
		if p.Adjustable() {
			out = append(out, p)
		}
	}
	return out
}

// Dim returns the solver-space dimension.
func (ps *ParamSet) Dim() int {
	return len(ps.Adjustable())
}

// Vector returns the initial solver-space vector: one entry per adjustable
// parameter, log10-transformed where the parameter is log-scaled.
func (ps *ParamSet) Vector() []float64 {
	adj := ps.Adjustable()
	x := make([]float64, len(adj))
	for i, p := range adj {
		x[i] = toSolver(p, p.Init)
	}
	return x
}

// Bounds returns solver-space lower and upper bounds for the adjustable
// parameters.
func (ps *ParamSet) Bounds() (lower, upper []float64) {
	adj := ps.Adjustable()
	lower = make([]float64, len(adj))
	upper = make([]float64, len(adj))
	for i, p := range adj {
		lower[i] = toSolver(p, p.Min)
		upper[i] = toSolver(p, p.Max)
	}
	return lower, upper
}

// Clamp projects a solver-space vector into bounds, element by element.
func (ps *ParamSet) Clamp(x []float64) []float64 {
	lower, upper := ps.Bounds()
	out := make([]float64, len(x))
	for i := range x {
		out[i] = math.Max(lower[i], math.Min(upper[i], x[i]))
	}
	return out
}

// Apply maps a solver-space vector back onto named parameter values,
// including fixed parameters at their initial values.
func (ps *ParamSet) Apply(x []float64) (map[string]float64, error) {
	if len(x) != ps.Dim() {
		return nil, fmt.Errorf("vector length %d does not match %d adjustable parameters", len(x), ps.Dim())
	}

	values := make(map[string]float64, len(ps.Params))
	i := 0
	for _, p := range ps.Params {
		if p.Adjustable() {
			values[p.Name] = fromSolver(p, x[i])
			i++
		} else {
			values[p.Name] = p.Init
		}
	}
	return values, nil
}

// Names returns the adjustable parameter names in vector order.
func (ps *ParamSet) Names() []string {
	adj := ps.Adjustable()
	names := make([]string, len(adj))
	for i, p := range adj {
		names[i] = p.Name
	}
	return names
}

func toSolver(p Param, v float64) float64 {
	if p.Log {
		if math.IsInf(v, -1) || v <= 0 {
			return math.Inf(-1)
		}
		if math.IsInf(v, 1) {
			return math.Inf(1)
		}
		return math.Log10(v)
	}
	return v
}

func fromSolver(p Param, v float64) float64 {
	if p.Log {
		return math.Pow(10, v)
	}
	return v
}
