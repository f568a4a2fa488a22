package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

const sampleCase = `
name: pump-test-1
model: theis
meta:
  q: 0.02
  r: 50
parameters:
  - name: T
    init: 0.001
    min: 1.0e-5
    max: 1
    log: true
  - name: S
    init: 1.0e-5
    min: 1.0e-7
    max: 0.1
    log: true
observations:
  - name: s1
    time: 600
    value: 0.18
  - name: s2
    time: 3600
    value: 0.35
    weight: 2
solver:
  max_iterations: 200
  tol_g: 1.0e-12
multistart:
  starts: 8
  workers: 4
  patience: 3
`

func writeCase(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "case.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write case file: %v", err)
	}
	return path
}

func TestLoadCase(t *testing.T) {
	c, err := Load(writeCase(t, sampleCase))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.Name != "pump-test-1" {
		t.Errorf("expected name pump-test-1, got %q", c.Name)
	}
	if c.Model != "theis" {
		t.Errorf("expected model theis, got %q", c.Model)
	}
	if c.Meta["q"] != 0.02 {
		t.Errorf("expected q 0.02, got %g", c.Meta["q"])
	}
	if len(c.Parameters) != 2 || len(c.Observations) != 2 {
		t.Fatalf("expected 2 parameters and 2 observations, got %d/%d",
			len(c.Parameters), len(c.Observations))
	}
	if !c.Parameters[0].Log {
		t.Error("expected T to be log-scaled")
	}
	if c.Observations[0].Weight != 1 {
		t.Errorf("absent weight should default to 1, got %g", c.Observations[0].Weight)
	}
	if c.Observations[1].Weight != 2 {
		t.Errorf("expected weight 2, got %g", c.Observations[1].Weight)
	}
}

func TestLoadCaseMultistartDefaults(t *testing.T) {
	c, err := Load(writeCase(t, sampleCase))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Explicit values from the file.
	if c.Multistart.Starts != 8 || c.Multistart.Workers != 4 || c.Multistart.Patience != 3 {
		t.Errorf("multistart block not decoded: %+v", c.Multistart)
	}
	// Defaults merged underneath.
	if c.Multistart.Seed != 42 {
		t.Errorf("expected default seed 42, got %d", c.Multistart.Seed)
	}
	if c.Multistart.Threshold != 0.001 {
		t.Errorf("expected default threshold 0.001, got %g", c.Multistart.Threshold)
	}
}

func TestSolverOptions(t *testing.T) {
	c, err := Load(writeCase(t, sampleCase))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	opts := c.SolverOptions()
	if opts.MaxIterations != 200 {
		t.Errorf("expected max iterations 200, got %d", opts.MaxIterations)
	}
	if opts.TolG != 1e-12 {
		t.Errorf("expected tol_g 1e-12, got %g", opts.TolG)
	}
	// Unset fields fall back to defaults.
	if opts.TolX <= 0 || opts.LambdaInit <= 0 || opts.LambdaIncrease <= 1 {
		t.Errorf("defaults not applied: %+v", opts)
	}
}

func TestCaseBuildsModelAndParamSet(t *testing.T) {
	c, err := Load(writeCase(t, sampleCase))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m, err := c.ForwardModel()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name() != "theis" {
		t.Errorf("expected theis model, got %q", m.Name())
	}

	ps, err := c.ParamSet()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ps.Dim() != 2 {
		t.Errorf("expected 2 adjustable parameters, got %d", ps.Dim())
	}
	x := ps.Vector()
	if math.Abs(x[0]-(-3)) > 1e-12 {
		t.Errorf("expected log10(0.001) = -3, got %g", x[0])
	}
}

func TestLoadCaseValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing model", "model: \"\"\nparameters:\n  - name: a\n    init: 1\nobservations:\n  - {name: o, time: 1, value: 1}\n"},
		{"no parameters", "model: expdecay\nobservations:\n  - {name: o, time: 1, value: 1}\n"},
		{"no observations", "model: expdecay\nparameters:\n  - name: a\n    init: 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeCase(t, tt.doc)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadCaseMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	c, err := Load(writeCase(t, sampleCase))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "saved.yaml")
	if err := Save(path, c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Name != c.Name || loaded.Model != c.Model {
		t.Errorf("round trip lost fields: %+v", loaded)
	}
}
