package model

import (
	"math"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParamYAMLDefaults(t *testing.T) {
	doc := `
name: transmissivity
init: 0.005
`
	var p Param
	if err := yaml.Unmarshal([]byte(doc), &p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.Name != "transmissivity" {
		t.Errorf("expected name transmissivity, got %q", p.Name)
	}
	if p.Init != 0.005 {
		t.Errorf("expected init 0.005, got %g", p.Init)
	}
	if !math.IsInf(p.Min, -1) {
		t.Errorf("absent min should default to -Inf, got %g", p.Min)
	}
	if !math.IsInf(p.Max, 1) {
		t.Errorf("absent max should default to +Inf, got %g", p.Max)
	}
	if p.Status != StatusOpt {
		t.Errorf("absent status should default to opt, got %q", p.Status)
	}
	if p.Log {
		t.Error("absent log flag should default to false")
	}
}

func TestParamValidate(t *testing.T) {
	tests := []struct {
		name    string
		param   Param
		wantErr bool
	}{
		{"valid", Param{Name: "T", Init: 1, Min: 0.1, Max: 10, Status: StatusOpt}, false},
		{"empty name", Param{Init: 1, Min: 0, Max: 2, Status: StatusOpt}, true},
		{"bad status", Param{Name: "T", Init: 1, Min: 0, Max: 2, Status: "tied"}, true},
		{"inverted bounds", Param{Name: "T", Init: 1, Min: 2, Max: 0, Status: StatusOpt}, true},
		{"init below min", Param{Name: "T", Init: -1, Min: 0, Max: 2, Status: StatusOpt}, true},
		{"log with zero init", Param{Name: "T", Init: 0, Min: math.Inf(-1), Max: math.Inf(1), Log: true, Status: StatusOpt}, true},
		{"log with negative min", Param{Name: "T", Init: 1, Min: -1, Max: 10, Log: true, Status: StatusOpt}, true},
		{"log valid", Param{Name: "T", Init: 1, Min: 0.001, Max: 10, Log: true, Status: StatusOpt}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.param.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParamSetVectorAndApply(t *testing.T) {
	ps, err := NewParamSet([]Param{
		{Name: "T", Init: 0.01, Min: 1e-6, Max: 1, Log: true, Status: StatusOpt},
		{Name: "S", Init: 1e-4, Min: 1e-7, Max: 1e-1, Log: true, Status: StatusOpt},
		{Name: "Q", Init: 0.02, Min: 0.02, Max: 0.02, Status: StatusFixed},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ps.Dim() != 2 {
		t.Fatalf("expected 2 adjustable parameters, got %d", ps.Dim())
	}

	x := ps.Vector()
	if math.Abs(x[0]-(-2)) > 1e-12 {
		t.Errorf("expected log10(0.01) = -2, got %g", x[0])
	}
	if math.Abs(x[1]-(-4)) > 1e-12 {
		t.Errorf("expected log10(1e-4) = -4, got %g", x[1])
	}

	values, err := ps.Apply(x)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(values["T"]-0.01) > 1e-15 {
		t.Errorf("round trip lost T: %g", values["T"])
	}
	if math.Abs(values["S"]-1e-4) > 1e-18 {
		t.Errorf("round trip lost S: %g", values["S"])
	}
	if values["Q"] != 0.02 {
		t.Errorf("fixed parameter must keep its initial value, got %g", values["Q"])
	}
}

func TestParamSetBoundsAndClamp(t *testing.T) {
	ps, err := NewParamSet([]Param{
		{Name: "k", Init: 0.5, Min: 0.1, Max: 2, Status: StatusOpt},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lower, upper := ps.Bounds()
	if lower[0] != 0.1 || upper[0] != 2 {
		t.Errorf("expected bounds [0.1, 2], got [%g, %g]", lower[0], upper[0])
	}

	clamped := ps.Clamp([]float64{-5})
	if clamped[0] != 0.1 {
		t.Errorf("expected clamp to 0.1, got %g", clamped[0])
	}
	clamped = ps.Clamp([]float64{100})
	if clamped[0] != 2 {
		t.Errorf("expected clamp to 2, got %g", clamped[0])
	}
}

func TestNewParamSetRejectsDuplicates(t *testing.T) {
	_, err := NewParamSet([]Param{
		{Name: "T", Init: 1, Min: 0, Max: 2, Status: StatusOpt},
		{Name: "T", Init: 1, Min: 0, Max: 2, Status: StatusOpt},
	})
	if err == nil {
		t.Error("expected error for duplicate parameter names")
	}
}

func TestNewParamSetRejectsAllFixed(t *testing.T) {
	_, err := NewParamSet([]Param{
		{Name: "T", Init: 1, Min: 0, Max: 2, Status: StatusFixed},
	})
	if err == nil {
		t.Error("expected error when no parameter is adjustable")
	}
}

func TestResiduals(t *testing.T) {
	obs := []Observation{
		{Name: "h1", Time: 1, Value: 2, Weight: 1},
		{Name: "h2", Time: 2, Value: 3, Weight: 2},
	}

	r, err := Residuals(obs, []float64{2.5, 2.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r[0] != 0.5 {
		t.Errorf("expected residual 0.5, got %g", r[0])
	}
	if r[1] != -1 {
		t.Errorf("expected weighted residual -1, got %g", r[1])
	}

	if _, err := Residuals(obs, []float64{1}); err == nil {
		t.Error("expected error for mismatched prediction length")
	}
}

func TestObservationYAMLWeightDefault(t *testing.T) {
	doc := `
name: well1
time: 3600
value: 1.25
`
	var o Observation
	if err := yaml.Unmarshal([]byte(doc), &o); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Weight != 1 {
		t.Errorf("absent weight should default to 1, got %g", o.Weight)
	}
}
