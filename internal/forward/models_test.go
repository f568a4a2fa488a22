package forward

import (
	"math"
	"testing"
)

func TestWellFunctionKnownValues(t *testing.T) {
	// Tabulated values of the exponential integral E1(u).
	tests := []struct {
		u    float64
		want float64
		tol  float64
	}{
		{0.01, 4.0379, 1e-3},
		{0.1, 1.8229, 1e-3},
		{0.5, 0.5598, 1e-3},
		{1.0, 0.2194, 1e-3},
		{2.0, 0.04890, 5e-4},
		{5.0, 0.001148, 5e-5},
	}

	for _, tt := range tests {
		got := wellFunction(tt.u)
		if math.Abs(got-tt.want) > tt.tol {
			t.Errorf("W(%g): expected %g, got %g", tt.u, tt.want, got)
		}
	}
}

func TestTheisPredict(t *testing.T) {
	m, err := New("theis", map[string]float64{"q": 0.02, "r": 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	params := map[string]float64{"T": 0.005, "S": 1e-4}
	times := []float64{0, 600, 3600, 86400}

	pred, err := m.Predict(params, times)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pred[0] != 0 {
		t.Errorf("drawdown before pumping starts must be 0, got %g", pred[0])
	}
	for i := 1; i < len(pred); i++ {
		if pred[i] <= pred[i-1] {
			t.Errorf("drawdown must grow with time: s(%g)=%g, s(%g)=%g",
				times[i-1], pred[i-1], times[i], pred[i])
		}
	}
}

func TestTheisRejectsNonphysicalParams(t *testing.T) {
	m, err := New("theis", map[string]float64{"q": 0.02, "r": 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := m.Predict(map[string]float64{"T": -1, "S": 1e-4}, []float64{60}); err == nil {
		t.Error("expected error for negative transmissivity")
	}
	if _, err := m.Predict(map[string]float64{"T": 0.005}, []float64{60}); err == nil {
		t.Error("expected error for missing storativity")
	}
}

func TestTheisMetadataValidation(t *testing.T) {
	if _, err := New("theis", map[string]float64{"r": 50}); err == nil {
		t.Error("expected error for missing pumping rate")
	}
	if _, err := New("theis", map[string]float64{"q": -1, "r": 50}); err == nil {
		t.Error("expected error for negative pumping rate")
	}
}

func TestExpDecayPredict(t *testing.T) {
	m, err := New("expdecay", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	params := map[string]float64{"h0": 2, "k": 0.5, "c": 1}
	pred, err := m.Predict(params, []float64{0, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pred[0] != 3 {
		t.Errorf("expected h(0) = 3, got %g", pred[0])
	}
	want := 2*math.Exp(-0.5) + 1
	if math.Abs(pred[1]-want) > 1e-12 {
		t.Errorf("expected h(1) = %g, got %g", want, pred[1])
	}
}

func TestExpDecayGradientsMatchFiniteDifferences(t *testing.T) {
	gm, ok := mustNew(t, "expdecay").(GradModel)
	if !ok {
		t.Fatal("expdecay should implement GradModel")
	}

	params := map[string]float64{"h0": 2, "k": 0.5, "c": 1}
	times := []float64{0.5, 1, 2, 4}

	pred, grad, err := gm.PredictGrad(params, times)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const h = 1e-7
	for name := range params {
		bumped := map[string]float64{}
		for k, v := range params {
			bumped[k] = v
		}
		bumped[name] += h

		predBumped, err := gm.Predict(bumped, times)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for i := range times {
			fd := (predBumped[i] - pred[i]) / h
			if math.Abs(fd-grad[name][i]) > 1e-5 {
				t.Errorf("d/d%s at t=%g: analytic %g, finite difference %g",
					name, times[i], grad[name][i], fd)
			}
		}
	}
}

func TestNewUnknownModel(t *testing.T) {
	if _, err := New("modflow", nil); err == nil {
		t.Error("expected error for unknown model name")
	}
}

func mustNew(t *testing.T, name string) Model {
	t.Helper()
	m, err := New(name, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}
