package forward

import "math"

// expDecay is a recession model for head or spring-discharge decline:
//
//	h(t) = h0 * exp(-k*t) + c
//
// Calibrated parameters: h0 (initial amplitude), k (recession constant) and
// c (asymptotic level). It carries analytic gradients, giving the calibration
// driver an exact Jacobian path.
type expDecay struct{}

func newExpDecay() *expDecay { return &expDecay{} }

func (m *expDecay) Name() string { return "expdecay" }

func (m *expDecay) Predict(params map[string]float64, times []float64) ([]float64, error) {
	pred, _, err := m.eval(params, times, false)
	return pred, err
}

func (m *expDecay) PredictGrad(params map[string]float64, times []float64) ([]float64, map[string][]float64, error) {
	return m.eval(params, times, true)
}

func (m *expDecay) eval(params map[string]float64, times []float64, withGrad bool) ([]float64, map[string][]float64, error) {
	h0, err := requireParam("expdecay", params, "h0")
	if err != nil {
		return nil, nil, err
	}
	k, err := requireParam("expdecay", params, "k")
	if err != nil {
		return nil, nil, err
	}
	c, err := requireParam("expdecay", params, "c")
	if err != nil {
		return nil, nil, err
	}

	pred := make([]float64, len(times))
	var dh0, dk, dc []float64
	if withGrad {
		dh0 = make([]float64, len(times))
		dk = make([]float64, len(times))
		dc = make([]float64, len(times))
	}

	for i, t := range times {
		e := math.Exp(-k * t)
		pred[i] = h0*e + c
		if withGrad {
			dh0[i] = e
			dk[i] = -h0 * t * e
			dc[i] = 1
		}
	}

	if !withGrad {
		return pred, nil, nil
	}
	return pred, map[string][]float64{"h0": dh0, "k": dk, "c": dc}, nil
}
