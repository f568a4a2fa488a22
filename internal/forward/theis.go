package forward

import (
	"fmt"
	"math"
)

// theis predicts drawdown at a monitoring well during constant-rate pumping
// in a confined aquifer:
//
//	s(t) = Q / (4*pi*T) * W(u),  u = r^2 * S / (4*T*t)
//
// Calibrated parameters: T (transmissivity) and S (storativity). The pumping
// rate Q and the radial distance r come from the model metadata.
type theis struct {
	q float64
	r float64
}

func newTheis(meta map[string]float64) (*theis, error) {
	q, ok := meta["q"]
	if !ok || q <= 0 {
		return nil, fmt.Errorf("theis model: metadata needs a positive pumping rate q")
	}
	r, ok := meta["r"]
	if !ok || r <= 0 {
		return nil, fmt.Errorf("theis model: metadata needs a positive well distance r")
	}
	return &theis{q: q, r: r}, nil
}

func (m *theis) Name() string { return "theis" }

func (m *theis) Predict(params map[string]float64, times []float64) ([]float64, error) {
	t, err := requireParam("theis", params, "T")
	if err != nil {
		return nil, err
	}
	s, err := requireParam("theis", params, "S")
	if err != nil {
		return nil, err
	}
	if t <= 0 {
		return nil, &ParamError{Model: "theis", Name: "T", Why: "must be positive"}
	}
	if s <= 0 {
		return nil, &ParamError{Model: "theis", Name: "S", Why: "must be positive"}
	}

	coeff := m.q / (4 * math.Pi * t)
	out := make([]float64, len(times))
	for i, tt := range times {
		if tt <= 0 {
			out[i] = 0
			continue
		}
		u := m.r * m.r * s / (4 * t * tt)
		out[i] = coeff * wellFunction(u)
	}
	return out, nil
}

const eulerGamma = 0.5772156649015329

// wellFunction evaluates the Theis well function W(u) = E1(u).
// Small arguments use the convergent series, large arguments the
// Abramowitz & Stegun 5.1.56 rational approximation.
func wellFunction(u float64) float64 {
	if u <= 0 {
		return math.Inf(1)
	}
	if u <= 1 {
		// E1(u) = -gamma - ln(u) + sum_{k>=1} (-1)^(k+1) u^k / (k * k!)
		sum := 0.0
		term := 1.0
		for k := 1; k <= 30; k++ {
			term *= -u / float64(k)
			contrib := -term / float64(k)
			sum += contrib
			if math.Abs(contrib) < 1e-16*math.Abs(sum) {
				break
			}
		}
		return -eulerGamma - math.Log(u) + sum
	}

	const (
		a1 = 2.334733
		a2 = 0.250621
		b1 = 3.330657
		b2 = 1.681534
	)
	num := u*u + a1*u + a2
	den := u*u + b1*u + b2
	return math.Exp(-u) / u * num / den
}
