package forward

import "fmt"

// Model is a forward model evaluated at the observation times. Predictions
// align with the times slice. Implementations must be stateless so that
// concurrent calibration runs can share one instance.
type Model interface {
	Name() string
	Predict(params map[string]float64, times []float64) ([]float64, error)
}

// GradModel is implemented by models that can supply analytic derivatives of
// their predictions with respect to each parameter. Gradients are keyed by
// parameter name; each slice aligns with the times slice.
type GradModel interface {
	Model
	PredictGrad(params map[string]float64, times []float64) (pred []float64, grad map[string][]float64, err error)
}

// New constructs a registered model by name. Meta carries model constants
// that are not calibrated (pumping rate, well distance, ...).
func New(name string, meta map[string]float64) (Model, error) {
	switch name {
	case "theis":
		return newTheis(meta)
	case "expdecay":
		return newExpDecay(), nil
	default:
		return nil, fmt.Errorf("unknown forward model: %q", name)
	}
}

// ParamError indicates a missing or nonphysical parameter value passed to a
// forward model.
type ParamError struct {
	Model string
	Name  string
	Why   string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s model: parameter %q %s", e.Model, e.Name, e.Why)
}

func requireParam(modelName string, params map[string]float64, name string) (float64, error) {
	v, ok := params[name]
	if !ok {
		return 0, &ParamError{Model: modelName, Name: name, Why: "is missing"}
	}
	return v, nil
}
