package model

import "fmt"

// Observation is one measured value the calibration fits against.
type Observation struct {
	Name   string  `yaml:"name"`
	Time   float64 `yaml:"time"`
	Value  float64 `yaml:"value"`
	Weight float64 `yaml:"weight"`
}

// UnmarshalYAML decodes an observation, defaulting the weight to 1.
func (o *Observation) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type raw struct {
		Name   string   `yaml:"name"`
		Time   float64  `yaml:"time"`
		Value  float64  `yaml:"value"`
		Weight *float64 `yaml:"weight"`
	}

	var r raw
	if err := unmarshal(&r); err != nil {
		return err
	}

	o.Name = r.Name
	o.Time = r.Time
	o.Value = r.Value
	o.Weight = 1
	if r.Weight != nil {
		o.Weight = *r.Weight
	}
	return nil
}

// Validate checks the observation definition.
func (o Observation) Validate() error {
	if o.Weight < 0 {
		return &ValidationError{Field: "weight", Reason: "cannot be negative"}
	}
	return nil
}

// ValidateObservations checks a whole observation list.
func ValidateObservations(obs []Observation) error {
	if len(obs) == 0 {
		return fmt.Errorf("no observations")
	}
	for i, o := range obs {
		if err := o.Validate(); err != nil {
			return fmt.Errorf("observation %d (%q): %w", i, o.Name, err)
		}
	}
	return nil
}

// Times returns the observation times in list order.
func Times(obs []Observation) []float64 {
	times := make([]float64, len(obs))
	for i, o := range obs {
		times[i] = o.Time
	}
	return times
}

// Residuals computes weighted model-minus-observation differences. The
// predictions slice must align with the observation list.
func Residuals(obs []Observation, predicted []float64) ([]float64, error) {
	if len(predicted) != len(obs) {
		return nil, fmt.Errorf("prediction length %d does not match %d observations", len(predicted), len(obs))
	}
	r := make([]float64, len(obs))
	for i, o := range obs {
		r[i] = o.Weight * (predicted[i] - o.Value)
	}
	return r, nil
}
