package calib

import (
	"log/slog"
	"math"
)

// Tracker watches best-so-far costs across completed multistart runs and
// signals when additional starts have stopped paying off: once Patience runs
// in a row fail to improve the best cost by the relative Threshold, the
// remaining starts can be cancelled.
type Tracker struct {
	patience  int
	threshold float64

	best       float64
	reference  float64
	stale      int
	history    []float64
}

// NewTracker creates a tracker. patience <= 0 disables early stopping.
func NewTracker(patience int, threshold float64) *Tracker {
	return &Tracker{
		patience:  patience,
		threshold: threshold,
		best:      math.Inf(1),
		reference: math.Inf(1),
	}
}

// Update records the final cost of one completed run and returns true when
// the patience budget is exhausted.
func (t *Tracker) Update(cost float64) bool {
	t.history = append(t.history, cost)
	if cost < t.best {
		t.best = cost
	}

	if t.patience <= 0 {
		return false
	}

	if len(t.history) == 1 {
		t.reference = cost
		return false
	}

	improvement := (t.reference - cost) / math.Abs(t.reference)
	if math.IsInf(t.reference, 1) {
		improvement = 1
	}

	if improvement >= t.threshold {
		t.reference = cost
		t.stale = 0
		return false
	}

	t.stale++
	slog.Debug("multistart run without improvement",
		"cost", cost,
		"reference", t.reference,
		"stale", t.stale,
		"patience", t.patience,
	)
	return t.stale >= t.patience
}

// Best returns the lowest cost seen so far.
func (t *Tracker) Best() float64 {
	return t.best
}

// History returns a copy of the recorded costs in completion order.
func (t *Tracker) History() []float64 {
	return append([]float64{}, t.history...)
}
