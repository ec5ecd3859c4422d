// Package surrogate provides the cheap statistical models fitted to observed
// (point, value) pairs. Inputs are unit-cube coordinates produced by
// space.Normalize; values are in minimization orientation.
package surrogate

import (
	"fmt"
	"math"
	"strings"
)

// Sample is one observation as seen by a model.
type Sample struct {
	X []float64
	Y float64
}

// Prediction is the model's belief about the objective at one point.
type Prediction struct {
	Mean     float64
	Variance float64
}

// State is a fitted model. It is derived from the samples it was fitted on
// and is safe for concurrent reads.
type State interface {
	Predict(xs [][]float64) ([]Prediction, error)
	// Size is the number of samples the state was fitted on.
	Size() int
}

// Model fits States. Fit is never called with zero samples by the loop and
// returns a *FitError if it is.
type Model interface {
	Name() string
	Fit(samples []Sample) (State, error)
}

// FitError reports that a model could not be fitted. It is fatal to a run.
type FitError struct {
	Model   string
	Samples int
	Err     error
}

func (e *FitError) Error() string {
	return fmt.Sprintf("surrogate %s: fit on %d samples failed: %v", e.Model, e.Samples, e.Err)
}

func (e *FitError) Unwrap() error {
	return e.Err
}

// Options tunes the built-in models.
type Options struct {
	// LengthScale of the RBF kernel in unit-cube coordinates.
	LengthScale float64
	// Noise is the observation noise variance in standardized units.
	Noise float64
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{LengthScale: 0.3, Noise: 1e-6}
}

// New returns the model registered under kind ("gp" or "kernel").
func New(kind string, opts Options) (Model, error) {
	def := DefaultOptions()
	if opts.LengthScale <= 0 {
		opts.LengthScale = def.LengthScale
	}
	if opts.Noise <= 0 {
		opts.Noise = def.Noise
	}
	switch strings.ToLower(kind) {
	case "", "gp", "gaussian_process":
		return &GaussianProcess{LengthScale: opts.LengthScale, Noise: opts.Noise}, nil
	case "kernel", "kernel_smoother":
		return &KernelSmoother{Bandwidth: opts.LengthScale}, nil
	default:
		return nil, fmt.Errorf("unknown surrogate kind: %s", kind)
	}
}

func checkSamples(model string, samples []Sample) (int, error) {
	if len(samples) == 0 {
		return 0, &FitError{Model: model, Err: fmt.Errorf("no samples")}
	}
	dim := len(samples[0].X)
	for i, s := range samples {
		if len(s.X) != dim {
			return 0, &FitError{Model: model, Samples: len(samples), Err: fmt.Errorf("sample %d has %d coordinates, want %d", i, len(s.X), dim)}
		}
	}
	return dim, nil
}

func checkInputs(dim int, xs [][]float64) error {
	for i, x := range xs {
		if len(x) != dim {
			return fmt.Errorf("input %d has %d coordinates, want %d", i, len(x), dim)
		}
	}
	return nil
}

// rbf is the squared-exponential kernel with unit signal variance.
func rbf(a, b []float64, lengthScale float64) float64 {
	var d2 float64
	for i := range a {
		d := a[i] - b[i]
		d2 += d * d
	}
	return math.Exp(-d2 / (2 * lengthScale * lengthScale))
}

// constantState is the prediction of a model fitted on a single sample:
// the observed value everywhere, with the prior variance.
type constantState struct {
	mean     float64
	variance float64
	dim      int
}

func newConstantState(s Sample) *constantState {
	scale := math.Max(1, math.Abs(s.Y))
	return &constantState{mean: s.Y, variance: scale * scale, dim: len(s.X)}
}

func (c *constantState) Predict(xs [][]float64) ([]Prediction, error) {
	if err := checkInputs(c.dim, xs); err != nil {
		return nil, err
	}
	out := make([]Prediction, len(xs))
	for i := range out {
		out[i] = Prediction{Mean: c.mean, Variance: c.variance}
	}
	return out, nil
}

func (c *constantState) Size() int { return 1 }
