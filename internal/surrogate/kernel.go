package surrogate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// KernelSmoother is a Nadaraya-Watson regressor: the mean is the
// kernel-weighted average of observed values and the variance shrinks with
// proximity to the nearest observation. It is cheaper than the GP and never
// fails to fit on finite data.
type KernelSmoother struct {
	Bandwidth float64
}

func (k *KernelSmoother) Name() string { return "kernel" }

func (k *KernelSmoother) Fit(samples []Sample) (State, error) {
	dim, err := checkSamples(k.Name(), samples)
	if err != nil {
		return nil, err
	}
	if len(samples) == 1 {
		return newConstantState(samples[0]), nil
	}
	if k.Bandwidth <= 0 {
		return nil, &FitError{Model: k.Name(), Samples: len(samples), Err: fmt.Errorf("bandwidth must be positive")}
	}
	xs := make([][]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = append([]float64(nil), s.X...)
		ys[i] = s.Y
	}
	mean, variance := stat.MeanVariance(ys, nil)
	if variance == 0 {
		variance = 1
	}
	return &kernelState{xs: xs, ys: ys, dim: dim, bandwidth: k.Bandwidth, mean: mean, prior: variance}, nil
}

type kernelState struct {
	xs        [][]float64
	ys        []float64
	dim       int
	bandwidth float64
	mean      float64
	prior     float64
}

func (s *kernelState) Size() int { return len(s.xs) }

func (s *kernelState) Predict(xs [][]float64) ([]Prediction, error) {
	if err := checkInputs(s.dim, xs); err != nil {
		return nil, err
	}
	out := make([]Prediction, len(xs))
	weights := make([]float64, len(s.xs))
	for p, x := range xs {
		var total, nearest float64
		for i, xi := range s.xs {
			w := rbf(x, xi, s.bandwidth)
			weights[i] = w
			total += w
			nearest = math.Max(nearest, w)
		}
		mu := s.mean
		if total > 1e-300 {
			mu = stat.Mean(s.ys, weights)
		}
		variance := s.prior * (1 - nearest)
		if variance < minVariance {
			variance = minVariance
		}
		out[p] = Prediction{Mean: mu, Variance: variance}
	}
	return out, nil
}
