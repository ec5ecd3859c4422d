package surrogate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// jitterSteps is tried in order when the kernel matrix is not numerically
// positive definite.
var jitterSteps = []float64{0, 1e-10, 1e-8, 1e-6, 1e-4}

// minVariance keeps predictive variances strictly positive.
const minVariance = 1e-12

// GaussianProcess is a zero-mean GP with an RBF kernel fitted to
// standardized values.
type GaussianProcess struct {
	LengthScale float64
	Noise       float64
}

func (g *GaussianProcess) Name() string { return "gp" }

// Fit factorizes the kernel matrix of samples. A single sample yields a
// constant-mean prediction with maximal variance.
func (g *GaussianProcess) Fit(samples []Sample) (State, error) {
	dim, err := checkSamples(g.Name(), samples)
	if err != nil {
		return nil, err
	}
	if len(samples) == 1 {
		return newConstantState(samples[0]), nil
	}
	if g.LengthScale <= 0 {
		return nil, &FitError{Model: g.Name(), Samples: len(samples), Err: fmt.Errorf("length scale must be positive")}
	}

	n := len(samples)
	ys := make([]float64, n)
	xs := make([][]float64, n)
	for i, s := range samples {
		if math.IsNaN(s.Y) || math.IsInf(s.Y, 0) {
			return nil, &FitError{Model: g.Name(), Samples: n, Err: fmt.Errorf("sample %d has non-finite value %v", i, s.Y)}
		}
		ys[i] = s.Y
		xs[i] = append([]float64(nil), s.X...)
	}
	mean, std := stat.MeanStdDev(ys, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	z := mat.NewVecDense(n, nil)
	for i, y := range ys {
		z.SetVec(i, (y-mean)/std)
	}

	var chol mat.Cholesky
	factorized := false
	for _, jitter := range jitterSteps {
		k := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				v := rbf(xs[i], xs[j], g.LengthScale)
				if i == j {
					v += g.Noise + jitter
				}
				k.SetSym(i, j, v)
			}
		}
		if chol.Factorize(k) {
			factorized = true
			break
		}
	}
	if !factorized {
		return nil, &FitError{Model: g.Name(), Samples: n, Err: fmt.Errorf("kernel matrix is not positive definite")}
	}

	var alpha mat.VecDense
	if err := chol.SolveVecTo(&alpha, z); err != nil {
		return nil, &FitError{Model: g.Name(), Samples: n, Err: err}
	}
	return &gpState{
		xs:          xs,
		dim:         dim,
		chol:        &chol,
		alpha:       &alpha,
		mean:        mean,
		std:         std,
		lengthScale: g.LengthScale,
	}, nil
}

type gpState struct {
	xs          [][]float64
	dim         int
	chol        *mat.Cholesky
	alpha       *mat.VecDense
	mean        float64
	std         float64
	lengthScale float64
}

func (s *gpState) Size() int { return len(s.xs) }

func (s *gpState) Predict(xs [][]float64) ([]Prediction, error) {
	if err := checkInputs(s.dim, xs); err != nil {
		return nil, err
	}
	n := len(s.xs)
	out := make([]Prediction, len(xs))
	kstar := mat.NewVecDense(n, nil)
	var v mat.VecDense
	for p, x := range xs {
		for i, xi := range s.xs {
			kstar.SetVec(i, rbf(x, xi, s.lengthScale))
		}
		mu := mat.Dot(kstar, s.alpha)
		if err := s.chol.SolveVecTo(&v, kstar); err != nil {
			return nil, fmt.Errorf("predict: %w", err)
		}
		variance := 1 - mat.Dot(kstar, &v)
		if variance < minVariance {
			variance = minVariance
		}
		out[p] = Prediction{
			Mean:     s.mean + s.std*mu,
			Variance: variance * s.std * s.std,
		}
	}
	return out, nil
}
