// Package infill chooses where to evaluate next by maximizing an
// acquisition score over a fitted surrogate. Values are in minimization
// orientation: lower predicted means are better.
package infill

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/GoSim-25-26J-441/smbo/internal/surrogate"
)

// Acquisition scores a prediction given the best value observed so far.
// Higher scores are more attractive.
type Acquisition interface {
	Name() string
	Score(p surrogate.Prediction, best float64) float64
}

// ExpectedImprovement is the expected amount by which a point improves on
// best, less the exploration margin Xi.
type ExpectedImprovement struct {
	Xi float64
}

func (ExpectedImprovement) Name() string { return "ei" }

func (e ExpectedImprovement) Score(p surrogate.Prediction, best float64) float64 {
	improvement := best - p.Mean - e.Xi
	sigma := math.Sqrt(math.Max(p.Variance, 0))
	if sigma == 0 {
		return math.Max(improvement, 0)
	}
	z := improvement / sigma
	return improvement*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
}

// ProbabilityOfImprovement is the probability that a point beats best by
// at least Xi.
type ProbabilityOfImprovement struct {
	Xi float64
}

func (ProbabilityOfImprovement) Name() string { return "pi" }

func (pi ProbabilityOfImprovement) Score(p surrogate.Prediction, best float64) float64 {
	improvement := best - p.Mean - pi.Xi
	sigma := math.Sqrt(math.Max(p.Variance, 0))
	if sigma == 0 {
		if improvement > 0 {
			return 1
		}
		return 0
	}
	return distuv.UnitNormal.CDF(improvement / sigma)
}

// LowerConfidenceBound prefers low means and high uncertainty; Beta weighs
// the standard deviation.
type LowerConfidenceBound struct {
	Beta float64
}

func (LowerConfidenceBound) Name() string { return "lcb" }

func (l LowerConfidenceBound) Score(p surrogate.Prediction, _ float64) float64 {
	return -(p.Mean - l.Beta*math.Sqrt(math.Max(p.Variance, 0)))
}

// AcquisitionOptions parameterizes NewAcquisition.
type AcquisitionOptions struct {
	Xi   float64
	Beta float64
}

// NewAcquisition returns the acquisition registered under kind.
func NewAcquisition(kind string, opts AcquisitionOptions) (Acquisition, error) {
	if opts.Xi < 0 {
		return nil, fmt.Errorf("xi cannot be negative")
	}
	switch strings.ToLower(kind) {
	case "", "ei", "expected_improvement":
		return ExpectedImprovement{Xi: opts.Xi}, nil
	case "pi", "probability_of_improvement":
		return ProbabilityOfImprovement{Xi: opts.Xi}, nil
	case "lcb", "ucb":
		beta := opts.Beta
		if beta <= 0 {
			beta = 2
		}
		return LowerConfidenceBound{Beta: beta}, nil
	default:
		return nil, fmt.Errorf("unknown acquisition kind: %s", kind)
	}
}
