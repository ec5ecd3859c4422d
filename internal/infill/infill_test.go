package infill

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/smbo/internal/space"
	"github.com/GoSim-25-26J-441/smbo/internal/surrogate"
	"github.com/GoSim-25-26J-441/smbo/pkg/utils"
)

// funcState is a surrogate state backed by a closure.
type funcState struct {
	f func(u []float64) surrogate.Prediction
}

func (s funcState) Predict(xs [][]float64) ([]surrogate.Prediction, error) {
	out := make([]surrogate.Prediction, len(xs))
	for i, x := range xs {
		out[i] = s.f(x)
	}
	return out, nil
}

func (s funcState) Size() int { return 1 }

func bowl(center float64) funcState {
	return funcState{f: func(u []float64) surrogate.Prediction {
		var m float64
		for _, v := range u {
			m += (v - center) * (v - center)
		}
		return surrogate.Prediction{Mean: m, Variance: 1e-4}
	}}
}

func flat() funcState {
	return funcState{f: func([]float64) surrogate.Prediction {
		return surrogate.Prediction{Mean: 1, Variance: 1}
	}}
}

func TestExpectedImprovement(t *testing.T) {
	ei := ExpectedImprovement{}
	assert.Equal(t, 0.5, ei.Score(surrogate.Prediction{Mean: 1.5, Variance: 0}, 2))
	assert.Equal(t, 0.0, ei.Score(surrogate.Prediction{Mean: 3, Variance: 0}, 2))

	// at the incumbent EI equals sigma * phi(0)
	got := ei.Score(surrogate.Prediction{Mean: 2, Variance: 4}, 2)
	assert.InDelta(t, 2/math.Sqrt(2*math.Pi), got, 1e-12)

	// more uncertainty at an equal mean is more attractive
	low := ei.Score(surrogate.Prediction{Mean: 2.5, Variance: 0.1}, 2)
	high := ei.Score(surrogate.Prediction{Mean: 2.5, Variance: 1}, 2)
	assert.Greater(t, high, low)

	margin := ExpectedImprovement{Xi: 0.5}.Score(surrogate.Prediction{Mean: 1.5, Variance: 0}, 2)
	assert.Equal(t, 0.0, margin)
}

func TestProbabilityOfImprovement(t *testing.T) {
	pi := ProbabilityOfImprovement{}
	assert.Equal(t, 1.0, pi.Score(surrogate.Prediction{Mean: 1, Variance: 0}, 2))
	assert.Equal(t, 0.0, pi.Score(surrogate.Prediction{Mean: 2, Variance: 0}, 2))
	assert.InDelta(t, 0.5, pi.Score(surrogate.Prediction{Mean: 2, Variance: 1}, 2), 1e-12)
}

func TestLowerConfidenceBound(t *testing.T) {
	lcb := LowerConfidenceBound{Beta: 2}
	assert.InDelta(t, -(1.0 - 2*3), lcb.Score(surrogate.Prediction{Mean: 1, Variance: 9}, 0), 1e-12)
}

func TestNewAcquisition(t *testing.T) {
	tests := []struct {
		kind     string
		expected string
		wantErr  bool
	}{
		{"", "ei", false},
		{"EI", "ei", false},
		{"pi", "pi", false},
		{"lcb", "lcb", false},
		{"thompson", "", true},
	}
	for _, tt := range tests {
		a, err := NewAcquisition(tt.kind, AcquisitionOptions{Xi: 0.01})
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.expected, a.Name())
	}

	lcb, err := NewAcquisition("lcb", AcquisitionOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2.0, lcb.(LowerConfidenceBound).Beta)

	_, err = NewAcquisition("ei", AcquisitionOptions{Xi: -1})
	assert.Error(t, err)
}

func newProposer(t *testing.T, s *space.Space, seed int64) *Proposer {
	t.Helper()
	p, err := NewProposer(s, Config{Candidates: 256, Restarts: 3}, utils.NewRandSource(seed))
	require.NoError(t, err)
	return p
}

func TestProposeFindsSurrogateMinimum(t *testing.T) {
	s := space.MustNew(space.Continuous("x", 0, 10), space.Continuous("y", -5, 5))
	p := newProposer(t, s, 1)

	points, err := p.Propose(context.Background(), Request{State: bowl(0.3), Best: 10, N: 1})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.InDelta(t, 3.0, points[0]["x"].(float64), 0.2)
	assert.InDelta(t, -2.0, points[0]["y"].(float64), 0.2)
	assert.True(t, s.IsValid(points[0]))
}

func TestProposeIsDeterministicForSeed(t *testing.T) {
	s := space.MustNew(space.Continuous("x", -1, 1), space.Integer("n", 1, 20))
	a, err := newProposer(t, s, 7).Propose(context.Background(), Request{State: bowl(0.6), Best: 1, N: 2})
	require.NoError(t, err)
	b, err := newProposer(t, s, 7).Propose(context.Background(), Request{State: bowl(0.6), Best: 1, N: 2})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestProposeTieBreaksByDistanceFromEvaluated(t *testing.T) {
	s := space.MustNew(space.Continuous("x", 0, 100))
	p := newProposer(t, s, 3)

	points, err := p.Propose(context.Background(), Request{
		State:     flat(),
		Best:      1,
		Evaluated: [][]float64{{0}},
		N:         1,
	})
	require.NoError(t, err)
	assert.Greater(t, points[0]["x"].(float64), 95.0)
}

func TestProposeNeverRepeatsEvaluatedPoints(t *testing.T) {
	s := space.MustNew(space.Categorical("algo", "sgd", "adam", "lbfgs"))
	p := newProposer(t, s, 5)

	evaluated := [][]float64{s.Normalize([]float64{0}), s.Normalize([]float64{1})}
	points, err := p.Propose(context.Background(), Request{State: flat(), Best: 1, Evaluated: evaluated, N: 3})
	require.NoError(t, err)
	assert.Equal(t, []space.Point{{"algo": "lbfgs"}}, points)

	evaluated = append(evaluated, s.Normalize([]float64{2}))
	_, err = p.Propose(context.Background(), Request{State: flat(), Best: 1, Evaluated: evaluated, N: 1})
	assert.True(t, errors.Is(err, ErrNoCandidates))
}

func TestProposeFindsLastUnevaluatedPointOfDiscreteSpace(t *testing.T) {
	s := space.MustNew(space.Integer("n", 0, 99))
	p, err := NewProposer(s, Config{Candidates: 4, Restarts: 1}, utils.NewRandSource(2))
	require.NoError(t, err)

	var evaluated [][]float64
	for n := 0; n <= 99; n++ {
		if n == 73 || n == 12 {
			continue
		}
		evaluated = append(evaluated, s.Normalize([]float64{float64(n)}))
	}

	points, err := p.Propose(context.Background(), Request{State: bowl(0.5), Best: 1, Evaluated: evaluated, N: 3})
	require.NoError(t, err)
	assert.ElementsMatch(t, []space.Point{{"n": 73}, {"n": 12}}, points)
}

func TestProposeBatchIsDistinct(t *testing.T) {
	s := space.MustNew(space.Integer("a", 0, 3), space.Integer("b", 0, 3))
	p := newProposer(t, s, 9)

	points, err := p.Propose(context.Background(), Request{State: bowl(0.5), Best: 1, N: 5})
	require.NoError(t, err)
	require.Len(t, points, 5)
	seen := map[string]bool{}
	for _, pt := range points {
		seen[s.Format(pt)] = true
	}
	assert.Len(t, seen, 5)
}

func TestProposeHonorsCancellation(t *testing.T) {
	s := space.MustNew(space.Continuous("x", 0, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newProposer(t, s, 1).Propose(ctx, Request{State: bowl(0.5), Best: 1, N: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewProposerValidates(t *testing.T) {
	s := space.MustNew(space.Continuous("x", 0, 1))
	_, err := NewProposer(nil, Config{}, utils.NewRandSource(1))
	assert.Error(t, err)
	_, err = NewProposer(s, Config{}, nil)
	assert.Error(t, err)
	_, err = NewProposer(s, Config{Restarts: -1}, utils.NewRandSource(1))
	assert.Error(t, err)
}
