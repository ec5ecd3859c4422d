package smbo

import (
	"context"
	"errors"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/smbo/internal/harness"
	"github.com/GoSim-25-26J-441/smbo/internal/infill"
	"github.com/GoSim-25-26J-441/smbo/internal/resultlog"
	"github.com/GoSim-25-26J-441/smbo/internal/space"
	"github.com/GoSim-25-26J-441/smbo/internal/surrogate"
	"github.com/GoSim-25-26J-441/smbo/pkg/logger"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeEvaluator evaluates points in-process.
type fakeEvaluator struct {
	f           func(space.Point) (float64, error)
	parallelism int
	clock       *fakeClock
	step        time.Duration

	mu    sync.Mutex
	calls int
}

func (e *fakeEvaluator) Parallelism() int { return e.parallelism }

func (e *fakeEvaluator) EvaluateBatch(_ context.Context, points []space.Point) []harness.BatchResult {
	out := make([]harness.BatchResult, len(points))
	for i, p := range points {
		e.mu.Lock()
		e.calls++
		e.mu.Unlock()
		if e.clock != nil {
			e.clock.Advance(e.step)
		}
		v, err := e.f(p)
		out[i] = harness.BatchResult{Evaluation: harness.Evaluation{Point: p, Value: v}, Err: err}
	}
	return out
}

func bowlObjective(p space.Point) (float64, error) {
	return objective(p["x1"].(float64), p["x2"].(float64)), nil
}

func testSpace() *space.Space {
	return space.MustNew(space.Continuous("x1", -3, 3), space.Continuous("x2", -2.5, 2.5))
}

func newLoop(t *testing.T, cfg Config, opts ...Option) *Loop {
	t.Helper()
	if cfg.Space == nil {
		cfg.Space = testSpace()
	}
	cfg.Logger = logger.Discard()
	l, err := New(cfg, opts...)
	require.NoError(t, err)
	return l
}

func TestLoopRespectsIterationBudget(t *testing.T) {
	ev := &fakeEvaluator{f: bowlObjective, parallelism: 2}
	var (
		mu     sync.Mutex
		states []State
	)
	l := newLoop(t, Config{
		Evaluator:   ev,
		InitialSize: 4,
		Budget:      Budget{Iterations: 7},
		BatchSize:   3,
		Seed:        11,
	}, WithProgressReporter(func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		if len(states) == 0 || states[len(states)-1] != p.State {
			states = append(states, p.State)
		}
	}))

	res, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonIterations, res.Reason)
	assert.Equal(t, 7, res.Proposed)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, 11, res.Evaluations)
	assert.Equal(t, 11, ev.calls)
	assert.Equal(t, 0, res.Failures)

	assert.Equal(t, StateInitializing, states[0])
	assert.Equal(t, StateTerminated, states[len(states)-1])
	assert.Contains(t, states, StateFitting)
	assert.Contains(t, states, StateProposing)
	assert.Equal(t, StateTerminated, l.Progress().State)
	assert.Equal(t, 0, l.Progress().Remaining)
}

func TestLoopRespectsTimeBudget(t *testing.T) {
	clock := &fakeClock{t: t0}
	ev := &fakeEvaluator{f: bowlObjective, parallelism: 1, clock: clock, step: time.Minute}
	l := newLoop(t, Config{
		Evaluator:   ev,
		InitialSize: 3,
		Budget:      Budget{Time: 5*time.Minute + 30*time.Second},
		BatchSize:   2,
	}, WithClock(clock.Now))

	res, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonTime, res.Reason)
	// 3 initial + 2 + one point of the batch in flight at the deadline
	assert.Equal(t, 6, res.Evaluations)
	assert.Equal(t, 6*time.Minute, res.Duration)
}

func TestLoopRecordsFailedEvaluationsAndContinues(t *testing.T) {
	ev := &fakeEvaluator{parallelism: 1, f: func(p space.Point) (float64, error) {
		if p["x1"].(float64) < 0 {
			return 0, &harness.EvalError{Kind: harness.KindNonZeroExit, ExitCode: 1}
		}
		return bowlObjective(p)
	}}
	l := newLoop(t, Config{
		Evaluator:       ev,
		InitialStrategy: space.Grid{Resolution: 3},
		Budget:          Budget{Iterations: 5},
		Seed:            3,
	})

	res, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 14, res.Evaluations)
	assert.GreaterOrEqual(t, res.Failures, 3)
	assert.InDelta(t, float64(res.Failures)/14, res.FailureFraction, 1e-12)
	require.NotNil(t, res.Best)
	assert.False(t, res.Best.Failed)

	for _, o := range res.Log.History() {
		if o.Failed {
			assert.Equal(t, string(harness.KindNonZeroExit), o.FailureKind)
		}
	}
}

func TestLoopWithoutValidObservations(t *testing.T) {
	ev := &fakeEvaluator{parallelism: 1, f: func(space.Point) (float64, error) {
		return 0, &harness.EvalError{Kind: harness.KindParseFailure}
	}}
	l := newLoop(t, Config{Evaluator: ev, InitialSize: 2, Budget: Budget{Iterations: 3}})

	res, err := l.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoValidObservations)
	require.NotNil(t, res)
	assert.Equal(t, ReasonIterations, res.Reason)
	assert.Equal(t, 5, res.Evaluations)
	assert.Equal(t, 1.0, res.FailureFraction)
	assert.Nil(t, res.Best)
	assert.Equal(t, 0, res.Fits)
}

type countingModel struct {
	surrogate.Model
	mu   sync.Mutex
	fits int
}

func (m *countingModel) Fit(samples []surrogate.Sample) (surrogate.State, error) {
	m.mu.Lock()
	m.fits++
	m.mu.Unlock()
	return m.Model.Fit(samples)
}

type brokenModel struct{}

func (brokenModel) Name() string { return "broken" }

func (brokenModel) Fit([]surrogate.Sample) (surrogate.State, error) {
	return nil, errors.New("matrix is singular")
}

func TestLoopSurrogateFailureIsFatal(t *testing.T) {
	ev := &fakeEvaluator{f: bowlObjective, parallelism: 1}
	l := newLoop(t, Config{Evaluator: ev, Model: brokenModel{}, InitialSize: 3, Budget: Budget{Iterations: 5}})

	res, err := l.Run(context.Background())
	var fitErr *surrogate.FitError
	require.ErrorAs(t, err, &fitErr)
	assert.Equal(t, "broken", fitErr.Model)
	assert.Equal(t, 3, fitErr.Samples)
	assert.Equal(t, ReasonFailed, res.Reason)
	assert.Equal(t, 3, res.Evaluations)
	assert.NotNil(t, res.Best)
}

type emptyProposer struct{}

func (emptyProposer) Propose(context.Context, infill.Request) ([]space.Point, error) {
	return nil, infill.ErrNoCandidates
}

func TestLoopInfillFailureOnContinuousSpace(t *testing.T) {
	ev := &fakeEvaluator{f: bowlObjective, parallelism: 1}
	l := newLoop(t, Config{Evaluator: ev, Proposer: emptyProposer{}, InitialSize: 3, Budget: Budget{Iterations: 5}})

	res, err := l.Run(context.Background())
	require.ErrorIs(t, err, infill.ErrNoCandidates)
	assert.Equal(t, "infill: no candidate points available", err.Error())
	assert.Equal(t, ReasonFailed, res.Reason)
}

func TestLoopRefitCadence(t *testing.T) {
	tests := []struct {
		refitEvery int
		expected   int
	}{
		{1, 4},
		{2, 2},
		{10, 1},
	}
	for _, tt := range tests {
		gp, err := surrogate.New("gp", surrogate.DefaultOptions())
		require.NoError(t, err)
		model := &countingModel{Model: gp}
		l := newLoop(t, Config{
			Evaluator:   &fakeEvaluator{f: bowlObjective, parallelism: 1},
			Model:       model,
			InitialSize: 3,
			Budget:      Budget{Iterations: 4},
			RefitEvery:  tt.refitEvery,
		})
		res, err := l.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, tt.expected, model.fits, "refit every %d", tt.refitEvery)
		assert.Equal(t, tt.expected, res.Fits)
	}
}

func TestLoopStopPredicate(t *testing.T) {
	ev := &fakeEvaluator{f: bowlObjective, parallelism: 1}
	l := newLoop(t, Config{
		Evaluator:       ev,
		InitialStrategy: space.Grid{Resolution: 3},
		Budget:          Budget{Iterations: 50},
	}, WithStopPredicate(TargetStrategy{Target: 100}))

	res, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonStopPredicate, res.Reason)
	assert.Contains(t, res.Detail, "target")
	assert.Equal(t, 9, res.Evaluations)
	assert.Equal(t, 0, res.Proposed)
}

func TestLoopMaximize(t *testing.T) {
	ev := &fakeEvaluator{parallelism: 1, f: func(p space.Point) (float64, error) {
		v, _ := bowlObjective(p)
		return -v, nil
	}}
	l := newLoop(t, Config{
		Evaluator:       ev,
		Direction:       resultlog.Maximize,
		InitialStrategy: space.Grid{Resolution: 3},
		Budget:          Budget{Iterations: 6},
	})
	res, err := l.Run(context.Background())
	require.NoError(t, err)

	for _, o := range res.Log.History() {
		assert.GreaterOrEqual(t, res.Best.Value, o.Value)
	}
}

func TestLoopStopsWhenFiniteSpaceIsExhausted(t *testing.T) {
	s := space.MustNew(space.Categorical("algo", "sgd", "adam", "lbfgs"))
	values := map[string]float64{"sgd": 3, "adam": 1, "lbfgs": 2}
	ev := &fakeEvaluator{parallelism: 1, f: func(p space.Point) (float64, error) {
		return values[p["algo"].(string)], nil
	}}
	l := newLoop(t, Config{
		Space:           s,
		Evaluator:       ev,
		InitialStrategy: space.Grid{Resolution: 2},
		Budget:          Budget{Iterations: 5},
	})

	res, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonSpaceExhausted, res.Reason)
	assert.Equal(t, 3, res.Evaluations)
	assert.Equal(t, "adam", res.Best.Point["algo"])
}

func TestLoopCoversDiscreteSpaceWithFewCandidates(t *testing.T) {
	s := space.MustNew(space.Integer("n", 0, 99))
	for seed := int64(1); seed <= 3; seed++ {
		ev := &fakeEvaluator{parallelism: 1, f: func(p space.Point) (float64, error) {
			n := float64(p["n"].(int))
			return (n - 40) * (n - 40), nil
		}}
		l := newLoop(t, Config{
			Space:     s,
			Evaluator: ev,
			Budget:    Budget{Iterations: 200},
			Infill:    infill.Config{Candidates: 16},
			Seed:      seed,
		})

		res, err := l.Run(context.Background())
		require.NoError(t, err, "seed %d", seed)
		assert.Equal(t, ReasonSpaceExhausted, res.Reason, "seed %d: %s", seed, res.Detail)
		assert.Equal(t, 100, res.Evaluations, "seed %d", seed)
		assert.Equal(t, 40, res.Best.Point["n"], "seed %d", seed)
	}
}

func TestLoopCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ev := &fakeEvaluator{f: bowlObjective, parallelism: 1}
	l := newLoop(t, Config{Evaluator: ev, InitialSize: 5, Budget: Budget{Iterations: 5}},
		WithProgressReporter(func(p Progress) {
			if p.Evaluations >= 2 {
				cancel()
			}
		}))

	res, err := l.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReasonCanceled, res.Reason)
	assert.Equal(t, 2, res.Evaluations)
}

func TestLoopRejectsInvalidConfig(t *testing.T) {
	ev := &fakeEvaluator{f: bowlObjective, parallelism: 1}
	_, err := New(Config{Evaluator: ev, Budget: Budget{Iterations: 1}})
	assert.Error(t, err)
	_, err = New(Config{Space: testSpace(), Budget: Budget{Iterations: 1}})
	assert.Error(t, err)
	_, err = New(Config{Space: testSpace(), Evaluator: ev})
	assert.Error(t, err)
	_, err = New(Config{Space: testSpace(), Evaluator: ev, Budget: Budget{Iterations: 1}, BatchSize: -1})
	assert.Error(t, err)
}

func helperHarness(t *testing.T, mode string) *harness.Harness {
	t.Helper()
	h, err := harness.New(harness.Config{
		Space: testSpace(),
		Command: harness.Command{
			Program: os.Args[0],
			Args:    []string{"-test.run=^TestHelperProcess$", "--", mode, "{x1}", "{x2}"},
			Env:     map[string]string{helperEnv: "1"},
		},
		Extractor: harness.NewMarker("RESULT"),
		WorkDir:   t.TempDir(),
		Timeout:   time.Minute,
		Cleanup:   true,
		Logger:    logger.Discard(),
	})
	require.NoError(t, err)
	return h
}

func TestLoopEndToEnd(t *testing.T) {
	l := newLoop(t, Config{
		Evaluator:       helperHarness(t, "objective"),
		InitialStrategy: space.Grid{Resolution: 3},
		Budget:          Budget{Iterations: 10},
		Seed:            42,
	})

	res, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonIterations, res.Reason)
	assert.Equal(t, 19, res.Evaluations)
	assert.Equal(t, 10, res.Proposed)
	assert.Equal(t, 0, res.Failures)

	history := res.Log.History()
	seen := map[string]bool{}
	var initial []resultlog.Observation
	for _, o := range history {
		if o.Initial {
			initial = append(initial, o)
			key := testSpace().Format(o.Point)
			assert.False(t, seen[key], "initial point %s evaluated twice", key)
			seen[key] = true
		}
		x1, x2 := o.Point["x1"].(float64), o.Point["x2"].(float64)
		assert.InDelta(t, objective(x1, x2), o.Value, 1e-9)
	}
	require.Len(t, initial, 9)

	require.NotNil(t, res.Best)
	for _, o := range initial {
		assert.LessOrEqual(t, res.Best.Value, o.Value)
	}
	assert.False(t, math.IsNaN(res.Best.Value))
}

func TestLoopEndToEndWithFailingProgram(t *testing.T) {
	l := newLoop(t, Config{
		Evaluator:       helperHarness(t, "fail-left"),
		InitialStrategy: space.Grid{Resolution: 3},
		Budget:          Budget{Iterations: 3},
		Seed:            1,
	})

	res, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, res.Evaluations)
	assert.GreaterOrEqual(t, res.Failures, 3)

	var failed []resultlog.Observation
	for _, o := range res.Log.History() {
		if o.Failed {
			failed = append(failed, o)
		}
	}
	require.NotEmpty(t, failed)
	assert.Equal(t, string(harness.KindNonZeroExit), failed[0].FailureKind)
	assert.Equal(t, 1, failed[0].ExitCode)
	assert.Contains(t, failed[0].Failure, "diverged")
}
