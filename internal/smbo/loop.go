// Package smbo runs sequential model-based optimization: it evaluates an
// initial design, then alternates between fitting a surrogate to every
// observation and evaluating the points the surrogate finds most promising,
// until a budget runs out or a stopping predicate fires.
package smbo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/smbo/internal/design"
	"github.com/GoSim-25-26J-441/smbo/internal/harness"
	"github.com/GoSim-25-26J-441/smbo/internal/infill"
	"github.com/GoSim-25-26J-441/smbo/internal/resultlog"
	"github.com/GoSim-25-26J-441/smbo/internal/space"
	"github.com/GoSim-25-26J-441/smbo/internal/surrogate"
	"github.com/GoSim-25-26J-441/smbo/pkg/logger"
	"github.com/GoSim-25-26J-441/smbo/pkg/utils"
)

// State is a state of the loop's state machine.
type State string

const (
	StateInitializing State = "initializing"
	StateEvaluating   State = "evaluating"
	StateFitting      State = "fitting"
	StateProposing    State = "proposing"
	StateTerminated   State = "terminated"
)

// Reason explains why a run terminated.
type Reason string

const (
	ReasonIterations     Reason = "iterations_exhausted"
	ReasonTime           Reason = "time_exhausted"
	ReasonStopPredicate  Reason = "stop_predicate"
	ReasonCanceled       Reason = "canceled"
	ReasonSpaceExhausted Reason = "space_exhausted"
	ReasonFailed         Reason = "failed"
)

// ErrNoValidObservations is returned alongside the Result of a run in which
// every evaluation failed.
var ErrNoValidObservations = errors.New("smbo: run finished without a valid observation")

// Evaluator runs batches of evaluations. *harness.Harness implements it.
type Evaluator interface {
	EvaluateBatch(ctx context.Context, points []space.Point) []harness.BatchResult
	Parallelism() int
}

// Proposer chooses the next points from a fitted surrogate.
// *infill.Proposer implements it.
type Proposer interface {
	Propose(ctx context.Context, req infill.Request) ([]space.Point, error)
}

// Config wires the collaborators of a Loop.
type Config struct {
	Space     *space.Space
	Evaluator Evaluator
	// Model defaults to a Gaussian process.
	Model surrogate.Model
	// Proposer defaults to an infill.Proposer built from Infill.
	Proposer  Proposer
	Infill    infill.Config
	Direction resultlog.Direction
	// InitialStrategy defaults to a Latin hypercube of InitialSize points;
	// InitialSize defaults to 2*dim+1.
	InitialStrategy space.Strategy
	InitialSize     int
	Budget          Budget
	// BatchSize is the number of points proposed per iteration.
	BatchSize int
	// RefitEvery is the surrogate refit cadence in iterations.
	RefitEvery int
	Seed       int64
	Logger     *slog.Logger
}

// Progress is a snapshot of a running loop.
type Progress struct {
	RunID       string
	State       State
	Iteration   int
	Proposed    int
	Evaluations int
	Failures    int
	Best        *resultlog.Observation
	Elapsed     time.Duration
	// Remaining is the number of points that may still be proposed, or -1.
	Remaining int
	// TimeLeft is the time until the deadline, or -1.
	TimeLeft time.Duration
}

// Result summarizes a finished run.
type Result struct {
	RunID           string
	Reason          Reason
	Detail          string
	Best            *resultlog.Observation
	Evaluations     int
	Failures        int
	FailureFraction float64
	// Proposed counts points proposed after the initial design.
	Proposed      int
	Iterations    int
	Fits          int
	DesignWarning string
	Duration      time.Duration
	Log           *resultlog.Log
}

// Option customizes a Loop.
type Option func(*Loop)

// WithStopPredicate adds a stopping predicate.
func WithStopPredicate(p StopPredicate) Option {
	return func(l *Loop) {
		l.stop.Add(p)
	}
}

// WithProgressReporter registers fn to be called on every state transition
// and after every evaluated chunk.
func WithProgressReporter(fn func(Progress)) Option {
	return func(l *Loop) {
		if fn != nil {
			l.reporters = append(l.reporters, fn)
		}
	}
}

// WithResultLog records observations into log instead of a fresh one.
func WithResultLog(log *resultlog.Log) Option {
	return func(l *Loop) {
		if log != nil {
			l.results = log
		}
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(l *Loop) {
		if id != "" {
			l.runID = id
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}

// Loop is a single optimization run. It is not reusable.
type Loop struct {
	cfg       Config
	rng       *utils.RandSource
	results   *resultlog.Log
	stop      *CombinedStrategy
	reporters []func(Progress)
	log       *slog.Logger
	now       func() time.Time
	runID     string

	mu       sync.RWMutex
	progress Progress
	started  time.Time
	clock    *budgetClock
}

// New validates cfg and fills in defaults.
func New(cfg Config, opts ...Option) (*Loop, error) {
	if cfg.Space == nil {
		return nil, fmt.Errorf("parameter space is required")
	}
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if err := cfg.Budget.validate(); err != nil {
		return nil, err
	}
	if cfg.BatchSize < 0 || cfg.RefitEvery < 0 || cfg.InitialSize < 0 {
		return nil, fmt.Errorf("batch size, refit cadence and initial size cannot be negative")
	}
	if cfg.Direction == "" {
		cfg.Direction = resultlog.Minimize
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1
	}
	if cfg.RefitEvery == 0 {
		cfg.RefitEvery = 1
	}
	if cfg.InitialStrategy == nil {
		cfg.InitialStrategy = space.LatinHypercube{}
	}
	if cfg.InitialSize == 0 {
		if _, isGrid := cfg.InitialStrategy.(space.Grid); !isGrid {
			cfg.InitialSize = 2*cfg.Space.Dim() + 1
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default
	}

	rng := utils.NewRandSource(cfg.Seed)
	if cfg.Model == nil {
		m, err := surrogate.New("gp", surrogate.DefaultOptions())
		if err != nil {
			return nil, err
		}
		cfg.Model = m
	}
	if cfg.Proposer == nil {
		p, err := infill.NewProposer(cfg.Space, cfg.Infill, rng.Split())
		if err != nil {
			return nil, err
		}
		cfg.Proposer = p
	}

	l := &Loop{
		cfg:     cfg,
		rng:     rng,
		results: resultlog.New(),
		stop:    NewCombinedStrategy(),
		now:     time.Now,
		runID:   utils.GenerateRunID(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = cfg.Logger.With("run_id", l.runID)
	l.progress = Progress{RunID: l.runID, State: StateInitializing, Remaining: -1, TimeLeft: -1}
	return l, nil
}

// RunID identifies the run.
func (l *Loop) RunID() string {
	return l.runID
}

// ResultLog returns the log observations are recorded into.
func (l *Loop) ResultLog() *resultlog.Log {
	return l.results
}

// Direction returns the optimization direction.
func (l *Loop) Direction() resultlog.Direction {
	return l.cfg.Direction
}

// Progress returns the latest progress snapshot. Safe for concurrent use.
func (l *Loop) Progress() Progress {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p := l.progress
	if p.State != StateTerminated && !l.started.IsZero() {
		p.Elapsed = l.now().Sub(l.started)
	}
	return p
}

// Run executes the loop until termination. Per-evaluation failures are
// recorded and never returned; surrogate and infill failures abort the run.
// The Result is returned even when err is non-nil.
func (l *Loop) Run(ctx context.Context) (*Result, error) {
	start := l.now()
	l.mu.Lock()
	l.started = start
	l.clock = newBudgetClock(l.cfg.Budget, start)
	l.progress.Remaining = l.clock.remaining()
	l.mu.Unlock()
	res := &Result{RunID: l.runID, Log: l.results}

	l.log.Info("starting optimization",
		"dimensions", l.cfg.Space.Dim(),
		"direction", l.cfg.Direction,
		"iterations", l.cfg.Budget.Iterations,
		"time_budget", l.cfg.Budget.Time,
		"batch_size", l.cfg.BatchSize)
	l.transition(StateInitializing)

	d, err := design.Initial(l.cfg.Space, l.cfg.InitialSize, l.cfg.InitialStrategy, l.rng)
	if err != nil {
		return l.finish(res, start, fmt.Errorf("initial design: %w", err))
	}
	res.DesignWarning = d.Warning
	l.log.Info("initial design ready", "strategy", l.cfg.InitialStrategy.Name(), "points", len(d.Points))

	var (
		pending  = d.Points
		initial  = true
		fitted   surrogate.State
		sinceFit int
	)
	l.transition(StateEvaluating)

loop:
	for {
		if reason, detail := l.checkTermination(ctx); reason != "" {
			res.Reason, res.Detail = reason, detail
			break loop
		}

		switch l.state() {
		case StateEvaluating:
			if err := l.evaluate(ctx, pending, initial); err != nil {
				return l.finish(res, start, err)
			}
			pending, initial = nil, false
			l.transition(StateFitting)

		case StateFitting:
			valid := l.results.Valid()
			if len(valid) > 0 && (fitted == nil || sinceFit >= l.cfg.RefitEvery) {
				fitted, err = l.fit(valid)
				if err != nil {
					return l.finish(res, start, err)
				}
				sinceFit = 0
				res.Fits++
			}
			l.transition(StateProposing)

		case StateProposing:
			n := l.cfg.BatchSize
			if r := l.clock.remaining(); r >= 0 {
				n = min(n, r)
			}
			points, err := l.propose(ctx, fitted, n)
			if errors.Is(err, infill.ErrNoCandidates) && l.spaceExhausted() {
				res.Reason, res.Detail = ReasonSpaceExhausted, "every point of the space has been evaluated"
				break loop
			}
			if err != nil {
				return l.finish(res, start, err)
			}
			l.mu.Lock()
			l.clock.consume(len(points))
			l.progress.Iteration++
			l.progress.Proposed = l.clock.used
			l.progress.Remaining = l.clock.remaining()
			l.mu.Unlock()
			res.Iterations++
			sinceFit++
			pending = points
			l.transition(StateEvaluating)
		}
	}
	return l.finish(res, start, nil)
}

// checkTermination runs at the top of every step.
func (l *Loop) checkTermination(ctx context.Context) (Reason, string) {
	if err := ctx.Err(); err != nil {
		return ReasonCanceled, err.Error()
	}
	if l.clock.timeExhausted(l.now()) {
		return ReasonTime, fmt.Sprintf("time budget of %s exhausted", l.cfg.Budget.Time)
	}
	if l.state() == StateEvaluating {
		return "", ""
	}
	if l.clock.iterationsExhausted() {
		return ReasonIterations, fmt.Sprintf("iteration budget of %d exhausted", l.cfg.Budget.Iterations)
	}
	if l.stop.Len() > 0 {
		if stop, reason := l.stop.ShouldStop(l.results.History(), l.cfg.Direction); stop {
			return ReasonStopPredicate, reason
		}
	}
	return "", ""
}

// evaluate runs points in chunks of the evaluator's parallelism, stopping
// between chunks once the time budget is spent or ctx is done.
func (l *Loop) evaluate(ctx context.Context, points []space.Point, initial bool) error {
	chunk := max(l.cfg.Evaluator.Parallelism(), 1)
	for i := 0; i < len(points); i += chunk {
		if i > 0 && (ctx.Err() != nil || l.clock.timeExhausted(l.now())) {
			l.log.Info("stopping mid-batch", "evaluated", i, "batch", len(points))
			return nil
		}
		batch := points[i:min(i+chunk, len(points))]
		for _, r := range l.cfg.Evaluator.EvaluateBatch(ctx, batch) {
			if err := l.record(r, initial); err != nil {
				return err
			}
		}
		l.report()
	}
	return nil
}

// record appends one batch result to the log. Only a domain error, which
// means the loop produced an invalid point, is returned.
func (l *Loop) record(r harness.BatchResult, initial bool) error {
	var domainErr *space.DomainError
	if errors.As(r.Err, &domainErr) {
		return fmt.Errorf("evaluated point outside the parameter space: %w", r.Err)
	}

	ev := r.Evaluation
	o := resultlog.Observation{
		Identity: ev.Identity,
		Point:    ev.Point,
		Value:    ev.Value,
		ExitCode: ev.ExitCode,
		Duration: ev.Duration,
		Artifact: ev.ArtifactPath,
		Initial:  initial,
	}
	if !ev.StartedAt.IsZero() {
		o.Timestamp = ev.StartedAt.Add(ev.Duration)
	}
	if r.Err != nil {
		o.Failed = true
		o.Value = 0
		o.Failure = r.Err.Error()
		o.FailureKind = "error"
		var evalErr *harness.EvalError
		if errors.As(r.Err, &evalErr) {
			o.FailureKind = string(evalErr.Kind)
		}
	}
	stored := l.results.Append(o)
	if stored.Failed {
		l.log.Warn("evaluation failed; continuing",
			"seq", stored.Seq,
			"point", l.cfg.Space.Format(stored.Point),
			"kind", stored.FailureKind,
			"error", stored.Failure)
	} else {
		l.log.Info("evaluation recorded",
			"seq", stored.Seq,
			"point", l.cfg.Space.Format(stored.Point),
			"value", stored.Value)
	}
	return nil
}

// fit refits the surrogate on valid observations in minimization
// orientation.
func (l *Loop) fit(valid []resultlog.Observation) (surrogate.State, error) {
	sign := l.cfg.Direction.Sign()
	samples := make([]surrogate.Sample, 0, len(valid))
	for _, o := range valid {
		x, err := l.cfg.Space.Encode(o.Point)
		if err != nil {
			return nil, fmt.Errorf("encode observation %d: %w", o.Seq, err)
		}
		samples = append(samples, surrogate.Sample{X: l.cfg.Space.Normalize(x), Y: sign * o.Value})
	}
	st, err := l.cfg.Model.Fit(samples)
	if err != nil {
		var fitErr *surrogate.FitError
		if !errors.As(err, &fitErr) {
			err = &surrogate.FitError{Model: l.cfg.Model.Name(), Samples: len(samples), Err: err}
		}
		return nil, err
	}
	l.log.Debug("surrogate fitted", "model", l.cfg.Model.Name(), "samples", len(samples))
	return st, nil
}

// propose asks the infill optimizer for n points. Without a fitted
// surrogate the points are drawn uniformly.
func (l *Loop) propose(ctx context.Context, st surrogate.State, n int) ([]space.Point, error) {
	if st == nil {
		l.log.Warn("no valid observation yet; proposing random points", "count", n)
		return space.Uniform{}.Sample(l.cfg.Space, n, l.rng)
	}

	history := l.results.History()
	evaluated := make([][]float64, 0, len(history))
	for _, o := range history {
		x, err := l.cfg.Space.Encode(o.Point)
		if err != nil {
			continue
		}
		evaluated = append(evaluated, l.cfg.Space.Normalize(x))
	}
	best, _ := l.results.Best(l.cfg.Direction)

	points, err := l.cfg.Proposer.Propose(ctx, infill.Request{
		State:     st,
		Best:      l.cfg.Direction.Sign() * best.Value,
		Evaluated: evaluated,
		N:         n,
	})
	if err != nil {
		return nil, fmt.Errorf("infill: %w", err)
	}
	for _, p := range points {
		if err := l.cfg.Space.Validate(p); err != nil {
			return nil, fmt.Errorf("infill proposed an invalid point: %w", err)
		}
	}
	return points, nil
}

// spaceExhausted reports whether a finite space has been fully evaluated.
func (l *Loop) spaceExhausted() bool {
	card, finite := l.cfg.Space.Cardinality()
	if !finite {
		return false
	}
	seen := make(map[string]struct{})
	for _, o := range l.results.History() {
		if x, err := l.cfg.Space.Encode(o.Point); err == nil {
			seen[utils.VectorDigest(x)] = struct{}{}
		}
	}
	return len(seen) >= card
}

func (l *Loop) finish(res *Result, start time.Time, err error) (*Result, error) {
	if err != nil {
		res.Reason, res.Detail = ReasonFailed, err.Error()
	}
	res.Duration = l.now().Sub(start)
	res.Evaluations = l.results.Len()
	res.Failures = l.results.Failures()
	if res.Evaluations > 0 {
		res.FailureFraction = float64(res.Failures) / float64(res.Evaluations)
	}
	res.Proposed = l.clock.used
	if best, ok := l.results.Best(l.cfg.Direction); ok {
		res.Best = &best
	}

	l.mu.Lock()
	l.progress.Elapsed = res.Duration
	l.mu.Unlock()
	l.transition(StateTerminated)

	attrs := []any{
		"reason", res.Reason,
		"detail", res.Detail,
		"evaluations", res.Evaluations,
		"failures", res.Failures,
		"duration", utils.FormatDuration(res.Duration),
	}
	if res.Best != nil {
		attrs = append(attrs, "best_value", res.Best.Value, "best_point", l.cfg.Space.Format(res.Best.Point))
	}
	if err != nil {
		l.log.Error("optimization aborted", append(attrs, "error", err)...)
		return res, err
	}
	l.log.Info("optimization finished", attrs...)
	if res.Best == nil {
		return res, ErrNoValidObservations
	}
	return res, nil
}

func (l *Loop) state() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.progress.State
}

func (l *Loop) transition(s State) {
	l.mu.Lock()
	l.progress.State = s
	l.mu.Unlock()
	l.log.Debug("state transition", "state", s)
	l.report()
}

// report refreshes the progress counters and notifies reporters.
func (l *Loop) report() {
	l.mu.Lock()
	l.progress.Evaluations = l.results.Len()
	l.progress.Failures = l.results.Failures()
	if best, ok := l.results.Best(l.cfg.Direction); ok {
		l.progress.Best = &best
	}
	if l.clock != nil {
		l.progress.TimeLeft = l.clock.timeLeft(l.now())
	}
	p := l.progress
	if p.State != StateTerminated && !l.started.IsZero() {
		p.Elapsed = l.now().Sub(l.started)
	}
	l.mu.Unlock()

	for _, fn := range l.reporters {
		fn(p)
	}
}
