package infill

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/optimize"

	"github.com/GoSim-25-26J-441/smbo/internal/space"
	"github.com/GoSim-25-26J-441/smbo/internal/surrogate"
	"github.com/GoSim-25-26J-441/smbo/pkg/utils"
)

// ErrNoCandidates is returned when no point distinct from the evaluated
// ones could be found. It is fatal to a run.
var ErrNoCandidates = errors.New("no candidate points available")

const (
	defaultCandidates = 512
	defaultRestarts   = 4
	defaultMaxEvals   = 200
	// scoreTolerance is the relative tolerance under which two scores tie.
	scoreTolerance = 1e-9
	// minSeparation is the normalized distance under which two points are
	// the same point.
	minSeparation = 1e-9
	// maxEnumerated is the largest finite space whose unevaluated points are
	// listed exhaustively once random candidates run dry.
	maxEnumerated = 4096
	// fallbackDraws multiplies Candidates for the extra random draws used on
	// larger finite spaces.
	fallbackDraws = 4
)

// Config tunes a Proposer.
type Config struct {
	Acquisition Acquisition
	// Candidates is the number of uniform random starting candidates.
	Candidates int
	// Restarts is how many of the best candidates are refined locally.
	Restarts int
	// MaxEvals bounds surrogate evaluations per local refinement.
	MaxEvals int
}

// Request is the input of one Propose call.
type Request struct {
	State surrogate.State
	// Best is the best observed value in minimization orientation.
	Best float64
	// Evaluated holds the unit-cube coordinates of every evaluated point.
	Evaluated [][]float64
	N         int
}

// Proposer searches the parameter space for the points with the highest
// acquisition score. It only ever evaluates the surrogate.
type Proposer struct {
	space *space.Space
	cfg   Config
	rng   *utils.RandSource
}

// NewProposer returns a proposer over s drawing randomness from rng.
func NewProposer(s *space.Space, cfg Config, rng *utils.RandSource) (*Proposer, error) {
	if s == nil {
		return nil, fmt.Errorf("parameter space is required")
	}
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if cfg.Acquisition == nil {
		cfg.Acquisition = ExpectedImprovement{}
	}
	if cfg.Candidates <= 0 {
		cfg.Candidates = defaultCandidates
	}
	if cfg.Restarts < 0 {
		return nil, fmt.Errorf("restarts cannot be negative")
	}
	if cfg.Restarts == 0 {
		cfg.Restarts = defaultRestarts
	}
	if cfg.MaxEvals <= 0 {
		cfg.MaxEvals = defaultMaxEvals
	}
	return &Proposer{space: s, cfg: cfg, rng: rng}, nil
}

// Acquisition returns the configured acquisition.
func (p *Proposer) Acquisition() Acquisition {
	return p.cfg.Acquisition
}

type candidate struct {
	u     []float64
	score float64
	// spread is the distance to the nearest evaluated or selected point.
	spread float64
}

// Propose returns up to req.N points ordered by decreasing attractiveness.
// Ties within tolerance go to the point farthest from everything already
// evaluated. Points equal to an evaluated one are never proposed.
func (p *Proposer) Propose(ctx context.Context, req Request) ([]space.Point, error) {
	if req.State == nil {
		return nil, fmt.Errorf("surrogate state is required")
	}
	n := req.N
	if n <= 0 {
		n = 1
	}

	dim := p.space.Dim()
	starts := make([][]float64, p.cfg.Candidates)
	for i := range starts {
		u := make([]float64, dim)
		for j := range u {
			u[j] = p.rng.Float64()
		}
		starts[i] = p.snapUnit(u)
	}
	scores, err := p.score(req, starts)
	if err != nil {
		return nil, err
	}
	pool := make([]candidate, len(starts))
	for i := range starts {
		pool[i] = candidate{u: starts[i], score: scores[i]}
	}
	sortCandidates(pool)

	restarts := min(p.cfg.Restarts, len(pool))
	for i := 0; i < restarts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if refined, ok := p.refine(req, pool[i]); ok {
			pool = append(pool, refined)
		}
	}

	taken := append([][]float64(nil), req.Evaluated...)
	out, taken, err := p.selectPoints(pool, n, taken)
	if err != nil {
		return nil, err
	}
	if len(out) < n {
		// On a discrete space random candidates snap onto evaluated points
		// long before the space is used up.
		extra, err := p.unevaluated(ctx, req, taken)
		if err != nil {
			return nil, err
		}
		more, _, err := p.selectPoints(extra, n-len(out), taken)
		if err != nil {
			return nil, err
		}
		out = append(out, more...)
	}
	if len(out) == 0 {
		return nil, ErrNoCandidates
	}
	return out, nil
}

// unevaluated returns scored candidates of a finite space that are not in
// taken. Small spaces are enumerated, larger ones are sampled again. It
// returns nothing for a space with a continuous parameter.
func (p *Proposer) unevaluated(ctx context.Context, req Request, taken [][]float64) ([]candidate, error) {
	card, finite := p.space.Cardinality()
	if !finite {
		return nil, nil
	}

	var us [][]float64
	if card <= maxEnumerated {
		resolution := 1
		for _, prm := range p.space.Parameters() {
			if c, ok := prm.Cardinality(); ok && c > resolution {
				resolution = c
			}
		}
		points, err := space.Grid{Resolution: resolution}.Sample(p.space, 0, nil)
		if err != nil {
			return nil, fmt.Errorf("enumerate space: %w", err)
		}
		for _, pt := range points {
			x, err := p.space.Encode(pt)
			if err != nil {
				return nil, fmt.Errorf("enumerate space: %w", err)
			}
			us = append(us, p.space.Normalize(x))
		}
	} else {
		dim := p.space.Dim()
		for i := 0; i < fallbackDraws*p.cfg.Candidates; i++ {
			u := make([]float64, dim)
			for j := range u {
				u[j] = p.rng.Float64()
			}
			us = append(us, p.snapUnit(u))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fresh := us[:0]
	for _, u := range us {
		if nearest(u, taken) > minSeparation {
			fresh = append(fresh, u)
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}
	scores, err := p.score(req, fresh)
	if err != nil {
		return nil, err
	}
	pool := make([]candidate, len(fresh))
	for i := range fresh {
		pool[i] = candidate{u: fresh[i], score: scores[i]}
	}
	sortCandidates(pool)
	return pool, nil
}

func (p *Proposer) score(req Request, us [][]float64) ([]float64, error) {
	preds, err := req.State.Predict(us)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	out := make([]float64, len(preds))
	for i, pred := range preds {
		s := p.cfg.Acquisition.Score(pred, req.Best)
		if math.IsNaN(s) {
			s = math.Inf(-1)
		}
		out[i] = s
	}
	return out, nil
}

// refine runs Nelder-Mead from c on the negated acquisition. Coordinates are
// clamped and snapped onto the space before every surrogate call.
func (p *Proposer) refine(req Request, c candidate) (candidate, bool) {
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			s, err := p.score(req, [][]float64{p.snapUnit(x)})
			if err != nil || math.IsInf(s[0], -1) {
				return math.Inf(1)
			}
			return -s[0]
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: p.cfg.MaxEvals,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Iterations: 25,
		},
	}
	result, err := optimize.Minimize(problem, append([]float64(nil), c.u...), settings, &optimize.NelderMead{})
	if result == nil || (err != nil && result.X == nil) {
		return candidate{}, false
	}
	u := p.snapUnit(result.X)
	scores, err := p.score(req, [][]float64{u})
	if err != nil || scores[0] <= c.score {
		return candidate{}, false
	}
	return candidate{u: u, score: scores[0]}, true
}

// selectPoints picks up to n distinct points from pool that are not in
// taken, resolving ties by distance from taken and already selected points.
// It returns taken extended with the selection.
func (p *Proposer) selectPoints(pool []candidate, n int, taken [][]float64) ([]space.Point, [][]float64, error) {
	var out []space.Point

	for len(out) < n {
		picked := -1
		for i := range pool {
			c := &pool[i]
			c.spread = nearest(c.u, taken)
			if c.spread <= minSeparation || math.IsInf(c.score, -1) {
				continue
			}
			switch {
			case picked < 0:
				picked = i
			case scoresTie(c.score, pool[picked].score):
				if c.spread > pool[picked].spread {
					picked = i
				}
			case c.score > pool[picked].score:
				picked = i
			}
		}
		if picked < 0 {
			break
		}
		c := pool[picked]
		pt, err := p.space.Decode(p.space.Denormalize(c.u))
		if err != nil {
			return nil, nil, fmt.Errorf("decode candidate: %w", err)
		}
		out = append(out, pt)
		taken = append(taken, c.u)
		pool = append(pool[:picked], pool[picked+1:]...)
	}
	return out, taken, nil
}

// snapUnit clamps u into the unit cube and moves it onto the nearest valid
// point of the space.
func (p *Proposer) snapUnit(u []float64) []float64 {
	clamped := make([]float64, len(u))
	for i, v := range u {
		clamped[i] = utils.Clamp(v, 0, 1)
	}
	return p.space.Normalize(p.space.Denormalize(clamped))
}

// sortCandidates orders by decreasing score.
func sortCandidates(pool []candidate) {
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].score > pool[j].score
	})
}

func scoresTie(a, b float64) bool {
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}
	return utils.AlmostEqual(a, b, scoreTolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b))))
}

func nearest(u []float64, others [][]float64) float64 {
	best := math.Inf(1)
	for _, o := range others {
		if d := math.Sqrt(utils.SquaredDistance(u, o)); d < best {
			best = d
		}
	}
	return best
}
