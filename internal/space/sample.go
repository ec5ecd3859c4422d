package space

import (
	"fmt"
	"strings"

	"github.com/GoSim-25-26J-441/smbo/pkg/utils"
)

// Strategy draws points from a Space.
type Strategy interface {
	// Sample returns up to n points. Deterministic given the random source.
	Sample(s *Space, n int, rng *utils.RandSource) ([]Point, error)
	// Name returns the configuration name of the strategy
	Name() string
	// Unique reports whether the strategy never repeats a point.
	Unique() bool
}

// Uniform draws each coordinate independently and uniformly. Duplicates are
// possible on discrete spaces.
type Uniform struct{}

func (Uniform) Name() string { return "random" }
func (Uniform) Unique() bool { return false }

func (Uniform) Sample(s *Space, n int, rng *utils.RandSource) ([]Point, error) {
	if rng == nil {
		return nil, fmt.Errorf("random sampling requires a random source")
	}
	out := make([]Point, 0, n)
	for k := 0; k < n; k++ {
		x := make([]float64, s.Dim())
		for i, p := range s.params {
			switch p.Kind {
			case KindContinuous:
				x[i] = rng.UniformFloat64(p.Lower, p.Upper)
			case KindInteger:
				x[i] = p.Lower + float64(rng.Intn(int(p.Upper-p.Lower)+1))
			case KindCategorical:
				x[i] = float64(rng.Intn(len(p.Values)))
			}
		}
		pt, err := s.Decode(x)
		if err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, nil
}

// Grid is the Cartesian product of Resolution evenly spaced values per
// numeric parameter (fewer for narrow integer ranges) and every value of each
// categorical parameter. The product grows exponentially with the number of
// parameters; bounding it is the caller's responsibility.
type Grid struct {
	Resolution int
}

func (Grid) Name() string { return "grid" }
func (Grid) Unique() bool { return true }

// Axes returns the grid coordinates of every parameter.
func (g Grid) Axes(s *Space) ([][]float64, error) {
	if g.Resolution < 1 {
		return nil, fmt.Errorf("grid resolution must be at least 1, got %d", g.Resolution)
	}
	axes := make([][]float64, s.Dim())
	for i, p := range s.params {
		switch p.Kind {
		case KindContinuous:
			if p.Lower == p.Upper {
				axes[i] = []float64{p.Lower}
			} else {
				axes[i] = utils.Linspace(p.Lower, p.Upper, g.Resolution)
			}
		case KindInteger:
			var axis []float64
			seen := make(map[float64]bool)
			for _, v := range utils.Linspace(p.Lower, p.Upper, g.Resolution) {
				r := p.snap(v)
				if !seen[r] {
					seen[r] = true
					axis = append(axis, r)
				}
			}
			axes[i] = axis
		case KindCategorical:
			axis := make([]float64, len(p.Values))
			for j := range axis {
				axis[j] = float64(j)
			}
			axes[i] = axis
		}
	}
	return axes, nil
}

// Size returns the number of grid points, saturating at the int range.
func (g Grid) Size(s *Space) (int, error) {
	axes, err := g.Axes(s)
	if err != nil {
		return 0, err
	}
	n := 1
	for _, a := range axes {
		if n > (1<<62)/len(a) {
			return 1 << 62, nil
		}
		n *= len(a)
	}
	return n, nil
}

// Sample returns the full grid when n <= 0 or n covers it, otherwise an
// evenly strided subset of the grid in product order.
func (g Grid) Sample(s *Space, n int, _ *utils.RandSource) ([]Point, error) {
	axes, err := g.Axes(s)
	if err != nil {
		return nil, err
	}
	total, _ := g.Size(s)
	pick := total
	if n > 0 && n < total {
		pick = n
	}

	out := make([]Point, 0, pick)
	for k := 0; k < pick; k++ {
		idx := k
		if pick < total {
			idx = int(int64(k) * int64(total) / int64(pick))
		}
		x := make([]float64, len(axes))
		// last parameter varies fastest
		for i := len(axes) - 1; i >= 0; i-- {
			x[i] = axes[i][idx%len(axes[i])]
			idx /= len(axes[i])
		}
		pt, err := s.Decode(x)
		if err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, nil
}

// LatinHypercube splits every dimension into n strata and places exactly one
// point in each stratum per dimension. Points are distinct on continuous
// dimensions; discrete dimensions are snapped and may collide.
type LatinHypercube struct{}

func (LatinHypercube) Name() string { return "lhs" }
func (LatinHypercube) Unique() bool { return true }

func (LatinHypercube) Sample(s *Space, n int, rng *utils.RandSource) ([]Point, error) {
	if rng == nil {
		return nil, fmt.Errorf("latin hypercube sampling requires a random source")
	}
	if n <= 0 {
		return nil, nil
	}
	units := make([][]float64, n)
	for k := range units {
		units[k] = make([]float64, s.Dim())
	}
	for i := 0; i < s.Dim(); i++ {
		perm := rng.Perm(n)
		for k := 0; k < n; k++ {
			units[k][i] = (float64(perm[k]) + rng.Float64()) / float64(n)
		}
	}
	out := make([]Point, 0, n)
	for _, u := range units {
		pt, err := s.Decode(s.Denormalize(u))
		if err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, nil
}

// Sample draws n points from the space using strategy.
func (s *Space) Sample(n int, strategy Strategy, rng *utils.RandSource) ([]Point, error) {
	if strategy == nil {
		return nil, fmt.Errorf("sampling strategy is required")
	}
	return strategy.Sample(s, n, rng)
}

// ParseStrategy maps a configuration name to a Strategy.
func ParseStrategy(name string, resolution int) (Strategy, error) {
	switch strings.ToLower(name) {
	case "random", "uniform":
		return Uniform{}, nil
	case "grid":
		return Grid{Resolution: resolution}, nil
	case "lhs", "latin_hypercube":
		return LatinHypercube{}, nil
	default:
		return nil, fmt.Errorf("unknown sampling strategy: %s", name)
	}
}
