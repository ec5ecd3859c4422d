// Package design builds the initial batch of points that seeds an
// optimization run.
package design

import (
	"fmt"

	"github.com/GoSim-25-26J-441/smbo/internal/space"
	"github.com/GoSim-25-26J-441/smbo/pkg/logger"
	"github.com/GoSim-25-26J-441/smbo/pkg/utils"
)

// maxTopUpAttempts bounds the uniform draws used to replace duplicates
// removed from a unique strategy's output.
const maxTopUpAttempts = 64

// Design is the outcome of Initial.
type Design struct {
	Points []space.Point
	// Requested is the size asked for; len(Points) may be smaller.
	Requested int
	// Clamped is set when the request exceeded what the space or the
	// strategy can supply without repeats.
	Clamped bool
	Warning string
}

// Initial draws an initial design of size points. The result is
// deterministic for a given random source state. Strategies that promise
// uniqueness (grid, latin hypercube) never return the same point twice; a
// request larger than the space's finite cardinality is clamped and reported
// through Design.Warning rather than failing. At least one point is always
// returned.
func Initial(s *space.Space, size int, strategy space.Strategy, rng *utils.RandSource) (*Design, error) {
	if s == nil {
		return nil, fmt.Errorf("parameter space is required")
	}
	if strategy == nil {
		return nil, fmt.Errorf("design strategy is required")
	}

	d := &Design{Requested: size}
	target := size
	if _, isGrid := strategy.(space.Grid); isGrid && size <= 0 {
		// grid without an explicit size means the full grid
		target = 0
	} else if target < 1 {
		target = 1
	}

	if card, finite := s.Cardinality(); finite && strategy.Unique() && target > card {
		d.clamp(fmt.Sprintf("requested %d design points but the space has only %d distinct points", target, card))
		target = card
	}

	points, err := s.Sample(target, strategy, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to sample initial design: %w", err)
	}

	if strategy.Unique() {
		points, err = dedupe(s, points)
		if err != nil {
			return nil, err
		}
		if want := target; want > 0 && len(points) < want {
			points = topUp(s, points, want, rng)
			if len(points) < want {
				d.clamp(fmt.Sprintf("strategy %s produced only %d distinct points of %d requested", strategy.Name(), len(points), want))
			}
		}
	}

	if size > 0 && len(points) < size && !d.Clamped {
		d.clamp(fmt.Sprintf("strategy %s produced %d points of %d requested", strategy.Name(), len(points), size))
	}

	if len(points) == 0 {
		// every strategy can produce at least the centre of the space
		centre := make([]float64, s.Dim())
		for i := range centre {
			centre[i] = 0.5
		}
		p, err := s.Decode(s.Denormalize(centre))
		if err != nil {
			return nil, err
		}
		points = []space.Point{p}
	}

	d.Points = points
	if d.Clamped {
		logger.Warn("initial design clamped", "requested", size, "produced", len(points), "reason", d.Warning)
	}
	return d, nil
}

func (d *Design) clamp(reason string) {
	d.Clamped = true
	d.Warning = reason
}

func dedupe(s *space.Space, points []space.Point) ([]space.Point, error) {
	seen := make(map[string]bool, len(points))
	out := points[:0]
	for _, p := range points {
		x, err := s.Encode(p)
		if err != nil {
			return nil, err
		}
		key := utils.VectorDigest(x)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out, nil
}

// topUp replaces points lost to deduplication with uniform draws that are
// not already in the design.
func topUp(s *space.Space, points []space.Point, want int, rng *utils.RandSource) []space.Point {
	if rng == nil {
		return points
	}
	seen := make(map[string]bool, len(points))
	for _, p := range points {
		x, _ := s.Encode(p)
		seen[utils.VectorDigest(x)] = true
	}
	for attempt := 0; attempt < maxTopUpAttempts*want && len(points) < want; attempt++ {
		extra, err := s.Sample(1, space.Uniform{}, rng)
		if err != nil || len(extra) == 0 {
			break
		}
		x, _ := s.Encode(extra[0])
		key := utils.VectorDigest(x)
		if seen[key] {
			continue
		}
		seen[key] = true
		points = append(points, extra[0])
	}
	return points
}
