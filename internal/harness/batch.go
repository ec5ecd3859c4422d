package harness

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"github.com/GoSim-25-26J-441/smbo/internal/space"
)

// BatchResult is the outcome of one point of a batch.
type BatchResult struct {
	Evaluation Evaluation
	Err        error
}

// EvaluateBatch evaluates points with at most Parallelism invocations in
// flight. Identities for the whole batch are allocated before any program
// starts. A failing evaluation does not cancel its siblings. Results are in
// the order of points.
func (h *Harness) EvaluateBatch(ctx context.Context, points []space.Point) []BatchResult {
	results := make([]BatchResult, len(points))
	ids := make([]Identity, len(points))
	for i, p := range points {
		id, err := h.reserve(p)
		if err != nil {
			results[i] = BatchResult{Evaluation: Evaluation{Point: p}, Err: err}
			continue
		}
		ids[i] = id
	}

	p := pool.New().WithMaxGoroutines(h.parallelism)
	for i := range points {
		if results[i].Err != nil {
			continue
		}
		p.Go(func() {
			ev, err := h.run(ctx, points[i], ids[i])
			results[i] = BatchResult{Evaluation: ev, Err: err}
		})
	}
	p.Wait()
	return results
}

// Parallelism returns the configured worker bound.
func (h *Harness) Parallelism() int {
	return h.parallelism
}
