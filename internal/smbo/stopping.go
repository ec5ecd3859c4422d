package smbo

import (
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/smbo/internal/resultlog"
)

// StopPredicate decides whether a run should stop early given its history.
// It is consulted at the top of every loop step once the initial design has
// been evaluated.
type StopPredicate interface {
	// ShouldStop returns true and a human-readable reason to stop.
	ShouldStop(history []resultlog.Observation, dir resultlog.Direction) (bool, string)
	// Name returns the name of the predicate
	Name() string
}

// StopFunc adapts a function to StopPredicate.
type StopFunc func(history []resultlog.Observation, dir resultlog.Direction) (bool, string)

func (f StopFunc) ShouldStop(history []resultlog.Observation, dir resultlog.Direction) (bool, string) {
	return f(history, dir)
}

func (f StopFunc) Name() string {
	return "custom"
}

// TargetStrategy stops once a valid observation reaches Target.
type TargetStrategy struct {
	Target float64
}

func (s TargetStrategy) Name() string {
	return "target"
}

func (s TargetStrategy) ShouldStop(history []resultlog.Observation, dir resultlog.Direction) (bool, string) {
	for _, o := range history {
		if o.Failed {
			continue
		}
		if o.Value == s.Target || dir.Better(o.Value, s.Target) {
			return true, fmt.Sprintf("target %g reached by observation %d (value %g)", s.Target, o.Seq, o.Value)
		}
	}
	return false, ""
}

// NoImprovementStrategy stops when the last Window valid proposed
// observations did not improve on the best value.
type NoImprovementStrategy struct {
	Window int
}

func (s NoImprovementStrategy) Name() string {
	return "no_improvement"
}

func (s NoImprovementStrategy) ShouldStop(history []resultlog.Observation, dir resultlog.Direction) (bool, string) {
	if s.Window <= 0 {
		return false, ""
	}

	// Find where the best value so far was observed
	bestIdx := -1
	var bestValue float64
	for i, o := range history {
		if o.Failed {
			continue
		}
		if bestIdx < 0 || dir.Better(o.Value, bestValue) {
			bestIdx = i
			bestValue = o.Value
		}
	}
	if bestIdx < 0 {
		return false, ""
	}

	// Only proposed observations count towards the window
	since := 0
	for _, o := range history[bestIdx+1:] {
		if !o.Failed && !o.Initial {
			since++
		}
	}
	if since >= s.Window {
		return true, fmt.Sprintf("no improvement for %d evaluations (best %g at observation %d)", since, bestValue, history[bestIdx].Seq)
	}
	return false, ""
}

// PlateauStrategy stops when the last Window valid values lie within
// Tolerance of each other.
type PlateauStrategy struct {
	Window    int
	Tolerance float64
}

func (s PlateauStrategy) Name() string {
	return "plateau"
}

func (s PlateauStrategy) ShouldStop(history []resultlog.Observation, _ resultlog.Direction) (bool, string) {
	if s.Window < 2 {
		return false, ""
	}
	recent := make([]float64, 0, s.Window)
	for i := len(history) - 1; i >= 0 && len(recent) < s.Window; i-- {
		if !history[i].Failed {
			recent = append(recent, history[i].Value)
		}
	}
	if len(recent) < s.Window {
		return false, ""
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range recent {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if spread := hi - lo; spread <= s.Tolerance {
		return true, fmt.Sprintf("values plateaued for %d evaluations (range: %.6g)", s.Window, spread)
	}
	return false, ""
}

// CombinedStrategy stops as soon as any member predicate does.
type CombinedStrategy struct {
	predicates []StopPredicate
}

// NewCombinedStrategy combines predicates; nil entries are skipped.
func NewCombinedStrategy(predicates ...StopPredicate) *CombinedStrategy {
	c := &CombinedStrategy{}
	for _, p := range predicates {
		c.Add(p)
	}
	return c
}

func (s *CombinedStrategy) Name() string {
	return "combined"
}

// Add appends a predicate.
func (s *CombinedStrategy) Add(p StopPredicate) {
	if p != nil {
		s.predicates = append(s.predicates, p)
	}
}

// Len returns the number of member predicates.
func (s *CombinedStrategy) Len() int {
	return len(s.predicates)
}

func (s *CombinedStrategy) ShouldStop(history []resultlog.Observation, dir resultlog.Direction) (bool, string) {
	for _, p := range s.predicates {
		if stop, reason := p.ShouldStop(history, dir); stop {
			return true, fmt.Sprintf("%s: %s", p.Name(), reason)
		}
	}
	return false, ""
}
