// Package resultlog is the append-only record of every evaluation of a run
// and the source of truth for the best observation so far.
package resultlog

import (
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/smbo/internal/space"
)

// Observation is one completed evaluation. Value is meaningful only when
// Failed is false.
type Observation struct {
	Seq      int
	Identity string
	Point    space.Point
	Value    float64
	Failed   bool
	// FailureKind and Failure describe why a failed evaluation produced no
	// value.
	FailureKind string
	Failure     string
	ExitCode    int
	Duration    time.Duration
	Timestamp   time.Time
	Artifact    string
	// Initial marks observations from the initial design.
	Initial bool
}

func (o Observation) clone() Observation {
	o.Point = o.Point.Clone()
	return o
}

// Log is safe for concurrent use.
type Log struct {
	mu   sync.RWMutex
	obs  []Observation
	now  func() time.Time
	fail int
}

// New returns an empty log.
func New() *Log {
	return &Log{now: time.Now}
}

// Append records o and returns the stored copy. Seq is assigned by the log;
// a zero Timestamp is set to the current time.
func (l *Log) Append(o Observation) Observation {
	l.mu.Lock()
	defer l.mu.Unlock()

	o = o.clone()
	o.Seq = len(l.obs) + 1
	if o.Timestamp.IsZero() {
		o.Timestamp = l.now()
	}
	if o.Failed {
		l.fail++
	}
	l.obs = append(l.obs, o)
	return o.clone()
}

// Len returns the number of observations.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.obs)
}

// Failures returns the number of failed observations.
func (l *Log) Failures() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fail
}

// History returns a copy of every observation in append order.
func (l *Log) History() []Observation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Observation, len(l.obs))
	for i, o := range l.obs {
		out[i] = o.clone()
	}
	return out
}

// Valid returns a copy of the successful observations in append order.
func (l *Log) Valid() []Observation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Observation, 0, len(l.obs)-l.fail)
	for _, o := range l.obs {
		if !o.Failed {
			out = append(out, o.clone())
		}
	}
	return out
}

// Best returns the extremal successful observation for dir. Ties go to the
// earliest timestamp, then to the earliest append. ok is false when no
// successful observation exists.
func (l *Log) Best(dir Direction) (best Observation, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx := bestIndex(dir, l.obs)
	if idx < 0 {
		return Observation{}, false
	}
	return l.obs[idx].clone(), true
}

func bestIndex(dir Direction, obs []Observation) int {
	idx := -1
	for i, o := range obs {
		if o.Failed {
			continue
		}
		if idx < 0 || earlierBetter(dir, o, obs[idx]) {
			idx = i
		}
	}
	return idx
}

// earlierBetter reports whether a should replace the incumbent b.
func earlierBetter(dir Direction, a, b Observation) bool {
	if dir.Better(a.Value, b.Value) {
		return true
	}
	if a.Value != b.Value {
		return false
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.Seq < b.Seq
}
