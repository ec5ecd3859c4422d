package resultlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GoSim-25-26J-441/smbo/internal/space"
)

// Record is the exported form of an Observation.
type Record struct {
	Seq             int            `json:"seq" yaml:"seq"`
	Identity        string         `json:"identity,omitempty" yaml:"identity,omitempty"`
	Point           map[string]any `json:"point" yaml:"point"`
	Value           *float64       `json:"value,omitempty" yaml:"value,omitempty"`
	Failed          bool           `json:"failed,omitempty" yaml:"failed,omitempty"`
	FailureKind     string         `json:"failure_kind,omitempty" yaml:"failure_kind,omitempty"`
	Failure         string         `json:"failure,omitempty" yaml:"failure,omitempty"`
	ExitCode        int            `json:"exit_code" yaml:"exit_code"`
	DurationSeconds float64        `json:"duration_seconds" yaml:"duration_seconds"`
	Timestamp       time.Time      `json:"timestamp" yaml:"timestamp"`
	Artifact        string         `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	Initial         bool           `json:"initial,omitempty" yaml:"initial,omitempty"`
}

// Snapshot is an immutable view of a log suitable for persistence.
type Snapshot struct {
	Direction       Direction `json:"direction" yaml:"direction"`
	Best            *Record   `json:"best,omitempty" yaml:"best,omitempty"`
	Total           int       `json:"total" yaml:"total"`
	Failed          int       `json:"failed" yaml:"failed"`
	FailureFraction float64   `json:"failure_fraction" yaml:"failure_fraction"`
	History         []Record  `json:"history,omitempty" yaml:"history,omitempty"`
}

func newRecord(o Observation) Record {
	r := Record{
		Seq:             o.Seq,
		Identity:        o.Identity,
		Point:           map[string]any(o.Point.Clone()),
		Failed:          o.Failed,
		FailureKind:     o.FailureKind,
		Failure:         o.Failure,
		ExitCode:        o.ExitCode,
		DurationSeconds: o.Duration.Seconds(),
		Timestamp:       o.Timestamp,
		Artifact:        o.Artifact,
		Initial:         o.Initial,
	}
	if !o.Failed {
		v := o.Value
		r.Value = &v
	}
	return r
}

// Export snapshots the log. History is included when withHistory is set.
func (l *Log) Export(dir Direction, withHistory bool) Snapshot {
	history := l.History()
	snap := Snapshot{Direction: dir, Total: len(history)}
	for _, o := range history {
		if o.Failed {
			snap.Failed++
		}
	}
	if snap.Total > 0 {
		snap.FailureFraction = float64(snap.Failed) / float64(snap.Total)
	}
	if idx := bestIndex(dir, history); idx >= 0 {
		r := newRecord(history[idx])
		snap.Best = &r
	}
	if withHistory {
		snap.History = make([]Record, len(history))
		for i, o := range history {
			snap.History[i] = newRecord(o)
		}
	}
	return snap
}

// BestPoint returns the best point of the snapshot, or nil.
func (s Snapshot) BestPoint() space.Point {
	if s.Best == nil {
		return nil
	}
	return space.Point(s.Best.Point).Clone()
}

// Marshal encodes the snapshot as JSON for ".json" paths and YAML otherwise.
func (s Snapshot) Marshal(path string) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return json.MarshalIndent(s, "", "  ")
	}
	return yaml.Marshal(s)
}

// WriteFile writes the snapshot to path, creating parent directories.
func (s Snapshot) WriteFile(path string) error {
	data, err := s.Marshal(path)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write result to %s: %w", path, err)
	}
	return nil
}
