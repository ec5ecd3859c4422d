// Package metrics records evaluation and loop metrics, both as prometheus
// series and as in-memory aggregations for run summaries.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoSim-25-26J-441/smbo/internal/smbo"
)

const namespace = "smbo"

// Recorder implements harness.Observer and consumes smbo.Progress reports.
// It owns a private registry so several runs in one process do not clash.
type Recorder struct {
	registry  *prometheus.Registry
	collector *Collector

	evaluations *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	bestValue   prometheus.Gauge
	iterations  prometheus.Gauge
	proposed    prometheus.Gauge
	state       *prometheus.GaugeVec

	mu       sync.Mutex
	lastBest int
}

// NewRecorder registers the run metrics on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry:  prometheus.NewRegistry(),
		collector: NewCollector(),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Total number of external evaluations by outcome",
		}, []string{"outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Wall-clock duration of external evaluations",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"outcome"}),
		bestValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_value",
			Help:      "Best objective value observed so far",
		}),
		iterations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "iterations",
			Help:      "Number of completed proposal rounds",
		}),
		proposed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "proposed_points",
			Help:      "Number of points proposed by the surrogate",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loop_state",
			Help:      "1 for the current state of the optimization loop",
		}, []string{"state"}),
	}
	r.registry.MustRegister(
		r.evaluations,
		r.durations,
		r.bestValue,
		r.iterations,
		r.proposed,
		r.state,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	r.collector.Start()
	return r
}

// ObserveEvaluation implements harness.Observer.
func (r *Recorder) ObserveEvaluation(outcome string, d time.Duration) {
	r.evaluations.WithLabelValues(outcome).Inc()
	r.durations.WithLabelValues(outcome).Observe(d.Seconds())
	RecordEvaluationDuration(r.collector, d, time.Now(), outcome)
}

// ReportProgress is an smbo progress reporter.
func (r *Recorder) ReportProgress(p smbo.Progress) {
	for _, s := range []smbo.State{smbo.StateInitializing, smbo.StateEvaluating, smbo.StateFitting, smbo.StateProposing, smbo.StateTerminated} {
		v := 0.0
		if s == p.State {
			v = 1
		}
		r.state.WithLabelValues(string(s)).Set(v)
	}
	r.iterations.Set(float64(p.Iteration))
	r.proposed.Set(float64(p.Proposed))
	if p.State == smbo.StateTerminated {
		r.collector.Stop()
	}

	if p.Best == nil {
		return
	}
	r.bestValue.Set(p.Best.Value)
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Best.Seq != r.lastBest {
		r.lastBest = p.Best.Seq
		RecordBestValue(r.collector, p.Best.Value, p.Best.Timestamp)
	}
}

// Registry exposes the prometheus registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Summary aggregates the collected series.
func (r *Recorder) Summary() *Summary {
	return r.collector.GetSummary()
}

// Collector returns the in-memory collector.
func (r *Recorder) Collector() *Collector {
	return r.collector
}
