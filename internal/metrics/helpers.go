package metrics

import "time"

// Metric names kept by the in-memory collector
const (
	MetricEvaluationSeconds = "evaluation_seconds"
	MetricBestValue         = "best_value"
)

// OutcomeSuccess labels evaluations that produced a value.
const OutcomeSuccess = "success"

// RecordEvaluationDuration records how long one evaluation took
func RecordEvaluationDuration(collector *Collector, d time.Duration, timestamp time.Time, outcome string) {
	collector.Record(MetricEvaluationSeconds, d.Seconds(), timestamp, OutcomeLabels(outcome))
}

// RecordBestValue records the best value so far
func RecordBestValue(collector *Collector, value float64, timestamp time.Time) {
	collector.Record(MetricBestValue, value, timestamp, nil)
}

// OutcomeLabels creates a labels map for an evaluation outcome
func OutcomeLabels(outcome string) map[string]string {
	return map[string]string{
		"outcome": outcome,
	}
}
