// Package metrics exposes Prometheus collectors for classification and runs.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"ProtagonismAnalyzer/internal/domain"
)

const namespace = "protagonism"

// Recorder groups the collectors of one process. A nil *Recorder is a no-op.
type Recorder struct {
	registry *prometheus.Registry

	// ClassifierRequests counts calls sent to the classifier service by outcome.
	ClassifierRequests *prometheus.CounterVec
	// ClassifierRetries counts backoff waits by cause.
	ClassifierRetries *prometheus.CounterVec
	// ClassifierLatency observes single-attempt durations.
	ClassifierLatency prometheus.Histogram
	// PairResults counts terminal pair results by label and origin.
	PairResults *prometheus.CounterVec
	// RunRecords tracks the last run's counters.
	RunRecords *prometheus.GaugeVec
}

// New registers all collectors on a private registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		ClassifierRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classifier_requests_total",
				Help:      "Requests sent to the classifier service",
			},
			[]string{"outcome"},
		),
		ClassifierRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classifier_retries_total",
				Help:      "Backoff waits before retrying a classifier request",
			},
			[]string{"cause"},
		),
		ClassifierLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "classifier_request_duration_seconds",
				Help:      "Duration of single classifier attempts",
				Buckets:   prometheus.DefBuckets,
			},
		),
		PairResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pair_results_total",
				Help:      "Terminal (article, brand) results",
			},
			[]string{"label", "origin"},
		),
		RunRecords: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_records",
				Help:      "Counters of the last finished run",
			},
			[]string{"kind"},
		),
	}
	r.registry.MustRegister(
		r.ClassifierRequests,
		r.ClassifierRetries,
		r.ClassifierLatency,
		r.PairResults,
		r.RunRecords,
	)
	return r
}

// Registry exposes the underlying registry, e.g. for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveRequest records one classifier attempt.
func (r *Recorder) ObserveRequest(outcome string, seconds float64) {
	if r == nil {
		return
	}
	r.ClassifierRequests.WithLabelValues(outcome).Inc()
	r.ClassifierLatency.Observe(seconds)
}

// ObserveRetry records one backoff wait.
func (r *Recorder) ObserveRetry(cause string) {
	if r == nil {
		return
	}
	r.ClassifierRetries.WithLabelValues(cause).Inc()
}

// ObserveResult records one terminal pair result.
func (r *Recorder) ObserveResult(res domain.ClassificationResult) {
	if r == nil {
		return
	}
	r.PairResults.WithLabelValues(string(res.Label), string(res.Origin)).Inc()
}

// ObserveSummary copies the run summary into gauges.
func (r *Recorder) ObserveSummary(s domain.RunSummary) {
	if r == nil {
		return
	}
	r.RunRecords.WithLabelValues("articles_fetched").Set(float64(s.ArticlesFetched))
	r.RunRecords.WithLabelValues("duplicates_merged").Set(float64(s.DuplicatesMerged))
	r.RunRecords.WithLabelValues("pairs_dispatched").Set(float64(s.PairsDispatched))
	r.RunRecords.WithLabelValues("pairs_failed").Set(float64(s.PairsFailed))
	r.RunRecords.WithLabelValues("pairs_undispatched").Set(float64(s.PairsUndispatched))
	r.RunRecords.WithLabelValues("records_rejected").Set(float64(s.RejectedTotal()))
	r.RunRecords.WithLabelValues("records_written").Set(float64(s.RecordsWritten))
}

// Push sends the registry to a Pushgateway; batch runs have no scrape endpoint.
func (r *Recorder) Push(url, job string) error {
	if r == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(r.registry).Push(); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
