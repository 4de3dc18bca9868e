package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "passage"

// Retrieval Prometheus metrics.
var (
	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Questions resolved, by outcome",
		},
		[]string{"outcome"}, // found, no_question, no_match, error
	)

	AnswerDistance = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_distance",
			Help:      "Distance between a question and the returned passage",
			Buckets:   []float64{0.1, 0.25, 0.5, 0.75, 1, 1.25, 1.5, 2},
		},
	)

	IndexEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_entries",
			Help:      "Number of chunks held by the vector index",
		},
	)

	IndexDocuments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_documents",
			Help:      "Number of knowledge base documents the index was built from",
		},
	)

	IndexBuildDuration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_build_duration_seconds",
			Help:      "Wall time of the last index build",
		},
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers Prometheus retrieval metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		AnswersTotal,
		AnswerDistance,
		IndexEntries,
		IndexDocuments,
		IndexBuildDuration,
	)
	retrievalMetricsRegistered = true
}
