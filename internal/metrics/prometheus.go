package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClassificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plastic_classifications_total",
		Help: "Total number of classifications, by outcome status",
	}, []string{"status"})

	RecognizedLabelsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plastic_recognized_labels_total",
		Help: "Recognized classifications, by plastic label",
	}, []string{"label"})

	ScanFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plastic_scan_failures_total",
		Help: "Scans that did not produce an outcome, by reason",
	}, []string{"reason"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "plastic_stage_duration_seconds",
		Help:    "Duration of each scan stage",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"stage"})

	ConfidenceObserved = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "plastic_confidence",
		Help:    "Top-class confidence of every classification",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	})
)
