// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stegoshield",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route pattern and status.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stegoshield",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	Predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stegoshield",
		Name:      "predictions_total",
		Help:      "Verdicts by modality, label and source (local or remote).",
	}, []string{"modality", "label", "source"})

	PredictionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stegoshield",
		Name:      "prediction_duration_seconds",
		Help:      "Time spent analyzing one file.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"modality"})

	UploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stegoshield",
		Name:      "upload_bytes",
		Help:      "Size of accepted uploads.",
		Buckets:   prometheus.ExponentialBuckets(1<<10, 4, 10),
	})

	RemoteModelState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "stegoshield",
		Name:      "remote_model_breaker_state",
		Help:      "Circuit breaker state for the model server: 0 closed, 1 half-open, 2 open.",
	})
)
