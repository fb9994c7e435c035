// Package metrics provides Prometheus instrumentation for the image scanning
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ScansInFlight tracks images currently admitted and being processed.
	ScansInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "imagescan_scans_in_flight",
		Help: "Current number of admitted images being processed",
	})

	// AdmissionsTotal counts admission decisions, labeled by result:
	// "admitted" or "rejected".
	AdmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imagescan_admissions_total",
		Help: "Total number of admission decisions",
	}, []string{"result", "reason"})

	// OCRDuration records how long one engine process ran.
	OCRDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "imagescan_ocr_duration_seconds",
		Help:    "OCR engine run time in seconds",
		Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
	})

	// OCRStatusTotal counts engine exits by status.
	OCRStatusTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imagescan_ocr_status_total",
		Help: "Total number of OCR engine exits by status",
	}, []string{"status"})

	// ClassifyTotal counts classification calls by outcome.
	ClassifyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imagescan_classify_total",
		Help: "Total number of remote classification calls",
	}, []string{"code"}) // code = HTTP status, "unreachable" or "cached"

	// ActionsTotal counts moderation actions by final state.
	ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imagescan_actions_total",
		Help: "Total number of moderation actions by final state",
	}, []string{"state"})

	// CacheLookupsTotal counts result cache lookups, labeled "hit", "miss"
	// or "skipped" when the prefilter ruled the hash out.
	CacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imagescan_cache_lookups_total",
		Help: "Total number of result cache lookups",
	}, []string{"result"})

	// QueryDuration records data store query latency, including the wait for
	// the store lock.
	QueryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "imagescan_query_duration_seconds",
		Help:    "Data store query latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 3},
	})
)

func init() {
	prometheus.MustRegister(
		ScansInFlight,
		AdmissionsTotal,
		OCRDuration,
		OCRStatusTotal,
		ClassifyTotal,
		ActionsTotal,
		CacheLookupsTotal,
		QueryDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
