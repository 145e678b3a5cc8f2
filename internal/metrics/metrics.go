package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	RowsExtracted *prometheus.CounterVec // by dataset
	RowsLoaded    *prometheus.CounterVec // by table
	QualityIssues *prometheus.CounterVec // by stage, kind

	PagesFetched prometheus.Counter
	FetchRetries prometheus.Counter
	PagesSkipped prometheus.Counter

	RunDurationSec prometheus.Histogram
	WatermarkUnix  prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	extracted := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "etl_rows_extracted_total"}, []string{"dataset"})
	loaded := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "etl_rows_loaded_total"}, []string{"table"})
	issues := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "etl_quality_issues_total"}, []string{"stage", "kind"})

	pages := prometheus.NewCounter(prometheus.CounterOpts{Name: "etl_metadata_pages_fetched_total"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{Name: "etl_metadata_fetch_retries_total"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "etl_metadata_pages_skipped_total"})

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "etl_run_duration_seconds",
		Buckets: prometheus.DefBuckets,
	})
	wm := prometheus.NewGauge(prometheus.GaugeOpts{Name: "etl_watermark_timestamp_seconds"})

	r.MustRegister(extracted, loaded, issues, pages, retries, skipped, duration, wm)
	return &Registry{
		reg:            r,
		RowsExtracted:  extracted,
		RowsLoaded:     loaded,
		QualityIssues:  issues,
		PagesFetched:   pages,
		FetchRetries:   retries,
		PagesSkipped:   skipped,
		RunDurationSec: duration,
		WatermarkUnix:  wm,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
