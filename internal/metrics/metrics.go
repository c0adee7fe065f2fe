// Package metrics defines prometheus collectors of the document store.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Keys for docstore metrics.
const (
	RequestsTotalKey   = "docstore_http_requests_total"
	RequestDurationKey = "docstore_http_request_duration_seconds"
	SavesTotalKey      = "docstore_saves_total"
	SavedBytesTotalKey = "docstore_saved_bytes_total"
	ReloadsTotalKey    = "docstore_reloads_total"
	ImportsTotalKey    = "docstore_imports_total"
	RecordsKey         = "docstore_records"

	Fail      = "fail"
	Ok        = "ok"
	Unchanged = "unchanged"
)

// Collectors for docstore metrics.
var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: RequestsTotalKey,
		Help: "Cumulative number of HTTP requests served.",
	}, []string{"method", "code"})
	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    RequestDurationKey,
		Help:    "Duration of served HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
	SavesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: SavesTotalKey,
		Help: "Cumulative number of snapshot writes.",
	}, []string{"status"})
	SavedBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: SavedBytesTotalKey,
		Help: "Cumulative number of snapshot bytes written.",
	})
	ReloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ReloadsTotalKey,
		Help: "Cumulative number of reloads triggered by external file changes.",
	}, []string{"status"})
	ImportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ImportsTotalKey,
		Help: "Cumulative number of bulk imports.",
	}, []string{"status"})
	Records = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: RecordsKey,
		Help: "Number of records currently held, by resource.",
	}, []string{"resource"})
)

// Collectors returns all docstore collectors, for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		RequestsTotal,
		RequestDuration,
		SavesTotal,
		SavedBytesTotal,
		ReloadsTotal,
		ImportsTotal,
		Records,
	}
}
