// Package metrics holds the process-wide Prometheus collectors of the ptal tasks.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ProcessedPOIs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ptal_processed_pois_total",
		Help: "Total POIs processed by the relationship builder",
	})
	Relationships = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ptal_relationships_total",
		Help: "Total POI-SAP relationship rows emitted",
	})
	DroppedSAPs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ptal_dropped_saps_total",
		Help: "Total joined SAPs dropped by the network distance threshold",
	})
	PathSearches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ptal_path_searches_total",
		Help: "Total shortest path searches on the road network",
	})
	Isochrones = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ptal_isochrones_total",
		Help: "Total isochrone polygons generated",
	})
	POIDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ptal_poi_duration_seconds",
		Help:    "Time spent on one POI by the relationship builder",
		Buckets: prometheus.DefBuckets,
	})
	// 任务进度，0-100
	TaskProgress = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ptal_task_progress_percent",
		Help: "Progress of the running tasks in percent",
	}, []string{"task"})
)

func init() {
	prometheus.MustRegister(
		ProcessedPOIs,
		Relationships,
		DroppedSAPs,
		PathSearches,
		Isochrones,
		POIDuration,
		TaskProgress,
	)
}
