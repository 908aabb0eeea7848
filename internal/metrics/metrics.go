package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamFetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qcls_upstream_fetches_total",
		Help: "The total number of successful upstream API calls",
	})
	UpstreamFetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qcls_upstream_fetch_errors_total",
		Help: "The total number of failed upstream API calls",
	})
	SyncBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qcls_sync_batches_total",
		Help: "The total number of committed synchronization batches",
	})
	RunsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qcls_runs_deleted_total",
		Help: "The total number of runs removed after losing verified status",
	})
	LevelCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qcls_level_cache_hits_total",
		Help: "The total number of on-demand level requests served from cache by the cooldown gate",
	})
	ShiftSubmissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qcls_shift_submissions_total",
		Help: "The total number of accepted manual shift submissions",
	})
)
