package repository

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var storeOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "parallel_store_operation_duration_seconds",
	Help:    "Duration of collection store operations.",
	Buckets: prometheus.DefBuckets,
}, []string{"backend", "op"})

func observe(backend, op string, start time.Time) {
	storeOperationDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}
