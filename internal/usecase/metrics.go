package usecase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineStageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parallel_pipeline_stage_total",
		Help: "Enrichment stages run, by collection and stage.",
	}, []string{"collection", "stage"})

	dependencyCycleTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parallel_dependency_cycle_total",
		Help: "Dependency references truncated because they closed a cycle.",
	})
)
