package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Item outcomes recorded by ItemsProcessed.
const (
	OutcomeStored    = "stored"
	OutcomeDropped   = "dropped"
	OutcomeParse     = "parse"
	OutcomeEmbedding = "embedding"
	OutcomeStore     = "store"
)

// Cycle statuses recorded by CyclesTotal.
const (
	CycleOK          = "ok"
	CycleFetchFailed = "fetch_failed"
	CycleStoreFailed = "store_failed"
)

var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubeindex_cycles_total",
		Help: "Ingestion cycles by final status",
	}, []string{"status"})

	ItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubeindex_items_total",
		Help: "Search results processed by outcome",
	}, []string{"outcome"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tubeindex_cycle_duration_seconds",
		Help:    "Wall time of one ingestion cycle",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})

	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubeindex_fetch_errors_total",
		Help: "Search failures by kind",
	}, []string{"kind"})
)
