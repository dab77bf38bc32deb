package objgraph

import "github.com/prometheus/client_golang/prometheus"

var ObjectsStored = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "objgraph",
	Subsystem: "codec",
	Name:      "objects_stored",
})

var ObjectsLoaded = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "objgraph",
	Subsystem: "codec",
	Name:      "objects_loaded",
})

var ObjectsUnloaded = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "objgraph",
	Subsystem: "codec",
	Name:      "objects_unloaded",
})

var ObjectsDestroyed = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "objgraph",
	Subsystem: "release",
	Name:      "objects_destroyed",
}, []string{"reason"})

var ReleaseTraversal = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "objgraph",
	Subsystem: "release",
	Name:      "traversal_size",
	Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000},
})

const (
	reasonRefcount = "refcount"
	reasonCycle    = "cycle"
)

// Collectors lists the package metrics for registration by the host.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		ObjectsStored,
		ObjectsLoaded,
		ObjectsUnloaded,
		ObjectsDestroyed,
		ReleaseTraversal,
	}
}
