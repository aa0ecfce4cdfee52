package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RouteQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subway_route_queries_total",
		Help: "Total number of route queries, labelled by outcome (ok, no_route, invalid, error).",
	}, []string{"outcome"})

	RouteCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subway_route_cache_hits_total",
		Help: "Total number of route queries answered from the route cache.",
	})

	RouteStaleGraph = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subway_route_stale_graph_total",
		Help: "Route queries whose stations exist in the store but not yet in the cached graph.",
	})

	GraphRebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subway_graph_rebuilds_total",
		Help: "Total number of graph rebuilds, labelled by status.",
	}, []string{"status"})

	GraphRebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "subway_graph_rebuild_duration_seconds",
		Help:    "Time spent reading the topology and building a graph.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	GraphStations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "subway_graph_stations",
		Help: "Number of stations in the current graph.",
	})

	GraphEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "subway_graph_edges",
		Help: "Number of undirected edges in the current graph, counting parallel lines.",
	})

	FareEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subway_fare_entries_total",
		Help: "Total number of station entry attempts, labelled by outcome.",
	}, []string{"outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "subway_http_request_duration_ms",
		Help:    "HTTP request latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	}, []string{"route", "status"})
)
