package transit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluele/gcache"
	"golang.org/x/sync/singleflight"

	"github.com/gyaneshwarpardhi/subway/internal/graph"
	"github.com/gyaneshwarpardhi/subway/internal/metrics"
	"github.com/gyaneshwarpardhi/subway/internal/store"
)

// Store is the persistence the service reads topology from and writes train lines to.
type Store interface {
	store.TopologyReader
	StationExists(ctx context.Context, name string) (bool, error)
	AddTrainLine(ctx context.Context, name string, fareCents int64, stations []string) (*store.TrainLine, error)
	ListTrainLines(ctx context.Context) ([]store.TrainLine, error)
}

// LineSpec describes a train line mutation.
type LineSpec struct {
	Name      string
	FareCents int64
	Stations  []string
}

// Options tunes a Service.
type Options struct {
	// RouteCacheSize bounds the LRU of computed routes. Zero or less disables caching.
	RouteCacheSize int
	Logger         *slog.Logger
}

// Stats describes the graph currently served.
type Stats struct {
	Version  uint64 `json:"version"`
	Stations int    `json:"stations"`
	Edges    int    `json:"edges"`
	BuiltAt  string `json:"built_at"`
}

type snapshot struct {
	graph   *graph.Graph
	version uint64
	builtAt time.Time
}

// Service owns the cached transit graph and answers route queries against it.
//
// Reads never lock: the graph is swapped as a whole through an atomic
// pointer. Topology mutations and rebuilds are serialized so that a
// mutation's own rebuild always publishes a graph that includes it, and
// versions only move forward.
type Service struct {
	store  Store
	snap   atomic.Pointer[snapshot]
	routes gcache.Cache
	flight singleflight.Group // collapses concurrent searches for the same key
	log    *slog.Logger

	mu      sync.Mutex // serializes mutations and rebuilds
	version uint64     // guarded by mu
}

// New creates a Service and performs the initial graph build.
func New(ctx context.Context, st Store, opts Options) (*Service, error) {
	s := &Service{store: st, log: opts.Logger}
	if s.log == nil {
		s.log = slog.Default()
	}
	if opts.RouteCacheSize > 0 {
		s.routes = gcache.New(opts.RouteCacheSize).LRU().Build()
	}
	if err := s.Rebuild(ctx); err != nil {
		return nil, fmt.Errorf("initial graph build: %w", err)
	}
	return s, nil
}

// Current returns the graph most recently published.
func (s *Service) Current() *graph.Graph {
	return s.snap.Load().graph
}

// Stats reports on the graph currently served.
func (s *Service) Stats() Stats {
	snap := s.snap.Load()
	return Stats{
		Version:  snap.version,
		Stations: snap.graph.StationCount(),
		Edges:    snap.graph.EdgeCount(),
		BuiltAt:  snap.builtAt.UTC().Format(time.RFC3339Nano),
	}
}

// Rebuild reads the topology and atomically replaces the cached graph.
// On failure the previous graph stays in place.
func (s *Service) Rebuild(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildLocked(ctx)
}

func (s *Service) rebuildLocked(ctx context.Context) error {
	start := time.Now()
	g, err := graph.Build(ctx, s.store)
	metrics.GraphRebuildDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GraphRebuilds.WithLabelValues("error").Inc()
		s.log.Error("graph rebuild failed", "err", err)
		return err
	}

	s.version++
	s.snap.Store(&snapshot{graph: g, version: s.version, builtAt: time.Now()})
	if s.routes != nil {
		s.routes.Purge()
	}

	metrics.GraphRebuilds.WithLabelValues("ok").Inc()
	metrics.GraphStations.Set(float64(g.StationCount()))
	metrics.GraphEdges.Set(float64(g.EdgeCount()))
	s.log.Info("graph rebuilt",
		"version", s.version,
		"stations", g.StationCount(),
		"edges", g.EdgeCount(),
		"took", time.Since(start))
	return nil
}

// AddTrainLine commits the line and rebuilds the graph before returning, so
// the caller's next route query sees the new topology.
func (s *Service) AddTrainLine(ctx context.Context, spec LineSpec) (*store.TrainLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := s.store.AddTrainLine(ctx, spec.Name, spec.FareCents, spec.Stations)
	if err != nil {
		return nil, err
	}
	if err := s.rebuildLocked(ctx); err != nil {
		return nil, fmt.Errorf("train line %q saved but graph rebuild failed: %w", spec.Name, err)
	}
	return line, nil
}

// Seed upserts a batch of lines and rebuilds once.
func (s *Service) Seed(ctx context.Context, lines []LineSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range lines {
		if _, err := s.store.AddTrainLine(ctx, l.Name, l.FareCents, l.Stations); err != nil {
			return fmt.Errorf("seed line %q: %w", l.Name, err)
		}
	}
	return s.rebuildLocked(ctx)
}

// Lines lists the stored train lines.
func (s *Service) Lines(ctx context.Context) ([]store.TrainLine, error) {
	return s.store.ListTrainLines(ctx)
}

// FindRoute returns the minimum-hop path between two stations.
//
// Errors: *InputError (matches ErrInvalidInput) for missing or unknown
// stations, ErrNoRoute when the stations are not connected, anything else is
// a store failure. A query for the same origin and destination succeeds
// without consulting the store.
func (s *Service) FindRoute(ctx context.Context, origin, destination string) (graph.Path, error) {
	path, err := s.findRoute(ctx, origin, destination)
	var ie *InputError
	switch {
	case err == nil:
		metrics.RouteQueries.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrNoRoute):
		metrics.RouteQueries.WithLabelValues("no_route").Inc()
	case errors.As(err, &ie):
		metrics.RouteQueries.WithLabelValues("invalid").Inc()
	default:
		metrics.RouteQueries.WithLabelValues("error").Inc()
	}
	return path, err
}

func (s *Service) findRoute(ctx context.Context, origin, destination string) (graph.Path, error) {
	if origin == "" || destination == "" {
		return nil, invalid("Origin and destination are required.")
	}
	if origin == destination {
		return graph.Path{origin}, nil
	}
	for _, name := range []string{origin, destination} {
		ok, err := s.store.StationExists(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("check station %q: %w", name, err)
		}
		if !ok {
			return nil, invalid("Origin and destination must both exist.")
		}
	}

	snap := s.snap.Load()
	key := routeKey(snap.version, origin, destination)
	path, hit := s.cachedRoute(key)
	if !hit {
		if !snap.graph.Has(origin) || !snap.graph.Has(destination) {
			// The store knows the station but the graph has not caught up yet.
			metrics.RouteStaleGraph.Inc()
			s.log.Warn("station missing from cached graph",
				"origin", origin, "destination", destination, "graph_version", snap.version)
			return nil, ErrNoRoute
		}
		v, _, _ := s.flight.Do(key, func() (interface{}, error) {
			p := graph.ShortestPath(snap.graph, origin, destination)
			s.rememberRoute(key, p)
			return p, nil
		})
		path = v.(graph.Path)
	}
	if len(path) <= 1 {
		return nil, ErrNoRoute
	}
	return append(graph.Path(nil), path...), nil
}

func routeKey(version uint64, origin, destination string) string {
	return fmt.Sprintf("%d\x00%s\x00%s", version, origin, destination)
}

func (s *Service) cachedRoute(key string) (graph.Path, bool) {
	if s.routes == nil {
		return nil, false
	}
	v, err := s.routes.Get(key)
	if err != nil {
		return nil, false
	}
	metrics.RouteCacheHits.Inc()
	return v.(graph.Path), true
}

func (s *Service) rememberRoute(key string, path graph.Path) {
	if s.routes == nil {
		return
	}
	if err := s.routes.Set(key, path); err != nil {
		s.log.Debug("route cache set failed", "err", err)
	}
}
