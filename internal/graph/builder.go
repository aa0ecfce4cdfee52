package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/subway/internal/store"
)

// ErrStoreUnavailable wraps any failure to read the topology during a build.
var ErrStoreUnavailable = errors.New("topology store unavailable")

// Build reads the topology from r in a single snapshot and constructs a
// Graph. Failures are wrapped with ErrStoreUnavailable and not retried.
func Build(ctx context.Context, r store.TopologyReader) (*Graph, error) {
	topo, err := r.ReadTopology(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	g := New()
	names := make(map[uint64]string, len(topo.Stations))
	for _, s := range topo.Stations {
		names[s.ID] = s.Name
		g.AddStation(s.Name)
	}
	for _, c := range topo.Connections {
		a, ok := names[c.Station1ID]
		if !ok {
			return nil, fmt.Errorf("%w: connection on line %d references unknown station %d",
				ErrStoreUnavailable, c.TrainLineID, c.Station1ID)
		}
		b, ok := names[c.Station2ID]
		if !ok {
			return nil, fmt.Errorf("%w: connection on line %d references unknown station %d",
				ErrStoreUnavailable, c.TrainLineID, c.Station2ID)
		}
		g.AddEdge(a, b)
	}
	return g, nil
}
