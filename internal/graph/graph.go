package graph

// Graph is an undirected adjacency list keyed by station name.
// It is immutable once built; a rebuild creates a new Graph and swaps it atomically.
type Graph struct {
	stations []string            // station order as listed by the store
	adj      map[string][]string // station → neighbors, in connection order
	edges    int
}

// Path is a sequence of station names from origin to destination inclusive.
type Path []string

// New allocates an empty Graph.
func New() *Graph {
	return &Graph{adj: make(map[string][]string)}
}

// AddStation registers a station with no neighbors. Re-adding is a no-op.
func (g *Graph) AddStation(name string) {
	if _, ok := g.adj[name]; ok {
		return
	}
	g.adj[name] = []string{}
	g.stations = append(g.stations, name)
}

// AddEdge records an undirected edge. Parallel edges are kept.
func (g *Graph) AddEdge(a, b string) {
	g.AddStation(a)
	g.AddStation(b)
	g.adj[a] = append(g.adj[a], b)
	g.adj[b] = append(g.adj[b], a)
	g.edges++
}

// Has reports whether the station is a key of the graph.
func (g *Graph) Has(name string) bool {
	_, ok := g.adj[name]
	return ok
}

// Neighbors returns the neighbors of a station. The slice must not be modified.
func (g *Graph) Neighbors(name string) []string {
	return g.adj[name]
}

// Stations returns all stations in insertion order. The slice must not be modified.
func (g *Graph) Stations() []string {
	return g.stations
}

// StationCount returns the number of stations.
func (g *Graph) StationCount() int {
	return len(g.stations)
}

// EdgeCount returns the number of undirected edges, counting parallel ones.
func (g *Graph) EdgeCount() int {
	return g.edges
}

// Adjacency returns a copy of the adjacency lists.
func (g *Graph) Adjacency() map[string][]string {
	out := make(map[string][]string, len(g.adj))
	for k, v := range g.adj {
		out[k] = append([]string{}, v...)
	}
	return out
}
