package graph

import (
	"container/heap"
	"math"
)

const unreachable = math.MaxInt

// ShortestPath returns a minimum-hop path from origin to destination, or an
// empty Path when destination cannot be reached. Both stations are expected
// to be keys of g.
//
// The frontier starts with every station. Among entries with the same
// tentative distance the one inserted first wins, so for equal-length
// alternatives the result follows station order and neighbor order.
func ShortestPath(g *Graph, origin, destination string) Path {
	dist := make(map[string]int, len(g.stations))
	prev := make(map[string]string, len(g.stations))
	visited := make(map[string]bool, len(g.stations))

	f := &frontier{}
	for _, s := range g.stations {
		d := unreachable
		if s == origin {
			d = 0
		}
		dist[s] = d
		f.add(s, d)
	}
	heap.Init(f)

	for f.Len() > 0 {
		e := heap.Pop(f).(entry)
		if visited[e.station] {
			continue
		}
		if e.dist == unreachable {
			// Everything left is unreachable.
			break
		}
		visited[e.station] = true

		if e.station == destination {
			return reconstruct(prev, origin, destination)
		}

		for _, n := range g.adj[e.station] {
			if visited[n] {
				continue
			}
			if nd := e.dist + 1; nd < dist[n] {
				dist[n] = nd
				prev[n] = e.station
				f.push(n, nd)
			}
		}
	}
	return Path{}
}

func reconstruct(prev map[string]string, origin, destination string) Path {
	var rev Path
	for at := destination; at != origin; at = prev[at] {
		rev = append(rev, at)
	}
	rev = append(rev, origin)

	path := make(Path, len(rev))
	for i, s := range rev {
		path[len(rev)-1-i] = s
	}
	return path
}

// entry is a frontier item. seq is the insertion order and breaks distance ties.
type entry struct {
	station string
	dist    int
	seq     int
}

// frontier is a min-heap of entries ordered by (dist, seq).
type frontier struct {
	items []entry
	next  int
}

// add appends without restoring the heap invariant; call heap.Init afterwards.
func (f *frontier) add(station string, dist int) {
	f.items = append(f.items, entry{station: station, dist: dist, seq: f.next})
	f.next++
}

func (f *frontier) push(station string, dist int) {
	heap.Push(f, entry{station: station, dist: dist, seq: f.next})
	f.next++
}

func (f *frontier) Len() int { return len(f.items) }

func (f *frontier) Less(i, j int) bool {
	a, b := f.items[i], f.items[j]
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.seq < b.seq
}

func (f *frontier) Swap(i, j int) { f.items[i], f.items[j] = f.items[j], f.items[i] }

func (f *frontier) Push(x interface{}) {
	f.items = append(f.items, x.(entry))
}

func (f *frontier) Pop() interface{} {
	old := f.items
	n := len(old)
	item := old[n-1]
	f.items = old[:n-1]
	return item
}
