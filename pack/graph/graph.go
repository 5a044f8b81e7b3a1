// Package graph provides the dependency-graph analysis shared by the
// resolver and the preview tooling: cycle enumeration, topological sort,
// strongly connected components, complexity metrics, and the critical
// path. All views are pure functions over the same structure.
package graph

import "sort"

// Graph is a directed graph over pack ids. Node order is insertion order;
// adjacency lists are kept sorted so every derived view is deterministic.
type Graph struct {
	nodes []string
	index map[string]bool
	out   map[string][]string
	in    map[string][]string
	edges int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		index: map[string]bool{},
		out:   map[string][]string{},
		in:    map[string][]string{},
	}
}

// AddNode registers a node; adding twice is a no-op.
func (g *Graph) AddNode(id string) {
	if g.index[id] {
		return
	}
	g.index[id] = true
	g.nodes = append(g.nodes, id)
}

// AddEdge adds a dependency edge from -> to, creating missing nodes.
// Duplicate edges are ignored.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	for _, t := range g.out[from] {
		if t == to {
			return
		}
	}
	g.out[from] = insertSorted(g.out[from], to)
	g.in[to] = insertSorted(g.in[to], from)
	g.edges++
}

// Nodes returns node ids in insertion order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Successors returns the sorted dependency targets of a node.
func (g *Graph) Successors(id string) []string {
	out := make([]string, len(g.out[id]))
	copy(out, g.out[id])
	return out
}

// Predecessors returns the sorted nodes that depend on id.
func (g *Graph) Predecessors(id string) []string {
	out := make([]string, len(g.in[id]))
	copy(out, g.in[id])
	return out
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool {
	return g.index[id]
}

func insertSorted(list []string, s string) []string {
	i := sort.SearchStrings(list, s)
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = s
	return list
}
