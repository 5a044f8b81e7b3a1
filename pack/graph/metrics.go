package graph

import "sort"

// Metrics summarizes graph complexity for preview and diagnostics.
type Metrics struct {
	Nodes        int      `json:"nodes"`
	Edges        int      `json:"edges"`
	Density      float64  `json:"density"` // edges / n*(n-1)
	MaxInDegree  int      `json:"max_in_degree"`
	MaxOutDegree int      `json:"max_out_degree"`
	Roots        []string `json:"roots"`  // no dependents
	Leaves       []string `json:"leaves"` // no dependencies
}

// ComputeMetrics derives complexity metrics from the graph.
func (g *Graph) ComputeMetrics() Metrics {
	m := Metrics{Nodes: len(g.nodes), Edges: g.edges}

	if m.Nodes > 1 {
		m.Density = float64(m.Edges) / float64(m.Nodes*(m.Nodes-1))
	}
	for _, id := range g.nodes {
		if d := len(g.in[id]); d > m.MaxInDegree {
			m.MaxInDegree = d
		}
		if d := len(g.out[id]); d > m.MaxOutDegree {
			m.MaxOutDegree = d
		}
		if len(g.in[id]) == 0 {
			m.Roots = append(m.Roots, id)
		}
		if len(g.out[id]) == 0 {
			m.Leaves = append(m.Leaves, id)
		}
	}
	sort.Strings(m.Roots)
	sort.Strings(m.Leaves)
	return m
}

// CriticalPath returns the longest dependency chain in the DAG, from the
// deepest dependent down to its final dependency. Returns nil when the
// graph has a cycle (path length is unbounded).
func (g *Graph) CriticalPath() []string {
	if g.HasCycle() {
		return nil
	}

	// Longest path via memoized depth over out-edges.
	depth := make(map[string]int, len(g.nodes))
	next := make(map[string]string, len(g.nodes))

	var measure func(id string) int
	measure = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		best := 0
		var bestNext string
		for _, succ := range g.out[id] {
			if d := measure(succ) + 1; d > best || (d == best && bestNext != "" && succ < bestNext) {
				best = d
				bestNext = succ
			}
		}
		depth[id] = best
		next[id] = bestNext
		return best
	}

	start := ""
	for _, id := range g.nodes {
		d := measure(id)
		if start == "" || d > depth[start] || (d == depth[start] && id < start) {
			start = id
		}
	}
	if start == "" {
		return nil
	}

	var path []string
	for id := start; id != ""; id = next[id] {
		path = append(path, id)
	}
	return path
}
