package graph

import "sort"

// TopologicalSort returns a total order in which every edge points
// backward (dependencies before dependents), or nil iff the graph has a
// cycle. Ties are broken by id so the result is stable.
//
// Kahn's algorithm over in-degrees; edges here point from dependent to
// dependency, so nodes with zero out-degree are emitted first and the
// result is reversed at the end.
func (g *Graph) TopologicalSort() []string {
	indegree := make(map[string]int, len(g.nodes))
	for _, id := range g.nodes {
		indegree[id] = len(g.in[id])
	}

	var ready []string
	for _, id := range g.nodes {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, next := range g.out[id] {
			indegree[next]--
			if indegree[next] == 0 {
				i := sort.SearchStrings(ready, next)
				ready = append(ready, "")
				copy(ready[i+1:], ready[i:])
				ready[i] = next
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil // cycle remains
	}

	// Dependencies come from edges a -> b meaning "a depends on b", so the
	// Kahn emission order (dependents first) is reversed.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}
