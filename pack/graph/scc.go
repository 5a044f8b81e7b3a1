package graph

import "sort"

// StronglyConnected returns the strongly connected components of the
// graph (Kosaraju). Components are sorted by their smallest member and
// members are sorted within each component. Singleton components without a
// self-loop are included; callers that only care about cyclic components
// can filter by length.
func (g *Graph) StronglyConnected() [][]string {
	// First pass: finish-time order on the original graph.
	visited := make(map[string]bool, len(g.nodes))
	var finish []string

	var visit func(id string)
	visit = func(id string) {
		visited[id] = true
		for _, next := range g.out[id] {
			if !visited[next] {
				visit(next)
			}
		}
		finish = append(finish, id)
	}
	for _, id := range g.nodes {
		if !visited[id] {
			visit(id)
		}
	}

	// Second pass: reverse graph in decreasing finish time.
	assigned := make(map[string]bool, len(g.nodes))
	var components [][]string

	var collect func(id string, comp *[]string)
	collect = func(id string, comp *[]string) {
		assigned[id] = true
		*comp = append(*comp, id)
		for _, prev := range g.in[id] {
			if !assigned[prev] {
				collect(prev, comp)
			}
		}
	}

	for i := len(finish) - 1; i >= 0; i-- {
		id := finish[i]
		if assigned[id] {
			continue
		}
		var comp []string
		collect(id, &comp)
		sort.Strings(comp)
		components = append(components, comp)
	}

	sort.Slice(components, func(i, j int) bool {
		return components[i][0] < components[j][0]
	})
	return components
}
