package graph

// DFS stack coloring. White = unvisited, gray = on the current stack,
// black = finished. A gray revisit closes a cycle.
type color uint8

const (
	white color = iota
	gray
	black
)

// DetectCycles enumerates every cycle reachable in the graph as a path of
// node ids, first node repeated last (a -> b -> a reports [a b a]).
// Cycles are reported, never thrown: callers choose policy.
func (g *Graph) DetectCycles() [][]string {
	colors := make(map[string]color, len(g.nodes))
	var stack []string
	var cycles [][]string

	var visit func(id string)
	visit = func(id string) {
		colors[id] = gray
		stack = append(stack, id)

		for _, next := range g.out[id] {
			switch colors[next] {
			case gray:
				// Slice the stack from the first occurrence of next.
				start := 0
				for i, s := range stack {
					if s == next {
						start = i
						break
					}
				}
				cycle := make([]string, 0, len(stack)-start+1)
				cycle = append(cycle, stack[start:]...)
				cycle = append(cycle, next)
				cycles = append(cycles, cycle)
			case white:
				visit(next)
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = black
	}

	for _, id := range g.nodes {
		if colors[id] == white {
			visit(id)
		}
	}
	return cycles
}

// HasCycle is a cheap boolean form of DetectCycles.
func (g *Graph) HasCycle() bool {
	return len(g.DetectCycles()) > 0
}
