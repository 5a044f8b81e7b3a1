package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Visualization emitters. All three derive purely from the graph; no side
// effects.

// EmitText renders an indented dependency listing:
//
//	features/admin
//	  -> auth/oauth
//	  -> features/api
//
// Nodes are listed dependencies-first when the graph is acyclic, by id
// otherwise.
func (g *Graph) EmitText() string {
	nodes := g.TopologicalSort()
	if nodes == nil {
		nodes = sortedNodes(g)
	}
	var b strings.Builder
	for _, id := range nodes {
		b.WriteString(id)
		b.WriteString("\n")
		for _, dep := range g.out[id] {
			fmt.Fprintf(&b, "  -> %s\n", dep)
		}
	}
	return b.String()
}

// EmitDOT renders Graphviz DOT.
func (g *Graph) EmitDOT() string {
	var b strings.Builder
	b.WriteString("digraph packs {\n")
	b.WriteString("  rankdir=LR;\n")
	for _, id := range sortedNodes(g) {
		fmt.Fprintf(&b, "  %q;\n", id)
	}
	for _, id := range sortedNodes(g) {
		for _, dep := range g.out[id] {
			fmt.Fprintf(&b, "  %q -> %q;\n", id, dep)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// jsonGraph is the JSON emission shape.
type jsonGraph struct {
	Nodes []string   `json:"nodes"`
	Edges []jsonEdge `json:"edges"`
	// Cycles are individual cycle paths; Components groups every set of
	// mutually reachable packs (only multi-node components are emitted).
	Cycles     [][]string `json:"cycles,omitempty"`
	Components [][]string `json:"components,omitempty"`
	Metrics    Metrics    `json:"metrics"`
}

type jsonEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// EmitJSON renders the graph, its cycles, and its metrics as JSON.
func (g *Graph) EmitJSON() ([]byte, error) {
	doc := jsonGraph{
		Nodes:   sortedNodes(g),
		Cycles:  g.DetectCycles(),
		Metrics: g.ComputeMetrics(),
	}
	for _, comp := range g.StronglyConnected() {
		if len(comp) > 1 {
			doc.Components = append(doc.Components, comp)
		}
	}
	for _, id := range doc.Nodes {
		for _, dep := range g.out[id] {
			doc.Edges = append(doc.Edges, jsonEdge{From: id, To: dep})
		}
	}
	return json.MarshalIndent(doc, "", "  ")
}

func sortedNodes(g *Graph) []string {
	nodes := g.Nodes()
	sort.Strings(nodes)
	return nodes
}
