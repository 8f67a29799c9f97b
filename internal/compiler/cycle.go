package compiler

import (
	"fmt"
	"slices"
	"strings"
)

// Cycle is a group of cells that reference each other, directly or through
// other cells.
//
// Cycles are reported as warnings, not errors: the scheduler still calculates
// every cell of a cycle once per pass, it just cannot order them.
type Cycle struct {
	Path    []string `json:"path"` // e.g. ["S!A1", "S!B1", "S!A1"]
	Message string   `json:"message"`
}

// Diagnostic converts the cycle to a warning.
func (c Cycle) Diagnostic() Diagnostic {
	return Diagnostic{Code: ErrReferenceCycle, Message: c.Message, Node: c.Path[0]}
}

// AnalyzeCycles finds reference cycles in a dependency graph mapping each
// cell address to the addresses it reads.
//
// The algorithm:
//  1. Find strongly connected components with Tarjan's algorithm
//  2. Report each component with more than one cell, or a cell reading
//     itself, as a cycle
//
// Cells are visited in sorted order so the result is deterministic. An
// acyclic graph returns nil.
func AnalyzeCycles(graph map[string][]string) []Cycle {
	var cycles []Cycle
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			cycles = append(cycles, sccToCycle(scc, graph))
		}
	}
	return cycles
}

func hasSelfLoop(node string, graph map[string][]string) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC returns the strongly connected components of graph.
// Single-node components without self-loops are not cycles.
func tarjanSCC(graph map[string][]string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is the root of a component: pop it
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func sccToCycle(scc []string, graph map[string][]string) Cycle {
	if len(scc) == 1 {
		return Cycle{
			Path:    []string{scc[0], scc[0]},
			Message: fmt.Sprintf("cell references itself: %s", scc[0]),
		}
	}
	path := cyclePath(scc, graph)
	return Cycle{
		Path:    path,
		Message: fmt.Sprintf("circular reference: %s", strings.Join(path, " -> ")),
	}
}

// cyclePath walks from the first member of the component along edges that
// stay inside it until it returns to the start.
func cyclePath(scc []string, graph map[string][]string) []string {
	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true
		next := ""
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
