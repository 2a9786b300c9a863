package analysis

import (
	"fmt"
	"sort"
	"strings"
)

// Cycle describes one dependency cycle: the instruction IDs on it, closed
// (first element repeated at the end) for readability.
type Cycle struct {
	Path []string
}

func (c Cycle) String() string {
	return strings.Join(c.Path, " -> ")
}

// CheckAcyclic verifies that the dependency relation over the given edges
// has no cycle. A cycle means no instruction order can satisfy the
// dependencies, so the schedule is unsatisfiable.
//
// Uses Tarjan's strongly-connected-components algorithm; every SCC larger
// than one node, and every self-loop, is a cycle. Nodes are visited in
// sorted order so the reported cycle is deterministic.
func CheckAcyclic(ids []string, edges []Edge) error {
	graph := make(map[string][]string, len(ids))
	for _, id := range ids {
		graph[id] = nil
	}
	for _, e := range edges {
		graph[e.From] = append(graph[e.From], e.To)
	}
	for _, succs := range graph {
		sort.Strings(succs)
	}

	sccs := tarjanSCC(graph)
	for _, scc := range sccs {
		if len(scc) > 1 {
			sort.Strings(scc)
			path := append(scc, scc[0])
			return fmt.Errorf("dependency cycle: %s", Cycle{Path: path})
		}
		if hasSelfLoop(scc[0], graph) {
			return fmt.Errorf("dependency cycle: %s", Cycle{Path: []string{scc[0], scc[0]}})
		}
	}
	return nil
}

func hasSelfLoop(node string, graph map[string][]string) bool {
	for _, succ := range graph[node] {
		if succ == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components. Roots are visited in
// sorted order for deterministic output.
func tarjanSCC(graph map[string][]string) [][]string {
	var (
		index   int
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
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}
