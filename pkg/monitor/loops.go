package monitor

import (
	"sort"
	"strings"
)

// Graph is one cycle's undirected neighbor relation, built purely from
// that cycle's mapped neighbor sets. Stale edges never persist.
type Graph map[string]map[string]bool

// AddEdge records that a sees b as a neighbor.
func (g Graph) AddEdge(a, b string) {
	if g[a] == nil {
		g[a] = map[string]bool{}
	}
	g[a][b] = true
}

// Cycle is one detected loop: the sub-path from the revisited node back to
// the node that closed the cycle.
type Cycle struct {
	Start string
	End   string
	Path  []string
}

// Signature is direction-independent: the sorted node list joined so the
// same physical loop discovered from either end dedupes to one key.
func (c Cycle) Signature() string {
	nodes := append([]string(nil), c.Path...)
	sort.Strings(nodes)
	return strings.Join(nodes, "::")
}

// DetectLoops runs undirected depth-first traversal over the graph,
// tracking the current path; a back-edge to a node already on the path
// (other than the immediate parent) yields a cycle. Nodes are visited in
// sorted order so results are deterministic.
func DetectLoops(g Graph) []Cycle {
	seen := map[string]bool{}
	var cycles []Cycle

	var dfs func(node, parent string, path []string)
	dfs = func(node, parent string, path []string) {
		seen[node] = true
		for _, next := range sortedNeighbors(g, node) {
			if next == parent {
				continue
			}
			if idx := indexOf(path, next); idx >= 0 {
				sub := append([]string(nil), path[idx:]...)
				cycles = append(cycles, Cycle{
					Start: next,
					End:   node,
					Path:  append(sub, next),
				})
				continue
			}
			if !seen[next] {
				dfs(next, node, append(append([]string(nil), path...), next))
			}
		}
	}

	for _, node := range sortedNodes(g) {
		if !seen[node] {
			dfs(node, "", []string{node})
		}
	}
	return cycles
}

func sortedNodes(g Graph) []string {
	nodes := make([]string, 0, len(g))
	for n := range g {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

func sortedNeighbors(g Graph, node string) []string {
	set := g[node]
	neighbors := make([]string, 0, len(set))
	for n := range set {
		neighbors = append(neighbors, n)
	}
	sort.Strings(neighbors)
	return neighbors
}

func indexOf(path []string, node string) int {
	for i, p := range path {
		if p == node {
			return i
		}
	}
	return -1
}
