package validation

import (
	"slices"
)

const (
	white = iota
	grey
	black
)

type frame struct {
	node string
	next int
}

// FindCycles returns every cycle closed by a back-edge of graph. Each cycle
// is the ordered path from the re-entered node back to itself, so the first
// and last elements are equal. Nodes and their successors are visited in
// sorted order, making the result deterministic.
func FindCycles(graph map[string][]string) [][]string {
	adj := make(map[string][]string, len(graph))
	nodes := make([]string, 0, len(graph))
	for n, succ := range graph {
		nodes = append(nodes, n)
		sorted := slices.Clone(succ)
		slices.Sort(sorted)
		adj[n] = slices.Compact(sorted)
	}
	slices.Sort(nodes)

	color := make(map[string]int, len(graph))
	cycles := make([][]string, 0)

	for _, start := range nodes {
		if color[start] != white {
			continue
		}
		stack := []frame{{node: start}}
		path := []string{start}
		color[start] = grey

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			succ := adj[top.node]
			if top.next >= len(succ) {
				color[top.node] = black
				stack = stack[:len(stack)-1]
				path = path[:len(path)-1]
				continue
			}
			next := succ[top.next]
			top.next++

			switch color[next] {
			case white:
				color[next] = grey
				stack = append(stack, frame{node: next})
				path = append(path, next)
			case grey:
				at := slices.Index(path, next)
				cycle := append(slices.Clone(path[at:]), next)
				cycles = append(cycles, cycle)
			}
		}
	}
	return cycles
}
