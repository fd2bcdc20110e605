// Package dependency builds and flattens dependency graphs.
package dependency

import (
	"sort"
	"sync"
)

// insertUnique inserts s into set, preserving order. If s is already in set,
// it is not added. The augmented set is returned.
func insertUnique(set []string, s string) []string {
	i := sort.SearchStrings(set, s)
	if i >= len(set) || set[i] != s {
		set = append(set, "")
		copy(set[i+1:], set[i:])
		set[i] = s
	}
	return set
}

// A Graph is a collection of targets and their dependencies.
type Graph struct {
	once    sync.Once
	targets []string
	nodes   map[string][]string
}

func (g *Graph) init() {
	g.once.Do(func() { g.nodes = make(map[string][]string) })
}

// Add adds a dependency to a Graph.
func (g *Graph) Add(target, dependency string) {
	g.init()
	g.targets = insertUnique(g.targets, target)
	g.nodes[target] = insertUnique(g.nodes[target], dependency)
}

// Flatten calls the walk function on each node in the Graph in topological
// order, starting with the leaves and traversing up to the roots.  The same
// Graph will always be traversed in the same order.
//
// Every vertex in the Graph is visited once; any cycles in the graph are
// skipped.
func (g *Graph) Flatten(walk func(string)) {
	g.init()
	visited := make(map[string]bool, len(g.nodes))
	for _, tgt := range g.targets {
		if !visited[tgt] {
			visited[tgt] = true
			g.flatten(walk, g.nodes[tgt], visited)
			walk(tgt)
		}
	}
}

func (g *Graph) flatten(fn func(string), targets []string, visited map[string]bool) {
	for _, tgt := range targets {
		if !visited[tgt] {
			visited[tgt] = true
			g.flatten(fn, g.nodes[tgt], visited)
			fn(tgt)
		}
	}
}

// Acyclic reports whether the Graph contains no cycle reachable from any
// target added with Add. Unlike Flatten, which silently skips cycles so
// every vertex is still visited once, Acyclic is for callers that must
// reject a cyclic graph outright (the schema package's type-inheritance
// check, invariant I5). When a cycle exists, Acyclic returns ok=false
// together with the target whose walk first reached the cycle; that
// target need not itself lie on the cycle.
func (g *Graph) Acyclic() (badVertex string, ok bool) {
	g.init()
	const white, gray, black = 0, 1, 2
	color := make(map[string]int, len(g.nodes))

	var visit func(v string) bool
	visit = func(v string) bool {
		switch color[v] {
		case black:
			return true
		case gray:
			return false
		}
		color[v] = gray
		for _, dep := range g.nodes[v] {
			if !visit(dep) {
				return false
			}
		}
		color[v] = black
		return true
	}
	for _, tgt := range g.targets {
		if !visit(tgt) {
			return tgt, false
		}
	}
	return "", true
}
