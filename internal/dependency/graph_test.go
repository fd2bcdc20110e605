package dependency

import (
	"fmt"
	"strings"
	"testing"
)

var flattenTests = [...]struct {
	edges   []string
	ordered []string
}{
	{
		edges: []string{
			"enemy.o -> enemy.c",
			"main.o -> main.c",
			"mygame -> enemy.o",
			"mygame -> main.o",
			"mygame -> player.o",
			"player.o -> player.c",
		},
		ordered: []string{
			"enemy.c",
			"enemy.o",
			"main.c",
			"main.o",
			"player.c",
			"player.o",
			"mygame",
		},
	},
	{
		// Loops are not followed
		edges: []string{
			"Mildred -> Yancy",
			"Mrs -> Junior",
			"Mrs -> Phillip",
			"Phillip -> Yancy",
			"Yancy -> Junior",
			"Yancy -> Phillip",
		},
		ordered: []string{
			"Junior",
			"Phillip",
			"Yancy",
			"Mildred",
			"Mrs",
		},
	},
}

func TestFlatten(t *testing.T) {
	for _, tt := range flattenTests {
		var graph Graph

		t.Log(strings.Join(tt.edges, "\n"))
		for _, edge := range tt.edges {
			var target, dep string
			if _, err := fmt.Sscanf(edge, "%s -> %s", &target, &dep); err != nil {
				panic("bad test edge " + edge)
			}
			graph.Add(target, dep)
		}
		var i int
		graph.Flatten(func(vertex string) {
			if i >= len(tt.ordered) {
				t.Fatalf("advanced past expected output with %s", vertex)
			}
			if tt.ordered[i] != vertex {
				t.Errorf("got %q, wanted %q", vertex, tt.ordered[i])
			} else {
				t.Log(vertex)
			}
			i++
		})
		t.Log("")
	}
}

var acyclicTests = [...]struct {
	name    string
	edges   []string
	wantBad string
}{
	{
		name: "acyclic",
		edges: []string{
			"Person -> Mammal",
			"Mammal -> Animal",
			"Employee -> Person",
		},
	},
	{
		name: "self cycle",
		edges: []string{
			"Recursive -> Recursive",
		},
		wantBad: "Recursive",
	},
	{
		name: "indirect cycle",
		edges: []string{
			"A -> B",
			"B -> C",
			"C -> A",
		},
		wantBad: "A",
	},
}

func TestAcyclic(t *testing.T) {
	for _, tt := range acyclicTests {
		t.Run(tt.name, func(t *testing.T) {
			var graph Graph
			for _, edge := range tt.edges {
				var target, dep string
				if _, err := fmt.Sscanf(edge, "%s -> %s", &target, &dep); err != nil {
					panic("bad test edge " + edge)
				}
				graph.Add(target, dep)
			}
			bad, ok := graph.Acyclic()
			if tt.wantBad == "" {
				if !ok {
					t.Errorf("Acyclic() reported a cycle at %q, want none", bad)
				}
				return
			}
			if ok {
				t.Errorf("Acyclic() reported no cycle, want one reachable from %q", tt.wantBad)
			}
		})
	}
}
