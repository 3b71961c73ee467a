package dag

import (
	"testing"
)

func buildChain() *Graph {
	// a -> b -> c, d independent
	g := NewGraph()
	g.AddNode("a")
	g.AddNode("b")
	g.AddNode("c")
	g.AddNode("d")
	g.AddDependency("b", "a")
	g.AddDependency("c", "b")
	return g
}

func TestGraph_AddDependency_Dedupe(t *testing.T) {
	g := NewGraph()
	g.AddDependency("b", "a")
	g.AddDependency("b", "a")

	if len(g.Dependencies["b"]) != 1 {
		t.Errorf("expected 1 dependency, got %d", len(g.Dependencies["b"]))
	}
	if len(g.Dependents["a"]) != 1 {
		t.Errorf("expected 1 dependent, got %d", len(g.Dependents["a"]))
	}
}

func TestGraph_AddDependency_SelfLoop(t *testing.T) {
	g := NewGraph()
	g.AddDependency("a", "a")

	if len(g.Dependencies["a"]) != 0 {
		t.Error("self-loop should be ignored")
	}
}

func TestGraph_Roots(t *testing.T) {
	g := buildChain()
	roots := g.Roots([]string{"a", "b", "c", "d"})

	if len(roots) != 2 || roots[0] != "a" || roots[1] != "d" {
		t.Errorf("expected roots [a d], got %v", roots)
	}
}

func TestTopologicalOrder_LinearChain(t *testing.T) {
	g := buildChain()
	order := TopologicalOrder([]string{"a", "d"}, g.Dependencies, g.Dependents, nil)

	if len(order) != 4 {
		t.Fatalf("expected 4 cells in order, got %v", order)
	}
	pos := make(map[string]int)
	for i, id := range order {
		pos[id] = i
	}
	if pos["a"] > pos["b"] || pos["b"] > pos["c"] {
		t.Errorf("order violates dependencies: %v", order)
	}
}

func TestTopologicalOrder_FIFOTieBreak(t *testing.T) {
	// b and c both depend on a only; their relative order must follow
	// the order they are released into the ready queue.
	g := NewGraph()
	g.AddNode("a")
	g.AddDependency("b", "a")
	g.AddDependency("c", "a")
	g.Dependents["a"] = []string{"b", "c"}

	order := TopologicalOrder([]string{"a"}, g.Dependencies, g.Dependents, nil)
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("expected [a b c], got %v", order)
	}
}

func TestTopologicalOrder_ScopeRestriction(t *testing.T) {
	g := buildChain()
	scope := map[string]struct{}{"b": {}, "c": {}}

	order := TopologicalOrder([]string{"b"}, g.Dependencies, g.Dependents, scope)
	if len(order) != 2 || order[0] != "b" || order[1] != "c" {
		t.Errorf("expected [b c], got %v", order)
	}
}

func TestTopologicalOrder_DiamondEdgeOrder(t *testing.T) {
	// a -> b, a -> c, b -> d, c -> d
	g := NewGraph()
	g.AddNode("a")
	g.AddDependency("b", "a")
	g.AddDependency("c", "a")
	g.AddDependency("d", "b")
	g.AddDependency("d", "c")

	order := TopologicalOrder([]string{"a"}, g.Dependencies, g.Dependents, nil)
	if len(order) != 4 {
		t.Fatalf("expected 4 cells, got %v", order)
	}
	if order[0] != "a" || order[3] != "d" {
		t.Errorf("a must be first and d last: %v", order)
	}
}

func TestCollectReachable_ExcludesStart(t *testing.T) {
	g := buildChain()
	reachable := CollectReachable("a", g.Dependents)

	if _, ok := reachable["a"]; ok {
		t.Error("reachable set must not include the start cell")
	}
	if _, ok := reachable["b"]; !ok {
		t.Error("expected b in reachable set")
	}
	if _, ok := reachable["c"]; !ok {
		t.Error("expected c in reachable set")
	}
	if _, ok := reachable["d"]; ok {
		t.Error("d is independent and must not be reachable")
	}
}

func TestCollectReachable_Empty(t *testing.T) {
	g := buildChain()
	reachable := CollectReachable("c", g.Dependents)
	if len(reachable) != 0 {
		t.Errorf("expected empty reachable set, got %v", reachable)
	}
}

func TestCollectReachable_Cycle(t *testing.T) {
	// b -> c -> b must terminate and include both.
	dependents := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"b"},
	}
	reachable := CollectReachable("a", dependents)
	if len(reachable) != 2 {
		t.Errorf("expected {b c}, got %v", reachable)
	}
}

func TestSubRoots(t *testing.T) {
	g := buildChain()
	reachable := CollectReachable("a", g.Dependents)

	roots := SubRoots([]string{"a", "b", "c", "d"}, reachable, g.Dependencies)
	if len(roots) != 1 || roots[0] != "b" {
		t.Errorf("expected sub-roots [b], got %v", roots)
	}
}
