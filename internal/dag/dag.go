// Package dag provides the pure graph algorithms behind cascading cell
// execution: Kahn's topological ordering over dependency/dependent
// adjacency maps, and BFS reachability for "everything downstream of X".
package dag

// Graph is a derived dependency graph for one sheet. Dependencies maps a
// cell id to the ids it depends on; Dependents is the inverse. Edges only
// ever connect cells owned by the same sheet.
type Graph struct {
	Dependencies map[string][]string
	Dependents   map[string][]string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Dependencies: make(map[string][]string),
		Dependents:   make(map[string][]string),
	}
}

// AddDependency records that childID depends on parentID, deduplicating
// multi-edges and ignoring self-loops.
func (g *Graph) AddDependency(childID, parentID string) {
	if childID == parentID {
		return
	}
	if !contains(g.Dependencies[childID], parentID) {
		g.Dependencies[childID] = append(g.Dependencies[childID], parentID)
	}
	if !contains(g.Dependents[parentID], childID) {
		g.Dependents[parentID] = append(g.Dependents[parentID], childID)
	}
}

// AddNode ensures id has a (possibly empty) dependency entry so that
// zero-dependency cells are visible as roots.
func (g *Graph) AddNode(id string) {
	if _, ok := g.Dependencies[id]; !ok {
		g.Dependencies[id] = []string{}
	}
}

// Roots returns the ids with no dependencies, in the order of ids.
// Ids missing from the graph are skipped.
func (g *Graph) Roots(ids []string) []string {
	var roots []string
	for _, id := range ids {
		deps, ok := g.Dependencies[id]
		if !ok {
			continue
		}
		if len(deps) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// TopologicalOrder runs Kahn's algorithm over the graph starting from
// roots, following the dependents map. If scope is non-nil, in-degree is
// computed only over edges whose both endpoints are in scope, and nodes
// outside scope are never visited or emitted.
//
// The ready queue is FIFO, so ties are broken by the relative order of
// the supplied roots and cell ids. That ordering is the canonical
// deterministic tie-break relied on by callers and tests.
func TopologicalOrder(roots []string, dependencies, dependents map[string][]string, scope map[string]struct{}) []string {
	inScope := func(id string) bool {
		if scope == nil {
			return true
		}
		_, ok := scope[id]
		return ok
	}

	inDegree := make(map[string]int)
	for cellID, deps := range dependencies {
		if !inScope(cellID) {
			continue
		}
		if _, ok := inDegree[cellID]; !ok {
			inDegree[cellID] = 0
		}
		for _, dep := range deps {
			if !inScope(dep) {
				continue
			}
			inDegree[cellID]++
			if _, ok := inDegree[dep]; !ok {
				inDegree[dep] = 0
			}
		}
	}

	var queue []string
	for _, root := range roots {
		if inScope(root) {
			queue = append(queue, root)
		}
	}

	var order []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if !inScope(current) {
			continue
		}
		order = append(order, current)
		for _, child := range dependents[current] {
			if !inScope(child) {
				continue
			}
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}
	return order
}

// CollectReachable returns all cell ids transitively reachable from
// startID via the dependents map, excluding startID itself.
func CollectReachable(startID string, dependents map[string][]string) map[string]struct{} {
	reachable := make(map[string]struct{})
	queue := append([]string(nil), dependents[startID]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, seen := reachable[next]; seen {
			continue
		}
		reachable[next] = struct{}{}
		queue = append(queue, dependents[next]...)
	}
	return reachable
}

// SubRoots returns the members of reachable that have no dependency
// inside reachable, preserving the order of ids.
func SubRoots(ids []string, reachable map[string]struct{}, dependencies map[string][]string) []string {
	var roots []string
	for _, id := range ids {
		if _, ok := reachable[id]; !ok {
			continue
		}
		internal := 0
		for _, dep := range dependencies[id] {
			if _, ok := reachable[dep]; ok {
				internal++
			}
		}
		if internal == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

func contains(slice []string, str string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}
