package analysis

import (
	"sort"

	"bitbucket.org/creachadair/stringset"
)

// edgeMap records, for one predicate, the predicates its rules depend on.
// The bool indicates whether any dependency edge to that target is negated;
// a positive and a negated edge to the same target collapse to negated,
// matching the conservative rule that a cycle through negation anywhere
// forbids same-stratum placement.
type edgeMap map[string]bool

type depGraph map[string]edgeMap

func (dep depGraph) initNode(name string) {
	if _, ok := dep[name]; !ok {
		dep[name] = make(edgeMap)
	}
}

func (dep depGraph) addEdge(src, dst string, negated bool) {
	dep.initNode(src)
	edges := dep[src]
	if negated {
		edges[dst] = true
		return
	}
	if _, ok := edges[dst]; !ok {
		edges[dst] = false
	}
}

func (dep depGraph) transpose() depGraph {
	rev := make(depGraph)
	for src, edges := range dep {
		rev.initNode(src)
		for dst, negated := range edges {
			rev.initNode(dst)
			rev.addEdge(dst, src, negated)
		}
	}
	return rev
}

// Nodeset is a set of predicate names forming one stratum.
type Nodeset = stringset.Set

// Stratum is the result of strongly-connected-component decomposition of the
// predicate dependency graph: an ordered partition of predicate names with a
// lookup from name to level.
type Stratum struct {
	Strata []Nodeset
	Levels map[string]int
}

// NewStratum computes the strongly-connected-component stratification of
// relations given their dependencies. It never fails: whether a negated
// edge crosses strata incorrectly is a separate check the context builder
// performs once levels are known (see the negation pass in NewContext).
// dependencies holds one (head, bodyPredicate, negated) triple per body-atom
// occurrence in an idb rule.
func NewStratum(relations stringset.Set, dependencies []Dependency) *Stratum {
	dep := make(depGraph)
	for name := range relations {
		dep.initNode(name)
	}
	for _, d := range dependencies {
		dep.addEdge(d.Head, d.Body, d.Negated)
	}

	sccs := dep.sccs()
	levels := make(map[string]int, len(relations))
	for i, component := range sccs {
		for name := range component {
			levels[name] = i
		}
	}
	return &Stratum{Strata: sccs, Levels: levels}
}

// Dependency is one edge head -> body in the predicate dependency graph.
type Dependency struct {
	Head    string
	Body    string
	Negated bool
}

// GetLevel returns the stratum index of relation, panicking if it is
// unknown; callers are expected to have validated the name already.
func (s *Stratum) GetLevel(relation string) int {
	level, ok := s.Levels[relation]
	if !ok {
		panic("relation not found in stratum: " + relation)
	}
	return level
}

func (dep depGraph) sortedNodes() []string {
	nodes := make([]string, 0, len(dep))
	for node := range dep {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}

func (edges edgeMap) sortedTargets() []string {
	targets := make([]string, 0, len(edges))
	for target := range edges {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	return targets
}

// sccs computes strongly connected components in reverse-topological order
// using Kosaraju's algorithm: a forward DFS records a postorder stack, then
// a DFS over the transposed graph peeled from the stack top down yields
// components in topological order (heads before the predicates they depend
// on); that list is reversed so a component's dependencies always appear
// earlier in the output list.
//
// sccs visits nodes and edges in sorted-name order throughout, so the
// resulting component list (and hence stratum numbering) is reproducible
// across runs independent of Go's randomized map iteration order.
func (dep depGraph) sccs() []Nodeset {
	var order []string
	seen := make(map[string]bool)
	var visit func(string)
	visit = func(node string) {
		if seen[node] {
			return
		}
		seen[node] = true
		for _, next := range dep[node].sortedTargets() {
			visit(next)
		}
		order = append(order, node)
	}
	for _, node := range dep.sortedNodes() {
		visit(node)
	}

	rev := dep.transpose()
	seen = make(map[string]bool)
	var scc Nodeset
	var rvisit func(string)
	rvisit = func(node string) {
		if seen[node] {
			return
		}
		seen[node] = true
		scc.Add(node)
		for _, next := range rev[node].sortedTargets() {
			rvisit(next)
		}
	}
	var sccs []Nodeset
	for i := len(order) - 1; i >= 0; i-- {
		top := order[i]
		if seen[top] {
			continue
		}
		scc = stringset.New()
		rvisit(top)
		sccs = append(sccs, scc)
	}
	for i, j := 0, len(sccs)-1; i < j; i, j = i+1, j-1 {
		sccs[i], sccs[j] = sccs[j], sccs[i]
	}
	return sccs
}

// StratificationError reports a negated body atom that cannot be placed in
// a strictly lower stratum than its rule's head.
type StratificationError struct {
	Predicate string
	Cyclic    bool // true: head level < atom level; false: equal (mutual)
}

func (e *StratificationError) Error() string {
	if e.Cyclic {
		return "cyclic dependency through negation on predicate: " + e.Predicate
	}
	return "mutual dependency through negation on predicate: " + e.Predicate
}
