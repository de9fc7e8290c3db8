package analysis

import (
	"sort"

	"github.com/Dune-Z/Seminaive-Datalog/ast"
)

// Occurrence identifies one position a variable occupies within a rule
// body: the index of the clause and the index of the term inside it.
type Occurrence struct {
	ClauseIndex int
	TermIndex   int
}

// VarGroup records every position a single variable occupies within one
// body clause. A group with more than one TermIndex means the variable
// occurs more than once in that clause (a self-equality constraint).
type VarGroup struct {
	IsArith     bool
	ClauseIndex int
	TermIndexes []int
}

// ContainDuplicate reports whether the variable occupies more than one
// position in this clause.
func (g *VarGroup) ContainDuplicate() bool {
	return len(g.TermIndexes) > 1
}

// VarDict is the per-rule variable-occurrence index: where each variable
// appears in the head, and the ordered groups of where it appears in the
// body, one group per clause it touches.
type VarDict struct {
	HeadDict   map[string][]int
	ClauseDict map[string][]*VarGroup
}

// NewVarDict builds the variable index for rule. It is cheap, immutable
// once built, and meant to be discarded after one rule compilation.
func NewVarDict(rule *ast.Rule) *VarDict {
	vd := &VarDict{
		HeadDict:   make(map[string][]int),
		ClauseDict: make(map[string][]*VarGroup),
	}
	for i, term := range rule.Head.Terms {
		if name, ok := ast.NontrivialVariable(term); ok {
			vd.HeadDict[name] = append(vd.HeadDict[name], i)
		}
	}
	for clauseIndex, clause := range rule.Body {
		switch c := clause.(type) {
		case ast.Atom:
			for termIndex, term := range c.Terms {
				name, ok := ast.NontrivialVariable(term)
				if !ok {
					continue
				}
				vd.recordOccurrence(name, clauseIndex, termIndex, false)
			}
		case *ast.Arith:
			for termIndex, term := range c.Leaves() {
				name, ok := ast.NontrivialVariable(term)
				if !ok {
					continue
				}
				vd.recordOccurrence(name, clauseIndex, termIndex, true)
			}
		}
	}
	return vd
}

func (vd *VarDict) recordOccurrence(name string, clauseIndex, termIndex int, isArith bool) {
	groups := vd.ClauseDict[name]
	for _, g := range groups {
		if g.ClauseIndex == clauseIndex {
			g.TermIndexes = append(g.TermIndexes, termIndex)
			return
		}
	}
	vd.ClauseDict[name] = append(groups, &VarGroup{
		IsArith:     isArith,
		ClauseIndex: clauseIndex,
		TermIndexes: []int{termIndex},
	})
}

// Alloc returns every occurrence of var across the whole body, i.e. the
// union of (clauseIndex, termIndex) pairs from all of its groups.
func (vd *VarDict) Alloc(name string) []Occurrence {
	var occ []Occurrence
	for _, g := range vd.ClauseDict[name] {
		for _, t := range g.TermIndexes {
			occ = append(occ, Occurrence{ClauseIndex: g.ClauseIndex, TermIndex: t})
		}
	}
	return occ
}

// AllocAtoms is Alloc restricted to atom (non-arithmetic) groups; used by
// the compiler to find a column a variable is actually bound to, since
// arithmetic clauses don't own table columns of their own.
func (vd *VarDict) AllocAtoms(name string) []Occurrence {
	var occ []Occurrence
	for _, g := range vd.ClauseDict[name] {
		if g.IsArith {
			continue
		}
		for _, t := range g.TermIndexes {
			occ = append(occ, Occurrence{ClauseIndex: g.ClauseIndex, TermIndex: t})
		}
	}
	return occ
}

// SortedVariables returns every variable name with a body occurrence, in
// deterministic sorted order. The source system builds these maps over an
// unordered hash map; amoeba chooses sorted-by-name iteration wherever that
// ordering could otherwise leak into generated SQL (the order of the
// compiler's self-equality WHERE conjuncts),
// per the determinism note in the governing design doc.
func (vd *VarDict) SortedVariables() []string {
	names := make([]string, 0, len(vd.ClauseDict))
	for name := range vd.ClauseDict {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Smallest returns the occurrence with the smallest TermIndex, breaking
// ties by the smallest ClauseIndex. This is how the compiler picks a
// canonical source column for a head variable that occurs more than once.
func Smallest(occ []Occurrence) Occurrence {
	best := occ[0]
	for _, o := range occ[1:] {
		if o.TermIndex < best.TermIndex || (o.TermIndex == best.TermIndex && o.ClauseIndex < best.ClauseIndex) {
			best = o
		}
	}
	return best
}
