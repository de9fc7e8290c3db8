// Package engine compiles rules to SQL and drives stratified, semi-naive
// fixpoint evaluation over a relational store.
package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Dune-Z/Seminaive-Datalog/analysis"
	"github.com/Dune-Z/Seminaive-Datalog/ast"
)

// atomClause pairs a body atom with its original clause index, so alias
// generation and VarDict lookups stay anchored to the rule's own indexing.
type atomClause struct {
	index int
	atom  ast.Atom
}

// compileRule translates rule into an INSERT OR IGNORE INTO dest SELECT ...
// statement. deltaNames, when non-nil, names the predicates of the current
// stratum (the rule's own head, and any co-stratum siblings it mutually
// recurses with); every body atom naming one of them is rewritten to read
// from delta_<predicate> instead, the semi-naive approximation described for
// recursive strata. Pass nil for base-case compilation.
func compileRule(rule *ast.Rule, vd *analysis.VarDict, dest string, deltaNames map[string]bool) (string, error) {
	var atoms []atomClause
	for i, clause := range rule.Body {
		if a, ok := clause.(ast.Atom); ok {
			atoms = append(atoms, atomClause{index: i, atom: a})
		}
	}
	if len(atoms) == 0 {
		return "", fmt.Errorf("rule for %q has no atom clauses to compile", rule.Head.Predicate)
	}

	tableFor := func(a ast.Atom) string {
		if deltaNames != nil && deltaNames[a.Predicate] {
			return "delta_" + a.Predicate
		}
		return a.Predicate
	}
	alias := func(clauseIndex int) string { return fmt.Sprintf("t%d", clauseIndex) }

	anchor, err := chooseAnchor(rule, vd, atoms)
	if err != nil {
		return "", err
	}

	projection, err := projectionList(rule, vd, alias)
	if err != nil {
		return "", err
	}

	introduced := map[int]bool{anchor.index: true}
	var joinClauses []string
	var order []int
	for _, ac := range atoms {
		if ac.index != anchor.index {
			order = append(order, ac.index)
		}
	}
	sort.Ints(order)

	var whereConjuncts []string

	for _, idx := range order {
		ac := findAtom(atoms, idx)
		var onConds []string
		for termIndex, term := range ac.atom.Terms {
			name, ok := ast.NontrivialVariable(term)
			if !ok {
				continue
			}
			occ := vd.AllocAtoms(name)
			for _, o := range occ {
				if o.ClauseIndex == idx || !introduced[o.ClauseIndex] {
					continue
				}
				onConds = append(onConds, fmt.Sprintf("%s.column_%d = %s.column_%d",
					alias(o.ClauseIndex), o.TermIndex, alias(idx), termIndex))
			}
		}
		joinTable := tableFor(ac.atom)
		if len(onConds) == 0 {
			onConds = []string{"1 = 1"}
		}
		joinClauses = append(joinClauses, fmt.Sprintf("JOIN %s AS %s ON %s",
			joinTable, alias(idx), strings.Join(onConds, " AND ")))
		introduced[idx] = true
	}

	// Self-equality constraints: a variable occurring more than once within
	// one atom clause.
	for _, name := range vd.SortedVariables() {
		for _, g := range vd.ClauseDict[name] {
			if g.IsArith || !g.ContainDuplicate() {
				continue
			}
			first := g.TermIndexes[0]
			for _, other := range g.TermIndexes[1:] {
				whereConjuncts = append(whereConjuncts, fmt.Sprintf("%s.column_%d = %s.column_%d",
					alias(g.ClauseIndex), first, alias(g.ClauseIndex), other))
			}
		}
	}

	// Constant filters.
	for _, ac := range atoms {
		for termIndex, term := range ac.atom.Terms {
			if c, ok := term.(ast.Constant); ok {
				whereConjuncts = append(whereConjuncts, fmt.Sprintf("%s.column_%d = %s",
					alias(ac.index), termIndex, c.SQLLiteral()))
			}
		}
	}

	// Arithmetic clauses (policy: translate to WHERE conjuncts).
	for _, clause := range rule.Body {
		arith, ok := clause.(*ast.Arith)
		if !ok {
			continue
		}
		expr, err := compileArith(arith, vd, alias)
		if err != nil {
			return "", err
		}
		whereConjuncts = append(whereConjuncts, expr)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT OR IGNORE INTO %s\nSELECT %s\nFROM %s AS %s\n",
		dest, strings.Join(projection, ", "), tableFor(anchor.atom), alias(anchor.index))
	for _, jc := range joinClauses {
		sb.WriteString(jc)
		sb.WriteByte('\n')
	}
	if len(whereConjuncts) > 0 {
		fmt.Fprintf(&sb, "WHERE %s\n", strings.Join(whereConjuncts, " AND "))
	}
	return sb.String(), nil
}

func findAtom(atoms []atomClause, index int) atomClause {
	for _, a := range atoms {
		if a.index == index {
			return a
		}
	}
	panic("atom clause not found for index")
}

// chooseAnchor picks the FROM-clause atom: the body occurrence that sources
// head position 0. If head position 0 is a constant (no variable to trace),
// the first atom clause in body order is used instead.
func chooseAnchor(rule *ast.Rule, vd *analysis.VarDict, atoms []atomClause) (atomClause, error) {
	if len(rule.Head.Terms) > 0 {
		if name, ok := ast.NontrivialVariable(rule.Head.Terms[0]); ok {
			occ := vd.AllocAtoms(name)
			if len(occ) == 0 {
				return atomClause{}, fmt.Errorf("head variable %q in %q has no body occurrence", name, rule.Head.Predicate)
			}
			best := analysis.Smallest(occ)
			return findAtom(atoms, best.ClauseIndex), nil
		}
	}
	return atoms[0], nil
}

// projectionList builds one SELECT item per head position.
func projectionList(rule *ast.Rule, vd *analysis.VarDict, alias func(int) string) ([]string, error) {
	projection := make([]string, len(rule.Head.Terms))
	for i, term := range rule.Head.Terms {
		switch t := term.(type) {
		case ast.Constant:
			projection[i] = fmt.Sprintf("%s AS column_%d", t.SQLLiteral(), i)
		case ast.Variable:
			occ := vd.AllocAtoms(t.Name)
			if len(occ) == 0 {
				return nil, fmt.Errorf("head variable %q in %q has no body occurrence", t.Name, rule.Head.Predicate)
			}
			best := analysis.Smallest(occ)
			projection[i] = fmt.Sprintf("%s.column_%d AS column_%d", alias(best.ClauseIndex), best.TermIndex, i)
		default:
			return nil, fmt.Errorf("unsupported head term type in %q", rule.Head.Predicate)
		}
	}
	return projection, nil
}

// compileArith translates an arithmetic clause tree into a SQL boolean or
// scalar expression, resolving each variable leaf to the column of its
// first atom occurrence (an arithmetic clause's own variables do not own a
// table column; they must also appear in some atom of the same rule body).
func compileArith(a *ast.Arith, vd *analysis.VarDict, alias func(int) string) (string, error) {
	if a == nil {
		return "", fmt.Errorf("empty arithmetic clause")
	}
	if a.Kind == ast.OpLeaf {
		switch t := a.Leaf.(type) {
		case ast.Constant:
			return t.SQLLiteral(), nil
		case ast.Variable:
			occ := vd.AllocAtoms(t.Name)
			if len(occ) == 0 {
				return "", fmt.Errorf("arithmetic variable %q has no atom occurrence to bind a column", t.Name)
			}
			best := analysis.Smallest(occ)
			return fmt.Sprintf("%s.column_%d", alias(best.ClauseIndex), best.TermIndex), nil
		default:
			return "", fmt.Errorf("unsupported arithmetic leaf term")
		}
	}
	if a.Kind == ast.OpNeg {
		operand, err := compileArith(a.RHS, vd, alias)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(NOT %s)", operand), nil
	}
	lhs, err := compileArith(a.LHS, vd, alias)
	if err != nil {
		return "", err
	}
	rhs, err := compileArith(a.RHS, vd, alias)
	if err != nil {
		return "", err
	}
	op, err := sqlOperator(a.Kind)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s %s %s)", lhs, op, rhs), nil
}

func sqlOperator(kind ast.OperatorKind) (string, error) {
	switch kind {
	case ast.OpUnify:
		return "=", nil
	case ast.OpDisunify:
		return "<>", nil
	case ast.OpLess:
		return "<", nil
	case ast.OpLessEqual:
		return "<=", nil
	case ast.OpGreater:
		return ">", nil
	case ast.OpGreaterEqual:
		return ">=", nil
	case ast.OpAnd:
		return "AND", nil
	case ast.OpOr:
		return "OR", nil
	case ast.OpAdd:
		return "+", nil
	case ast.OpSub:
		return "-", nil
	case ast.OpMul:
		return "*", nil
	case ast.OpDiv:
		return "/", nil
	default:
		return "", fmt.Errorf("operator %d cannot appear as a binary arithmetic node", kind)
	}
}
