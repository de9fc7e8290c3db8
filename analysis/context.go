// Package analysis builds the Context a program is evaluated against:
// classifying rules into base, derived and query relations, stratifying
// derived predicates under negation, inferring column types, and indexing
// the variables of a single rule for compilation.
package analysis

import (
	"fmt"
	"sort"

	"bitbucket.org/creachadair/stringset"
	"go.uber.org/multierr"

	"github.com/Dune-Z/Seminaive-Datalog/ast"
)

// Context is the immutable, derived-once view of a program that the rest of
// the engine operates against.
type Context struct {
	Edbs    map[string]*ast.Rule
	Idbs    map[string][]*ast.Rule
	Queries map[string]*ast.Rule
	Stratum *Stratum
}

// NewContext classifies program's rules, validates the program, stratifies
// derived predicates, and annotates rule variables. Every violation named in
// the error conditions table is reported with the offending predicate.
func NewContext(program ast.Program) (*Context, error) {
	edbs := make(map[string]*ast.Rule)
	idbs := make(map[string][]*ast.Rule)
	queries := make(map[string]*ast.Rule)

	for _, rule := range program {
		name := rule.Head.Predicate
		switch rule.IO {
		case ast.IORead:
			edbs[name] = rule
		case ast.IOWrite:
			queries[name] = rule
		default:
			idbs[name] = append(idbs[name], rule)
		}
	}

	var errs error

	predicates := stringset.New()
	seenEdb := stringset.New()
	for _, rule := range program {
		if rule.IO != ast.IORead {
			continue
		}
		name := rule.Head.Predicate
		if seenEdb.Contains(name) {
			errs = multierr.Append(errs, fmt.Errorf("duplicate predicate declared as edb: %q", name))
			continue
		}
		seenEdb.Add(name)
		predicates.Add(name)
	}
	for name := range idbs {
		if predicates.Contains(name) {
			errs = multierr.Append(errs, fmt.Errorf("predicate declared as both idb and edb: %q", name))
			continue
		}
		predicates.Add(name)
	}
	if errs != nil {
		return nil, errs
	}

	for name, rules := range idbs {
		for _, rule := range rules {
			for _, term := range rule.Head.Terms {
				if v, ok := term.(ast.Variable); ok && v.Kind == ast.VarFree {
					errs = multierr.Append(errs, fmt.Errorf("free variable in head of idb: %q", name))
					break
				}
			}
			for _, clause := range rule.Body {
				atom, ok := clause.(ast.Atom)
				if !ok {
					continue
				}
				if !predicates.Contains(atom.Predicate) {
					errs = multierr.Append(errs, fmt.Errorf("undefined predicate %q referenced from %q", atom.Predicate, name))
				}
			}
		}
	}
	if errs != nil {
		return nil, errs
	}

	var dependencies []Dependency
	for name, rules := range idbs {
		for _, rule := range rules {
			for _, clause := range rule.Body {
				atom, ok := clause.(ast.Atom)
				if !ok {
					continue
				}
				dependencies = append(dependencies, Dependency{Head: name, Body: atom.Predicate, Negated: atom.Negation})
			}
		}
	}
	stratum := NewStratum(predicates, dependencies)

	for name, rules := range idbs {
		headLevel := stratum.GetLevel(name)
		for _, rule := range rules {
			for _, clause := range rule.Body {
				atom, ok := clause.(ast.Atom)
				if !ok || !atom.Negation {
					continue
				}
				atomLevel := stratum.GetLevel(atom.Predicate)
				switch {
				case headLevel < atomLevel:
					errs = multierr.Append(errs, &StratificationError{Predicate: atom.Predicate, Cyclic: true})
				case headLevel == atomLevel:
					errs = multierr.Append(errs, &StratificationError{Predicate: atom.Predicate, Cyclic: false})
				}
			}
		}
	}
	if errs != nil {
		return nil, errs
	}

	for _, rules := range idbs {
		for _, rule := range rules {
			rule.AnnotateVariables()
		}
	}

	return &Context{Edbs: edbs, Idbs: idbs, Queries: queries, Stratum: stratum}, nil
}

// OrderedIdbs returns every idb predicate name in stratification order,
// lowest stratum first, skipping any name that is in fact an edb (edb
// predicates occupy their own singleton strata but are already
// materialized and never need evaluation). Names sharing a stratum (mutually
// recursive predicates) are sorted by name for reproducibility.
func (c *Context) OrderedIdbs() []string {
	var order []string
	for _, names := range c.OrderedStrata() {
		order = append(order, names...)
	}
	return order
}

// OrderedStrata groups idb predicate names by stratum level, lowest first,
// skipping levels with no idbs. Predicates sharing one entry are mutually
// recursive and must be evaluated together in one joint fixpoint, per the evaluator's
// ordering guarantee that execution follows stratification order across
// groups and source order within one. Names within a group are sorted for
// reproducibility, since Go's map-backed Nodeset carries no useful order of
// its own.
func (c *Context) OrderedStrata() [][]string {
	var groups [][]string
	for _, stratum := range c.Stratum.Strata {
		var names []string
		for name := range stratum {
			if _, ok := c.Edbs[name]; ok {
				continue
			}
			if _, ok := c.Idbs[name]; ok {
				names = append(names, name)
			}
		}
		if len(names) == 0 {
			continue
		}
		sort.Strings(names)
		groups = append(groups, names)
	}
	return groups
}
