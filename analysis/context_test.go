package analysis

import (
	"testing"

	"github.com/Dune-Z/Seminaive-Datalog/ast"
	"github.com/google/go-cmp/cmp"
)

func sym(name string) ast.Term { return ast.Constant{Kind: ast.ConstSymbol, Symbol: name} }
func dvar(name string) ast.Term { return ast.Variable{Kind: ast.VarUndistinguished, Name: name} }

func transitiveClosureProgram() ast.Program {
	return ast.Program{
		{
			IO:   ast.IORead,
			Head: ast.Atom{Predicate: "edge", Terms: []ast.Term{sym("int"), sym("int")}},
		},
		{
			// reach(X, Y) :- edge(X, Y).
			Head: ast.Atom{Predicate: "reach", Terms: []ast.Term{dvar("X"), dvar("Y")}},
			Body: []ast.Clause{
				ast.Atom{Predicate: "edge", Terms: []ast.Term{dvar("X"), dvar("Y")}},
			},
		},
		{
			// reach(X, Z) :- edge(X, Y), reach(Y, Z).
			Head: ast.Atom{Predicate: "reach", Terms: []ast.Term{dvar("X"), dvar("Z")}},
			Body: []ast.Clause{
				ast.Atom{Predicate: "edge", Terms: []ast.Term{dvar("X"), dvar("Y")}},
				ast.Atom{Predicate: "reach", Terms: []ast.Term{dvar("Y"), dvar("Z")}},
			},
		},
		{
			IO:   ast.IOWrite,
			Head: ast.Atom{Predicate: "reach", Terms: []ast.Term{dvar("X"), dvar("Y")}},
		},
	}
}

func TestNewContextTransitiveClosure(t *testing.T) {
	ctx, err := NewContext(transitiveClosureProgram())
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}
	if len(ctx.Edbs) != 1 || ctx.Edbs["edge"] == nil {
		t.Errorf("expected a single edb 'edge', got %v", ctx.Edbs)
	}
	if len(ctx.Idbs["reach"]) != 2 {
		t.Errorf("expected 2 rules for idb 'reach', got %d", len(ctx.Idbs["reach"]))
	}
	if ctx.Queries["reach"] == nil {
		t.Errorf("expected 'reach' registered as a query")
	}
	if ctx.Stratum.GetLevel("edge") >= ctx.Stratum.GetLevel("reach") {
		t.Errorf("edge should stratify below reach")
	}

	// AnnotateVariables should have promoted X in the second reach rule's
	// edge(X, Y) atom, since X also appears in the head reach(X, Z).
	second := ctx.Idbs["reach"][1]
	firstAtom := second.Body[0].(ast.Atom)
	if v := firstAtom.Terms[0].(ast.Variable); v.Kind != ast.VarDistinguished {
		t.Errorf("X in edge(X, Y) should be promoted to distinguished, got %v", v.Kind)
	}
}

func TestNewContextOrderedIdbs(t *testing.T) {
	program := ast.Program{
		{IO: ast.IORead, Head: ast.Atom{Predicate: "edge", Terms: []ast.Term{sym("int"), sym("int")}}},
		{
			Head: ast.Atom{Predicate: "a", Terms: []ast.Term{dvar("X")}},
			Body: []ast.Clause{ast.Atom{Predicate: "edge", Terms: []ast.Term{dvar("X"), ast.Variable{Kind: ast.VarFree}}}},
		},
		{
			Head: ast.Atom{Predicate: "b", Terms: []ast.Term{dvar("X")}},
			Body: []ast.Clause{ast.Atom{Predicate: "a", Terms: []ast.Term{dvar("X")}}},
		},
	}
	ctx, err := NewContext(program)
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}
	order := ctx.OrderedIdbs()
	if diff := cmp.Diff([]string{"a", "b"}, order); diff != "" {
		t.Errorf("OrderedIdbs() mismatch (-want +got):\n%s", diff)
	}
}

func TestNewContextRejectsDuplicateEdb(t *testing.T) {
	program := ast.Program{
		{IO: ast.IORead, Head: ast.Atom{Predicate: "edge", Terms: []ast.Term{sym("int")}}},
		{IO: ast.IORead, Head: ast.Atom{Predicate: "edge", Terms: []ast.Term{sym("int")}}},
	}
	if _, err := NewContext(program); err == nil {
		t.Errorf("expected an error for duplicate edb 'edge'")
	}
}

func TestNewContextRejectsUndefinedPredicate(t *testing.T) {
	program := ast.Program{
		{
			Head: ast.Atom{Predicate: "a", Terms: []ast.Term{dvar("X")}},
			Body: []ast.Clause{ast.Atom{Predicate: "nope", Terms: []ast.Term{dvar("X")}}},
		},
	}
	if _, err := NewContext(program); err == nil {
		t.Errorf("expected an error for an undefined predicate reference")
	}
}

func TestNewContextRejectsFreeVarInHead(t *testing.T) {
	program := ast.Program{
		{IO: ast.IORead, Head: ast.Atom{Predicate: "edge", Terms: []ast.Term{sym("int")}}},
		{
			Head: ast.Atom{Predicate: "a", Terms: []ast.Term{ast.Variable{Kind: ast.VarFree}}},
			Body: []ast.Clause{ast.Atom{Predicate: "edge", Terms: []ast.Term{dvar("X")}}},
		},
	}
	if _, err := NewContext(program); err == nil {
		t.Errorf("expected an error for a free variable in an idb head")
	}
}

func TestNewContextRejectsMutualNegation(t *testing.T) {
	program := ast.Program{
		{IO: ast.IORead, Head: ast.Atom{Predicate: "edge", Terms: []ast.Term{sym("int")}}},
		{
			Head: ast.Atom{Predicate: "even", Terms: []ast.Term{dvar("X")}},
			Body: []ast.Clause{
				ast.Atom{Predicate: "edge", Terms: []ast.Term{dvar("X")}},
				ast.Atom{Predicate: "odd", Negation: true, Terms: []ast.Term{dvar("X")}},
			},
		},
		{
			Head: ast.Atom{Predicate: "odd", Terms: []ast.Term{dvar("X")}},
			Body: []ast.Clause{
				ast.Atom{Predicate: "edge", Terms: []ast.Term{dvar("X")}},
				ast.Atom{Predicate: "even", Negation: true, Terms: []ast.Term{dvar("X")}},
			},
		},
	}
	if _, err := NewContext(program); err == nil {
		t.Errorf("expected a stratification error for mutually negated predicates")
	}
}
