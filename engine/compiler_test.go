package engine

import (
	"strings"
	"testing"

	"github.com/Dune-Z/Seminaive-Datalog/analysis"
	"github.com/Dune-Z/Seminaive-Datalog/ast"
)

func variable(name string) ast.Term { return ast.Variable{Kind: ast.VarDistinguished, Name: name} }

func TestCompileRuleBaseCaseJoin(t *testing.T) {
	// reach(X, Z) :- edge(X, Y), reach(Y, Z).
	rule := &ast.Rule{
		Head: ast.Atom{Predicate: "reach", Terms: []ast.Term{variable("X"), variable("Z")}},
		Body: []ast.Clause{
			ast.Atom{Predicate: "edge", Terms: []ast.Term{variable("X"), variable("Y")}},
			ast.Atom{Predicate: "reach", Terms: []ast.Term{variable("Y"), variable("Z")}},
		},
	}
	vd := analysis.NewVarDict(rule)
	sqlText, err := compileRule(rule, vd, "reach", nil)
	if err != nil {
		t.Fatalf("compileRule() error = %v", err)
	}
	if !strings.Contains(sqlText, "INSERT OR IGNORE INTO reach") {
		t.Errorf("expected insertion into reach, got:\n%s", sqlText)
	}
	if !strings.Contains(sqlText, "FROM edge AS t0") {
		t.Errorf("expected anchor FROM edge AS t0 (head position 0 sourced from clause 0), got:\n%s", sqlText)
	}
	if !strings.Contains(sqlText, "JOIN reach AS t1 ON t0.column_1 = t1.column_0") {
		t.Errorf("expected join linking edge.Y to reach.Y, got:\n%s", sqlText)
	}
}

func TestCompileRuleSelfDeltaRewrite(t *testing.T) {
	rule := &ast.Rule{
		Head: ast.Atom{Predicate: "reach", Terms: []ast.Term{variable("X"), variable("Z")}},
		Body: []ast.Clause{
			ast.Atom{Predicate: "edge", Terms: []ast.Term{variable("X"), variable("Y")}},
			ast.Atom{Predicate: "reach", Terms: []ast.Term{variable("Y"), variable("Z")}},
		},
	}
	vd := analysis.NewVarDict(rule)
	sqlText, err := compileRule(rule, vd, "temp_reach", map[string]bool{"reach": true})
	if err != nil {
		t.Fatalf("compileRule() error = %v", err)
	}
	if !strings.Contains(sqlText, "JOIN delta_reach AS t1") {
		t.Errorf("expected the recursive occurrence of reach rewritten to delta_reach, got:\n%s", sqlText)
	}
}

func TestCompileRuleSelfEqualityAndConstantFilter(t *testing.T) {
	// same(X) :- edge(X, X).
	rule := &ast.Rule{
		Head: ast.Atom{Predicate: "same", Terms: []ast.Term{variable("X")}},
		Body: []ast.Clause{
			ast.Atom{Predicate: "edge", Terms: []ast.Term{variable("X"), variable("X")}},
		},
	}
	vd := analysis.NewVarDict(rule)
	sqlText, err := compileRule(rule, vd, "same", nil)
	if err != nil {
		t.Fatalf("compileRule() error = %v", err)
	}
	if !strings.Contains(sqlText, "t0.column_0 = t0.column_1") {
		t.Errorf("expected a self-equality WHERE conjunct, got:\n%s", sqlText)
	}

	// from1(Y) :- edge(1, Y).
	ruleConst := &ast.Rule{
		Head: ast.Atom{Predicate: "from1", Terms: []ast.Term{variable("Y")}},
		Body: []ast.Clause{
			ast.Atom{Predicate: "edge", Terms: []ast.Term{
				ast.Constant{Kind: ast.ConstInteger, Int: 1},
				variable("Y"),
			}},
		},
	}
	vd2 := analysis.NewVarDict(ruleConst)
	sqlText2, err := compileRule(ruleConst, vd2, "from1", nil)
	if err != nil {
		t.Fatalf("compileRule() error = %v", err)
	}
	if !strings.Contains(sqlText2, "t0.column_0 = 1") {
		t.Errorf("expected a constant filter on column_0, got:\n%s", sqlText2)
	}
}

func TestCompileQueryRepeatedVariable(t *testing.T) {
	// q(X, X)
	rule := &ast.Rule{
		Head: ast.Atom{Predicate: "q", Terms: []ast.Term{variable("X"), variable("X")}},
	}
	sqlText := compileQuery("p", rule)
	if !strings.Contains(sqlText, "column_0 = column_1") {
		t.Errorf("expected repeated-variable conjunct, got:\n%s", sqlText)
	}
}

func TestCompileQueryConstantFilter(t *testing.T) {
	rule := &ast.Rule{
		Head: ast.Atom{Predicate: "q", Terms: []ast.Term{
			ast.Constant{Kind: ast.ConstInteger, Int: 1},
			variable("Y"),
		}},
	}
	sqlText := compileQuery("p", rule)
	if !strings.Contains(sqlText, "column_0 = 1") {
		t.Errorf("expected constant filter, got:\n%s", sqlText)
	}
}
