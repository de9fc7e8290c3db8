package analysis

import (
	"fmt"

	"github.com/Dune-Z/Seminaive-Datalog/ast"
)

// DataType is a column's inferred SQL-facing type.
type DataType int

const (
	TypeInteger DataType = iota
	TypeFloat
	TypeSymbol
)

// SQLType returns the SQLite column type affinity for d.
func (d DataType) SQLType() string {
	switch d {
	case TypeInteger:
		return "INTEGER"
	case TypeFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

func (d DataType) String() string {
	switch d {
	case TypeInteger:
		return "int"
	case TypeFloat:
		return "float"
	default:
		return "sym"
	}
}

// Analyzer holds the inferred column types for every predicate reachable
// from the program's edbs.
type Analyzer struct {
	DataTypes map[string][]DataType
}

// NewAnalyzer runs type inference over ctx and returns the populated
// Analyzer, or the first UnknownType / UnwitnessedHeadVar error encountered.
func NewAnalyzer(ctx *Context) (*Analyzer, error) {
	a := &Analyzer{DataTypes: make(map[string][]DataType)}
	for name, rule := range ctx.Edbs {
		types := make([]DataType, len(rule.Head.Terms))
		for i, term := range rule.Head.Terms {
			c, ok := term.(ast.Constant)
			if !ok || c.Kind != ast.ConstSymbol {
				return nil, fmt.Errorf("invalid edb column type declaration in %q at position %d: %v", name, i, term)
			}
			switch c.Symbol {
			case "int":
				types[i] = TypeInteger
			case "float":
				types[i] = TypeFloat
			case "sym":
				types[i] = TypeSymbol
			default:
				return nil, fmt.Errorf("unknown type %q declared for edb %q", c.Symbol, name)
			}
		}
		a.DataTypes[name] = types
	}

	evaluated := make(map[string]bool, len(ctx.Edbs))
	for name := range ctx.Edbs {
		evaluated[name] = true
	}
	for _, name := range ctx.OrderedIdbs() {
		rules := ctx.Idbs[name]
		for _, rule := range rules {
			if !rule.IsBaseCase(evaluated) {
				continue
			}
			varTypes := make(map[string]DataType)
			for _, clause := range rule.Body {
				atom, ok := clause.(ast.Atom)
				if !ok {
					continue
				}
				bodyTypes := a.DataTypes[atom.Predicate]
				for i, term := range atom.Terms {
					v, ok := term.(ast.Variable)
					if !ok || v.Kind != ast.VarDistinguished {
						continue
					}
					if _, seen := varTypes[v.Name]; !seen {
						varTypes[v.Name] = bodyTypes[i]
					}
				}
			}
			types := make([]DataType, len(rule.Head.Terms))
			for i, term := range rule.Head.Terms {
				v, ok := term.(ast.Variable)
				if !ok || v.Kind != ast.VarDistinguished {
					return nil, fmt.Errorf("head of %q is not a distinguished variable at position %d", name, i)
				}
				t, ok := varTypes[v.Name]
				if !ok {
					return nil, fmt.Errorf("term %q in %q is not witnessed by any base-case body", v.Name, name)
				}
				types[i] = t
			}
			a.DataTypes[name] = types
		}
		evaluated[name] = true
	}
	return a, nil
}
