package parse

import (
	"fmt"
	"strconv"

	"github.com/Dune-Z/Seminaive-Datalog/ast"
)

// Program parses src into an ast.Program.
func Program(src string) (ast.Program, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	var program ast.Program
	for !p.at(tokEOF) {
		rule, err := p.parseRule()
		if err != nil {
			return nil, err
		}
		program = append(program, rule)
	}
	return program, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) cur() token    { return p.tokens[p.pos] }
func (p *parser) at(k tokenKind) bool { return p.cur().kind == k }

func (p *parser) advance() token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(k tokenKind, what string) (token, error) {
	if !p.at(k) {
		return token{}, fmt.Errorf("line %d: expected %s", p.cur().line, what)
	}
	return p.advance(), nil
}

func (p *parser) parseRule() (*ast.Rule, error) {
	io := ast.IOSilent
	if p.at(tokAnnotator) {
		tok := p.advance()
		switch tok.text {
		case "@input":
			io = ast.IORead
		case "@output":
			io = ast.IOWrite
		default:
			return nil, fmt.Errorf("line %d: unknown annotator %q", tok.line, tok.text)
		}
	}

	head, err := p.parseAtom()
	if err != nil {
		return nil, err
	}

	var body []ast.Clause
	if p.at(tokImplies) {
		p.advance()
		for {
			clause, err := p.parseClause()
			if err != nil {
				return nil, err
			}
			body = append(body, clause)
			if p.at(tokComma) {
				p.advance()
				continue
			}
			break
		}
	}

	if p.at(tokDot) {
		p.advance()
	}

	return &ast.Rule{IO: io, Head: head, Body: body}, nil
}

func (p *parser) parseClause() (ast.Clause, error) {
	if p.at(tokNot) {
		p.advance()
		atom, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		atom.Negation = true
		return atom, nil
	}
	if p.at(tokSymbol) && p.pos+1 < len(p.tokens) && p.tokens[p.pos+1].kind == tokLParen {
		return p.parseAtom()
	}
	return p.parseExpr()
}

func (p *parser) parseAtom() (ast.Atom, error) {
	name, err := p.expect(tokSymbol, "predicate name")
	if err != nil {
		return ast.Atom{}, err
	}
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return ast.Atom{}, err
	}
	var terms []ast.Term
	for {
		term, err := p.parseTerm()
		if err != nil {
			return ast.Atom{}, err
		}
		terms = append(terms, term)
		if p.at(tokComma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return ast.Atom{}, err
	}
	return ast.Atom{Predicate: name.text, Terms: terms}, nil
}

func (p *parser) parseTerm() (ast.Term, error) {
	switch p.cur().kind {
	case tokVariable:
		tok := p.advance()
		if tok.text == "_" {
			return ast.Variable{Kind: ast.VarFree}, nil
		}
		return ast.Variable{Kind: ast.VarUndistinguished, Name: tok.text}, nil
	case tokFloat:
		tok := p.advance()
		v, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", tok.line, err)
		}
		return ast.Constant{Kind: ast.ConstFloat, Float: v}, nil
	case tokInteger:
		tok := p.advance()
		v, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", tok.line, err)
		}
		return ast.Constant{Kind: ast.ConstInteger, Int: v}, nil
	case tokBoolean:
		tok := p.advance()
		return ast.Constant{Kind: ast.ConstBoolean, Bool: tok.text == "true"}, nil
	case tokSymbol:
		tok := p.advance()
		return ast.Constant{Kind: ast.ConstSymbol, Symbol: tok.text}, nil
	default:
		return nil, fmt.Errorf("line %d: expected a term", p.cur().line)
	}
}

// parseExpr implements precedence climbing over the operators listed in the
// grammar, from loosest (||) to tightest (unary ! and -).
func (p *parser) parseExpr() (*ast.Arith, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (*ast.Arith, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(tokOr) {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.Arith{Kind: ast.OpOr, LHS: left, RHS: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (*ast.Arith, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.at(tokAnd) {
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &ast.Arith{Kind: ast.OpAnd, LHS: left, RHS: right}
	}
	return left, nil
}

func (p *parser) parseEquality() (*ast.Arith, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for p.at(tokEq) || p.at(tokNeq) {
		op := ast.OpUnify
		if p.at(tokNeq) {
			op = ast.OpDisunify
		}
		p.advance()
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = &ast.Arith{Kind: op, LHS: left, RHS: right}
	}
	return left, nil
}

func (p *parser) parseRelational() (*ast.Arith, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.at(tokLt) || p.at(tokLe) || p.at(tokGt) || p.at(tokGe) {
		var op ast.OperatorKind
		switch p.cur().kind {
		case tokLt:
			op = ast.OpLess
		case tokLe:
			op = ast.OpLessEqual
		case tokGt:
			op = ast.OpGreater
		case tokGe:
			op = ast.OpGreaterEqual
		}
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &ast.Arith{Kind: op, LHS: left, RHS: right}
	}
	return left, nil
}

func (p *parser) parseAdditive() (*ast.Arith, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.at(tokPlus) || p.at(tokMinus) {
		op := ast.OpAdd
		if p.at(tokMinus) {
			op = ast.OpSub
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &ast.Arith{Kind: op, LHS: left, RHS: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (*ast.Arith, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.at(tokStar) || p.at(tokSlash) {
		op := ast.OpMul
		if p.at(tokSlash) {
			op = ast.OpDiv
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.Arith{Kind: op, LHS: left, RHS: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (*ast.Arith, error) {
	if p.at(tokBang) {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Arith{Kind: ast.OpNeg, RHS: operand}, nil
	}
	if p.at(tokMinus) {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		zero := &ast.Arith{Kind: ast.OpLeaf, Leaf: ast.Constant{Kind: ast.ConstInteger, Int: 0}}
		return &ast.Arith{Kind: ast.OpSub, LHS: zero, RHS: operand}, nil
	}
	return p.parsePrimary()
}

// parsePrimary parses a single term, optionally parenthesized, as a tree leaf.
func (p *parser) parsePrimary() (*ast.Arith, error) {
	if p.at(tokLParen) {
		p.advance()
		term, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return &ast.Arith{Kind: ast.OpLeaf, Leaf: term}, nil
	}
	term, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	return &ast.Arith{Kind: ast.OpLeaf, Leaf: term}, nil
}
