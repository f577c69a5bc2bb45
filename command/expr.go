package command

import (
	"strconv"
	"strings"
)

// Resolver supplies symbol addresses to expression evaluation. The
// interactive loop wraps the process model in one.
type Resolver interface {
	ResolveNameToAddr(qualified string) (uint64, error)
}

// Expr is a parsed address expression. Symbols are resolved at evaluation
// time, not parse time, so the same tree can be evaluated as modules load.
type Expr interface {
	Eval(r Resolver) (uint64, error)
}

// NumberExpr is an unsigned 64-bit literal.
type NumberExpr struct {
	Value uint64
}

func (e NumberExpr) Eval(Resolver) (uint64, error) {
	return e.Value, nil
}

// SymbolExpr is a bare module!symbol reference.
type SymbolExpr struct {
	Name string
}

func (e SymbolExpr) Eval(r Resolver) (uint64, error) {
	return r.ResolveNameToAddr(e.Name)
}

// AddExpr is one left-associative '+'. Addition wraps on overflow.
type AddExpr struct {
	Left, Right Expr
}

func (e AddExpr) Eval(r Resolver) (uint64, error) {
	l, err := e.Left.Eval(r)
	if err != nil {
		return 0, err
	}
	rv, err := e.Right.Eval(r)
	if err != nil {
		return 0, err
	}
	return l + rv, nil
}

// parseExpr consumes "atom (+ atom)*" from toks and returns the tree plus
// the number of tokens consumed.
func parseExpr(toks []token) (Expr, int, *Diagnostic) {
	left, pos, diag := parseAtom(toks, 0)
	if diag != nil {
		return nil, 0, diag
	}
	for pos < len(toks) && toks[pos].kind == tokPlus {
		right, next, d := parseAtom(toks, pos+1)
		if d != nil {
			return nil, 0, d
		}
		left = AddExpr{Left: left, Right: right}
		pos = next
	}
	return left, pos, nil
}

func parseAtom(toks []token, pos int) (Expr, int, *Diagnostic) {
	if pos >= len(toks) {
		last := toks[len(toks)-1]
		return nil, 0, &Diagnostic{Start: last.start, End: last.end, Message: "missing operand"}
	}
	t := toks[pos]
	if t.kind != tokWord {
		return nil, 0, &Diagnostic{Start: t.start, End: t.end,
			Message: "unexpected token " + strconv.Quote(t.text)}
	}
	// Anything starting with a digit must be a literal; everything else is
	// resolved as a symbol later, so unqualified names fail with the
	// resolver's message instead of a parse error.
	if t.text[0] >= '0' && t.text[0] <= '9' {
		v, diag := parseNumber(t)
		if diag != nil {
			return nil, 0, diag
		}
		return NumberExpr{Value: v}, pos + 1, nil
	}
	return SymbolExpr{Name: t.text}, pos + 1, nil
}

// parseNumber accepts decimal and 0x-prefixed hexadecimal only. A leading
// zero never means octal here.
func parseNumber(t token) (uint64, *Diagnostic) {
	var (
		v   uint64
		err error
	)
	if strings.HasPrefix(t.text, "0x") || strings.HasPrefix(t.text, "0X") {
		v, err = strconv.ParseUint(t.text[2:], 16, 64)
	} else {
		v, err = strconv.ParseUint(t.text, 10, 64)
	}
	if err != nil {
		return 0, &Diagnostic{Start: t.start, End: t.end,
			Message: "bad number " + strconv.Quote(t.text)}
	}
	return v, nil
}
