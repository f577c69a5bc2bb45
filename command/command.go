// Package command parses one line of operator input into a debugger command
// and evaluates the address expressions some commands carry.
package command

import (
	"fmt"
	"strings"
)

// Kind enumerates the commands the interactive loop understands.
type Kind int

const (
	Help Kind = iota
	Step
	Continue
	DisplayRegisters
	DisplayBytes
	Disassemble
	Evaluate
	ListNearest
	AddBreakpoint
	RemoveBreakpoint
	ListBreakpoints
	Quit
)

// Command is one parsed input line. Expr is set only for kinds that take an
// expression argument.
type Command struct {
	Kind Kind
	Expr Expr
}

// Diagnostic is a parse failure tied to a character range of the input.
// The loop reports it and re-prompts; it never ends the session.
type Diagnostic struct {
	Start, End int
	Message    string
}

// Render draws the offending input with a caret run under the bad range.
func (d *Diagnostic) Render(input string) string {
	width := d.End - d.Start
	if width < 1 {
		width = 1
	}
	return fmt.Sprintf("%s\n%s%s %s",
		input, strings.Repeat(" ", d.Start), strings.Repeat("^", width), d.Message)
}

type cmdEntry struct {
	long    string
	alias   string
	kind    Kind
	hasExpr bool
	summary string
}

var cmdTable = []cmdEntry{
	{"help", "h", Help, false, "show this text"},
	{"step", "t", Step, false, "execute one instruction"},
	{"continue", "g", Continue, false, "resume the target"},
	{"display-registers", "r", DisplayRegisters, false, "dump the thread context"},
	{"display-bytes", "db", DisplayBytes, true, "hex dump memory at <expr>"},
	{"disassemble", "u", Disassemble, true, "disassemble at <expr>"},
	{"evaluate", "?", Evaluate, true, "print the value of <expr>"},
	{"list-nearest", "ln", ListNearest, true, "nearest symbol at or below <expr>"},
	{"add-breakpoint", "bp", AddBreakpoint, true, "register a breakpoint at <expr>"},
	{"remove-breakpoint", "bc", RemoveBreakpoint, true, "drop the breakpoint with id <expr>"},
	{"list-breakpoints", "bl", ListBreakpoints, false, "show registered breakpoints"},
	{"quit", "q", Quit, false, "end the session"},
}

// Usage returns one aligned help line per command.
func Usage() []string {
	out := make([]string, len(cmdTable))
	for i, c := range cmdTable {
		arg := ""
		if c.hasExpr {
			arg = " <expr>"
		}
		out[i] = fmt.Sprintf("%-17s %-2s %-8s %s", c.long, c.alias, arg, c.summary)
	}
	return out
}

// Parse turns one line into a command. Blank input yields (nil, nil); the
// caller just re-prompts.
func Parse(line string) (*Command, *Diagnostic) {
	toks, diag := tokenize(line)
	if diag != nil {
		return nil, diag
	}
	if len(toks) == 0 {
		return nil, nil
	}

	head := toks[0]
	entry := lookup(head.text)
	if entry == nil {
		return nil, &Diagnostic{Start: head.start, End: head.end,
			Message: fmt.Sprintf("unknown command %q", head.text)}
	}

	rest := toks[1:]
	if !entry.hasExpr {
		if len(rest) > 0 {
			return nil, &Diagnostic{Start: rest[0].start, End: rest[len(rest)-1].end,
				Message: fmt.Sprintf("%s takes no arguments", entry.long)}
		}
		return &Command{Kind: entry.kind}, nil
	}

	if len(rest) == 0 {
		return nil, &Diagnostic{Start: head.end, End: head.end + 1,
			Message: fmt.Sprintf("missing expression after %q", head.text)}
	}
	expr, n, diag := parseExpr(rest)
	if diag != nil {
		return nil, diag
	}
	if n != len(rest) {
		t := rest[n]
		return nil, &Diagnostic{Start: t.start, End: t.end,
			Message: fmt.Sprintf("unexpected token %q", t.text)}
	}
	return &Command{Kind: entry.kind, Expr: expr}, nil
}

func lookup(name string) *cmdEntry {
	for i := range cmdTable {
		if cmdTable[i].long == name || cmdTable[i].alias == name {
			return &cmdTable[i]
		}
	}
	return nil
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokPlus
	tokQuestion
)

type token struct {
	kind       tokenKind
	text       string
	start, end int
}

// tokenize splits the line on whitespace and '+', keeping byte offsets for
// diagnostics. '?' stands alone so the evaluate alias needs no space after
// it; everything module!symbol-shaped stays one word.
func tokenize(line string) ([]token, *Diagnostic) {
	var toks []token
	for i := 0; i < len(line); {
		c := line[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '+':
			toks = append(toks, token{tokPlus, "+", i, i + 1})
			i++
		case c == '?':
			toks = append(toks, token{tokQuestion, "?", i, i + 1})
			i++
		case isWordByte(c):
			start := i
			for i < len(line) && isWordByte(line[i]) {
				i++
			}
			toks = append(toks, token{tokWord, line[start:i], start, i})
		default:
			return nil, &Diagnostic{Start: i, End: i + 1,
				Message: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	return toks, nil
}

func isWordByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!-._@$\\", c) >= 0
}
