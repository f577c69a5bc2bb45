package command

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapResolver map[string]uint64

func (m mapResolver) ResolveNameToAddr(q string) (uint64, error) {
	if !strings.Contains(q, "!") {
		return 0, fmt.Errorf("expected module!symbol, got %q", q)
	}
	if v, ok := m[q]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("unresolved %q", q)
}

func mustParse(t *testing.T, line string) *Command {
	t.Helper()
	cmd, diag := Parse(line)
	require.Nil(t, diag, "parsing %q: %+v", line, diag)
	require.NotNil(t, cmd)
	return cmd
}

func TestParseAliases(t *testing.T) {
	for _, e := range cmdTable {
		arg := ""
		if e.hasExpr {
			arg = " 1"
		}
		long := mustParse(t, e.long+arg)
		short := mustParse(t, e.alias+arg)
		assert.Equal(t, e.kind, long.Kind, "long form %q", e.long)
		assert.Equal(t, e.kind, short.Kind, "alias %q", e.alias)
		if e.hasExpr {
			assert.NotNil(t, long.Expr)
			assert.NotNil(t, short.Expr)
		} else {
			assert.Nil(t, long.Expr)
		}
	}
}

func TestParseBlankInput(t *testing.T) {
	for _, line := range []string{"", "   ", "\t"} {
		cmd, diag := Parse(line)
		assert.Nil(t, cmd)
		assert.Nil(t, diag)
	}
}

func TestEvaluateLeftFold(t *testing.T) {
	cmd := mustParse(t, "evaluate 1 + 0x2 + 3")
	require.IsType(t, AddExpr{}, cmd.Expr)
	require.IsType(t, AddExpr{}, cmd.Expr.(AddExpr).Left, "folding must be left-associative")

	v, err := cmd.Expr.Eval(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), v)
}

func TestEvaluateWrapsOnOverflow(t *testing.T) {
	cmd := mustParse(t, "? 0xffffffffffffffff + 1")
	v, err := cmd.Expr.Eval(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)
}

func TestEvaluateSymbols(t *testing.T) {
	r := mapResolver{"kernel32!ExitProcess": 0x7ff800001000}

	cmd := mustParse(t, "? kernel32!ExitProcess + 0x10")
	v, err := cmd.Expr.Eval(r)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x7ff800001010), v)

	cmd = mustParse(t, "evaluate kernel32!Missing")
	_, err = cmd.Expr.Eval(r)
	assert.ErrorContains(t, err, "unresolved")
}

func TestEvaluateUnqualifiedSymbolFails(t *testing.T) {
	cmd := mustParse(t, "evaluate foo")
	_, err := cmd.Expr.Eval(mapResolver{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "module!symbol")
}

func TestNumbersAreDecimalOrHexOnly(t *testing.T) {
	cmd := mustParse(t, "? 010")
	v, err := cmd.Expr.Eval(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), v, "leading zero is not octal")

	_, diag := Parse("? 0o10")
	require.NotNil(t, diag)
	assert.Contains(t, diag.Message, "bad number")
}

func TestDiagnosticPositions(t *testing.T) {
	tests := []struct {
		line       string
		start, end int
		contains   string
	}{
		{"frobnicate", 0, 10, "unknown command"},
		{"db", 2, 3, "missing expression"},
		{"db 0y12", 3, 7, "bad number"},
		{"step now", 5, 8, "takes no arguments"},
		{"db 1 2", 5, 6, "unexpected token"},
		{"db 1 +", 5, 6, "missing operand"},
		{"db + 1", 3, 4, "unexpected token"},
		{"db #", 3, 4, "unexpected character"},
	}
	for _, tt := range tests {
		cmd, diag := Parse(tt.line)
		require.Nil(t, cmd, "input %q", tt.line)
		require.NotNil(t, diag, "input %q", tt.line)
		assert.Equal(t, tt.start, diag.Start, "input %q", tt.line)
		assert.Equal(t, tt.end, diag.End, "input %q", tt.line)
		assert.Contains(t, diag.Message, tt.contains, "input %q", tt.line)
	}
}

func TestDiagnosticRender(t *testing.T) {
	_, diag := Parse("db 0y12")
	require.NotNil(t, diag)
	assert.Equal(t, "db 0y12\n   ^^^^ bad number \"0y12\"", diag.Render("db 0y12"))
}

func TestQuestionNeedsNoSpace(t *testing.T) {
	cmd := mustParse(t, "?1+2")
	assert.Equal(t, Evaluate, cmd.Kind)
	v, err := cmd.Expr.Eval(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v)
}

func TestUsageCoversEveryCommand(t *testing.T) {
	lines := Usage()
	require.Len(t, lines, len(cmdTable))
	for i, e := range cmdTable {
		assert.Contains(t, lines[i], e.long)
	}
}
