package ast

import (
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"
)

// Source is a parsed JavaScript unit together with the text it came from.
// Offsets used throughout the lowering packages are byte offsets into Code.
type Source struct {
	Name    string
	Code    string
	Program *ast.Program

	// heads holds the offsets of the parentheses that belong to the syntax
	// of a call or a statement rather than to a grouping.
	heads map[int]bool
}

// Parse parses the given JavaScript code and returns the parsed unit.
// Source maps referenced by the code are never loaded.
func Parse(name, code string) (*Source, error) {
	program, err := parser.ParseFile(nil, name, code, 0, parser.WithDisableSourceMaps)
	if err != nil {
		return nil, err
	}
	return &Source{Name: name, Code: code, Program: program}, nil
}

func (s *Source) base() int {
	if s.Program != nil && s.Program.File != nil {
		return s.Program.File.Base()
	}
	return 1
}

// Offset converts a parser index into a byte offset.
func (s *Source) Offset(idx file.Idx) int {
	return int(idx) - s.base()
}

// Position returns the line/column of a byte offset.
func (s *Source) Position(offset int) file.Position {
	if s.Program != nil && s.Program.File != nil {
		return s.Program.File.Position(offset)
	}
	return file.NewFile(s.Name, s.Code, 1).Position(offset)
}

// Text returns Code[start:end].
func (s *Source) Text(start, end int) string {
	return s.Code[start:end]
}

// Snippet returns the source text of a node.
func (s *Source) Snippet(n ast.Node) string {
	start, end := s.Span(n)
	return s.Code[start:end]
}

// Indent returns the leading whitespace of the line holding offset.
func (s *Source) Indent(offset int) string {
	lineStart := strings.LastIndexByte(s.Code[:offset], '\n') + 1
	end := lineStart
	for end < len(s.Code) && (s.Code[end] == ' ' || s.Code[end] == '\t') {
		end++
	}
	return s.Code[lineStart:end]
}

// Span returns the byte range of a node. The parser does not keep grouping
// parentheses, so nodes that start or end with a sub-expression are widened
// over the parentheses that wrap that sub-expression: the span of (a).b
// starts at the opening parenthesis.
func (s *Source) Span(n ast.Node) (int, int) {
	return s.lo(n), s.hi(n)
}

// Grouped is Span widened over the parentheses wrapping n itself. The
// parentheses of an argument list or a statement head are not a grouping:
// in f(a.b) the group of a.b is a.b.
func (s *Source) Grouped(n ast.Node) (int, int) {
	lo, hi := s.Span(n)
	for {
		l := lo - 1
		for l >= 0 && isSpace(s.Code[l]) {
			l--
		}
		r := hi
		for r < len(s.Code) && isSpace(s.Code[r]) {
			r++
		}
		if l < 0 || r >= len(s.Code) || s.Code[l] != '(' || s.Code[r] != ')' {
			return lo, hi
		}
		if s.head(l) || s.head(r) {
			return lo, hi
		}
		lo, hi = l, r+1
	}
}

func (s *Source) head(offset int) bool {
	if s.heads == nil {
		s.heads = make(map[int]bool)
		if s.Program != nil {
			Walk(s.Program, headScan{s})
		}
	}
	return s.heads[offset]
}

type headScan struct{ s *Source }

func (h headScan) Enter(c *Cursor) bool {
	s := h.s
	switch n := c.Node.(type) {
	case *ast.CallExpression:
		s.heads[s.Offset(n.LeftParenthesis)] = true
		s.heads[s.Offset(n.RightParenthesis)] = true
	case *ast.NewExpression:
		if n.LeftParenthesis > 0 {
			s.heads[s.Offset(n.LeftParenthesis)] = true
			s.heads[s.Offset(n.RightParenthesis)] = true
		}
	case *ast.ParameterList:
		if n.Opening > 0 {
			s.heads[s.Offset(n.Opening)] = true
			s.heads[s.Offset(n.Closing)] = true
		}
	case *ast.DoWhileStatement:
		s.heads[s.Offset(n.RightParenthesis)] = true
		_, end := s.Span(n.Body)
		h.open(end)
	case *ast.IfStatement:
		h.open(s.Offset(n.If))
	case *ast.WhileStatement:
		h.open(s.Offset(n.While))
	case *ast.WithStatement:
		h.open(s.Offset(n.With))
	case *ast.SwitchStatement:
		h.open(s.Offset(n.Switch))
	case *ast.ForStatement:
		h.open(s.Offset(n.For))
	case *ast.ForInStatement:
		h.open(s.Offset(n.For))
	case *ast.ForOfStatement:
		h.open(s.Offset(n.For))
	case *ast.CatchStatement:
		if n.Parameter != nil {
			h.open(s.Offset(n.Catch))
		}
	}
	return true
}

func (headScan) Exit(*Cursor) {}

// open records the first opening parenthesis at or after offset.
func (h headScan) open(offset int) {
	if offset < 0 || offset > len(h.s.Code) {
		return
	}
	if i := strings.IndexByte(h.s.Code[offset:], '('); i >= 0 {
		h.s.heads[offset+i] = true
	}
}

func (s *Source) groupedLo(n ast.Node) int {
	lo, _ := s.Grouped(n)
	return lo
}

func (s *Source) groupedHi(n ast.Node) int {
	_, hi := s.Grouped(n)
	return hi
}

func (s *Source) lo(n ast.Node) int {
	switch n := n.(type) {
	case *ast.DotExpression:
		return s.groupedLo(n.Left)
	case *ast.PrivateDotExpression:
		return s.groupedLo(n.Left)
	case *ast.BracketExpression:
		return s.groupedLo(n.Left)
	case *ast.CallExpression:
		return s.groupedLo(n.Callee)
	case *ast.AssignExpression:
		return s.groupedLo(n.Left)
	case *ast.BinaryExpression:
		return s.groupedLo(n.Left)
	case *ast.ConditionalExpression:
		return s.groupedLo(n.Test)
	case *ast.SequenceExpression:
		return s.groupedLo(n.Sequence[0])
	case *ast.ExpressionStatement:
		return s.groupedLo(n.Expression)
	case *ast.OptionalChain:
		return s.lo(n.Expression)
	case *ast.Optional:
		return s.lo(n.Expression)
	case *ast.UnaryExpression:
		if n.Postfix {
			return s.groupedLo(n.Operand)
		}
	}
	return s.Offset(n.Idx0())
}

func (s *Source) hi(n ast.Node) int {
	switch n := n.(type) {
	case *ast.AssignExpression:
		return s.groupedHi(n.Right)
	case *ast.BinaryExpression:
		return s.groupedHi(n.Right)
	case *ast.ConditionalExpression:
		return s.groupedHi(n.Alternate)
	case *ast.SequenceExpression:
		return s.groupedHi(n.Sequence[len(n.Sequence)-1])
	case *ast.ExpressionStatement:
		return s.groupedHi(n.Expression)
	case *ast.OptionalChain:
		return s.hi(n.Expression)
	case *ast.Optional:
		return s.hi(n.Expression)
	case *ast.UnaryExpression:
		if !n.Postfix {
			return s.groupedHi(n.Operand)
		}
	case *ast.AwaitExpression:
		return s.groupedHi(n.Argument)
	case *ast.YieldExpression:
		if n.Argument != nil {
			return s.groupedHi(n.Argument)
		}
	case *ast.ReturnStatement:
		if n.Argument != nil {
			return s.groupedHi(n.Argument)
		}
	case *ast.ThrowStatement:
		return s.groupedHi(n.Argument)
	case *ast.Binding:
		if n.Initializer != nil {
			return s.groupedHi(n.Initializer)
		}
	case *ast.ExpressionBody:
		return s.groupedHi(n.Expression)
	case *ast.ArrowFunctionLiteral:
		if body, ok := n.Body.(*ast.ExpressionBody); ok {
			return s.groupedHi(body.Expression)
		}
	case *ast.FieldDefinition:
		if n.Initializer != nil {
			return s.groupedHi(n.Initializer)
		}
	case *ast.NewExpression:
		// Idx1 ignores the parentheses of an empty argument list.
		if n.LeftParenthesis > 0 {
			return s.Offset(n.RightParenthesis) + 1
		}
		return s.groupedHi(n.Callee)
	}
	return s.Offset(n.Idx1())
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
