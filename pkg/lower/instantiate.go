package lower

import (
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"

	jsast "github.com/lcalzada-xor/declass/pkg/js/ast"
)

// instantiate rewrites new C(args) of a lowered class into a constructor
// call when the value lands somewhere the taint table can follow: a
// declared or assigned binding, a property, or the object of a member
// access. Other contexts keep the native instantiation, which requires
// the class declaration to be retained.
func (l *lowering) instantiate(c *jsast.Cursor, n *ast.NewExpression) {
	id, ok := n.Callee.(*ast.Identifier)
	if !ok {
		return
	}
	b := l.info.BindingOf(id)
	if b == nil {
		l.fail(unresolvedAt(l.src, l.src.Offset(id.Idx), id.Name.String(), "instantiated class has no binding"))
		return
	}
	ctx := l.registry.Lookup(b)
	if ctx == nil {
		return
	}

	switch p := c.Parent.(type) {
	case *ast.Binding:
		if c.Edge != "Initializer" {
			return
		}
		switch c.Ancestor(1).(type) {
		case *ast.VariableStatement, *ast.LexicalDeclaration, *ast.ForLoopInitializerVarDeclList:
		default:
			return
		}
		target, ok := p.Target.(*ast.Identifier)
		if !ok {
			l.fail(structuralAt(l.src, l.src.Offset(n.New), "cannot destructure an instance of %s", ctx.Name))
			return
		}
		if !l.global(target) {
			l.rewriteNew(c, n, ctx, b)
		}
	case *ast.AssignExpression:
		if c.Edge != "Right" || p.Operator != token.ASSIGN {
			return
		}
		switch p.Left.(type) {
		case *ast.Identifier, *ast.DotExpression, *ast.BracketExpression:
			if !l.global(p.Left) {
				l.rewriteNew(c, n, ctx, b)
			}
		case *ast.ArrayPattern, *ast.ObjectPattern:
			l.fail(structuralAt(l.src, l.src.Offset(n.New), "cannot destructure an instance of %s", ctx.Name))
		}
	case *ast.ExpressionStatement:
		if l.opts.KeepDiscarded {
			l.rewriteNew(c, n, ctx, b)
			return
		}
		l.consumed[b]++
		l.discard(c, p)
	case *ast.FieldDefinition:
		// instance field of a lowered class: the initializer becomes a
		// store into the new instance
		if c.Edge == "Initializer" && l.bodies[p] != nil {
			l.rewriteNew(c, n, ctx, b)
		}
	case *ast.DotExpression:
		if c.Edge == "Left" {
			l.rewriteNew(c, n, ctx, b)
		}
	case *ast.BracketExpression:
		if c.Edge == "Left" {
			l.rewriteNew(c, n, ctx, b)
		}
	}
}

func (l *lowering) rewriteNew(c *jsast.Cursor, n *ast.NewExpression, ctx *ClassContext, b *jsast.Binding) {
	l.consumed[b]++
	l.news[n] = ctx

	lo, hi := l.src.Span(n)
	argsLo, argsHi := -1, -1
	if n.LeftParenthesis > 0 {
		argsLo = l.src.Offset(n.LeftParenthesis) + 1
		argsHi = l.src.Offset(n.RightParenthesis)
	}
	l.plan.replace(lo, hi, c.Depth, nil, func(r *renderer) string {
		args := ""
		if argsLo >= 0 {
			args = strings.TrimSpace(r.span(argsLo, argsHi))
		}
		return ctx.Constructor + "(" + args + ")"
	})
}

// global reports whether a store into target is visible to other units.
// Only shared units have such stores.
func (l *lowering) global(target ast.Expression) bool {
	if !l.opts.Shared {
		return false
	}
	for {
		switch t := target.(type) {
		case *ast.DotExpression:
			target = t.Left
		case *ast.BracketExpression:
			target = t.Left
		case *ast.Identifier:
			b := l.info.BindingOf(t)
			return b == nil || b.Scope.Type == jsast.ScopeGlobal
		default:
			return false
		}
	}
}

// discard removes a statement that only instantiates a lowered class. An
// empty statement stands in when no semicolon follows, so that the
// surrounding statement stays well formed.
func (l *lowering) discard(c *jsast.Cursor, stmt *ast.ExpressionStatement) {
	lo, hi := l.src.Span(stmt)
	code := l.src.Code
	terminated := false
	for i := hi; i < len(code); i++ {
		if code[i] == ' ' || code[i] == '\t' {
			continue
		}
		terminated = code[i] == ';'
		break
	}
	l.plan.replace(lo, hi, c.Depth-1, nil, func(*renderer) string {
		if terminated {
			return ""
		}
		return ";"
	})
}
