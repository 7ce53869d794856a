package lower

import (
	"strconv"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"

	jsast "github.com/lcalzada-xor/declass/pkg/js/ast"
)

// member rewrites an access on an object known to hold an instance: method
// calls become direct calls of the generated function, detached method
// references are bound to the instance, and every other access goes
// through the instance store. When the object may also hold another value
// the rewrite checks for the store at run time.
func (l *lowering) member(c *jsast.Cursor, object, keyExpr ast.Expression, key string, static bool) {
	known := l.exprClass(object)
	class, owner := known.class, known.owner
	if class == nil {
		return
	}

	if inPattern(c) {
		l.fail(structuralAt(l.src, l.offsetOf(c.Node), "cannot assign to a member of %s inside a destructuring pattern", class.Name))
		return
	}
	if _, ok := c.Parent.(*ast.ForIntoExpression); ok {
		l.fail(structuralAt(l.src, l.offsetOf(c.Node), "cannot use a member of %s as a loop target", class.Name))
		return
	}

	a := &access{
		key:    key,
		static: static,
		wrap:   isNewCallee(c.Node, c.Parent),
		maybe:  known.maybe,
		dupObj: duplicable(object),
		dupKey: static || duplicable(keyExpr),
	}
	a.direct, a.chained = optionalAt(object)
	a.objectLo, a.objectHi = l.src.Grouped(object)
	if !static {
		a.keyLo, a.keyHi = l.src.Grouped(keyExpr)
	}

	method, isMethod := "", false
	if static {
		method, isMethod = class.Method(key)
	}

	switch p := c.Parent.(type) {
	case *ast.CallExpression:
		if c.Edge == "Callee" && isMethod {
			if a.chained && !chainEnd(c.Ancestor(1)) {
				l.fail(structuralAt(l.src, l.offsetOf(c.Node), "optional chain continues after a call of %s.%s", class.Name, key))
				return
			}
			l.call(c, a, p, method, owner)
			return
		}
	case *ast.AssignExpression:
		if c.Edge == "Left" {
			l.write(c, a, p, owner)
			return
		}
	case *ast.UnaryExpression:
		switch p.Operator {
		case token.INCREMENT, token.DECREMENT:
			l.update(c, a, p, owner)
			return
		case token.DELETE:
			l.remove(c, a, p, c.Depth-1, owner)
			return
		}
	case *ast.OptionalChain:
		if u, ok := c.Ancestor(1).(*ast.UnaryExpression); ok && u.Operator == token.DELETE {
			l.remove(c, a, u, c.Depth-2, owner)
			return
		}
	}

	lo, hi := l.src.Span(c.Node)
	end := chainEnd(c.Parent)
	if isMethod {
		if a.chained && !end {
			l.fail(structuralAt(l.src, l.offsetOf(c.Node), "optional chain continues after method %s.%s", class.Name, key))
			return
		}
		var s *sharedNames
		if a.chained || a.maybe {
			s = l.sharedNames(a, false)
		}
		l.replace(c, lo, hi, c.Depth, owner, func(r *renderer) string {
			return a.paren(a.render(r, s, "", func(obj, key, _ string) string {
				out := r.expand("bind", accessData{Method: method, Object: obj})
				if a.maybe {
					out = l.guard(r, obj, out, r.expand("nativeGet", accessData{Object: obj, Key: key}))
				}
				if a.chained {
					out = r.expand("nullGuard", guardData{Object: obj, Absent: "undefined", Lowered: out})
				}
				return out
			}), a.wrap)
		})
		return
	}
	if a.maybe && a.chained && !end {
		l.fail(structuralAt(l.src, l.offsetOf(c.Node), "optional chain continues after member %s of a possible %s", key, class.Name))
		return
	}
	var s *sharedNames
	if a.maybe {
		s = l.sharedNames(a, false)
	}
	l.replace(c, lo, hi, c.Depth, owner, func(r *renderer) string {
		return a.paren(a.render(r, s, "", func(obj, key, _ string) string {
			if !a.maybe {
				return r.expand("get", accessData{Object: obj, Key: key, Optional: a.direct})
			}
			native := r.expand("nativeGet", accessData{Object: obj, Key: key, Optional: a.direct})
			return l.guard(r, obj, r.expand("get", accessData{Object: obj, Key: key}), native)
		}), a.wrap)
	})
}

// access is one member access on an instance, with the source ranges of
// its operands.
type access struct {
	key    string
	static bool
	wrap   bool
	// maybe is set when the object may hold another value than an
	// instance.
	maybe bool
	// direct is set for obj?.key, chained when an optional access occurs
	// anywhere along the object.
	direct, chained bool
	// dupObj and dupKey tell whether an operand can be repeated in the
	// output without repeating side effects.
	dupObj, dupKey     bool
	objectLo, objectHi int
	keyLo, keyHi       int
}

func (a *access) objectText(r *renderer) string {
	return r.span(a.objectLo, a.objectHi)
}

func (a *access) keyText(r *renderer) string {
	if a.static {
		return quote(a.key)
	}
	return r.span(a.keyLo, a.keyHi)
}

func (a *access) paren(s string, wrap bool) string {
	if wrap {
		return "(" + s + ")"
	}
	return s
}

// sharedNames are the arrow parameters standing in for operands that
// cannot be repeated. They are reserved at walk time so that the output
// does not depend on render order.
type sharedNames struct {
	object, key, value string
}

func (l *lowering) sharedNames(a *access, value bool) *sharedNames {
	if a.dupObj && a.dupKey {
		return nil
	}
	s := &sharedNames{object: l.names.Fresh("instance")}
	if !a.dupKey {
		s.key = l.names.Fresh("key")
	}
	if value {
		s.value = l.names.Fresh("value")
	}
	return s
}

// render builds the replacement from the rendered operands, passing the
// ones that cannot be repeated through an arrow function.
func (a *access) render(r *renderer, s *sharedNames, value string, body func(obj, key, value string) string) string {
	obj, key := a.objectText(r), a.keyText(r)
	if s == nil {
		return body(obj, key, value)
	}
	params, args := []string{s.object}, []string{obj}
	k := key
	if s.key != "" {
		params, args = append(params, s.key), append(args, key)
		k = s.key
	}
	v := value
	if s.value != "" {
		params, args = append(params, s.value), append(args, value)
		v = s.value
	}
	return r.expand("shared", sharedData{Params: params, Args: args, Body: body(s.object, k, v)})
}

// guard picks between the lowered and the native access at run time.
func (l *lowering) guard(r *renderer, obj, lowered, native string) string {
	return r.expand("guard", guardData{Object: obj, Map: l.mapRef, Lowered: lowered, Native: native})
}

// replace schedules the rewrite of an access. A replacement opening a
// statement that starts with a parenthesis gets a semicolon in front of it,
// or the line before would call it.
func (l *lowering) replace(c *jsast.Cursor, lo, hi, depth int, owner *ClassContext, emit func(r *renderer) string) {
	e := l.plan.replace(lo, hi, depth, owner, emit)
	e.lead = l.opensStatement(c, lo)
}

// opensStatement reports whether offset lo starts an expression statement
// of a statement list with no semicolon or brace right before it.
func (l *lowering) opensStatement(c *jsast.Cursor, lo int) bool {
	for i := 0; ; i++ {
		switch n := c.Ancestor(i).(type) {
		case nil, *ast.FunctionLiteral, *ast.ArrowFunctionLiteral, *ast.ClassLiteral:
			return false
		case *ast.ExpressionStatement:
			if start, _ := l.src.Span(n); start != lo {
				return false
			}
			switch c.Ancestor(i + 1).(type) {
			case *ast.Program, *ast.BlockStatement, *ast.CaseStatement:
			default:
				return false
			}
			code := l.src.Code
			j := lo - 1
			for j >= 0 && isBlank(code[j]) {
				j--
			}
			return j >= 0 && code[j] != ';' && code[j] != '{'
		}
	}
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func (l *lowering) call(c *jsast.Cursor, a *access, p *ast.CallExpression, method string, owner *ClassContext) {
	lo, hi := l.src.Span(p)
	argsLo := l.src.Offset(p.LeftParenthesis) + 1
	argsHi := l.src.Offset(p.RightParenthesis)
	var s *sharedNames
	if a.chained || a.maybe {
		s = l.sharedNames(a, false)
	}
	l.replace(c, lo, hi, c.Depth-1, owner, func(r *renderer) string {
		args := strings.TrimSpace(r.span(argsLo, argsHi))
		return a.render(r, s, "", func(obj, key, _ string) string {
			out := r.expand("call", accessData{Method: method, Object: obj, Args: args})
			if a.maybe {
				out = l.guard(r, obj, out, r.expand("nativeCall", accessData{Object: obj, Key: key, Args: args}))
			}
			if a.chained {
				out = r.expand("nullGuard", guardData{Object: obj, Absent: "undefined", Lowered: out})
			}
			return out
		})
	})
}

func (l *lowering) write(c *jsast.Cursor, a *access, p *ast.AssignExpression, owner *ClassContext) {
	lo, hi := l.src.Span(p)
	valueLo, valueHi := l.src.Grouped(p.Right)
	used := valueUsed(p, c.Ancestor(1))

	var name, op string
	native := "="
	switch p.Operator {
	case token.ASSIGN:
		name = "set"
	case token.LOGICAL_AND, token.LOGICAL_OR, token.COALESCE:
		name, op = "logical", p.Operator.String()
		native = op + "="
	default:
		name, op = "compound", p.Operator.String()
		native = op + "="
	}

	var s *sharedNames
	switch {
	case name != "set" || a.maybe:
		s = l.sharedNames(a, true)
	case used && !a.dupKey:
		s = l.sharedNames(a, true)
	}

	l.replace(c, lo, hi, c.Depth-1, owner, func(r *renderer) string {
		value := r.span(valueLo, valueHi)
		return a.render(r, s, value, func(obj, key, value string) string {
			out := r.expand(name, accessData{Object: obj, Key: key, Value: value, Op: op, Used: used})
			if a.maybe {
				out = l.guard(r, obj, out, r.expand("nativeWrite", accessData{Object: obj, Key: key, Value: value, Op: native}))
			}
			return out
		})
	})
}

func (l *lowering) update(c *jsast.Cursor, a *access, p *ast.UnaryExpression, owner *ClassContext) {
	lo, hi := l.src.Span(p)
	used := valueUsed(p, c.Ancestor(1))
	op := "++"
	if p.Operator == token.DECREMENT {
		op = "--"
	}
	s := l.sharedNames(a, false)
	temp, old := l.updateNames()
	l.replace(c, lo, hi, c.Depth-1, owner, func(r *renderer) string {
		return a.render(r, s, "", func(obj, key, _ string) string {
			out := r.expand("update", accessData{
				Object:  obj,
				Key:     key,
				Op:      op,
				Used:    used,
				Postfix: p.Postfix,
				Temp:    temp,
				Old:     old,
			})
			if a.maybe {
				out = l.guard(r, obj, out, r.expand("nativeUpdate", accessData{Object: obj, Key: key, Op: op, Postfix: p.Postfix}))
			}
			return out
		})
	})
}

// remove rewrites delete on a member. A delete through an optional chain
// on a missing object is true.
func (l *lowering) remove(c *jsast.Cursor, a *access, p *ast.UnaryExpression, depth int, owner *ClassContext) {
	lo, hi := l.src.Span(p)
	var s *sharedNames
	if a.maybe || a.chained {
		s = l.sharedNames(a, false)
	}
	l.replace(c, lo, hi, depth, owner, func(r *renderer) string {
		return a.render(r, s, "", func(obj, key, _ string) string {
			out := r.expand("delete", accessData{Object: obj, Key: key})
			if a.maybe {
				out = l.guard(r, obj, out, r.expand("nativeDelete", accessData{Object: obj, Key: key}))
			}
			if a.chained {
				out = r.expand("nullGuard", guardData{Object: obj, Absent: "true", Lowered: out})
			}
			return out
		})
	})
}

// updateNames returns the parameters of the arrow computing an updated
// value. One pair serves the unit: the arrow body never holds other code.
func (l *lowering) updateNames() (string, string) {
	if l.updateTemp == "" {
		l.updateTemp = l.names.Fresh("num")
		l.updateOld = l.names.Fresh("old")
	}
	return l.updateTemp, l.updateOld
}

// optionalAt reports whether e is the operand of an optional access, and
// whether an optional access occurs anywhere along the chain ending in e.
func optionalAt(e ast.Expression) (direct, chained bool) {
	if _, ok := e.(*ast.Optional); ok {
		return true, true
	}
	for {
		switch n := e.(type) {
		case *ast.Optional:
			return false, true
		case *ast.DotExpression:
			e = n.Left
		case *ast.BracketExpression:
			e = n.Left
		case *ast.CallExpression:
			e = n.Callee
		default:
			return false, false
		}
	}
}

// chainEnd reports whether parent closes an optional chain, so that
// nothing more of the chain follows the child.
func chainEnd(parent ast.Node) bool {
	_, ok := parent.(*ast.OptionalChain)
	return ok
}

// exprClass returns what an expression is known to evaluate to: the class
// of the instance, the class whose receiver it derives from, and whether
// it may be another value.
func (l *lowering) exprClass(e ast.Expression) taint {
	switch n := e.(type) {
	case *ast.NewExpression:
		return taint{class: l.news[n]}
	case *ast.Optional:
		return l.exprClass(n.Expression)
	case *ast.Identifier:
		if b := l.info.BindingOf(n); b != nil {
			return l.bindingClass(b)
		}
	case *ast.ThisExpression:
		if f := l.receiverFrame(); f != nil {
			if entry, ok := l.taints.entry(f.receiver); ok {
				return entry
			}
		}
	case *ast.DotExpression, *ast.BracketExpression:
		if root, path, ok := l.staticPath(n); ok {
			if entry, root, ok := l.taints.pathEntry(root, path); ok {
				return l.pathClass(root, entry)
			}
		}
		if !l.opts.FieldTyping {
			return taint{}
		}
		object, key, static := memberParts(n)
		if !static {
			return taint{}
		}
		if holder := l.exprClass(object); holder.class != nil {
			if k := holder.class.Field(key); k != nil {
				return taint{class: k, maybe: holder.maybe}
			}
		}
	}
	return taint{}
}

// bindingClass returns what b holds at the current position. Code in a
// nested function runs at times the walk does not follow, so there, and
// for bindings such functions assign, every value the binding receives
// in the unit counts.
func (l *lowering) bindingClass(b *jsast.Binding) taint {
	entry, ok := l.taints.entry(b)
	if u := l.usage[b]; u != nil && b.Kind != jsast.BindingSynthetic {
		if u.nested || (l.captured(b) && (u.written || !ok)) {
			return l.summary(u)
		}
	}
	if !ok {
		return taint{}
	}
	return l.settled(entry)
}

// pathClass returns what a path below root holds at the current position.
// A path read from a nested function, or written by one, is uncertain.
func (l *lowering) pathClass(root *jsast.Binding, entry taint) taint {
	entry = l.settled(entry)
	if root.Kind == jsast.BindingSynthetic {
		return entry
	}
	if u := l.usage[root]; (u != nil && u.nestedPaths) || l.captured(root) {
		entry.maybe = true
	}
	return entry
}

// settled makes an entry recorded in a region the walk has left
// uncertain: the code in between may have skipped it.
func (l *lowering) settled(entry taint) taint {
	if !l.region.Within(entry.region) {
		entry.maybe = true
	}
	return entry
}

// staticPath splits a member chain with static keys into the binding it
// starts from and the joined keys.
func (l *lowering) staticPath(e ast.Expression) (*jsast.Binding, string, bool) {
	var segments []string
	for {
		switch n := e.(type) {
		case *ast.DotExpression:
			segments = append(segments, n.Identifier.Name.String())
			e = n.Left
		case *ast.BracketExpression:
			key, ok := staticKey(n.Member)
			if !ok {
				return nil, "", false
			}
			segments = append(segments, key)
			e = n.Left
		case *ast.Optional:
			e = n.Expression
		case *ast.Identifier:
			b := l.info.BindingOf(n)
			return b, joinPath(segments), b != nil && len(segments) > 0
		case *ast.ThisExpression:
			f := l.receiverFrame()
			if f == nil {
				return nil, "", false
			}
			return f.receiver, joinPath(segments), len(segments) > 0
		default:
			return nil, "", false
		}
	}
}

// pathRoot returns the binding a member chain starts from, whatever its keys.
func (l *lowering) pathRoot(e ast.Expression) *jsast.Binding {
	for {
		switch n := e.(type) {
		case *ast.DotExpression:
			e = n.Left
		case *ast.BracketExpression:
			e = n.Left
		case *ast.Optional:
			e = n.Expression
		case *ast.Identifier:
			return l.info.BindingOf(n)
		case *ast.ThisExpression:
			if f := l.receiverFrame(); f != nil {
				return f.receiver
			}
			return nil
		default:
			return nil
		}
	}
}

// joinPath joins segments collected from the outermost access inwards.
func joinPath(segments []string) string {
	out := make([]string, len(segments))
	for i, s := range segments {
		out[len(segments)-1-i] = s
	}
	return strings.Join(out, pathSep)
}

func memberParts(e ast.Expression) (ast.Expression, string, bool) {
	switch n := e.(type) {
	case *ast.DotExpression:
		return n.Left, n.Identifier.Name.String(), true
	case *ast.BracketExpression:
		key, ok := staticKey(n.Member)
		return n.Left, key, ok
	}
	return nil, "", false
}

// staticKey returns the property name of a literal key.
func staticKey(e ast.Expression) (string, bool) {
	switch k := e.(type) {
	case *ast.StringLiteral:
		return k.Value.String(), true
	case *ast.NumberLiteral:
		switch v := k.Value.(type) {
		case int64:
			return strconv.FormatInt(v, 10), true
		case float64:
			return strconv.FormatFloat(v, 'g', -1, 64), true
		}
	}
	return "", false
}

// duplicable reports whether an operand can be evaluated twice with the
// same result and no side effects.
func duplicable(e ast.Expression) bool {
	switch n := e.(type) {
	case *ast.Identifier, *ast.ThisExpression, *ast.StringLiteral, *ast.NumberLiteral:
		return true
	case *ast.DotExpression:
		return duplicable(n.Left)
	case *ast.BracketExpression:
		_, ok := staticKey(n.Member)
		return ok && duplicable(n.Left)
	}
	return false
}

// valueUsed reports whether the value of an assignment or update is
// observed by its parent.
func valueUsed(n, parent ast.Node) bool {
	switch p := parent.(type) {
	case *ast.ExpressionStatement, *ast.ForLoopInitializerExpression:
		return false
	case *ast.ForStatement:
		return p.Update != n
	}
	return true
}

// isNewCallee reports whether n is the callee of a new expression, where a
// call in the replacement would bind to new.
func isNewCallee(n, parent ast.Node) bool {
	if p, ok := parent.(*ast.NewExpression); ok {
		return p.Callee == n
	}
	return false
}

// inPattern reports whether a member access is a destructuring target.
func inPattern(c *jsast.Cursor) bool {
	parent, grand := c.Parent, c.Ancestor(1)
	if a, ok := parent.(*ast.AssignExpression); ok && c.Edge == "Left" && a.Operator == token.ASSIGN {
		// a default value inside a pattern: [x.y = 1] = ...
		switch grand.(type) {
		case *ast.ArrayPattern:
			return true
		case *ast.PropertyKeyed:
			_, ok := c.Ancestor(2).(*ast.ObjectPattern)
			return ok
		}
		return false
	}
	switch parent.(type) {
	case *ast.ArrayPattern, *ast.ObjectPattern:
		return true
	case *ast.PropertyKeyed:
		_, ok := grand.(*ast.ObjectPattern)
		return ok && c.Edge == "Value"
	}
	return false
}

func (l *lowering) offsetOf(n ast.Node) int {
	lo, _ := l.src.Span(n)
	return lo
}

// declared follows a declarator's initializer into the declared binding.
func (l *lowering) declared(c *jsast.Cursor, n *ast.Binding) {
	if _, ok := c.Parent.(*ast.ParameterList); ok {
		return
	}
	id, ok := n.Target.(*ast.Identifier)
	if !ok || n.Initializer == nil {
		return
	}
	b := l.info.BindingOf(id)
	if b == nil {
		l.fail(unresolvedAt(l.src, l.src.Offset(id.Idx), id.Name.String(), "declared name has no binding"))
		return
	}
	switch known := l.exprClass(n.Initializer); {
	case known.class == nil:
		l.taints.Invalidate(b, l.region)
	case known.maybe:
		l.taints.MarkUncertain(b, known.class, l.region, known.owner)
	default:
		l.taints.Mark(b, known.class, l.region, known.owner)
	}
	if b.Kind == jsast.BindingConst {
		if root, path, ok := l.staticPath(n.Initializer); ok {
			l.taints.Alias(b, root, path)
		}
	}
}

// assigned follows an assignment into its target binding or static path.
func (l *lowering) assigned(n *ast.AssignExpression) {
	if n.Operator != token.ASSIGN {
		l.overwritten(n.Left)
		return
	}
	known := l.exprClass(n.Right)
	switch left := n.Left.(type) {
	case *ast.Identifier:
		b := l.info.BindingOf(left)
		if b == nil {
			return
		}
		switch {
		case known.class == nil:
			l.taints.Invalidate(b, l.region)
		case known.maybe:
			l.taints.MarkUncertain(b, known.class, l.region, known.owner)
		default:
			l.taints.Mark(b, known.class, l.region, known.owner)
		}
	case *ast.DotExpression, *ast.BracketExpression:
		root, path, ok := l.staticPath(left)
		if !ok {
			if root := l.pathRoot(left); root != nil {
				l.taints.dropPaths(root, "", l.region)
			}
			return
		}
		switch {
		case known.class == nil:
			l.taints.InvalidatePath(root, path, l.region)
		case known.maybe:
			l.taints.MarkPathUncertain(root, path, known.class, l.region, nil)
		default:
			l.taints.MarkPath(root, path, known.class, l.region, nil)
		}
	case *ast.ArrayPattern, *ast.ObjectPattern:
		for _, id := range jsast.Targets(left) {
			if b := l.info.BindingOf(id); b != nil {
				l.taints.Invalidate(b, l.region)
			}
		}
	}
}

// overwritten forgets what a target held after an update, a compound
// assignment or a loop assignment.
func (l *lowering) overwritten(target ast.Expression) {
	switch t := target.(type) {
	case *ast.Identifier:
		if b := l.info.BindingOf(t); b != nil {
			l.taints.Invalidate(b, l.region)
		}
	case *ast.DotExpression, *ast.BracketExpression:
		if root, path, ok := l.staticPath(t); ok {
			l.taints.InvalidatePath(root, path, l.region)
		} else if root := l.pathRoot(t); root != nil {
			l.taints.dropPaths(root, "", l.region)
		}
	}
}
