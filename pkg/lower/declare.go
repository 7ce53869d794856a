package lower

import (
	"fmt"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"

	jsast "github.com/lcalzada-xor/declass/pkg/js/ast"
)

// classState is a lowered class declaration and the members it emits.
type classState struct {
	ctx     *ClassContext
	decl    *ast.ClassDeclaration
	ctor    *ast.MethodDefinition
	methods []*ast.MethodDefinition
	names   map[*ast.MethodDefinition]string
	fields  []*ast.FieldDefinition
	// static is set when the class has static members or blocks, which
	// stay on the retained declaration.
	static bool
	// rest names the parameter forwarding constructor arguments when the
	// constructor parameters are not plain names.
	rest string
}

// declareClass registers an eligible class declaration and replaces it by
// its generated functions. It runs during the survey, so the whole unit
// sees the class.
func (l *lowering) declareClass(c *jsast.Cursor, decl *ast.ClassDeclaration) {
	cl := decl.Class
	info := describe(l.src, cl, true, l.opts)
	offset := l.src.Offset(cl.Class)
	if !info.Eligible {
		l.warn(info.Name, offset, "left as a class: "+info.Reason)
		return
	}

	b := l.info.BindingOf(cl.Name)
	if b == nil {
		l.fail(unresolvedAt(l.src, offset, info.Name, "class declaration has no binding"))
		return
	}

	ctx := newClassContext(info.Name, b)
	st := &classState{ctx: ctx, decl: decl, names: make(map[*ast.MethodDefinition]string)}

	for _, el := range cl.Body {
		switch m := el.(type) {
		case *ast.MethodDefinition:
			name, _, ok := memberKey(m.Key)
			if m.Body == nil || m.Body.Body == nil {
				l.fail(structuralAt(l.src, l.src.Offset(m.Idx), "member %s of %s has no body", name, info.Name))
				return
			}
			switch {
			case m.Static:
				st.static = true
			case m.Computed || !ok:
				l.warn(info.Name, l.src.Offset(m.Idx), "computed method is not lowered")
			case m.Kind == ast.PropertyKindGet || m.Kind == ast.PropertyKindSet:
				l.warn(info.Name, l.src.Offset(m.Idx), fmt.Sprintf("accessor %s is not lowered", name))
			case name == "constructor":
				st.ctor = m
			default:
				fn := l.names.Fresh(info.Name + "__" + name)
				st.methods = append(st.methods, m)
				st.names[m] = fn
				ctx.addMethod(name, fn)
			}
		case *ast.FieldDefinition:
			if m.Static {
				st.static = true
				continue
			}
			st.fields = append(st.fields, m)
		case *ast.ClassStaticBlock:
			st.static = true
		}
	}
	if st.static {
		l.note(info.Name, offset, "static members keep the class declaration")
	}
	if info.SuperClass {
		l.warn(info.Name, offset, "superclass is ignored")
	}

	if st.ctor != nil || len(st.fields) > 0 {
		ctx.Init = l.names.Fresh(info.Name + "__init")
	}
	if ctx.Init != "" || len(st.methods) > 0 {
		ctx.Receiver = l.receiverParam()
	}
	ctx.Constructor = l.names.Fresh(info.Name + "__constructor")
	if st.ctor != nil && !simpleParams(st.ctor.Body.ParameterList) {
		st.rest = l.names.Fresh("args")
	}

	if err := l.registry.Create(b, ctx); err != nil {
		l.fail(err)
		return
	}
	l.states = append(l.states, st)
	if st.ctor != nil {
		l.bodies[st.ctor.Body] = st
	}
	for _, m := range st.methods {
		l.bodies[m.Body] = st
	}
	for _, f := range st.fields {
		l.bodies[f] = st
	}

	lo, hi := l.src.Span(decl)
	l.plan.replace(lo, hi, c.Depth, nil, func(r *renderer) string {
		return l.emitClass(r, st, lo, hi)
	})
}

// retained reports whether the class declaration must be kept next to the
// generated functions: code outside the rewritten instantiations still
// refers to the class, it has static members, or other units can see it.
func (l *lowering) retained(st *classState) bool {
	if l.opts.Shared && st.ctx.Binding.Scope.Type == jsast.ScopeGlobal {
		return true
	}
	return st.static || len(st.ctx.Binding.Refs) > l.consumed[st.ctx.Binding]
}

func (l *lowering) emitClass(r *renderer, st *classState, lo, hi int) string {
	indent := l.src.Indent(lo)
	var parts []string
	if st.ctx.Init != "" {
		parts = append(parts, l.emitInit(r, st, indent))
	}
	parts = append(parts, l.emitConstructor(r, st, indent))
	for _, m := range st.methods {
		parts = append(parts, l.emitMethod(r, st, m, indent))
	}
	if l.retained(st) {
		parts = append(parts, r.without(st.ctx, func() string { return r.span(lo, hi) }))
	}
	return strings.Join(parts, "\n"+indent)
}

func (l *lowering) emitConstructor(r *renderer, st *classState, indent string) string {
	ctx := st.ctx
	if ctx.Init == "" {
		return r.expand("emptyConstructor", constructorData{Name: ctx.Constructor, Map: l.mapRef, Indent: indent})
	}
	data := constructorData{
		Name:     ctx.Constructor,
		Receiver: ctx.Receiver,
		Init:     ctx.Init,
		Map:      l.mapRef,
		Indent:   indent,
	}
	if st.ctor != nil {
		if st.rest != "" {
			data.Params = "..." + st.rest
			data.Args = data.Params
		} else {
			var names []string
			for _, p := range st.ctor.Body.ParameterList.List {
				names = append(names, p.Target.(*ast.Identifier).Name.String())
			}
			data.Params = strings.Join(names, ", ")
			data.Args = data.Params
		}
	}
	return r.expand("constructor", data)
}

// emitInit renders the init function: instance fields first, then the
// constructor body.
func (l *lowering) emitInit(r *renderer, st *classState, indent string) string {
	ctx := st.ctx
	fn := functionData{Name: ctx.Init, Receiver: ctx.Receiver, Indent: indent}
	for _, f := range st.fields {
		name, _, _ := memberKey(f.Key)
		value := ""
		if f.Initializer != nil {
			value = r.span(l.src.Grouped(f.Initializer))
		}
		fn.Prologue = append(fn.Prologue, r.expand("fieldInit", accessData{
			Object: ctx.Receiver,
			Key:    quote(name),
			Value:  value,
		}))
	}
	if st.ctor != nil {
		body := st.ctor.Body
		fn.Params = l.paramText(r, body.ParameterList)
		fn.Body = l.bodyText(r, body.Body)
	}
	if len(fn.Prologue) > 0 && !strings.Contains(fn.Body, "\n") {
		if text := strings.TrimSpace(fn.Body); text != "" {
			fn.Body = "\n" + indent + "  " + text
		}
		fn.Body += "\n" + indent
	}
	return r.expand("function", fn)
}

func (l *lowering) emitMethod(r *renderer, st *classState, m *ast.MethodDefinition, indent string) string {
	fn := m.Body
	return r.expand("function", functionData{
		Async:     fn.Async,
		Generator: fn.Generator,
		Name:      st.names[m],
		Receiver:  st.ctx.Receiver,
		Params:    l.paramText(r, fn.ParameterList),
		Body:      l.bodyText(r, fn.Body),
		Indent:    indent,
	})
}

func (l *lowering) paramText(r *renderer, params *ast.ParameterList) string {
	if params == nil {
		return ""
	}
	return strings.TrimSpace(r.span(l.src.Offset(params.Opening)+1, l.src.Offset(params.Closing)))
}

func (l *lowering) bodyText(r *renderer, body *ast.BlockStatement) string {
	return r.span(l.src.Offset(body.LeftBrace)+1, l.src.Offset(body.RightBrace))
}

func simpleParams(params *ast.ParameterList) bool {
	if params == nil {
		return true
	}
	if params.Rest != nil {
		return false
	}
	for _, p := range params.List {
		if _, ok := p.Target.(*ast.Identifier); !ok || p.Initializer != nil {
			return false
		}
	}
	return true
}

// typeFields finds the fields that only ever receive instances of a single
// lowered class from the class's own code. Any other write to a field, or
// a write through a computed key, rules typing out.
func (l *lowering) typeFields(st *classState) {
	s := &fieldScan{l: l, st: st, candidates: make(map[string]*ClassContext), untyped: make(map[string]bool)}
	for _, f := range st.fields {
		name, _, _ := memberKey(f.Key)
		if f.Initializer == nil {
			continue
		}
		if k := s.newClass(f.Initializer); k != nil {
			s.candidate(name, k)
		} else {
			s.untyped[name] = true
		}
		s.scan(f.Initializer)
	}
	if st.ctor != nil {
		s.scan(st.ctor.Body)
	}
	for _, m := range st.methods {
		s.scan(m.Body)
	}
	if s.dynamic {
		return
	}
	for name, k := range s.candidates {
		if !s.untyped[name] {
			st.ctx.fields[name] = k
		}
	}
}

type fieldScan struct {
	l          *lowering
	st         *classState
	root       ast.Node
	candidates map[string]*ClassContext
	untyped    map[string]bool
	dynamic    bool
}

func (s *fieldScan) scan(root ast.Node) {
	s.root = root
	jsast.Walk(root, s)
}

func (s *fieldScan) Enter(c *jsast.Cursor) bool {
	switch n := c.Node.(type) {
	case *ast.FunctionLiteral:
		return n == s.root
	case *ast.ClassLiteral, *ast.ClassStaticBlock:
		return false
	case *ast.AssignExpression:
		name, static, ok := receiverMember(n.Left)
		switch {
		case !ok:
		case !static:
			s.dynamic = true
		case n.Operator == token.ASSIGN:
			if k := s.newClass(n.Right); k != nil {
				s.candidate(name, k)
			} else {
				s.untyped[name] = true
			}
		default:
			s.untyped[name] = true
		}
	case *ast.UnaryExpression:
		if n.Operator != token.INCREMENT && n.Operator != token.DECREMENT && n.Operator != token.DELETE {
			break
		}
		name, static, ok := receiverMember(n.Operand)
		switch {
		case !ok:
		case !static:
			s.dynamic = true
		default:
			s.untyped[name] = true
		}
	}
	return true
}

func (s *fieldScan) Exit(*jsast.Cursor) {}

func (s *fieldScan) candidate(name string, k *ClassContext) {
	if prev, ok := s.candidates[name]; ok && prev != k {
		s.untyped[name] = true
		return
	}
	s.candidates[name] = k
}

// newClass returns the lowered class instantiated by e, counting the class
// being declared.
func (s *fieldScan) newClass(e ast.Expression) *ClassContext {
	n, ok := e.(*ast.NewExpression)
	if !ok {
		return nil
	}
	id, ok := n.Callee.(*ast.Identifier)
	if !ok {
		return nil
	}
	b := s.l.info.BindingOf(id)
	if b != nil && b == s.st.ctx.Binding {
		return s.st.ctx
	}
	return s.l.registry.Lookup(b)
}

// receiverMember matches this.name and this[key].
func receiverMember(e ast.Expression) (name string, static, ok bool) {
	switch n := e.(type) {
	case *ast.DotExpression:
		if _, this := n.Left.(*ast.ThisExpression); this {
			return n.Identifier.Name.String(), true, true
		}
	case *ast.BracketExpression:
		if _, this := n.Left.(*ast.ThisExpression); this {
			key, static := staticKey(n.Member)
			return key, static, true
		}
	}
	return "", false, false
}
