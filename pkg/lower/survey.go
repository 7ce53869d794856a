package lower

import (
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"

	jsast "github.com/lcalzada-xor/declass/pkg/js/ast"
)

// usage summarizes every value a binding receives in the unit, whatever
// the order the code runs in.
type usage struct {
	// classes lists the class bindings instantiated into the binding, in
	// source order.
	classes []*jsast.Binding
	// other is set when the binding receives any other value.
	other bool
	// written is set when the binding is assigned after its declaration.
	written bool
	// nested is set when a function other than the one declaring the
	// binding assigns it.
	nested bool
	// nestedPaths is set when such a function writes a property below it.
	nestedPaths bool
}

func (u *usage) add(class *jsast.Binding) {
	if class == nil {
		u.other = true
		return
	}
	for _, c := range u.classes {
		if c == class {
			return
		}
	}
	u.classes = append(u.classes, class)
}

// carried is what the repeated part of a loop writes. The next iteration
// observes it before the write.
type carried struct {
	bindings map[*jsast.Binding]*usage
	roots    map[*jsast.Binding]bool
}

// survey is the walk that runs before the lowering proper. It registers
// the class declarations, so that code above a declaration can use it,
// and collects the usage of every binding.
type survey struct {
	l      *lowering
	usage  map[*jsast.Binding]*usage
	loops  map[ast.Node]*carried
	fns    []ast.Node
	active []*carried
	marks  []surveyMark
}

type surveyMark struct {
	fn, loop bool
}

func newSurvey(l *lowering) *survey {
	return &survey{
		l:     l,
		usage: make(map[*jsast.Binding]*usage),
		loops: make(map[ast.Node]*carried),
	}
}

func (s *survey) Enter(c *jsast.Cursor) bool {
	if s.l.err != nil {
		return false
	}
	var m surveyMark
	if loop, ok := carriedEdge(c); ok {
		lw := s.loops[loop]
		if lw == nil {
			lw = &carried{bindings: make(map[*jsast.Binding]*usage), roots: make(map[*jsast.Binding]bool)}
			s.loops[loop] = lw
		}
		s.active = append(s.active, lw)
		m.loop = true
	}
	if functionLike(c.Node) {
		s.fns = append(s.fns, c.Node)
		m.fn = true
	}

	switch n := c.Node.(type) {
	case *ast.ClassDeclaration:
		s.l.declareClass(c, n)
	case *ast.Binding:
		s.declaration(c, n)
	case *ast.AssignExpression:
		s.assignment(n)
	case *ast.UnaryExpression:
		switch n.Operator {
		case token.INCREMENT, token.DECREMENT, token.DELETE:
			s.target(n.Operand, nil)
		}
	case ast.ForInto:
		s.into(n)
	case *ast.CatchStatement:
		if n.Parameter != nil {
			for _, id := range jsast.Targets(n.Parameter) {
				s.write(s.l.info.BindingOf(id), nil, true)
			}
		}
	}

	s.marks = append(s.marks, m)
	return true
}

func (s *survey) Exit(*jsast.Cursor) {
	m := s.marks[len(s.marks)-1]
	s.marks = s.marks[:len(s.marks)-1]
	if m.fn {
		s.fns = s.fns[:len(s.fns)-1]
	}
	if m.loop {
		s.active = s.active[:len(s.active)-1]
	}
}

func (s *survey) declaration(c *jsast.Cursor, n *ast.Binding) {
	if _, ok := c.Parent.(*ast.ParameterList); ok {
		for _, id := range jsast.Targets(n.Target) {
			s.write(s.l.info.BindingOf(id), nil, true)
		}
		return
	}
	if _, ok := c.Parent.(*ast.ForIntoVar); ok {
		// assigned by the loop, see into
		return
	}
	if n.Initializer == nil {
		return
	}
	if id, ok := n.Target.(*ast.Identifier); ok {
		var class *jsast.Binding
		switch c.Parent.(type) {
		case *ast.VariableStatement, *ast.LexicalDeclaration, *ast.ForLoopInitializerVarDeclList:
			class = s.instance(n.Initializer, id)
		}
		s.write(s.l.info.BindingOf(id), class, true)
		return
	}
	for _, id := range jsast.Targets(n.Target) {
		s.write(s.l.info.BindingOf(id), nil, true)
	}
}

func (s *survey) assignment(n *ast.AssignExpression) {
	if n.Operator != token.ASSIGN {
		s.target(n.Left, nil)
		return
	}
	if id, ok := n.Left.(*ast.Identifier); ok {
		s.write(s.l.info.BindingOf(id), s.instance(n.Right, id), false)
		return
	}
	s.target(n.Left, nil)
}

func (s *survey) into(into ast.ForInto) {
	switch n := into.(type) {
	case *ast.ForIntoExpression:
		s.target(n.Expression, nil)
	case *ast.ForIntoVar:
		s.target(n.Binding.Target, nil)
	case *ast.ForDeclaration:
		s.target(n.Target, nil)
	}
}

// target records a write of an unrelated value into a binding, a pattern
// or a member.
func (s *survey) target(e ast.Expression, class *jsast.Binding) {
	switch t := e.(type) {
	case *ast.Identifier:
		s.write(s.l.info.BindingOf(t), class, false)
	case *ast.DotExpression, *ast.BracketExpression:
		root := memberRoot(t)
		if root == nil {
			return
		}
		b := s.l.info.BindingOf(root)
		if b == nil {
			return
		}
		if s.nested(b) {
			s.use(b).nestedPaths = true
		}
		for _, lw := range s.active {
			lw.roots[b] = true
		}
	default:
		for _, id := range jsast.Targets(e) {
			s.write(s.l.info.BindingOf(id), nil, false)
		}
	}
}

// write records that b receives an instance of class, or another value
// when class is nil.
func (s *survey) write(b *jsast.Binding, class *jsast.Binding, decl bool) {
	if b == nil {
		return
	}
	u := s.use(b)
	u.add(class)
	if !decl {
		u.written = true
	}
	if s.nested(b) {
		u.nested = true
	}
	for _, lw := range s.active {
		lu := lw.bindings[b]
		if lu == nil {
			lu = &usage{}
			lw.bindings[b] = lu
		}
		lu.add(class)
	}
}

func (s *survey) use(b *jsast.Binding) *usage {
	u := s.usage[b]
	if u == nil {
		u = &usage{}
		s.usage[b] = u
	}
	return u
}

// nested reports whether the current position is inside a function nested
// in the one declaring b.
func (s *survey) nested(b *jsast.Binding) bool {
	fn := ast.Node(s.l.src.Program)
	if len(s.fns) > 0 {
		fn = s.fns[len(s.fns)-1]
	}
	return fn != declaringFunction(b)
}

// instance returns the class binding an initializer instantiates when the
// instantiation is rewritten into the target.
func (s *survey) instance(e ast.Expression, target *ast.Identifier) *jsast.Binding {
	n, ok := e.(*ast.NewExpression)
	if !ok {
		return nil
	}
	callee, ok := n.Callee.(*ast.Identifier)
	if !ok || s.l.global(target) {
		return nil
	}
	b := s.l.info.BindingOf(callee)
	if b == nil || b.Kind != jsast.BindingClass {
		return nil
	}
	return b
}

// summary resolves a usage into what the binding holds anywhere.
// Instances of two different lowered classes are not followed.
func (l *lowering) summary(u *usage) taint {
	var class *ClassContext
	maybe := u.other
	for _, b := range u.classes {
		k := l.registry.Lookup(b)
		switch {
		case k == nil:
			maybe = true
		case class != nil && class != k:
			return taint{}
		default:
			class = k
		}
	}
	if class == nil {
		return taint{}
	}
	return taint{class: class, maybe: maybe}
}

// carriedEdge reports whether the node is a part of a loop that runs again
// after the loop body, and returns the loop.
func carriedEdge(c *jsast.Cursor) (ast.Node, bool) {
	switch c.Parent.(type) {
	case *ast.WhileStatement, *ast.DoWhileStatement:
		return c.Parent, c.Edge == "Test" || c.Edge == "Body"
	case *ast.ForStatement:
		return c.Parent, c.Edge == "Test" || c.Edge == "Update" || c.Edge == "Body"
	case *ast.ForInStatement, *ast.ForOfStatement:
		return c.Parent, c.Edge == "Into" || c.Edge == "Body"
	}
	return nil, false
}

// functionLike reports whether code under n runs at another time than the
// code around it.
func functionLike(n ast.Node) bool {
	switch n.(type) {
	case *ast.FunctionLiteral, *ast.ArrowFunctionLiteral, *ast.ClassStaticBlock, *ast.FieldDefinition:
		return true
	}
	return false
}

// declaringFunction returns the function or program whose scope holds b.
func declaringFunction(b *jsast.Binding) ast.Node {
	if b.Scope == nil {
		return nil
	}
	if fn := b.Scope.FunctionScope(); fn != nil {
		return fn.Node
	}
	return nil
}

// memberRoot returns the identifier a member chain starts from.
func memberRoot(e ast.Expression) *ast.Identifier {
	for {
		switch n := e.(type) {
		case *ast.DotExpression:
			e = n.Left
		case *ast.BracketExpression:
			e = n.Left
		case *ast.Optional:
			e = n.Expression
		case *ast.Identifier:
			return n
		default:
			return nil
		}
	}
}
