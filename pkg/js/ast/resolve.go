package ast

import (
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"
)

// Info holds the bindings of one program.
type Info struct {
	Global *Scope

	refs   map[*ast.Identifier]*Binding
	decls  map[*ast.Identifier]bool
	scopes map[ast.Node]*Scope
	names  map[string]bool
}

// BindingOf returns the binding an identifier occurrence resolves to.
func (i *Info) BindingOf(id *ast.Identifier) *Binding {
	return i.refs[id]
}

// IsDeclaration reports whether id is a declaration site.
func (i *Info) IsDeclaration(id *ast.Identifier) bool {
	return i.decls[id]
}

// ScopeOf returns the scope a node introduced, if any.
func (i *Info) ScopeOf(n ast.Node) *Scope {
	return i.scopes[n]
}

// Declared reports whether any scope of the unit declares name.
func (i *Info) Declared(name string) bool {
	for id := range i.decls {
		if id.Name.String() == name {
			return true
		}
	}
	return false
}

// Namer returns a fresh-name generator that avoids every name of the unit.
func (i *Info) Namer() *Namer {
	return NewNamer(i.names)
}

// Resolve builds the scope tree of a program and binds every identifier
// reference to its declaration. Names that are never declared resolve to
// implicit bindings of the global scope.
func Resolve(program *ast.Program) *Info {
	r := &resolver{
		info: &Info{
			refs:   make(map[*ast.Identifier]*Binding),
			decls:  make(map[*ast.Identifier]bool),
			scopes: make(map[ast.Node]*Scope),
			names:  make(map[string]bool),
		},
	}
	Walk(program, r)
	return r.info
}

type resolver struct {
	info   *Info
	scope  *Scope
	pushed []int
}

func (r *resolver) Enter(c *Cursor) bool {
	pushes := 0
	push := func(t ScopeType) {
		r.scope = NewScope(r.scope, t, c.Node)
		r.info.scopes[c.Node] = r.scope
		pushes++
	}

	switch n := c.Node.(type) {
	case *ast.Program:
		push(ScopeGlobal)
		r.info.Global = r.scope
		r.hoistVars(n.DeclarationList)
		r.hoistLexical(n.Body)

	case *ast.FunctionLiteral:
		if _, decl := c.Parent.(*ast.FunctionDeclaration); !decl && n.Name != nil {
			push(ScopeBlock)
			r.declare(n.Name, BindingFunction)
		}
		push(ScopeFunction)
		r.declareParams(n.ParameterList)
		r.hoistVars(n.DeclarationList)
		if n.Body != nil {
			r.hoistLexical(n.Body.List)
		}

	case *ast.ArrowFunctionLiteral:
		push(ScopeFunction)
		r.declareParams(n.ParameterList)
		r.hoistVars(n.DeclarationList)
		if body, ok := n.Body.(*ast.BlockStatement); ok {
			r.hoistLexical(body.List)
		}

	case *ast.ClassLiteral:
		if _, decl := c.Parent.(*ast.ClassDeclaration); !decl && n.Name != nil {
			push(ScopeBlock)
			r.declare(n.Name, BindingClass)
		}

	case *ast.ClassStaticBlock:
		push(ScopeFunction)
		r.hoistVars(n.DeclarationList)
		if n.Block != nil {
			r.hoistLexical(n.Block.List)
		}

	case *ast.BlockStatement:
		switch c.Parent.(type) {
		case *ast.FunctionLiteral, *ast.ArrowFunctionLiteral, *ast.ClassStaticBlock:
		default:
			push(ScopeBlock)
			r.hoistLexical(n.List)
		}

	case *ast.CatchStatement:
		push(ScopeBlock)
		r.declareTarget(n.Parameter, BindingCatch)

	case *ast.ForStatement:
		push(ScopeBlock)
		if init, ok := n.Initializer.(*ast.ForLoopInitializerLexicalDecl); ok {
			r.declareLexical(&init.LexicalDeclaration)
		}

	case *ast.ForInStatement:
		push(ScopeBlock)
		r.declareInto(n.Into)

	case *ast.ForOfStatement:
		push(ScopeBlock)
		r.declareInto(n.Into)

	case *ast.SwitchStatement:
		push(ScopeBlock)
		for _, cs := range n.Body {
			r.hoistLexical(cs.Consequent)
		}

	case *ast.Identifier:
		r.reference(n)
	}

	r.pushed = append(r.pushed, pushes)
	return true
}

func (r *resolver) Exit(c *Cursor) {
	pushes := r.pushed[len(r.pushed)-1]
	r.pushed = r.pushed[:len(r.pushed)-1]
	for ; pushes > 0; pushes-- {
		r.scope = r.scope.Parent
	}
}

func (r *resolver) declare(id *ast.Identifier, kind BindingKind) {
	r.declareIn(r.scope, id, kind)
}

func (r *resolver) declareIn(s *Scope, id *ast.Identifier, kind BindingKind) {
	name := id.Name.String()
	r.info.names[name] = true
	b := s.Define(name, kind, id)
	r.info.refs[id] = b
	r.info.decls[id] = true
}

func (r *resolver) reference(id *ast.Identifier) {
	name := id.Name.String()
	r.info.names[name] = true
	if _, seen := r.info.refs[id]; seen {
		return
	}
	b := r.scope.Lookup(name)
	if b == nil {
		b = r.info.Global.Define(name, BindingImplicit, nil)
	}
	r.info.refs[id] = b
	b.Refs = append(b.Refs, id)
}

func (r *resolver) hoistVars(list []*ast.VariableDeclaration) {
	fn := r.scope.FunctionScope()
	for _, decl := range list {
		for _, b := range decl.List {
			for _, id := range Targets(b.Target) {
				r.declareIn(fn, id, BindingVar)
			}
		}
	}
}

func (r *resolver) hoistLexical(list []ast.Statement) {
	for _, stmt := range list {
		switch stmt := stmt.(type) {
		case *ast.LexicalDeclaration:
			r.declareLexical(stmt)
		case *ast.FunctionDeclaration:
			if stmt.Function.Name != nil {
				r.declare(stmt.Function.Name, BindingFunction)
			}
		case *ast.ClassDeclaration:
			if stmt.Class.Name != nil {
				r.declare(stmt.Class.Name, BindingClass)
			}
		}
	}
}

func (r *resolver) declareLexical(decl *ast.LexicalDeclaration) {
	kind := BindingLet
	if decl.Token == token.CONST {
		kind = BindingConst
	}
	for _, b := range decl.List {
		r.declareTarget(b.Target, kind)
	}
}

func (r *resolver) declareInto(into ast.ForInto) {
	if d, ok := into.(*ast.ForDeclaration); ok {
		kind := BindingLet
		if d.IsConst {
			kind = BindingConst
		}
		r.declareTarget(d.Target, kind)
	}
}

func (r *resolver) declareParams(params *ast.ParameterList) {
	if params == nil {
		return
	}
	for _, b := range params.List {
		r.declareTarget(b.Target, BindingParam)
	}
	if params.Rest != nil {
		r.declareTarget(params.Rest, BindingParam)
	}
}

func (r *resolver) declareTarget(target ast.Expression, kind BindingKind) {
	for _, id := range Targets(target) {
		r.declare(id, kind)
	}
}

// Targets returns the identifiers bound by a binding target or
// destructuring pattern, in source order.
func Targets(target ast.Expression) []*ast.Identifier {
	var out []*ast.Identifier
	var collect func(e ast.Expression)
	collect = func(e ast.Expression) {
		switch e := e.(type) {
		case *ast.Identifier:
			out = append(out, e)
		case *ast.Binding:
			collect(e.Target)
		case *ast.AssignExpression:
			collect(e.Left)
		case *ast.ArrayPattern:
			for _, el := range e.Elements {
				if el != nil {
					collect(el)
				}
			}
			if e.Rest != nil {
				collect(e.Rest)
			}
		case *ast.ObjectPattern:
			for _, p := range e.Properties {
				switch p := p.(type) {
				case *ast.PropertyShort:
					out = append(out, &p.Name)
				case *ast.PropertyKeyed:
					collect(p.Value)
				}
			}
			if e.Rest != nil {
				collect(e.Rest)
			}
		}
	}
	collect(target)
	return out
}
