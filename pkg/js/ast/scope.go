package ast

import "github.com/dop251/goja/ast"

// ScopeType defines the type of the scope
type ScopeType int

const (
	ScopeGlobal ScopeType = iota
	ScopeFunction
	ScopeBlock
)

// BindingKind records how a binding was introduced.
type BindingKind int

const (
	BindingVar BindingKind = iota
	BindingLet
	BindingConst
	BindingFunction
	BindingClass
	BindingParam
	BindingCatch
	// BindingImplicit is an undeclared global referenced by the unit.
	BindingImplicit
	// BindingSynthetic is a binding introduced by a rewrite, not by source.
	BindingSynthetic
)

// Scope represents a lexical scope in JavaScript
type Scope struct {
	Type     ScopeType
	Parent   *Scope
	Node     ast.Node
	Bindings map[string]*Binding
}

// Binding is the unique declaration a name resolves to. Bindings are
// compared by pointer identity; two bindings with the same name in
// different scopes are different bindings.
type Binding struct {
	Name  string
	Kind  BindingKind
	Scope *Scope
	// Decl is the first declaring identifier, nil for implicit and synthetic bindings.
	Decl *ast.Identifier
	// Refs holds every resolved occurrence that is not a declaration site.
	Refs []*ast.Identifier
}

// NewScope creates a new scope
func NewScope(parent *Scope, scopeType ScopeType, node ast.Node) *Scope {
	return &Scope{
		Type:     scopeType,
		Parent:   parent,
		Node:     node,
		Bindings: make(map[string]*Binding),
	}
}

// Define creates a binding in the current scope. Redeclaring a name in the
// same scope (var after var, var after function) returns the existing binding.
func (s *Scope) Define(name string, kind BindingKind, decl *ast.Identifier) *Binding {
	if b, ok := s.Bindings[name]; ok {
		return b
	}
	b := &Binding{Name: name, Kind: kind, Scope: s, Decl: decl}
	s.Bindings[name] = b
	return b
}

// Lookup finds a binding in the current or parent scopes
func (s *Scope) Lookup(name string) *Binding {
	if b, ok := s.Bindings[name]; ok {
		return b
	}
	if s.Parent != nil {
		return s.Parent.Lookup(name)
	}
	return nil
}

// FunctionScope returns the nearest enclosing function or global scope.
func (s *Scope) FunctionScope() *Scope {
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.Type != ScopeBlock {
			return cur
		}
	}
	return nil
}

// NewSynthetic creates a binding that does not appear in source, such as
// the explicit receiver parameter of a generated function.
func NewSynthetic(name string) *Binding {
	return &Binding{Name: name, Kind: BindingSynthetic}
}
