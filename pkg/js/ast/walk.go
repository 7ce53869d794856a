package ast

import (
	"reflect"
	"sync"

	"github.com/dop251/goja/ast"
)

// Visitor receives enter/exit callbacks during Walk. Returning false from
// Enter skips the node's children and its Exit call.
type Visitor interface {
	Enter(c *Cursor) bool
	Exit(c *Cursor)
}

// Cursor describes the position of the visited node in the tree.
type Cursor struct {
	Node   ast.Node
	Parent ast.Node
	// Edge is the field of Parent holding Node, Index its slice position or -1.
	Edge  string
	Index int
	Depth int

	path []ast.Node
}

// Ancestor returns the n-th ancestor (0 is the parent) or nil.
func (c *Cursor) Ancestor(n int) ast.Node {
	i := len(c.path) - 1 - n
	if i < 0 {
		return nil
	}
	return c.path[i]
}

// Path returns the ancestors of the node, outermost first.
func (c *Cursor) Path() []ast.Node {
	return c.path
}

// Walk visits root and its descendants depth-first in source order.
// Identifiers that are not references (property names after a dot,
// statement labels, meta property names) are not visited.
func Walk(root ast.Node, v Visitor) {
	w := &walker{v: v}
	w.walk(root, nil, "", -1)
}

type walker struct {
	v     Visitor
	stack []ast.Node
}

func (w *walker) walk(n, parent ast.Node, edge string, index int) {
	if isNil(n) {
		return
	}
	c := &Cursor{
		Node:   n,
		Parent: parent,
		Edge:   edge,
		Index:  index,
		Depth:  len(w.stack),
		path:   w.stack[:len(w.stack):len(w.stack)],
	}
	if !w.v.Enter(c) {
		return
	}
	w.stack = append(w.stack, n)
	w.children(n)
	w.stack = w.stack[:len(w.stack)-1]
	w.v.Exit(c)
}

func (w *walker) children(n ast.Node) {
	switch n := n.(type) {
	case *ast.PropertyShort:
		w.walk(&n.Name, n, "Name", -1)
		w.walk(n.Initializer, n, "Initializer", -1)
		return
	case *ast.ForLoopInitializerLexicalDecl:
		w.walk(&n.LexicalDeclaration, n, "LexicalDeclaration", -1)
		return
	}

	val := reflect.ValueOf(n).Elem()
	for _, f := range fieldsOf(val.Type()) {
		fv := val.Field(f.index)
		switch fv.Kind() {
		case reflect.Slice:
			for i := 0; i < fv.Len(); i++ {
				if child, ok := fv.Index(i).Interface().(ast.Node); ok {
					w.walk(child, n, f.name, i)
				}
			}
		default:
			if child, ok := fv.Interface().(ast.Node); ok {
				w.walk(child, n, f.name, -1)
			}
		}
	}
}

type field struct {
	index int
	name  string
}

var (
	nodeType  = reflect.TypeOf((*ast.Node)(nil)).Elem()
	fieldMemo sync.Map // reflect.Type -> []field
)

// skipped lists fields that hold identifiers which are not references, and
// the parser's hoisted declaration lists which duplicate statements.
var skipped = map[reflect.Type]map[string]bool{
	reflect.TypeOf(ast.LabelledStatement{}): {"Label": true},
	reflect.TypeOf(ast.BranchStatement{}):   {"Label": true},
	reflect.TypeOf(ast.MetaProperty{}):      {"Meta": true, "Property": true},
}

func fieldsOf(t reflect.Type) []field {
	if cached, ok := fieldMemo.Load(t); ok {
		return cached.([]field)
	}
	var fields []field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Name == "DeclarationList" || skipped[t][sf.Name] {
			continue
		}
		ft := sf.Type
		if ft.Kind() == reflect.Slice {
			ft = ft.Elem()
		}
		switch {
		case ft.Kind() == reflect.Interface && ft.Implements(nodeType):
		case ft.Kind() == reflect.Ptr && ft.Implements(nodeType):
		default:
			continue
		}
		fields = append(fields, field{index: i, name: sf.Name})
	}
	fieldMemo.Store(t, fields)
	return fields
}

func isNil(n ast.Node) bool {
	if n == nil {
		return true
	}
	v := reflect.ValueOf(n)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
