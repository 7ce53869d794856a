package lower

import (
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"

	jsast "github.com/lcalzada-xor/declass/pkg/js/ast"
)

// ClassInfo summarizes a class of a unit and whether it can be lowered.
type ClassInfo struct {
	Name         string        `json:"name"`
	Position     file.Position `json:"position"`
	Declaration  bool          `json:"declaration"`
	SuperClass   bool          `json:"superClass,omitempty"`
	Constructor  bool          `json:"constructor,omitempty"`
	Methods      []string      `json:"methods,omitempty"`
	Fields       []string      `json:"fields,omitempty"`
	Static       []string      `json:"static,omitempty"`
	StaticBlocks int           `json:"staticBlocks,omitempty"`
	Accessors    []string      `json:"accessors,omitempty"`
	Private      []string      `json:"private,omitempty"`
	Computed     int           `json:"computed,omitempty"`
	Eligible     bool          `json:"eligible"`
	Reason       string        `json:"reason,omitempty"`

	computedField bool
}

// Inspect lists the classes of a unit without rewriting it.
func Inspect(name, code string, opts Options) ([]ClassInfo, error) {
	src, err := jsast.Parse(name, code)
	if err != nil {
		return nil, wrapParseError(name, code, err)
	}
	v := &inspector{src: src, opts: opts}
	jsast.Walk(src.Program, v)
	return v.classes, nil
}

type inspector struct {
	src     *jsast.Source
	opts    Options
	classes []ClassInfo
}

func (v *inspector) Enter(c *jsast.Cursor) bool {
	if cl, ok := c.Node.(*ast.ClassLiteral); ok {
		_, declaration := c.Parent.(*ast.ClassDeclaration)
		v.classes = append(v.classes, describe(v.src, cl, declaration, v.opts))
	}
	return true
}

func (v *inspector) Exit(*jsast.Cursor) {}

// describe scans a class body. A class is eligible when it is a named
// declaration without private members, and without a superclass unless
// inheritance is approximated.
func describe(src *jsast.Source, cl *ast.ClassLiteral, declaration bool, opts Options) ClassInfo {
	info := ClassInfo{
		Position:    src.Position(src.Offset(cl.Class)),
		Declaration: declaration,
		SuperClass:  cl.SuperClass != nil,
	}
	if cl.Name != nil {
		info.Name = cl.Name.Name.String()
	}

	for _, el := range cl.Body {
		switch m := el.(type) {
		case *ast.MethodDefinition:
			name, private, ok := memberKey(m.Key)
			switch {
			case private:
				info.Private = append(info.Private, "#"+name)
			case m.Computed || !ok:
				info.Computed++
			case m.Static:
				info.Static = append(info.Static, name)
			case m.Kind == ast.PropertyKindGet || m.Kind == ast.PropertyKindSet:
				info.Accessors = append(info.Accessors, string(m.Kind)+" "+name)
			case name == "constructor":
				info.Constructor = true
			default:
				info.Methods = append(info.Methods, name)
			}
		case *ast.FieldDefinition:
			name, private, ok := memberKey(m.Key)
			switch {
			case private:
				info.Private = append(info.Private, "#"+name)
			case m.Computed || !ok:
				info.Computed++
				if !m.Static {
					info.computedField = true
				}
			case m.Static:
				info.Static = append(info.Static, name)
			default:
				info.Fields = append(info.Fields, name)
			}
		case *ast.ClassStaticBlock:
			info.StaticBlocks++
		}
	}

	switch {
	case !declaration:
		info.Reason = "class expressions are not lowered"
	case info.Name == "":
		info.Reason = "anonymous class"
	case info.SuperClass && opts.Inheritance != InheritanceApproximate:
		info.Reason = "extends a superclass"
	case len(info.Private) > 0:
		info.Reason = "has private members"
	case info.computedField:
		info.Reason = "has a computed instance field"
	default:
		info.Eligible = true
	}
	return info
}

// memberKey returns the name of a class member key.
func memberKey(e ast.Expression) (name string, private, ok bool) {
	switch k := e.(type) {
	case *ast.PrivateIdentifier:
		return k.Name.String(), true, true
	case *ast.Identifier:
		return k.Name.String(), false, true
	}
	name, ok = staticKey(e)
	return name, false, ok
}
