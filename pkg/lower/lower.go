package lower

import (
	"fmt"

	jsast "github.com/lcalzada-xor/declass/pkg/js/ast"
)

// Inheritance selects how classes with a superclass are treated.
type Inheritance string

const (
	// InheritanceSkip leaves classes with a superclass untouched.
	InheritanceSkip Inheritance = "skip"
	// InheritanceApproximate lowers them anyway: the superclass is ignored
	// and super is replaced by Object.
	InheritanceApproximate Inheritance = "approximate"
)

// ParseInheritance validates a policy name.
func ParseInheritance(s string) (Inheritance, error) {
	switch Inheritance(s) {
	case InheritanceSkip, InheritanceApproximate:
		return Inheritance(s), nil
	case "":
		return InheritanceSkip, nil
	}
	return "", fmt.Errorf("unknown inheritance policy %q (want skip or approximate)", s)
}

// Options tune the lowering.
type Options struct {
	Inheritance Inheritance
	// KeepDiscarded keeps the constructor call of an instantiation whose
	// value is discarded instead of removing the statement.
	KeepDiscarded bool
	// StickyTaint never forgets that a binding may hold an instance, even
	// after it is reassigned. Accesses through such bindings are checked
	// at run time.
	StickyTaint bool
	// FieldTyping tracks fields that only ever hold instances of one
	// lowered class.
	FieldTyping bool
	// Shared is set when other units see the global scope of this one,
	// like the scripts of an HTML page. Top-level classes are retained and
	// instances stored in globals stay native.
	Shared bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Inheritance: InheritanceSkip,
		FieldTyping: true,
	}
}

// ClassReport describes one lowered class of a unit.
type ClassReport struct {
	Name        string   `json:"name"`
	Constructor string   `json:"constructor"`
	Init        string   `json:"init,omitempty"`
	Methods     []string `json:"methods,omitempty"`
	// Retained is set when the class declaration is kept next to the
	// generated functions because some code still uses the class itself.
	Retained bool `json:"retained"`
}

// Result is the outcome of lowering one unit.
type Result struct {
	Code        string        `json:"code"`
	Classes     []ClassReport `json:"classes"`
	Diagnostics []Diagnostic  `json:"diagnostics,omitempty"`
}

// Lower parses code and lowers its classes.
func Lower(name, code string, opts Options) (*Result, error) {
	src, err := jsast.Parse(name, code)
	if err != nil {
		return nil, wrapParseError(name, code, err)
	}
	return Transform(src, opts)
}

// Transform lowers the classes of a parsed unit. Either the whole unit is
// rewritten or an error is returned; there is no partial output.
func Transform(src *jsast.Source, opts Options) (*Result, error) {
	if opts.Inheritance == "" {
		opts.Inheritance = InheritanceSkip
	}
	l := newLowering(src, opts)
	l.run()
	if l.err != nil {
		return nil, l.err
	}

	code, err := l.plan.apply()
	if err != nil {
		return nil, err
	}

	res := &Result{Code: code, Diagnostics: l.diags}
	for _, st := range l.states {
		report := ClassReport{
			Name:        st.ctx.Name,
			Constructor: st.ctx.Constructor,
			Init:        st.ctx.Init,
			Retained:    l.retained(st),
		}
		for _, m := range st.ctx.Methods() {
			fn, _ := st.ctx.Method(m)
			report.Methods = append(report.Methods, fn)
		}
		res.Classes = append(res.Classes, report)
	}
	return res, nil
}
