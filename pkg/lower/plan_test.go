package lower

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"

	jsast "github.com/lcalzada-xor/declass/pkg/js/ast"
)

func newTestPlan(code string) *plan {
	return newPlan(&jsast.Source{Name: "plan.js", Code: code})
}

func TestPlan_NestedEdits(t *testing.T) {
	p := newTestPlan("f(a.b, c)")
	// a.b -> get(a, "b"), nested inside a rewrite of the whole call
	p.replace(2, 5, 2, nil, func(r *renderer) string { return `a.get("b")` })
	p.replace(0, 9, 0, nil, func(r *renderer) string { return "g(" + r.span(2, 8) + ")" })

	out, err := p.apply()
	be.Err(t, err, nil)
	be.Equal(t, out, `g(a.get("b"), c)`)
}

func TestPlan_SameSpanOutermostFirst(t *testing.T) {
	p := newTestPlan("x")
	p.replace(0, 1, 1, nil, func(r *renderer) string { return "inner" })
	p.replace(0, 1, 0, nil, func(r *renderer) string { return "[" + r.span(0, 1) + "]" })

	out, err := p.apply()
	be.Err(t, err, nil)
	be.Equal(t, out, "[inner]")
}

func TestPlan_RenderTwice(t *testing.T) {
	cls := newClassContext("A", nil)
	p := newTestPlan("class A { m() { return this } }")
	p.replace(23, 27, 5, cls, func(r *renderer) string { return "_this" })
	p.replace(0, 31, 0, nil, func(r *renderer) string {
		lowered := r.span(0, 31)
		native := r.without(cls, func() string { return r.span(0, 31) })
		return lowered + "\n" + native
	})

	out, err := p.apply()
	be.Err(t, err, nil)
	lines := strings.Split(out, "\n")
	be.Equal(t, lines[0], "class A { m() { return _this } }")
	be.Equal(t, lines[1], "class A { m() { return this } }")
}

func TestPlan_LeadingParenthesis(t *testing.T) {
	p := newTestPlan("a\nb.c += 1")
	e := p.replace(2, 10, 1, nil, func(r *renderer) string { return "(" + r.span(2, 5) + ")" })
	e.lead = true
	inner := p.replace(2, 5, 2, nil, func(r *renderer) string { return "(b)" })
	inner.lead = true

	out, err := p.apply()
	be.Err(t, err, nil)
	be.Equal(t, out, "a\n;((b))")
}

func TestPlan_TemplateError(t *testing.T) {
	p := newTestPlan("x")
	p.replace(0, 1, 0, nil, func(r *renderer) string { return r.expand("missing", nil) })
	_, err := p.apply()
	be.True(t, err != nil)
}

func TestTemplates(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		data interface{}
		want string
	}{
		{"call", "call", accessData{Method: "_A__m", Object: "h", Args: "1, 2"}, "_A__m(h, 1, 2)"},
		{"call without args", "call", accessData{Method: "_A__m", Object: "h"}, "_A__m(h)"},
		{"bind", "bind", accessData{Method: "_A__m", Object: "h"}, "_A__m.bind(null, h)"},
		{"get", "get", accessData{Object: "h", Key: `"x"`}, `h.get("x")`},
		{"set", "set", accessData{Object: "h", Key: `"x"`, Value: "1"}, `h.set("x", 1)`},
		{"set used", "set", accessData{Object: "h", Key: `"x"`, Value: "1", Used: true}, `h.set("x", 1).get("x")`},
		{"compound", "compound", accessData{Object: "h", Key: `"x"`, Value: "2", Op: "*"}, `h.set("x", h.get("x") * (2))`},
		{"logical", "logical", accessData{Object: "h", Key: `"x"`, Value: "2", Op: "??"}, `(h.get("x") ?? h.set("x", 2).get("x"))`},
		{"prefix update", "update", accessData{Object: "h", Key: `"n"`, Op: "++", Used: true, Temp: "_num", Old: "_old"}, `h.set("n", ((_num) => ++_num)(h.get("n"))).get("n")`},
		{"postfix update", "update", accessData{Object: "h", Key: `"n"`, Op: "++", Used: true, Postfix: true, Temp: "_num", Old: "_old"}, `((_num, _old) => (_old = _num++, h.set("n", _num), _old))(h.get("n"))`},
		{"statement update", "update", accessData{Object: "h", Key: `"n"`, Op: "--", Postfix: true, Temp: "_num", Old: "_old"}, `h.set("n", ((_num) => --_num)(h.get("n")))`},
		{"optional get", "get", accessData{Object: "h", Key: `"x"`, Optional: true}, `h?.get("x")`},
		{"guard", "guard", guardData{Object: "h", Map: "Map", Lowered: `h.get("x")`, Native: `h["x"]`}, `(h instanceof Map ? h.get("x") : h["x"])`},
		{"null guard", "nullGuard", guardData{Object: "h", Absent: "undefined", Lowered: "_A__m(h)"}, `(h == null ? undefined : _A__m(h))`},
		{"native optional get", "nativeGet", accessData{Object: "h", Key: `"x"`, Optional: true}, `h?.["x"]`},
		{"native call", "nativeCall", accessData{Object: "h", Key: `"m"`, Args: "1"}, `h["m"](1)`},
		{"native write", "nativeWrite", accessData{Object: "h", Key: `"x"`, Op: "??=", Value: "2"}, `h["x"] ??= 2`},
		{"native prefix update", "nativeUpdate", accessData{Object: "h", Key: `"n"`, Op: "--"}, `--h["n"]`},
		{"native delete", "nativeDelete", accessData{Object: "h", Key: `"x"`}, `delete h["x"]`},
		{"delete", "delete", accessData{Object: "h", Key: `"x"`}, `h.delete("x")`},
		{"shared", "shared", sharedData{Params: []string{"_instance", "_value"}, Args: []string{"make()", "1"}, Body: "_instance.set(\"x\", _value)"}, `((_instance, _value) => _instance.set("x", _value))(make(), 1)`},
		{"field init", "fieldInit", accessData{Object: "_this", Key: `"count"`}, `_this.set("count", undefined);`},
		{"empty constructor", "emptyConstructor", constructorData{Name: "_A__constructor", Map: "Map"}, "function _A__constructor() {\n  return new Map();\n}"},
		{
			"constructor", "constructor",
			constructorData{Name: "_A__constructor", Params: "x", Receiver: "_this", Init: "_A__init", Args: "x", Map: "Map", Indent: "  "},
			"function _A__constructor(x) {\n    const _this = new Map();\n    _A__init(_this, x);\n    return _this;\n  }",
		},
		{
			"function", "function",
			functionData{Async: true, Generator: true, Name: "_A__m", Receiver: "_this", Params: "a", Body: " return a "},
			"async function* _A__m(_this, a) { return a }",
		},
		{
			"function with prologue", "function",
			functionData{Name: "_A__init", Receiver: "_this", Prologue: []string{`_this.set("x", 1);`}, Body: "\n"},
			"function _A__init(_this) {\n  _this.set(\"x\", 1);\n}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expand(tt.tmpl, tt.data)
			be.Err(t, err, nil)
			be.Equal(t, got, tt.want)
		})
	}
}

func TestQuote(t *testing.T) {
	be.Equal(t, quote("name"), `"name"`)
	be.Equal(t, quote(`a"b`), `"a\"b"`)
}
