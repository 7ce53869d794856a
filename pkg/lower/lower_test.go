package lower

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"github.com/lcalzada-xor/declass/pkg/verify"
)

func lower(t *testing.T, code string) *Result {
	t.Helper()
	return lowerWith(t, code, DefaultOptions())
}

func lowerWith(t *testing.T, code string, opts Options) *Result {
	t.Helper()
	res, err := Lower("test.js", code, opts)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	return res
}

// equivalent runs code before and after lowering and fails on any
// observable difference.
func equivalent(t *testing.T, code string, opts Options) *Result {
	t.Helper()
	res := lowerWith(t, code, opts)
	report, err := verify.Compare(context.Background(), "test.js", code, res.Code)
	if err != nil {
		t.Fatalf("Compare: %v\n%s", err, res.Code)
	}
	if !report.Equivalent() {
		t.Fatalf("not equivalent: %s\n--- lowered ---\n%s", report, res.Code)
	}
	if report.Original.Failed() {
		t.Fatalf("original program threw: %s", report.Original.Thrown)
	}
	return res
}

func TestLower_MethodOnly(t *testing.T) {
	res := lower(t, `class Hero {
  sayHello(name) {
    return 'Hi ' + name
  }
}
const h = new Hero()
h.sayHello('x')`)

	be.Equal(t, res.Code, `function _Hero__constructor() {
  return new Map();
}
function _Hero__sayHello(_this, name) {
    return 'Hi ' + name
  }
const h = _Hero__constructor()
_Hero__sayHello(h, 'x')`)

	be.Equal(t, len(res.Classes), 1)
	be.Equal(t, res.Classes[0], ClassReport{
		Name:        "Hero",
		Constructor: "_Hero__constructor",
		Methods:     []string{"_Hero__sayHello"},
	})

	out, err := verify.Run(context.Background(), "hero.js", res.Code)
	be.Err(t, err, nil)
	be.Equal(t, out.Value, "string(Hi x)")
}

func TestLower_Constructor(t *testing.T) {
	res := lower(t, `class Hero {
  constructor(name) {
    this.name = name
  }

  sayHello() {
    return 'Hello, I am ' + this.name
  }
}
const h = new Hero('batman')
h.sayHello()`)

	be.Equal(t, res.Code, `function _Hero__init(_this, name) {
    _this.set("name", name)
  }
function _Hero__constructor(name) {
  const _this = new Map();
  _Hero__init(_this, name);
  return _this;
}
function _Hero__sayHello(_this) {
    return 'Hello, I am ' + _this.get("name")
  }
const h = _Hero__constructor('batman')
_Hero__sayHello(h)`)

	out, err := verify.Run(context.Background(), "hero.js", res.Code)
	be.Err(t, err, nil)
	be.Equal(t, out.Value, "string(Hello, I am batman)")
}

func TestLower_NoClassConstructsRemain(t *testing.T) {
	res := lower(t, `
class Counter {
  constructor(start) { this.n = start }
  inc() { this.n++; return this }
  get() { return this.n }
}
const c = new Counter(1)
c.inc()
c.get()
`)
	be.True(t, !strings.Contains(res.Code, "class "))
	be.True(t, !regexp.MustCompile(`\bthis\b`).MatchString(res.Code))
	be.True(t, !strings.Contains(res.Code, "new Counter"))
}

func TestLower_Equivalence(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"field round trip", `
class Box { constructor(v) { this.v = v } }
const b = new Box(1)
b.v = 42
expect(b.v).toBe(42)
`},
		{"constructor argument", `
class Hero { constructor(name) { this.name = name } }
const h = new Hero('batman')
expect(h.name).toBe('batman')
`},
		{"detached method", `
class Greeter {
  constructor(greeting) { this.greeting = greeting }
  greet(name) { return this.greeting + ', ' + name }
}
const g = new Greeter('Hello')
const greet = g.greet
expect(greet('Ann')).toBe('Hello, Ann')
expect([1, 2].map(g.greet.bind(g)).join('|')).toBe('Hello, 1|Hello, 2')
`},
		{"methods calling methods", `
class Circle {
  constructor(r) { this.r = r }
  area() { return Math.PI * this.square() }
  square() { return this.r * this.r }
}
const c = new Circle(2)
expect(c.area()).toBe(Math.PI * 4)
`},
		{"compound and update operators", `
class Counter { constructor() { this.n = 0 } }
const c = new Counter()
c.n += 5
c.n *= 2
c.n++
++c.n
const before = c.n--
const after = --c.n
expect(before).toBe(12)
expect(after).toBe(10)
expect(c.n).toBe(10)
`},
		{"logical assignment", `
class Cfg { constructor() { this.a = null; this.b = 0 } }
const c = new Cfg()
c.a ??= 'x'
c.b ||= 7
c.b &&= c.b + 1
expect(c.a).toBe('x')
expect(c.b).toBe(8)
`},
		{"assignment value is used", `
class P { constructor() { this.x = 0 } }
const p = new P()
const v = (p.x = 3)
expect(v).toBe(3)
expect(p.x).toBe(3)
`},
		{"computed keys", `
class Bag { constructor() { this.items = 0 } }
const b = new Bag()
const key = 'items'
b[key] = 2
b['other'] = 1
expect(b[key] + b.other).toBe(3)
`},
		{"computed key with side effects", `
class Bag { constructor() { this.k1 = 1 } }
const b = new Bag()
let calls = 0
function key() { calls++; return 'k1' }
b[key()] += 10
expect(b.k1).toBe(11)
expect(calls).toBe(1)
`},
		{"delete", `
class Bag { constructor() { this.x = 1 } }
const b = new Bag()
delete b.x
expect(b.x).toBe(undefined)
`},
		{"instantiation as member object", `
class Foo {
  constructor() { this.key = 'value' }
  method() { return 'test' }
}
expect(new Foo().method()).toBe('test')
expect(new Foo().key).toBe('value')
`},
		{"update on a fresh instance", `
class Foo { constructor() { this.n = 1 } }
expect(new Foo().n++).toBe(1)
`},
		{"receiver aliases and arrows", `
class Timer {
  constructor() { this.ticks = 0 }
  run(times) {
    const self = this
    const step = () => { this.ticks++ }
    for (let i = 0; i < times; i++) step()
    return self.ticks
  }
}
expect(new Timer().run(3)).toBe(3)
`},
		{"nested functions keep their own receiver", `
class A {
  constructor() { this.v = 1 }
  make() {
    const o = { v: 2, get() { return this.v } }
    return o.get() + this.v
  }
}
expect(new A().make()).toBe(3)
`},
		{"default and rest parameters", `
class Sum {
  constructor(a = 1, ...rest) { this.total = rest.reduce((s, x) => s + x, a) }
  add(x = 10) { return this.total + x }
}
expect(new Sum().add()).toBe(11)
expect(new Sum(1, 2, 3).add(0)).toBe(6)
`},
		{"instance fields", `
class Point {
  x = 1
  y = this.x + 1
  constructor(z) { this.z = z }
  sum() { return this.x + this.y + this.z }
}
expect(new Point(3).sum()).toBe(6)
`},
		{"fields without constructor", `
class Flags { on = true; off }
const f = new Flags()
expect(f.on).toBe(true)
expect(f.off).toBe(undefined)
`},
		{"composition", `
class Bar { pi() { return Math.PI } }
class Foo {
  constructor() { this.bar = new Bar() }
  twoPi() {
    const b = this.bar
    return b.pi() * 2
  }
  direct() { return this.bar.pi() }
}
expect(new Bar().pi()).toBe(Math.PI)
expect(new Foo().twoPi()).toBe(2 * Math.PI)
expect(new Foo().direct()).toBe(Math.PI)
`},
		{"shadowed class name", `
class Hero { name() { return 'outer' } }
function inner() {
  class Hero { name() { return 'inner' } }
  const h = new Hero()
  return h.name()
}
const h = new Hero()
expect(h.name() + inner()).toBe('outerinner')
`},
		{"shadowed instance binding", `
class Hero { name() { return 'hero' } }
const h = new Hero()
function f(h) { return h.name }
expect(f({ name: 'plain' })).toBe('plain')
expect(h.name()).toBe('hero')
`},
		{"reassigned binding is not rewritten", `
class Foo { constructor() { this.x = 1 } }
let h = new Foo()
expect(h.x).toBe(1)
h = { x: 2 }
expect(h.x).toBe(2)
expect(h.missing).toBe(undefined)
`},
		{"async and generator methods", `
class Seq {
  constructor(n) { this.n = n }
  *values() { for (let i = 0; i < this.n; i++) yield i }
}
const s = new Seq(3)
expect([...s.values()].join(',')).toBe('0,1,2')
`},
		{"literal tainting through nested paths", `
class Foo { test() { return Math.PI } }
const a = { b: { c: {} } }
a.foo = new Foo()
expect(a.foo.test()).toBe(Math.PI)
a.foo = null
a.b.c.d = new Foo()
expect(a.b.c.d.test()).toBe(Math.PI)
a.b.c.d = null
expect(a.b.c.d).toBe(null)
const c = a.b.c
c.d = new Foo()
expect(c.d.test()).toBe(Math.PI)
expect(a.b.c.d.test()).toBe(Math.PI)
c.d = null
`},
		{"instance in object literal keeps the class", `
class Foo { test() { return Math.PI } }
const a = { b: { c: { d: new Foo() } } }
expect(a.b.c.d.test()).toBe(Math.PI)
`},
		{"static members keep the class", `
class Registry {
  static create() { return new Registry() }
  constructor() { this.items = [] }
  add(x) { this.items.push(x); return this.items.length }
}
const r = new Registry()
expect(r.add(1)).toBe(1)
expect(Registry.create().add(2)).toBe(1)
`},
		{"superclass is skipped", `
class Bar { pi() { return Math.PI } }
class Foo extends Bar { twoPi() { return this.pi() * 2 } }
expect(new Bar().pi()).toBe(Math.PI)
expect(new Foo().twoPi()).toBe(2 * Math.PI)
`},
		{"class name used as a value", `
class Foo { m() { return 1 } }
const h = new Foo()
const K = Foo
expect(new K().m() + h.m()).toBe(2)
`},
		{"statements opening with a parenthesis", `
class Foo { constructor() { this.n = 1 } }
const f = new Foo()
const key = () => 'n'
f[key()] += 1
let x = 0
f.n++ + x
f.n ||= 5
f.n &&= f.n + 1
f.n
expect(f.n).toBe(4)
`},
		{"reassignment in a branch", `
class Hero { constructor(name) { this.name = name } }
let h = new Hero('a')
if (true) h = {}
expect(h.name).toBe(undefined)
let g = new Hero('b')
if (g.name) g = { name: 'z' }
else g.name = 'c'
expect(g.name).toBe('z')
`},
		{"reassignment in a loop", `
class Hero { constructor(name) { this.name = name } }
let h = new Hero('a')
const out = []
for (let i = 0; i < 3; i++) {
  out.push(h.name)
  h = { name: 'z' + i }
}
let k = new Hero('b')
while (out.length < 5) {
  out.push(k.name)
  k.name = 'n'
}
expect(out.join()).toBe('a,z0,z1,b,n')
`},
		{"reassignment in a function", `
class Hero { constructor(name) { this.name = name } }
let h = new Hero('a')
function reset() { h = { name: 'z' } }
expect(h.name).toBe('a')
reset()
expect(h.name).toBe('z')
`},
		{"function declared before the instance", `
class Hero {
  constructor() { this.n = 2 }
  hi() { return 'hi' + this.n }
}
function g() { return h.hi() + h.n }
var h = new Hero()
expect(g()).toBe('hi22')
`},
		{"optional chaining", `
class Hero {
  constructor() { this.n = 1 }
  hi(x) { return 'hi' + x }
}
const h = new Hero()
;[h?.hi(1), h?.n].join()
expect([h?.hi(1), h?.n].join()).toBe('hi1,1')
expect(h.hi?.(2)).toBe('hi2')
delete h?.n
expect(h.n).toBe(undefined)
`},
		{"optional chaining on a possible instance", `
class Hero {
  constructor() { this.n = 1 }
  hi(x) { return 'hi' + x }
}
let m = null
expect(m?.n).toBe(undefined)
if (Math.random() < 2) m = new Hero()
expect(m?.n).toBe(1)
expect(m?.hi(3)).toBe('hi3')
`},
		{"update on a BigInt field", `
class Big { constructor() { this.n = 1n } }
const b = new Big()
b.n++
++b.n
const old = b.n--
expect(old).toBe(3n)
expect(b.n).toBe(2n)
`},
		{"Map declared by the program", `
class Map { constructor() { this.kind = 'mine' } }
class Foo { constructor() { this.x = 1 } }
const f = new Foo()
expect(f.x).toBe(1)
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			equivalent(t, tt.code, DefaultOptions())
		})
	}
}

func TestLower_DiscardedInstantiation(t *testing.T) {
	code := `class Foo { constructor() { this.x = 1 } }
if (true) new Foo()
else new Foo();
new Foo()
'done'`

	res := lower(t, code)
	be.True(t, !strings.Contains(res.Code, "new Foo"))
	// only the definition is left
	be.Equal(t, strings.Count(res.Code, "_Foo__constructor()"), 1)
	out, err := verify.Run(context.Background(), "discard.js", res.Code)
	be.Err(t, err, nil)
	be.Equal(t, out.Value, "string(done)")

	kept := lowerWith(t, code, Options{Inheritance: InheritanceSkip, KeepDiscarded: true, FieldTyping: true})
	be.Equal(t, strings.Count(kept.Code, "_Foo__constructor()"), 4)
}

func TestLower_Retention(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		retained bool
	}{
		{"all uses rewritten", "class A { m() {} }\nconst a = new A()\na.m()", false},
		{"instanceof", "class A {}\nconst a = new A()\na instanceof A", true},
		{"instantiation passed as argument", "class A {}\nf(new A())\nfunction f() {}", true},
		{"static method", "class A { static s() {} }\nconst a = new A()", true},
		{"static block", "class A { static { this.x = 1 } }", true},
		{"unused", "class A {}", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := lower(t, tt.code)
			be.Equal(t, len(res.Classes), 1)
			be.Equal(t, res.Classes[0].Retained, tt.retained)
			be.Equal(t, strings.Contains(res.Code, "class A"), tt.retained)
		})
	}
}

func TestLower_RetainedClassKeepsNativeReceiver(t *testing.T) {
	res := lower(t, `class A {
  constructor() { this.v = 1 }
  get() { return this.v }
}
const a = new A()
const b = Reflect.construct(A, [])
a.get() + b.get()`)
	be.True(t, strings.Contains(res.Code, "return this.v"))
	be.True(t, strings.Contains(res.Code, `return _this.get("v")`))

	out, err := verify.Run(context.Background(), "retained.js", res.Code)
	be.Err(t, err, nil)
	be.Equal(t, out.Value, "int64(2)")
}

func TestLower_Diagnostics(t *testing.T) {
	res := lower(t, `
class Skipped extends Object {}
class Partial {
  get size() { return 1 }
  ['computed']() {}
  static make() {}
  m() {}
}
const x = class {}
`)
	var messages []string
	for _, d := range res.Diagnostics {
		messages = append(messages, d.String())
	}
	all := strings.Join(messages, "\n")
	be.True(t, strings.Contains(all, "class Skipped: left as a class: extends a superclass"))
	be.True(t, strings.Contains(all, "accessor size is not lowered"))
	be.True(t, strings.Contains(all, "computed method is not lowered"))
	be.True(t, strings.Contains(all, "static members keep the class declaration"))
	be.Equal(t, len(res.Classes), 1)
	be.Equal(t, res.Classes[0].Name, "Partial")
}

func TestLower_Ineligible(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"private field", "class A { #x = 1; m() { return this.#x } }"},
		{"private method", "class A { #m() {} }"},
		{"computed field", "const k = 'x'\nclass A { [k] = 1 }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := lower(t, tt.code)
			be.Equal(t, len(res.Classes), 0)
			be.True(t, strings.Contains(res.Code, "class A"))
		})
	}
}

func TestLower_ApproximateInheritance(t *testing.T) {
	opts := DefaultOptions()
	opts.Inheritance = InheritanceApproximate
	res := lowerWith(t, `
let called = false
class A { method() { called = true } }
class B extends A {
  constructor() {
    super()
    this.ok = true
  }
  check() { return this.ok }
}
const b = new B()
b.check()
`, opts)
	be.True(t, strings.Contains(res.Code, "Object()"))
	be.Equal(t, len(res.Classes), 2)

	out, err := verify.Run(context.Background(), "inherit.js", res.Code)
	be.Err(t, err, nil)
	be.Equal(t, out.Value, "bool(true)")
}

func TestLower_StructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"destructured declaration", "class A {}\nconst { x } = new A()", "cannot destructure an instance of A"},
		{"destructured assignment", "class A {}\nlet x;\n[x] = new A()", "cannot destructure an instance of A"},
		{"member in pattern", "class A {}\nconst a = new A();\n[a.x] = [1]", "inside a destructuring pattern"},
		{"member with default in pattern", "class A {}\nconst a = new A();\n({ v: a.x = 2 } = {})", "inside a destructuring pattern"},
		{"member as loop target", "class A {}\nconst a = new A();\nfor (a.x of [1]) {}", "loop target"},
		{"optional chain after a method call", "class A { m() { return 'x' } }\nconst a = new A();\na?.m().length", "optional chain continues"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Lower("bad.js", tt.code, DefaultOptions())
			var structural *StructuralError
			be.True(t, errors.As(err, &structural))
			be.True(t, strings.Contains(err.Error(), tt.want))
			be.True(t, strings.Contains(Render(err), "^"))
		})
	}
}

func TestLower_ParseError(t *testing.T) {
	_, err := Lower("bad.js", "class {", DefaultOptions())
	var parse *ParseError
	be.True(t, errors.As(err, &parse))
	be.Equal(t, parse.Position.Filename, "bad.js")
	be.True(t, strings.Contains(Render(err), "|"))
}

func TestLower_Deterministic(t *testing.T) {
	code := `
class A { m() { return 1 } n() { return this.m() } }
class B { constructor() { this.a = new A() } go() { return this.a.n() } }
const b = new B()
b.go()
`
	first := lower(t, code).Code
	for i := 0; i < 5; i++ {
		be.Equal(t, lower(t, code).Code, first)
	}
}

func TestLower_FreshNamesAvoidCollisions(t *testing.T) {
	res := lower(t, `
const _this = 'taken'
function _Hero__sayHello() { return 'taken' }
class Hero { sayHello() { return _this } }
const h = new Hero()
h.sayHello() + _Hero__sayHello()
`)
	be.True(t, strings.Contains(res.Code, "function _Hero__sayHello2(_this2)"))

	out, err := verify.Run(context.Background(), "names.js", res.Code)
	be.Err(t, err, nil)
	be.Equal(t, out.Value, "string(takentaken)")
}

func TestLower_StickyTaint(t *testing.T) {
	code := `class Foo { constructor() { this.x = 1 } }
let h = new Foo()
h = { x: 2 }
h.x`
	res := lower(t, code)
	be.True(t, strings.HasSuffix(res.Code, "\nh.x"))

	opts := DefaultOptions()
	opts.StickyTaint = true
	sticky := lowerWith(t, code, opts)
	be.True(t, strings.HasSuffix(sticky.Code, `(h instanceof Map ? h.get("x") : h["x"])`))
	out, err := verify.Run(context.Background(), "sticky.js", sticky.Code)
	be.Err(t, err, nil)
	be.Equal(t, out.Value, "int64(2)")
}

func TestLower_GuardedAccess(t *testing.T) {
	const foo = "class Foo { constructor() { this.x = 1 } m() { return 1 } }\n"
	tests := []struct {
		name string
		code string
		want string
	}{
		{
			"assignment in a branch",
			"let h = new Foo()\nif (c) h = {}\nh.x",
			`;(h instanceof Map ? h.get("x") : h["x"])`,
		},
		{
			"instance made in a branch",
			"let h\nif (c) h = new Foo()\nh.m(1)",
			`;(h instanceof Map ? _Foo__m(h, 1) : h["m"](1))`,
		},
		{
			"assignment in a function",
			"let h = new Foo()\nfunction f() { h = null }\nh.x = 2",
			`(h instanceof Map ? h.set("x", 2) : h["x"] = 2)`,
		},
		{
			"loop writing the same class",
			"let h = new Foo()\nwhile (c) { h.x++; h = new Foo() }",
			`h.set("x", ((_num) => ++_num)(h.get("x")))`,
		},
		{
			"loop writing another value",
			"let h = new Foo()\nwhile (c) { delete h.x; h = 0 }",
			`(h instanceof Map ? h.delete("x") : delete h["x"])`,
		},
		{
			"stable instance",
			"const h = new Foo()\nfor (const i of [1]) h.x += i",
			`h.set("x", h.get("x") + (i))`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := lower(t, foo+tt.code)
			be.True(t, strings.Contains(res.Code, tt.want))
		})
	}
}

func TestLower_ReceiverNameIsShared(t *testing.T) {
	res := lower(t, `class A { m() { return 1 } }
class B {
  constructor() { this.v = 2 }
  n() { return this.v }
}
class C {}
const b = new B()
b.n() + new A().m()`)
	be.True(t, !strings.Contains(res.Code, "_this2"))
	be.True(t, strings.Contains(res.Code, "function _A__m(_this)"))
	be.True(t, strings.Contains(res.Code, "function _B__n(_this)"))
	be.True(t, strings.Contains(res.Code, "const _this = new Map();"))

	out, err := verify.Run(context.Background(), "receiver.js", res.Code)
	be.Err(t, err, nil)
	be.Equal(t, out.Value, "int64(3)")
}

func TestLower_FieldTypingOff(t *testing.T) {
	code := `class Bar { pi() { return 3 } }
class Foo {
  constructor() { this.bar = new Bar() }
  twoPi() { const b = this.bar; return b.pi() * 2 }
}`
	res := lower(t, code)
	be.True(t, strings.Contains(res.Code, "_Bar__pi(b)"))

	opts := DefaultOptions()
	opts.FieldTyping = false
	off := lowerWith(t, code, opts)
	be.True(t, strings.Contains(off.Code, "b.pi()"))
}

func TestLower_FieldTypingRejectsMixedWrites(t *testing.T) {
	res := lower(t, `class Bar { pi() { return 3 } }
class Foo {
  constructor() { this.bar = new Bar() }
  reset() { this.bar = null }
  use() { const b = this.bar; return b.pi() }
}`)
	be.True(t, strings.Contains(res.Code, "b.pi()"))
}
