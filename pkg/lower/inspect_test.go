package lower

import (
	"testing"

	"github.com/nalgeon/be"
)

func TestInspect(t *testing.T) {
	classes, err := Inspect("inspect.js", `
class Hero {
  static count = 0
  name = 'x'
  constructor() {}
  get title() { return '' }
  sayHello() {}
  ['dyn']() {}
}
class Child extends Hero {}
class Secret { #key = 1 }
const Anon = class {}
`, DefaultOptions())
	be.Err(t, err, nil)
	be.Equal(t, len(classes), 4)

	hero := classes[0]
	be.Equal(t, hero.Name, "Hero")
	be.Equal(t, hero.Position.Line, 2)
	be.True(t, hero.Declaration)
	be.True(t, hero.Constructor)
	be.Equal(t, hero.Methods, []string{"sayHello"})
	be.Equal(t, hero.Fields, []string{"name"})
	be.Equal(t, hero.Static, []string{"count"})
	be.Equal(t, hero.Accessors, []string{"get title"})
	be.Equal(t, hero.Computed, 1)
	be.True(t, hero.Eligible)

	be.Equal(t, classes[1].Reason, "extends a superclass")
	be.Equal(t, classes[2].Private, []string{"#key"})
	be.Equal(t, classes[2].Reason, "has private members")
	be.True(t, !classes[3].Declaration)
	be.Equal(t, classes[3].Reason, "class expressions are not lowered")
}

func TestInspect_ApproximateInheritance(t *testing.T) {
	opts := DefaultOptions()
	opts.Inheritance = InheritanceApproximate
	classes, err := Inspect("inspect.js", "class A {}\nclass B extends A {}", opts)
	be.Err(t, err, nil)
	be.True(t, classes[1].SuperClass)
	be.True(t, classes[1].Eligible)
}

func TestInspect_ParseError(t *testing.T) {
	_, err := Inspect("inspect.js", "class A {", DefaultOptions())
	be.True(t, err != nil)
}
