package lower

import (
	"fmt"

	jsast "github.com/lcalzada-xor/declass/pkg/js/ast"
)

// ClassContext describes one lowered class: the names of its generated
// functions and the fields known to hold instances of other lowered
// classes. It is built by a single scan of the class body and not changed
// once registered.
type ClassContext struct {
	Name        string
	Binding     *jsast.Binding
	Constructor string
	// Init is empty when the class needs no init function.
	Init     string
	Receiver string

	methods map[string]string
	order   []string
	fields  map[string]*ClassContext
}

func newClassContext(name string, b *jsast.Binding) *ClassContext {
	return &ClassContext{
		Name:    name,
		Binding: b,
		methods: make(map[string]string),
		fields:  make(map[string]*ClassContext),
	}
}

// Method returns the generated function of an instance method.
func (c *ClassContext) Method(name string) (string, bool) {
	fn, ok := c.methods[name]
	return fn, ok
}

// Methods returns the method names in declaration order.
func (c *ClassContext) Methods() []string {
	return append([]string(nil), c.order...)
}

// Field returns the class a field is known to hold, if any.
func (c *ClassContext) Field(name string) *ClassContext {
	return c.fields[name]
}

func (c *ClassContext) addMethod(name, fn string) {
	if _, dup := c.methods[name]; !dup {
		c.order = append(c.order, name)
	}
	c.methods[name] = fn
}

// Registry maps class declaration bindings to their lowered context.
type Registry struct {
	classes map[*jsast.Binding]*ClassContext
	order   []*ClassContext
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{classes: make(map[*jsast.Binding]*ClassContext)}
}

// Create registers a context. Each binding can be registered once.
func (r *Registry) Create(b *jsast.Binding, ctx *ClassContext) error {
	if b == nil {
		return fmt.Errorf("registering class %s: nil binding", ctx.Name)
	}
	if _, exists := r.classes[b]; exists {
		return fmt.Errorf("registering class %s: binding already registered", ctx.Name)
	}
	r.classes[b] = ctx
	r.order = append(r.order, ctx)
	return nil
}

// Lookup returns the context registered for a binding, or nil.
func (r *Registry) Lookup(b *jsast.Binding) *ClassContext {
	if b == nil {
		return nil
	}
	return r.classes[b]
}

// Classes returns the registered contexts in registration order.
func (r *Registry) Classes() []*ClassContext {
	return append([]*ClassContext(nil), r.order...)
}
