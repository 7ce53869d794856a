package lower

import (
	"strings"

	jsast "github.com/lcalzada-xor/declass/pkg/js/ast"
)

// Region is a stretch of code that runs conditionally relative to its
// parent: a branch, a loop body, the right operand of a logical operator,
// a function body.
type Region struct {
	parent *Region
}

func newRegion(parent *Region) *Region {
	return &Region{parent: parent}
}

// Within reports whether r is outer or nested inside it.
func (r *Region) Within(outer *Region) bool {
	for cur := r; cur != nil; cur = cur.parent {
		if cur == outer {
			return true
		}
	}
	return false
}

type taint struct {
	class  *ClassContext
	region *Region
	// owner is set for taints that derive from a lowered receiver; rewrites
	// relying on them only apply inside that class's generated functions.
	owner *ClassContext
	// maybe is set when the binding or path may hold another value at some
	// of the places the entry covers. Accesses through it are guarded.
	maybe bool
}

// pathSep joins the segments of a static property path.
const pathSep = "\x00"

type pathKey struct {
	root *jsast.Binding
	path string
}

// TaintTable records which bindings, and which static property paths
// rooted at a binding, are known to hold an instance of a lowered class.
// Entries are keyed by binding identity, never by name.
type TaintTable struct {
	sticky   bool
	bindings map[*jsast.Binding]taint
	paths    map[pathKey]taint
	// aliases maps a constant bound to a static path onto that path, so
	// that paths through the constant and through the original chain
	// share their entries.
	aliases map[*jsast.Binding]pathKey
}

// NewTaintTable creates an empty table. A sticky table never forgets a
// taint once recorded; a reassignment only makes it uncertain.
func NewTaintTable(sticky bool) *TaintTable {
	return &TaintTable{
		sticky:   sticky,
		bindings: make(map[*jsast.Binding]taint),
		paths:    make(map[pathKey]taint),
		aliases:  make(map[*jsast.Binding]pathKey),
	}
}

// Mark records that b holds an instance of class. Path taints rooted at b
// describe the previous value and are dropped. A certain entry recorded
// further out for the same class is kept as is.
func (t *TaintTable) Mark(b *jsast.Binding, class *ClassContext, region *Region, owner *ClassContext) {
	t.unalias(b)
	t.dropPaths(b, "", region)
	if e, ok := t.bindings[b]; ok && !e.maybe && e.class == class && e.owner == owner && region.Within(e.region) {
		return
	}
	t.bindings[b] = taint{class: class, region: region, owner: owner}
}

// MarkUncertain records that b may hold an instance of class.
func (t *TaintTable) MarkUncertain(b *jsast.Binding, class *ClassContext, region *Region, owner *ClassContext) {
	t.unalias(b)
	t.dropPaths(b, "", region)
	t.bindings[b] = taint{class: class, region: region, owner: owner, maybe: true}
}

// Lookup returns the class b is known to hold, or nil.
func (t *TaintTable) Lookup(b *jsast.Binding) *ClassContext {
	return t.bindings[b].class
}

// Certain reports whether b is known to hold an instance on every path.
func (t *TaintTable) Certain(b *jsast.Binding) bool {
	e, ok := t.bindings[b]
	return ok && !e.maybe
}

func (t *TaintTable) entry(b *jsast.Binding) (taint, bool) {
	e, ok := t.bindings[b]
	return e, ok
}

// weaken returns what is left of e after a write of an unrelated value in
// region. An entry recorded in region or below it is gone; one recorded
// further out survives the paths that skip the write, so it becomes
// uncertain.
func (t *TaintTable) weaken(e taint, region *Region) (taint, bool) {
	if !t.sticky && e.region.Within(region) {
		return e, false
	}
	e.maybe = true
	return e, true
}

// Invalidate forgets the taint of b after it was assigned an unrelated
// value in region.
func (t *TaintTable) Invalidate(b *jsast.Binding, region *Region) {
	t.unalias(b)
	if e, ok := t.bindings[b]; ok {
		if e, keep := t.weaken(e, region); keep {
			t.bindings[b] = e
		} else {
			delete(t.bindings, b)
		}
	}
	t.dropPaths(b, "", region)
}

// Weaken makes everything known about b and the paths below it uncertain.
func (t *TaintTable) Weaken(b *jsast.Binding) {
	if e, ok := t.bindings[b]; ok {
		e.maybe = true
		t.bindings[b] = e
	}
	t.WeakenPaths(b)
}

// WeakenPaths makes the paths below root uncertain.
func (t *TaintTable) WeakenPaths(root *jsast.Binding) {
	for k, e := range t.paths {
		if k.root == root {
			e.maybe = true
			t.paths[k] = e
		}
	}
}

// MarkPath records that the static path below root holds an instance.
// Deeper paths are dropped.
func (t *TaintTable) MarkPath(root *jsast.Binding, path string, class *ClassContext, region *Region, owner *ClassContext) {
	t.markPath(root, path, taint{class: class, region: region, owner: owner})
}

// MarkPathUncertain records that the path below root may hold an
// instance.
func (t *TaintTable) MarkPathUncertain(root *jsast.Binding, path string, class *ClassContext, region *Region, owner *ClassContext) {
	t.markPath(root, path, taint{class: class, region: region, owner: owner, maybe: true})
}

func (t *TaintTable) markPath(root *jsast.Binding, path string, e taint) {
	root, path = t.canonical(root, path)
	t.dropAliases(root, path)
	t.dropPaths(root, path, e.region)
	t.paths[pathKey{root, path}] = e
}

// LookupPath returns the class held at root.path, or nil.
func (t *TaintTable) LookupPath(root *jsast.Binding, path string) *ClassContext {
	e, _, _ := t.pathEntry(root, path)
	return e.class
}

// CertainPath reports whether root.path is known to hold an instance on
// every path.
func (t *TaintTable) CertainPath(root *jsast.Binding, path string) bool {
	e, _, ok := t.pathEntry(root, path)
	return ok && !e.maybe
}

// pathEntry returns the entry of root.path and the binding the path is
// recorded under once aliases are resolved.
func (t *TaintTable) pathEntry(root *jsast.Binding, path string) (taint, *jsast.Binding, bool) {
	root, path = t.canonical(root, path)
	e, ok := t.paths[pathKey{root, path}]
	return e, root, ok
}

// InvalidatePath forgets root.path and every path below it.
func (t *TaintTable) InvalidatePath(root *jsast.Binding, path string, region *Region) {
	root, path = t.canonical(root, path)
	t.dropAliases(root, path)
	k := pathKey{root, path}
	if e, ok := t.paths[k]; ok {
		if e, keep := t.weaken(e, region); keep {
			t.paths[k] = e
		} else {
			delete(t.paths, k)
		}
	}
	t.dropPaths(root, path, region)
}

// dropPaths removes the paths strictly below prefix ("" means every path
// of root).
func (t *TaintTable) dropPaths(root *jsast.Binding, prefix string, region *Region) {
	for k, e := range t.paths {
		if k.root != root {
			continue
		}
		if prefix != "" && !strings.HasPrefix(k.path, prefix+pathSep) {
			continue
		}
		if e, keep := t.weaken(e, region); keep {
			t.paths[k] = e
		} else {
			delete(t.paths, k)
		}
	}
}

// Alias records that the constant b was initialized from root.path. The
// alias lasts until the path, or a path above it, is written.
func (t *TaintTable) Alias(b, root *jsast.Binding, path string) {
	if b == root {
		return
	}
	root, path = t.canonical(root, path)
	t.aliases[b] = pathKey{root, path}
}

// canonical rewrites a path through an aliased constant into the path
// from the original root.
func (t *TaintTable) canonical(root *jsast.Binding, path string) (*jsast.Binding, string) {
	a, ok := t.aliases[root]
	if !ok {
		return root, path
	}
	if path == "" {
		return a.root, a.path
	}
	return a.root, a.path + pathSep + path
}

// unalias forgets b's own alias and every alias through b.
func (t *TaintTable) unalias(b *jsast.Binding) {
	delete(t.aliases, b)
	for k, a := range t.aliases {
		if a.root == b {
			delete(t.aliases, k)
		}
	}
}

// dropAliases forgets the aliases of root.path and of paths below it.
func (t *TaintTable) dropAliases(root *jsast.Binding, path string) {
	for k, a := range t.aliases {
		if a.root == root && (a.path == path || strings.HasPrefix(a.path, path+pathSep)) {
			delete(t.aliases, k)
		}
	}
}
