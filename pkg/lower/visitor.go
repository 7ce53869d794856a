package lower

import (
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"

	jsast "github.com/lcalzada-xor/declass/pkg/js/ast"
)

type frameKind int

const (
	// frameOpaque is a function with a receiver of its own.
	frameOpaque frameKind = iota
	// frameArrow inherits the receiver of the enclosing frame.
	frameArrow
	// frameLowered is the body of a generated function; its receiver is
	// an explicit parameter.
	frameLowered
)

type frame struct {
	kind frameKind
	// node is the function-like node the frame belongs to.
	node     ast.Node
	class    *ClassContext
	receiver *jsast.Binding
}

// mark records what Enter pushed so that Exit can pop it.
type mark struct {
	region bool
	frame  bool
}

// lowering is the main walk over a unit. A survey registers the class
// declarations first. Instantiations are rewritten when entered and member
// accesses are rewritten when left, so that every pass observes the taint
// table in source order.
type lowering struct {
	src   *jsast.Source
	info  *jsast.Info
	names *jsast.Namer
	opts  Options

	registry *Registry
	taints   *TaintTable
	plan     *plan
	diags    []Diagnostic

	mapRef    string
	objectRef string

	states []*classState
	// bodies maps method literals and instance field definitions of
	// lowered classes to their class.
	bodies   map[ast.Node]*classState
	news     map[*ast.NewExpression]*ClassContext
	consumed map[*jsast.Binding]int
	// usage and loops come from the survey.
	usage    map[*jsast.Binding]*usage
	loops    map[ast.Node]*carried
	repeated map[ast.Node]bool

	receiverName string
	updateTemp   string
	updateOld    string

	frames []*frame
	region *Region
	marks  []mark
	err    error
}

func newLowering(src *jsast.Source, opts Options) *lowering {
	info := jsast.Resolve(src.Program)
	l := &lowering{
		src:       src,
		info:      info,
		names:     info.Namer(),
		opts:      opts,
		registry:  NewRegistry(),
		taints:    NewTaintTable(opts.StickyTaint),
		plan:      newPlan(src),
		mapRef:    "Map",
		objectRef: "Object",
		bodies:    make(map[ast.Node]*classState),
		news:      make(map[*ast.NewExpression]*ClassContext),
		consumed:  make(map[*jsast.Binding]int),
		repeated:  make(map[ast.Node]bool),
		region:    newRegion(nil),
	}
	if info.Declared("Map") {
		l.mapRef = "globalThis.Map"
	}
	if info.Declared("Object") {
		l.objectRef = "globalThis.Object"
	}
	return l
}

// run surveys the unit and then lowers it.
func (l *lowering) run() {
	s := newSurvey(l)
	jsast.Walk(l.src.Program, s)
	if l.err != nil {
		return
	}
	l.usage, l.loops = s.usage, s.loops
	if l.opts.FieldTyping {
		for _, st := range l.states {
			l.typeFields(st)
		}
	}
	jsast.Walk(l.src.Program, l)
}

// receiverParam returns the receiver parameter of the generated functions. The
// functions of one unit share it.
func (l *lowering) receiverParam() string {
	if l.receiverName == "" {
		l.receiverName = l.names.Fresh("this")
	}
	return l.receiverName
}

func (l *lowering) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

func (l *lowering) warn(class string, offset int, message string) {
	l.diags = append(l.diags, Diagnostic{
		Severity: SeverityWarning,
		Class:    class,
		Message:  message,
		Position: l.src.Position(offset),
	})
}

func (l *lowering) note(class string, offset int, message string) {
	l.diags = append(l.diags, Diagnostic{
		Severity: SeverityInfo,
		Class:    class,
		Message:  message,
		Position: l.src.Position(offset),
	})
}

func (l *lowering) Enter(c *jsast.Cursor) bool {
	if l.err != nil {
		return false
	}

	var m mark
	if loop, ok := carriedEdge(c); ok && !l.repeated[loop] {
		l.repeated[loop] = true
		l.repeat(l.loops[loop])
	}
	if conditional(c) {
		l.region = newRegion(l.region)
		m.region = true
	}

	switch n := c.Node.(type) {
	case *ast.FunctionLiteral:
		if st := l.bodies[n]; st != nil {
			l.pushFrame(l.loweredFrame(n, st))
		} else {
			l.pushFrame(&frame{kind: frameOpaque, node: n})
		}
		m.frame = true
	case *ast.ArrowFunctionLiteral:
		l.pushFrame(&frame{kind: frameArrow, node: n})
		m.frame = true
	case *ast.FieldDefinition:
		if st := l.bodies[n]; st != nil {
			l.pushFrame(l.loweredFrame(n, st))
		} else {
			l.pushFrame(&frame{kind: frameOpaque, node: n})
		}
		m.frame = true
	case *ast.ClassStaticBlock:
		l.pushFrame(&frame{kind: frameOpaque, node: n})
		m.frame = true
	case *ast.ThisExpression:
		l.receiver(c, n, "")
	case *ast.SuperExpression:
		l.receiver(c, n, l.objectRef)
	case *ast.NewExpression:
		l.instantiate(c, n)
	}

	l.marks = append(l.marks, m)
	return true
}

func (l *lowering) Exit(c *jsast.Cursor) {
	if l.err != nil {
		return
	}

	switch n := c.Node.(type) {
	case *ast.DotExpression:
		l.member(c, n.Left, nil, n.Identifier.Name.String(), true)
	case *ast.BracketExpression:
		key, static := staticKey(n.Member)
		l.member(c, n.Left, n.Member, key, static)
	case *ast.Binding:
		l.declared(c, n)
	case *ast.AssignExpression:
		l.assigned(n)
	case *ast.UnaryExpression:
		if n.Operator == token.INCREMENT || n.Operator == token.DECREMENT {
			l.overwritten(n.Operand)
		}
	case *ast.ForIntoExpression:
		l.overwritten(n.Expression)
	}

	m := l.marks[len(l.marks)-1]
	l.marks = l.marks[:len(l.marks)-1]
	if m.frame {
		l.frames = l.frames[:len(l.frames)-1]
	}
	if m.region {
		l.region = l.region.parent
	}
}

func (l *lowering) pushFrame(f *frame) {
	l.frames = append(l.frames, f)
}

// loweredFrame enters a generated function body. Its receiver parameter
// holds an instance of the class by construction.
func (l *lowering) loweredFrame(n ast.Node, st *classState) *frame {
	recv := jsast.NewSynthetic(st.ctx.Receiver)
	l.taints.Mark(recv, st.ctx, l.region, st.ctx)
	return &frame{kind: frameLowered, node: n, class: st.ctx, receiver: recv}
}

// captured reports whether the current position is inside a function
// nested in the one declaring b.
func (l *lowering) captured(b *jsast.Binding) bool {
	fn := ast.Node(l.src.Program)
	if len(l.frames) > 0 {
		fn = l.frames[len(l.frames)-1].node
	}
	return fn != declaringFunction(b)
}

// repeat prepares the table for the repeated part of a loop, which also
// runs after what the loop writes. A binding keeps a certain entry only
// when every write in the loop stores the same class.
func (l *lowering) repeat(lw *carried) {
	if lw == nil {
		return
	}
	for b, u := range lw.bindings {
		entry, ok := l.taints.entry(b)
		written := l.summary(u)
		switch {
		case ok && (written.maybe || written.class != entry.class):
			l.taints.Weaken(b)
		case !ok && written.class != nil:
			l.taints.MarkUncertain(b, written.class, l.region, nil)
		}
	}
	for root := range lw.roots {
		l.taints.WeakenPaths(root)
	}
}

// receiverFrame returns the lowered frame whose receiver a this expression
// at the current position denotes, or nil.
func (l *lowering) receiverFrame() *frame {
	for i := len(l.frames) - 1; i >= 0; i-- {
		switch f := l.frames[i]; f.kind {
		case frameArrow:
			continue
		case frameLowered:
			return f
		default:
			return nil
		}
	}
	return nil
}

// receiver replaces this (or super, with replacement) inside a generated
// function. The edit belongs to the class: the retained declaration keeps
// the native receiver.
func (l *lowering) receiver(c *jsast.Cursor, n ast.Node, replacement string) {
	f := l.receiverFrame()
	if f == nil {
		return
	}
	if replacement == "" {
		replacement = f.class.Receiver
	}
	lo, hi := l.src.Span(n)
	text := replacement
	l.plan.replace(lo, hi, c.Depth, f.class, func(*renderer) string { return text })
}

// conditional reports whether the node starts code that runs on some
// paths only, relative to its parent.
func conditional(c *jsast.Cursor) bool {
	switch c.Node.(type) {
	case *ast.FunctionLiteral, *ast.ArrowFunctionLiteral, *ast.ClassStaticBlock, *ast.FieldDefinition, *ast.CaseStatement:
		return true
	}
	switch p := c.Parent.(type) {
	case *ast.IfStatement:
		return c.Edge == "Consequent" || c.Edge == "Alternate"
	case *ast.ConditionalExpression:
		return c.Edge == "Consequent" || c.Edge == "Alternate"
	case *ast.BinaryExpression:
		return c.Edge == "Right" && logical(p.Operator)
	case *ast.AssignExpression:
		return c.Edge == "Right" && logical(p.Operator)
	case *ast.WhileStatement, *ast.DoWhileStatement, *ast.ForInStatement, *ast.ForOfStatement:
		return c.Edge == "Body"
	case *ast.ForStatement:
		return c.Edge == "Body" || c.Edge == "Test" || c.Edge == "Update"
	case *ast.TryStatement:
		return c.Edge == "Body" || c.Edge == "Catch"
	}
	return false
}

func logical(op token.Token) bool {
	return op == token.LOGICAL_AND || op == token.LOGICAL_OR || op == token.COALESCE
}
