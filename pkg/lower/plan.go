package lower

import (
	"sort"
	"strings"

	jsast "github.com/lcalzada-xor/declass/pkg/js/ast"
)

// edit replaces Code[start:end] with the output of emit. Edits are
// collected during the walk and applied afterwards; an emitter renders
// the sub-ranges it keeps through the renderer, which applies the edits
// nested inside them. Edits never partially overlap.
type edit struct {
	start, end int
	depth      int
	seq        int
	// owner marks receiver-dependent edits: they are skipped while the
	// retained copy of the owning class is rendered.
	owner *ClassContext
	// lead is set when the edit starts an expression statement that a
	// parenthesis would join to the statement before.
	lead bool
	emit func(r *renderer) string
}

type plan struct {
	src   *jsast.Source
	edits []*edit
}

func newPlan(src *jsast.Source) *plan {
	return &plan{src: src}
}

func (p *plan) replace(start, end, depth int, owner *ClassContext, emit func(r *renderer) string) *edit {
	e := &edit{
		start: start,
		end:   end,
		depth: depth,
		seq:   len(p.edits),
		owner: owner,
		emit:  emit,
	}
	p.edits = append(p.edits, e)
	return e
}

// apply renders the whole unit. Edits covering the same range apply
// outermost first, then in creation order.
func (p *plan) apply() (string, error) {
	sort.SliceStable(p.edits, func(i, j int) bool {
		a, b := p.edits[i], p.edits[j]
		if a.start != b.start {
			return a.start < b.start
		}
		if a.end != b.end {
			return a.end > b.end
		}
		if a.depth != b.depth {
			return a.depth < b.depth
		}
		return a.seq < b.seq
	})
	r := &renderer{
		plan:     p,
		active:   make(map[*edit]bool),
		suppress: make(map[*ClassContext]int),
		leads:    make(map[int]int),
	}
	out := r.span(0, len(p.src.Code))
	if r.err != nil {
		return "", r.err
	}
	return out, nil
}

type renderer struct {
	plan     *plan
	active   map[*edit]bool
	suppress map[*ClassContext]int
	// leads counts the lead edits being rendered per start offset. Only
	// the outermost one guards the statement.
	leads map[int]int
	err   error
}

// span renders Code[lo:hi] with every applicable edit inside it.
func (r *renderer) span(lo, hi int) string {
	code := r.plan.src.Code
	edits := r.plan.edits
	var b strings.Builder
	pos := lo
	i := sort.Search(len(edits), func(i int) bool { return edits[i].start >= lo })
	for ; i < len(edits) && edits[i].start < hi; i++ {
		e := edits[i]
		if e.start < pos || e.end > hi || r.active[e] || r.hidden(e) {
			continue
		}
		b.WriteString(code[pos:e.start])
		r.active[e] = true
		b.WriteString(r.emit(e))
		delete(r.active, e)
		pos = e.end
	}
	b.WriteString(code[pos:hi])
	return b.String()
}

func (r *renderer) emit(e *edit) string {
	if !e.lead {
		return e.emit(r)
	}
	r.leads[e.start]++
	out := e.emit(r)
	r.leads[e.start]--
	if r.leads[e.start] == 0 && strings.HasPrefix(out, "(") {
		return ";" + out
	}
	return out
}

func (r *renderer) hidden(e *edit) bool {
	return e.owner != nil && r.suppress[e.owner] > 0
}

// without renders with the receiver-dependent edits of class disabled.
func (r *renderer) without(class *ClassContext, fn func() string) string {
	r.suppress[class]++
	defer func() { r.suppress[class]-- }()
	return fn()
}

func (r *renderer) expand(name string, data interface{}) string {
	out, err := expand(name, data)
	if err != nil && r.err == nil {
		r.err = err
	}
	return out
}
