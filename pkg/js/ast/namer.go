package ast

import (
	"strconv"
	"strings"
	"unicode"
)

// Namer generates identifiers that collide neither with the names of the
// unit nor with each other.
type Namer struct {
	taken map[string]bool
}

// NewNamer creates a namer that treats every name in taken as used.
func NewNamer(taken map[string]bool) *Namer {
	n := &Namer{taken: make(map[string]bool, len(taken))}
	for name := range taken {
		n.taken[name] = true
	}
	return n
}

// Fresh returns "_" + hint, or "_" + hint + N for the smallest N >= 2 that
// is unused. Characters not allowed in identifiers become underscores and
// leading underscores of the hint are dropped.
func (n *Namer) Fresh(hint string) string {
	base := strings.TrimLeft(identifier(hint), "_")
	if base == "" {
		base = "ref"
	}
	for i := 1; ; i++ {
		name := "_" + base
		if i > 1 {
			name += strconv.Itoa(i)
		}
		if !n.taken[name] {
			n.taken[name] = true
			return name
		}
	}
}

// Reserve marks a name as used.
func (n *Namer) Reserve(name string) {
	n.taken[name] = true
}

func identifier(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
