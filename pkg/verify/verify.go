// Package verify executes JavaScript in an embedded runtime and compares
// the observable behavior of a program before and after lowering.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// DefaultTimeout bounds one execution.
const DefaultTimeout = 5 * time.Second

// ErrTimeout is returned when a program runs past its deadline.
var ErrTimeout = errors.New("execution timed out")

// Outcome is what one execution of a program exposed.
type Outcome struct {
	// Value is the completion value of the script, rendered.
	Value string `json:"value"`
	// Thrown is the uncaught exception, rendered, or empty.
	Thrown string `json:"thrown,omitempty"`
	// ThrownName is the name of the uncaught error (TypeError, Error...).
	ThrownName string   `json:"thrownName,omitempty"`
	Output     []string `json:"output,omitempty"`
	// Assertions counts the expect(...) checks that ran.
	Assertions int `json:"assertions"`
}

// Failed reports whether the program threw.
func (o *Outcome) Failed() bool {
	return o.Thrown != ""
}

// Run executes code in a fresh runtime. A thrown exception is part of the
// outcome, not an error; errors are reserved for code that does not
// compile or runs out of time.
func Run(ctx context.Context, name, code string) (*Outcome, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	program, err := goja.Compile(name, code, false)
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", name, err)
	}

	s := newSession()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.rt.Interrupt(ErrTimeout)
		case <-done:
		}
	}()

	value, err := s.rt.RunProgram(program)
	out := &Outcome{Output: s.output, Assertions: s.assertions}
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, fmt.Errorf("running %s: %w", name, ErrTimeout)
		}
		var exception *goja.Exception
		if !errors.As(err, &exception) {
			return nil, fmt.Errorf("running %s: %w", name, err)
		}
		out.Thrown, out.ThrownName = describeThrown(exception.Value())
		out.Value = "undefined"
		return out, nil
	}
	out.Value = describe(value)
	return out, nil
}

// session is one runtime with the test globals installed.
type session struct {
	rt         *goja.Runtime
	output     []string
	assertions int
}

func newSession() *session {
	s := &session{rt: goja.New()}

	console := s.rt.NewObject()
	_ = console.Set("log", s.log)
	_ = console.Set("error", s.log)
	_ = s.rt.Set("console", console)
	_ = s.rt.Set("expect", s.expect)
	return s
}

func (s *session) log(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, arg := range call.Arguments {
		parts[i] = arg.String()
	}
	s.output = append(s.output, strings.Join(parts, " "))
	return goja.Undefined()
}

// expect implements the subset of the jest matchers the fixtures use.
func (s *session) expect(actual goja.Value) *goja.Object {
	m := s.rt.NewObject()
	_ = m.Set("toBe", func(expected goja.Value) {
		s.assertions++
		if !actual.SameAs(expected) {
			panic(s.rt.NewGoError(fmt.Errorf("expected %s to be %s", describe(actual), describe(expected))))
		}
	})
	_ = m.Set("toEqual", func(expected goja.Value) {
		s.assertions++
		if s.json(actual) != s.json(expected) {
			panic(s.rt.NewGoError(fmt.Errorf("expected %s to equal %s", s.json(actual), s.json(expected))))
		}
	})
	_ = m.Set("toBeTruthy", func() {
		s.assertions++
		if !actual.ToBoolean() {
			panic(s.rt.NewGoError(fmt.Errorf("expected %s to be truthy", describe(actual))))
		}
	})
	return m
}

func (s *session) json(v goja.Value) string {
	stringify, ok := goja.AssertFunction(s.rt.Get("JSON").ToObject(s.rt).Get("stringify"))
	if !ok {
		return describe(v)
	}
	out, err := stringify(goja.Undefined(), v)
	if err != nil {
		return describe(v)
	}
	return out.String()
}

// describe renders a value so that outcomes can be compared as strings.
// Objects are reduced to their class: a lowered instance is a Map where
// the original is a plain object, and only primitives are compared.
func describe(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	if o, ok := v.(*goja.Object); ok {
		if _, fn := goja.AssertFunction(o); fn {
			return "function"
		}
		return "object"
	}
	return fmt.Sprintf("%T(%s)", v.Export(), v.String())
}

func describeThrown(v goja.Value) (message, name string) {
	if o, ok := v.(*goja.Object); ok {
		if n := o.Get("name"); n != nil && !goja.IsUndefined(n) {
			name = n.String()
		}
		if msg := o.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			return msg.String(), name
		}
	}
	return v.String(), name
}
