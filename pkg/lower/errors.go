package lower

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"

	jsast "github.com/lcalzada-xor/declass/pkg/js/ast"
)

// StructuralError reports a tree shape the lowering does not handle, such
// as destructuring an instantiation or a member write inside a pattern.
// The whole unit is rejected.
type StructuralError struct {
	Position file.Position
	Message  string
	Snippet  string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: %s", e.Position, e.Message)
}

// BindingResolutionError reports an identifier or synthesized binding that
// could not be resolved. It signals an internal inconsistency rather than
// bad input.
type BindingResolutionError struct {
	Position file.Position
	Name     string
	Message  string
}

func (e *BindingResolutionError) Error() string {
	return fmt.Sprintf("%s: cannot resolve %q: %s", e.Position, e.Name, e.Message)
}

// ParseError wraps a syntax error reported by the parser.
type ParseError struct {
	Position file.Position
	Message  string
	Snippet  string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Position, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Severity of a diagnostic.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a soft report: a construct that was left unrewritten.
type Diagnostic struct {
	Severity Severity      `json:"severity"`
	Class    string        `json:"class,omitempty"`
	Message  string        `json:"message"`
	Position file.Position `json:"position"`
}

func (d Diagnostic) String() string {
	if d.Class != "" {
		return fmt.Sprintf("%s: %s: class %s: %s", d.Position, d.Severity, d.Class, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Position, d.Severity, d.Message)
}

func wrapParseError(name, code string, err error) error {
	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		first := list[0]
		return &ParseError{
			Position: first.Position,
			Message:  first.Message,
			Snippet:  Excerpt(code, first.Position.Line, first.Position.Column),
			Err:      err,
		}
	}
	return &ParseError{Position: file.Position{Filename: name}, Message: err.Error(), Err: err}
}

// Excerpt renders the line at (line, col) with one line of context before
// it and a caret under the column. Coordinates are 1-based and clamped.
func Excerpt(src string, line, col int) string {
	lines := strings.Split(src, "\n")
	if line < 1 {
		line = 1
	}
	if line > len(lines) {
		line = len(lines)
	}
	if col < 1 {
		col = 1
	}

	var b strings.Builder
	if line > 1 {
		fmt.Fprintf(&b, "%4d | %s\n", line-1, lines[line-2])
	}
	fmt.Fprintf(&b, "%4d | %s\n", line, lines[line-1])
	fmt.Fprintf(&b, "     | %s^", strings.Repeat(" ", col-1))
	return b.String()
}

// Render formats an error from this package with its source excerpt.
// Other errors are returned as their message.
func Render(err error) string {
	var structural *StructuralError
	if errors.As(err, &structural) && structural.Snippet != "" {
		return fmt.Sprintf("%s\n\n%s", structural.Error(), structural.Snippet)
	}
	var parse *ParseError
	if errors.As(err, &parse) && parse.Snippet != "" {
		return fmt.Sprintf("%s\n\n%s", parse.Error(), parse.Snippet)
	}
	return err.Error()
}

func structuralAt(src *jsast.Source, offset int, format string, args ...interface{}) *StructuralError {
	pos := src.Position(offset)
	return &StructuralError{
		Position: pos,
		Message:  fmt.Sprintf(format, args...),
		Snippet:  Excerpt(src.Code, pos.Line, pos.Column),
	}
}

func unresolvedAt(src *jsast.Source, offset int, name, message string) *BindingResolutionError {
	return &BindingResolutionError{Position: src.Position(offset), Name: name, Message: message}
}
