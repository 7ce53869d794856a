// Package fixture reads lowering test cases from Markdown documents.
//
// Each case starts at a heading "Test: <name>" and holds one js fence with
// the input program, followed by assertion fences:
//
//	lowered     the exact lowered program
//	contains    lines that must appear in the lowered program
//	equivalent  run input and output and compare their behavior
//	value       the completion value of the lowered program
//	error       a substring of the expected lowering error
//	options     YAML lowering options for this case
package fixture

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Kind of an assertion fence.
type Kind string

const (
	KindLowered    Kind = "lowered"
	KindContains   Kind = "contains"
	KindEquivalent Kind = "equivalent"
	KindValue      Kind = "value"
	KindError      Kind = "error"
)

const (
	inputFence   = "js"
	optionsFence = "options"
)

// Assertion is one assertion fence of a case.
type Assertion struct {
	Kind    Kind
	Content string
	Line    int
}

// Case is one test case.
type Case struct {
	Name       string
	File       string
	Line       int
	Input      string
	Options    string
	Assertions []Assertion
}

// Parse extracts the cases of one document.
func Parse(name string, markdown []byte) ([]Case, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(markdown))

	var cases []Case
	var current *Case
	finish := func() error {
		if current == nil {
			return nil
		}
		if err := validate(current); err != nil {
			return err
		}
		cases = append(cases, *current)
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n := node.(type) {
		case *ast.Heading:
			heading := plainText(n, markdown)
			if !strings.HasPrefix(heading, "Test: ") {
				return ast.WalkContinue, nil
			}
			if err := finish(); err != nil {
				return ast.WalkStop, err
			}
			current = &Case{
				Name: strings.TrimSpace(strings.TrimPrefix(heading, "Test: ")),
				File: name,
				Line: lineOf(n, markdown),
			}

		case *ast.FencedCodeBlock:
			lang := string(n.Language(markdown))
			line := lineOf(n, markdown)
			if current == nil {
				if lang != "" {
					return ast.WalkStop, fmt.Errorf("%s:%d: %s fence outside of a test case", name, line, lang)
				}
				return ast.WalkContinue, nil
			}
			content := strings.TrimRight(fenceContent(n, markdown), "\n")

			switch lang {
			case inputFence:
				if current.Input != "" {
					return ast.WalkStop, fmt.Errorf("%s:%d: second input fence in test %q", name, line, current.Name)
				}
				current.Input = content
			case optionsFence:
				current.Options = content
			case string(KindLowered), string(KindContains), string(KindEquivalent), string(KindValue), string(KindError):
				current.Assertions = append(current.Assertions, Assertion{Kind: Kind(lang), Content: content, Line: line})
			case "":
			default:
				return ast.WalkStop, fmt.Errorf("%s:%d: unknown fence %q in test %q", name, line, lang, current.Name)
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return cases, nil
}

// Load parses every Markdown file matching pattern, in name order.
func Load(pattern string) ([]Case, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("globbing %s: %w", pattern, err)
	}
	sort.Strings(files)

	var all []Case
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading fixture: %w", err)
		}
		cases, err := Parse(filepath.Base(f), data)
		if err != nil {
			return nil, err
		}
		all = append(all, cases...)
	}
	return all, nil
}

// Lines splits a contains fence into its non-blank lines.
func (a Assertion) Lines() []string {
	var out []string
	for _, line := range strings.Split(a.Content, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, strings.TrimSpace(line))
		}
	}
	return out
}

func validate(c *Case) error {
	if c.Input == "" {
		return fmt.Errorf("%s:%d: test %q has no js fence", c.File, c.Line, c.Name)
	}
	if len(c.Assertions) == 0 {
		return fmt.Errorf("%s:%d: test %q has no assertion fences", c.File, c.Line, c.Name)
	}
	return nil
}

func plainText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func fenceContent(block *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(source))
	}
	return buf.String()
}

// lineOf returns the 1-based line of a block node.
func lineOf(node ast.Node, source []byte) int {
	start := 0
	if node.Lines().Len() > 0 {
		start = node.Lines().At(0).Start
	} else if node.Type() == ast.TypeBlock {
		// headings keep their text in inline children
		if first := node.FirstChild(); first != nil {
			if t, ok := first.(*ast.Text); ok {
				start = t.Segment.Start
			}
		}
	}
	return bytes.Count(source[:min(start, len(source))], []byte("\n")) + 1
}
