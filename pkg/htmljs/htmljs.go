// Package htmljs lowers the inline classic scripts of an HTML document.
//
// The document is tokenized, not parsed into a tree, so that everything
// outside the rewritten script bodies is copied byte for byte.
package htmljs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"golang.org/x/net/html"

	"github.com/lcalzada-xor/declass/pkg/lower"
)

// Script is one inline script of a document.
type Script struct {
	// Index counts inline classic scripts from 0 in document order.
	Index int
	// Line is the 1-based line of the script body.
	Line   int
	Result *lower.Result
}

// Result is a lowered document.
type Result struct {
	Document string
	Scripts  []Script
	Skipped  int
}

// Classic reports whether a script type attribute denotes a classic
// script. types lists the accepted values, "" standing for no attribute.
func Classic(scriptType string, types []string) bool {
	t := strings.ToLower(strings.TrimSpace(scriptType))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return slices.Contains(types, t)
}

// Lower rewrites every inline classic script of doc. Module, JSON and
// template scripts, and scripts with a src attribute, are left alone.
// Scripts share the global scope of the page, so each is lowered as a
// shared unit.
func Lower(name, doc string, types []string, opts lower.Options) (*Result, error) {
	opts.Shared = true
	res := &Result{}
	out, skipped, err := Rewrite(name, doc, types, func(index, line int, code string) (string, error) {
		unit := fmt.Sprintf("%s#script%d", name, index)
		lowered, err := lower.Lower(unit, code, opts)
		if err != nil {
			return "", err
		}
		res.Scripts = append(res.Scripts, Script{Index: index, Line: line, Result: lowered})
		return lowered.Code, nil
	})
	if err != nil {
		return nil, err
	}
	res.Document = out
	res.Skipped = skipped
	return res, nil
}

// Inspect lists the classes of every inline classic script of doc.
func Inspect(name, doc string, types []string, opts lower.Options) ([]lower.ClassInfo, error) {
	var classes []lower.ClassInfo
	_, _, err := Rewrite(name, doc, types, func(index, line int, code string) (string, error) {
		found, err := lower.Inspect(fmt.Sprintf("%s#script%d", name, index), code, opts)
		if err != nil {
			return "", err
		}
		classes = append(classes, found...)
		return code, nil
	})
	return classes, err
}

// Rewrite calls fn with the body of every inline classic script, in
// document order, and replaces the body with what fn returns. It also
// returns the number of scripts that were not classic or not inline.
func Rewrite(name, doc string, types []string, fn func(index, line int, code string) (string, error)) (string, int, error) {
	z := html.NewTokenizer(strings.NewReader(doc))

	var out bytes.Buffer
	index, skipped := 0, 0
	inScript := false
	line := 1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				break
			}
			return "", skipped, fmt.Errorf("tokenizing %s: %w", name, z.Err())
		}
		// TagName and TagAttr lower-case the tokenizer buffer in place
		raw := bytes.Clone(z.Raw())

		switch tt {
		case html.StartTagToken:
			tag, hasAttr := z.TagName()
			if string(tag) == "script" {
				inScript = inlineClassic(z, hasAttr, types)
				if !inScript {
					skipped++
				}
			}
		case html.EndTagToken:
			inScript = false
		case html.TextToken:
			if !inScript || strings.TrimSpace(string(raw)) == "" {
				break
			}
			inScript = false
			code := string(raw)
			rewritten, err := fn(index, line, code)
			if err != nil {
				return "", skipped, &ScriptError{Index: index, Line: line, Err: err}
			}
			index++
			line += strings.Count(code, "\n")
			out.WriteString(rewritten)
			continue
		}
		line += bytes.Count(raw, []byte("\n"))
		out.Write(raw)
	}
	return out.String(), skipped, nil
}

func inlineClassic(z *html.Tokenizer, hasAttr bool, types []string) bool {
	scriptType := ""
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		switch string(key) {
		case "src":
			return false
		case "type":
			scriptType = string(val)
		}
	}
	return Classic(scriptType, types)
}

// ScriptError locates a lowering failure inside a document.
type ScriptError struct {
	Index int
	Line  int
	Err   error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %d at line %d: %v", e.Index, e.Line, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }
