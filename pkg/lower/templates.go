package lower

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// The generated JavaScript. Delimiters are [[ ]] so that braces in the
// emitted code need no escaping.
const generatedCode = `
[[- define "constructor"]]function [[.Name]]([[.Params]]) {
[[.Indent]]  const [[.Receiver]] = new [[.Map]]();
[[.Indent]]  [[.Init]]([[.Receiver]][[if .Args]], [[.Args]][[end]]);
[[.Indent]]  return [[.Receiver]];
[[.Indent]]}[[end]]

[[- define "emptyConstructor"]]function [[.Name]]() {
[[.Indent]]  return new [[.Map]]();
[[.Indent]]}[[end]]

[[- define "function"]][[if .Async]]async [[end]]function[[if .Generator]]*[[end]] [[.Name]]([[.Receiver]][[if .Params]], [[.Params]][[end]]) {
[[- range .Prologue]]
[[$.Indent]]  [[.]][[end]][[.Body]]}[[end]]

[[- define "fieldInit"]][[.Object]].set([[.Key]], [[if .Value]][[.Value]][[else]]undefined[[end]]);[[end]]

[[- define "call"]][[.Method]]([[.Object]][[if .Args]], [[.Args]][[end]])[[end]]

[[- define "bind"]][[.Method]].bind(null, [[.Object]])[[end]]

[[- define "get"]][[.Object]][[if .Optional]]?[[end]].get([[.Key]])[[end]]

[[- define "set"]][[.Object]].set([[.Key]], [[.Value]])[[if .Used]].get([[.Key]])[[end]][[end]]

[[- define "compound"]][[.Object]].set([[.Key]], [[.Object]].get([[.Key]]) [[.Op]] ([[.Value]]))[[if .Used]].get([[.Key]])[[end]][[end]]

[[- define "logical"]]([[.Object]].get([[.Key]]) [[.Op]] [[.Object]].set([[.Key]], [[.Value]]).get([[.Key]]))[[end]]

[[- define "update"]][[if and .Used .Postfix -]]
(([[.Temp]], [[.Old]]) => ([[.Old]] = [[.Temp]][[.Op]], [[.Object]].set([[.Key]], [[.Temp]]), [[.Old]]))([[.Object]].get([[.Key]]))
[[- else -]]
[[.Object]].set([[.Key]], (([[.Temp]]) => [[.Op]][[.Temp]])([[.Object]].get([[.Key]])))[[if .Used]].get([[.Key]])[[end]]
[[- end]][[end]]

[[- define "delete"]][[.Object]].delete([[.Key]])[[end]]

[[- define "shared"]](([[join .Params]]) => [[.Body]])([[join .Args]])[[end]]

[[- define "guard"]]([[.Object]] instanceof [[.Map]] ? [[.Lowered]] : [[.Native]])[[end]]

[[- define "nullGuard"]]([[.Object]] == null ? [[.Absent]] : [[.Lowered]])[[end]]

[[- define "nativeGet"]][[member .Object .Key .Optional]][[end]]

[[- define "nativeCall"]][[member .Object .Key .Optional]]([[.Args]])[[end]]

[[- define "nativeWrite"]][[member .Object .Key false]] [[.Op]] [[.Value]][[end]]

[[- define "nativeUpdate"]][[if .Postfix]][[member .Object .Key false]][[.Op]][[else]][[.Op]][[member .Object .Key false]][[end]][[end]]

[[- define "nativeDelete"]]delete [[member .Object .Key .Optional]][[end]]
`

var templates = template.Must(template.New("lower").
	Delims("[[", "]]").
	Funcs(template.FuncMap{
		"join":   func(s []string) string { return strings.Join(s, ", ") },
		"member": member,
	}).
	Parse(generatedCode))

type constructorData struct {
	Name     string
	Params   string
	Receiver string
	Init     string
	Args     string
	Map      string
	Indent   string
}

type functionData struct {
	Async     bool
	Generator bool
	Name      string
	Receiver  string
	Params    string
	Prologue  []string
	Body      string
	Indent    string
}

type accessData struct {
	Object   string
	Key      string
	Value    string
	Method   string
	Args     string
	Op       string
	Used     bool
	Postfix  bool
	Optional bool
	// Temp and Old name the parameters holding the numeric value of an
	// updated property.
	Temp string
	Old  string
}

// guardData picks the lowered or the native form of an access at run
// time, or skips the access of an optional chain on a missing object.
type guardData struct {
	Object  string
	Map     string
	Lowered string
	Native  string
	Absent  string
}

// sharedData evaluates operands once by passing them to an arrow
// function whose body may then repeat the parameters.
type sharedData struct {
	Params []string
	Args   []string
	Body   string
}

func expand(name string, data interface{}) (string, error) {
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("expanding %s: %w", name, err)
	}
	return b.String(), nil
}

// member renders a computed property access.
func member(object, key string, optional bool) string {
	if optional {
		return object + "?.[" + key + "]"
	}
	return object + "[" + key + "]"
}

// quote renders a property key as a JavaScript string literal.
func quote(key string) string {
	out, err := json.Marshal(key)
	if err != nil {
		return `""`
	}
	return string(out)
}
