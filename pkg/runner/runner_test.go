package runner

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nalgeon/be"

	"github.com/lcalzada-xor/declass/pkg/config"
	"github.com/lcalzada-xor/declass/pkg/lower"
	"github.com/lcalzada-xor/declass/pkg/models"
)

const hero = `class Hero {
  constructor(name) { this.name = name }
  sayHello() { return 'Hello, I am ' + this.name }
}
const h = new Hero('batman')
h.sayHello()
`

const page = `<html><body>
<script>
  function run() {
    class Counter { inc(n) { return n + 1 } }
    const c = new Counter()
    return c.inc(1)
  }
  run()
</script>
</body></html>
`

// run executes a runner over opts and returns its stdout and stderr.
func run(t *testing.T, opts *Options, stdin string) (models.Stats, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	r := NewRunner(opts)
	r.SetIO(strings.NewReader(stdin), &stdout, &stderr)
	stats, err := r.Run(context.Background())
	be.Err(t, err, nil)
	return stats, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	be.Err(t, os.MkdirAll(filepath.Dir(name), 0o755), nil)
	be.Err(t, os.WriteFile(name, []byte(content), 0o644), nil)
}

func TestRunStdout(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "hero.js")
	writeFile(t, file, hero)

	opts := DefaultOptions()
	opts.Inputs = []string{file}
	stats, stdout, stderr := run(t, opts, "")

	be.Equal(t, stats.Inputs, 1)
	be.Equal(t, stats.Lowered, 1)
	be.Equal(t, stats.Classes, 1)
	be.True(t, strings.Contains(stdout, "_Hero__sayHello(h)"))
	be.True(t, !strings.Contains(stdout, "class Hero"))
	be.True(t, strings.Contains(stderr, "1 inputs, 1 lowered, 0 failed"))
}

func TestRunStdin(t *testing.T) {
	opts := DefaultOptions()
	opts.Inputs = []string{"-"}
	opts.Quiet = true
	stats, stdout, stderr := run(t, opts, hero)

	be.Equal(t, stats.Lowered, 1)
	be.True(t, strings.Contains(stdout, "function _Hero__constructor("))
	be.Equal(t, stderr, "")
}

func TestRunNamesFromStdin(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.js")
	b := filepath.Join(dir, "b.js")
	writeFile(t, a, hero)
	writeFile(t, b, "const x = 1\n")

	opts := DefaultOptions()
	opts.Check = true
	stats, stdout, _ := run(t, opts, "# inputs\n"+b+"\n\n"+a+"\n")

	be.Equal(t, stats.Inputs, 2)
	be.Equal(t, stats.Lowered, 1)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	be.Equal(t, len(lines), 2)
	// reported in input order
	be.Equal(t, lines[0], b+"\tunchanged\t")
	be.Equal(t, lines[1], a+"\tlowered\tHero")
}

func TestRunOutDir(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "js", "hero.js"), hero)
	writeFile(t, filepath.Join(src, "index.html"), page)
	writeFile(t, filepath.Join(src, "notes.txt"), "class A {}")
	writeFile(t, filepath.Join(src, "vendor", "lib.js"), "class V {}")
	writeFile(t, filepath.Join(src, "app.min.js"), "class M {}")

	out := t.TempDir()
	opts := DefaultOptions()
	opts.Inputs = []string{src}
	opts.Exclude = []string{"vendor", "*.min.js"}
	opts.OutDir = out
	stats, stdout, _ := run(t, opts, "")

	be.Equal(t, stats.Inputs, 2)
	be.Equal(t, stats.Lowered, 2)

	lowered, err := os.ReadFile(filepath.Join(out, "js", "hero.js"))
	be.Err(t, err, nil)
	be.True(t, strings.Contains(string(lowered), "_Hero__sayHello(h)"))

	doc, err := os.ReadFile(filepath.Join(out, "index.html"))
	be.Err(t, err, nil)
	be.True(t, strings.Contains(string(doc), "_Counter__inc(c, 1)"))
	be.True(t, strings.HasPrefix(string(doc), "<html><body>"))

	_, err = os.Stat(filepath.Join(out, "vendor"))
	be.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(out, "notes.txt"))
	be.True(t, os.IsNotExist(err))

	be.True(t, strings.Contains(stdout, "index.html\tlowered\tCounter"))
	be.True(t, strings.Contains(stdout, "hero.js\tlowered\tHero"))
}

func TestRunInPlace(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "hero.js")
	plain := filepath.Join(dir, "plain.js")
	writeFile(t, file, hero)
	writeFile(t, plain, "const x = 1\n")
	info, err := os.Stat(plain)
	be.Err(t, err, nil)

	opts := DefaultOptions()
	opts.Inputs = []string{file, plain}
	opts.InPlace = true
	run(t, opts, "")

	data, err := os.ReadFile(file)
	be.Err(t, err, nil)
	be.True(t, strings.Contains(string(data), "_Hero__sayHello(h)"))

	// unchanged files are not rewritten
	after, err := os.Stat(plain)
	be.Err(t, err, nil)
	be.Equal(t, after.ModTime(), info.ModTime())
}

func TestRunVerify(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hero.js"), hero)
	writeFile(t, filepath.Join(dir, "page.html"), page)

	opts := DefaultOptions()
	opts.Inputs = []string{dir}
	opts.Check = true
	opts.Verify = true
	stats, stdout, _ := run(t, opts, "")

	be.Equal(t, stats.Mismatched, 0)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	be.Equal(t, len(lines), 2)
	for _, line := range lines {
		be.True(t, strings.HasSuffix(line, "\tverified"))
	}
}

func TestRunFailure(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.js")
	writeFile(t, bad, "class A {\n")
	writeFile(t, filepath.Join(dir, "good.js"), hero)

	opts := DefaultOptions()
	opts.Inputs = []string{filepath.Join(dir, "good.js"), bad}
	stats, stdout, stderr := run(t, opts, "")

	be.Equal(t, stats.Failed, 1)
	be.Equal(t, stats.Lowered, 1)
	be.True(t, strings.Contains(stdout, bad+"\tfailed\t"))
	be.True(t, strings.Contains(stderr, "Unexpected end of input"))
}

func TestRunCache(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "hero.js")
	writeFile(t, file, hero)

	opts := DefaultOptions()
	opts.Inputs = []string{file}
	opts.Cache = filepath.Join(dir, "cache", "declass.db")
	opts.Check = true

	stats, _, _ := run(t, opts, "")
	be.Equal(t, stats.Cached, 0)

	stats, stdout, _ := run(t, opts, "")
	be.Equal(t, stats.Cached, 1)
	be.Equal(t, stats.Lowered, 1)
	be.Equal(t, strings.TrimSpace(stdout), file+"\tlowered\tHero")

	// other options are another key
	opts.Lower.StickyTaint = true
	stats, _, _ = run(t, opts, "")
	be.Equal(t, stats.Cached, 0)
}

func TestRunURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/static/hero.js":
			w.Write([]byte(hero))
		case "/":
			w.Write([]byte(page))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	out := t.TempDir()
	opts := DefaultOptions()
	opts.Inputs = []string{srv.URL + "/static/hero.js", srv.URL + "/", srv.URL + "/missing.js"}
	opts.OutDir = out
	opts.Timeout = 5 * time.Second
	stats, stdout, _ := run(t, opts, "")

	be.Equal(t, stats.Lowered, 2)
	be.Equal(t, stats.Failed, 1)
	be.True(t, strings.Contains(stdout, "404"))

	_, err := os.Stat(filepath.Join(out, "hero.js"))
	be.Err(t, err, nil)
	// the page is recognized by its content
	doc, err := os.ReadFile(filepath.Join(out, "index.html"))
	be.Err(t, err, nil)
	be.True(t, strings.Contains(string(doc), "_Counter__inc(c, 1)"))
}

func TestRunInspect(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "hero.js")
	writeFile(t, file, hero+"class Child extends Hero {}\n")

	opts := DefaultOptions()
	opts.Inputs = []string{file}
	opts.Inspect = true
	_, stdout, stderr := run(t, opts, "")

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	be.Equal(t, len(lines), 2)
	be.True(t, strings.HasPrefix(lines[0], file+":1:1\tHero\teligible\tmethods=sayHello"))
	be.True(t, strings.Contains(lines[1], "\tChild\tskipped: "))
	be.True(t, !strings.Contains(stderr, "inputs"))

	// nothing is rewritten
	data, err := os.ReadFile(file)
	be.Err(t, err, nil)
	be.True(t, strings.HasPrefix(string(data), "class Hero"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
		want   string
	}{
		{"exclusive outputs", func(o *Options) { o.InPlace = true; o.OutDir = "out" }, "exclusive"},
		{"format", func(o *Options) { o.Format = "xml" }, `unknown format "xml"`},
		{"concurrency", func(o *Options) { o.Concurrency = 0 }, "concurrency must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(opts)
			r := NewRunner(opts)
			r.SetIO(strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
			_, err := r.Run(context.Background())
			be.True(t, err != nil)
			be.True(t, strings.Contains(err.Error(), tt.want))
		})
	}
}

func TestApply(t *testing.T) {
	f, err := config.Parse([]byte(`
inheritance: approximate
stickyTaint: true
fieldTyping: false
concurrency: 2
verify: true
format: json
exclude: [dist]
`), "declass.yaml")
	be.Err(t, err, nil)

	opts := DefaultOptions()
	opts.Format = "human"
	opts.Exclude = []string{"vendor"}
	opts.Apply(f, map[string]bool{"format": true})

	be.Equal(t, opts.Lower.Inheritance, lower.InheritanceApproximate)
	be.True(t, opts.Lower.StickyTaint)
	be.True(t, !opts.Lower.FieldTyping)
	be.Equal(t, opts.Concurrency, 2)
	be.True(t, opts.Verify)
	// set on the command line
	be.Equal(t, opts.Format, "human")
	be.Equal(t, opts.Exclude, []string{"vendor", "dist"})
	be.Equal(t, opts.VerifyTimeout, config.DefaultVerifyTimeout)
}

func TestReadNames(t *testing.T) {
	names, err := readNames(strings.NewReader("a.js\n  # skip\n\n  b.html  \n"))
	be.Err(t, err, nil)
	be.Equal(t, names, []string{"a.js", "b.html"})
}

func TestRemoteName(t *testing.T) {
	tests := []struct {
		in   models.Input
		want string
	}{
		{models.Input{Kind: models.InputStdin, Language: models.LanguageJS}, "stdin.js"},
		{models.Input{Kind: models.InputURL, Location: "https://example.com/js/app.js?v=2", Language: models.LanguageJS}, "app.js"},
		{models.Input{Kind: models.InputURL, Location: "https://example.com", Language: models.LanguageJS}, "index.js"},
		{models.Input{Kind: models.InputURL, Location: "https://example.com/docs/", Language: models.LanguageHTML}, "index.html"},
	}
	for _, tt := range tests {
		be.Equal(t, remoteName(&tt.in), tt.want)
	}
}
