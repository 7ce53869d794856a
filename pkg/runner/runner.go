package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/lcalzada-xor/declass/pkg/cache"
	"github.com/lcalzada-xor/declass/pkg/config"
	"github.com/lcalzada-xor/declass/pkg/fetch"
	"github.com/lcalzada-xor/declass/pkg/htmljs"
	"github.com/lcalzada-xor/declass/pkg/logger"
	"github.com/lcalzada-xor/declass/pkg/lower"
	"github.com/lcalzada-xor/declass/pkg/models"
	"github.com/lcalzada-xor/declass/pkg/output"
	"github.com/lcalzada-xor/declass/pkg/verify"
)

// Runner lowers a set of inputs with a pool of workers.
type Runner struct {
	options *Options
	log     *logger.Logger
	stdin   io.Reader
	stdout  io.Writer
	color   bool
	client  *fetch.Client
	cache   *cache.Cache
}

// NewRunner creates a new Runner instance
func NewRunner(options *Options) *Runner {
	return &Runner{
		options: options,
		log:     logger.New(options.level()),
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		color:   logger.IsTerminal(os.Stdout),
	}
}

// SetIO replaces the standard streams.
func (r *Runner) SetIO(stdin io.Reader, stdout, stderr io.Writer) {
	r.stdin = stdin
	r.stdout = stdout
	r.color = logger.IsTerminal(stdout)
	r.log = logger.NewWriter(r.options.level(), stderr)
}

// entry is the cached part of a result.
type entry struct {
	Code        string              `json:"code"`
	Scripts     int                 `json:"scripts,omitempty"`
	Classes     []lower.ClassReport `json:"classes,omitempty"`
	Diagnostics []lower.Diagnostic  `json:"diagnostics,omitempty"`
}

// Run processes every input. Failures of single inputs are reported and
// counted in the stats; the error is for failures of the run itself.
func (r *Runner) Run(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	if err := r.validate(); err != nil {
		return stats, err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if r.options.Cache != "" {
		c, err := cache.Open(r.options.Cache)
		if err != nil {
			return stats, err
		}
		defer c.Close()
		r.cache = c
		if n, err := c.Prune(ctx, config.DefaultCacheMaxAge); err != nil {
			r.log.Warn("cache: %v", err)
		} else if n > 0 {
			r.log.V("cache: pruned %d stale entries", n)
		}
		if n, err := c.Len(ctx); err == nil {
			r.log.VV("cache: %d entries", n)
		}
	}
	r.client = fetch.NewClient(r.options.Timeout, r.options.Proxy, r.options.Concurrency, r.options.RateLimit, config.DefaultUserAgent)

	args := r.options.Inputs
	if len(args) == 0 {
		names, err := readNames(r.stdin)
		if err != nil {
			return stats, fmt.Errorf("reading input names: %w", err)
		}
		args = names
	}
	jobs, err := r.collect(ctx, args)
	if err != nil {
		return stats, err
	}
	r.log.V("%d inputs, %d workers", len(jobs), r.options.Concurrency)

	results := make([]*models.Result, len(jobs))
	queue := make(chan job)
	var wg sync.WaitGroup
	for i := 0; i < r.options.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j, ok := <-queue:
					if !ok {
						return
					}
					results[j.index] = r.process(ctx, j)
				}
			}
		}()
	}

feed:
	for _, j := range jobs {
		select {
		case queue <- j:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	for _, res := range results {
		if res == nil {
			continue
		}
		stats.Add(res)
		r.emit(res)
	}
	if err := ctx.Err(); err != nil {
		r.log.Error("interrupted, %d of %d inputs processed", stats.Inputs, len(jobs))
		return stats, err
	}
	if !r.options.Inspect {
		r.log.Info("%s", output.Summary(stats, "text"))
	}
	return stats, nil
}

func (r *Runner) validate() error {
	o := r.options
	if o.InPlace && o.OutDir != "" {
		return errors.New("in-place and output directory are exclusive")
	}
	if !slices.Contains(config.Formats, o.Format) {
		return fmt.Errorf("unknown format %q", o.Format)
	}
	if o.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive, got %d", o.Concurrency)
	}
	return nil
}

// process lowers one input. It never returns nil.
func (r *Runner) process(ctx context.Context, j job) *models.Result {
	start := time.Now()
	res := &models.Result{Input: j.input}
	fail := func(err error) *models.Result {
		res.Status = models.StatusFailed
		res.Error = lower.Render(err)
		res.Duration = time.Since(start)
		r.log.Error("%s: %v", j.input.Location, err)
		return res
	}

	r.log.V("lowering %s", j.input.Location)
	src, err := r.read(ctx, &res.Input)
	if err != nil {
		return fail(err)
	}

	if r.options.Inspect {
		if err := r.inspect(res, src); err != nil {
			return fail(err)
		}
		res.Duration = time.Since(start)
		return res
	}

	e, cached, err := r.lowerCached(ctx, res.Input, src)
	if err != nil {
		return fail(err)
	}
	res.Code = e.Code
	res.Scripts = e.Scripts
	res.Classes = e.Classes
	res.Diagnostics = e.Diagnostics
	res.Cached = cached
	res.Status = models.StatusUnchanged
	if len(e.Classes) > 0 {
		res.Status = models.StatusLowered
	}
	for _, d := range e.Diagnostics {
		if d.Severity == lower.SeverityWarning {
			r.log.Warn("%s: %s", j.input.Location, d)
		} else {
			r.log.VV("%s: %s", j.input.Location, d)
		}
	}
	if r.log.IsDebug() {
		r.log.Section(j.input.Location)
		for _, c := range e.Classes {
			r.log.Detail("%s -> %s %s retained=%v", c.Name, c.Constructor, strings.Join(c.Methods, " "), c.Retained)
		}
	}

	if r.options.Verify {
		res.Verify = r.verify(ctx, res.Input, src, e.Code)
	}

	if err := r.write(j, res); err != nil {
		return fail(err)
	}
	res.Duration = time.Since(start)
	return res
}

func (r *Runner) read(ctx context.Context, in *models.Input) (string, error) {
	switch in.Kind {
	case models.InputStdin:
		data, err := io.ReadAll(r.stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	case models.InputURL:
		body, err := r.client.Get(ctx, in.Location)
		if err != nil {
			return "", err
		}
		// a page without extension is recognized by its content
		if in.Language == models.LanguageJS && path.Ext(urlBase(in.Location)) != ".js" &&
			strings.HasPrefix(strings.TrimSpace(body), "<") {
			in.Language = models.LanguageHTML
		}
		return body, nil
	default:
		data, err := os.ReadFile(in.Location)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

func (r *Runner) lowerCached(ctx context.Context, in models.Input, src string) (*entry, bool, error) {
	var key string
	if r.cache != nil {
		key = cache.Key(config.Version, fmt.Sprintf("%+v", r.options.Lower), string(in.Language), src)
		var e entry
		ok, err := r.cache.Get(ctx, key, &e)
		if err != nil {
			r.log.Warn("cache: %v", err)
		} else if ok {
			r.log.VV("%s: cache hit", in.Location)
			return &e, true, nil
		}
	}

	e, err := r.lower(in, src)
	if err != nil {
		return nil, false, err
	}
	if r.cache != nil {
		if err := r.cache.Put(ctx, key, in.Location, e); err != nil {
			r.log.Warn("cache: %v", err)
		}
	}
	return e, false, nil
}

func (r *Runner) lower(in models.Input, src string) (*entry, error) {
	if in.Language == models.LanguageHTML {
		doc, err := htmljs.Lower(in.Location, src, config.ScriptTypes, r.options.Lower)
		if err != nil {
			return nil, err
		}
		e := &entry{Code: doc.Document, Scripts: len(doc.Scripts)}
		for _, s := range doc.Scripts {
			e.Classes = append(e.Classes, s.Result.Classes...)
			e.Diagnostics = append(e.Diagnostics, s.Result.Diagnostics...)
		}
		return e, nil
	}

	res, err := lower.Lower(in.Location, src, r.options.Lower)
	if err != nil {
		return nil, err
	}
	return &entry{Code: res.Code, Classes: res.Classes, Diagnostics: res.Diagnostics}, nil
}

func (r *Runner) inspect(res *models.Result, src string) error {
	var classes []lower.ClassInfo
	var err error
	if res.Input.Language == models.LanguageHTML {
		classes, err = htmljs.Inspect(res.Input.Location, src, config.ScriptTypes, r.options.Lower)
	} else {
		classes, err = lower.Inspect(res.Input.Location, src, r.options.Lower)
	}
	if err != nil {
		return err
	}
	res.Status = models.StatusUnchanged
	res.Code = output.Classes(res.Input.Location, classes, r.options.Format)
	return nil
}

// verify runs every unit before and after lowering. The scripts of a
// document are compared one by one.
func (r *Runner) verify(ctx context.Context, in models.Input, original, lowered string) *models.Verification {
	before, after := []string{original}, []string{lowered}
	if in.Language == models.LanguageHTML {
		before, after = scripts(in.Location, original), scripts(in.Location, lowered)
		if len(before) != len(after) {
			return &models.Verification{Error: "lowering changed the number of scripts"}
		}
	}

	v := &models.Verification{Equivalent: true}
	for i := range before {
		vctx, cancel := context.WithTimeout(ctx, r.options.VerifyTimeout)
		report, err := verify.Compare(vctx, in.Location, before[i], after[i])
		cancel()
		if err != nil {
			return &models.Verification{Error: err.Error()}
		}
		if !report.Equivalent() {
			v.Equivalent = false
			v.Mismatches = append(v.Mismatches, report.Mismatches...)
		}
	}
	if !v.Equivalent {
		r.log.Warn("%s: not equivalent: %s", in.Location, strings.Join(v.Mismatches, "; "))
	}
	return v
}

func scripts(name, doc string) []string {
	var out []string
	_, _, err := htmljs.Rewrite(name, doc, config.ScriptTypes, func(_, _ int, code string) (string, error) {
		out = append(out, code)
		return code, nil
	})
	if err != nil {
		return nil
	}
	return out
}

func (r *Runner) write(j job, res *models.Result) error {
	o := r.options
	switch {
	case o.Check:
		return nil
	case o.InPlace && j.input.Kind == models.InputFile:
		if res.Status == models.StatusUnchanged {
			return nil
		}
		res.Output = j.input.Location
	case o.OutDir != "":
		rel := j.rel
		if j.input.Kind != models.InputFile {
			// the language of a download is known once it is read
			rel = remoteName(&res.Input)
		}
		res.Output = filepath.Join(o.OutDir, rel)
		if err := os.MkdirAll(filepath.Dir(res.Output), 0o755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	default:
		return nil
	}
	if err := os.WriteFile(res.Output, []byte(res.Code), 0o644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

// emit prints a result: the lowered code when it goes to stdout, the
// report line otherwise.
func (r *Runner) emit(res *models.Result) {
	o := r.options
	switch {
	case o.Inspect:
		if res.Status != models.StatusFailed && res.Code != "" {
			fmt.Fprintln(r.stdout, res.Code)
		}
	case o.Check || res.Output != "" || res.Status == models.StatusFailed:
		fmt.Fprintln(r.stdout, output.Format(res, o.Format, r.color))
	case o.InPlace && res.Input.Kind == models.InputFile:
		// unchanged file
		fmt.Fprintln(r.stdout, output.Format(res, o.Format, r.color))
	default:
		fmt.Fprint(r.stdout, res.Code)
		if !strings.HasSuffix(res.Code, "\n") {
			fmt.Fprintln(r.stdout)
		}
	}
}
