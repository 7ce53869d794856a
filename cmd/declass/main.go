package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/lcalzada-xor/declass/pkg/config"
	"github.com/lcalzada-xor/declass/pkg/logger"
	"github.com/lcalzada-xor/declass/pkg/lower"
	"github.com/lcalzada-xor/declass/pkg/runner"
)

const (
	exitOK       = 0
	exitFailures = 1
	exitUsage    = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// long maps short flag names to the long name used by the config file
// precedence rules.
var long = map[string]string{
	"c": "concurrency",
	"t": "timeout",
	"f": "format",
	"i": "inheritance",
	"V": "verify",
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts := runner.DefaultOptions()
	fs := flag.NewFlagSet("declass", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		inheritance  string
		noFieldTypes bool
		configPath   string
		showVersion  bool
		exclude      listFlags
	)

	// Define flags with both short and long names
	fs.StringVar(&opts.OutDir, "o", "", "Output directory")
	fs.StringVar(&opts.OutDir, "out", "", "Output directory")

	fs.BoolVar(&opts.InPlace, "w", false, "Rewrite files in place")
	fs.BoolVar(&opts.InPlace, "write", false, "Rewrite files in place")

	fs.BoolVar(&opts.Check, "check", false, "Lower and report without writing")
	fs.BoolVar(&opts.Inspect, "inspect", false, "List classes and whether they can be lowered")

	fs.StringVar(&opts.Format, "f", config.DefaultFormat, "Report format: text, human, json")
	fs.StringVar(&opts.Format, "format", config.DefaultFormat, "Report format: text, human, json")

	fs.Var(&exclude, "e", "Exclude pattern for directory walks")
	fs.Var(&exclude, "exclude", "Exclude pattern for directory walks")

	fs.StringVar(&inheritance, "i", config.DefaultInheritance, "Classes with a superclass: skip, approximate")
	fs.StringVar(&inheritance, "inheritance", config.DefaultInheritance, "Classes with a superclass: skip, approximate")

	fs.BoolVar(&opts.Lower.KeepDiscarded, "keep-discarded", false, "Keep constructor calls whose instance is discarded")
	fs.BoolVar(&opts.Lower.StickyTaint, "sticky-taint", false, "Never forget an instance after reassignment")
	fs.BoolVar(&noFieldTypes, "no-field-typing", false, "Do not follow instances stored in fields")

	fs.BoolVar(&opts.Verify, "V", false, "Run every unit before and after lowering and compare")
	fs.BoolVar(&opts.Verify, "verify", false, "Run every unit before and after lowering and compare")
	fs.DurationVar(&opts.VerifyTimeout, "verify-timeout", config.DefaultVerifyTimeout, "Time limit of one verification run")

	fs.StringVar(&opts.Cache, "cache", "", "Cache database path")
	fs.StringVar(&configPath, "config", "", "Config file (default: declass.yaml in the working directory or a parent)")

	fs.IntVar(&opts.Concurrency, "c", config.DefaultConcurrency, "Concurrency level")
	fs.IntVar(&opts.Concurrency, "concurrency", config.DefaultConcurrency, "Concurrency level")

	fs.DurationVar(&opts.Timeout, "t", config.DefaultTimeout, "Download timeout")
	fs.DurationVar(&opts.Timeout, "timeout", config.DefaultTimeout, "Download timeout")

	fs.StringVar(&opts.Proxy, "x", "", "Proxy URL (e.g. http://127.0.0.1:8080)")
	fs.StringVar(&opts.Proxy, "proxy", "", "Proxy URL (e.g. http://127.0.0.1:8080)")
	fs.Float64Var(&opts.RateLimit, "rate-limit", 0, "Downloads per second (0 for unlimited)")

	fs.BoolVar(&opts.Verbose, "v", false, "Verbose output")
	fs.BoolVar(&opts.Verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&opts.VeryVerbose, "vv", false, "Debug output")
	fs.BoolVar(&opts.Quiet, "q", false, "Only report errors")
	fs.BoolVar(&opts.Quiet, "quiet", false, "Only report errors")

	fs.BoolVar(&showVersion, "version", false, "Print the version")

	fs.Usage = func() { usage(stderr) }

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return exitOK
		}
		return exitUsage
	}
	if showVersion {
		fmt.Fprintf(stdout, "declass %s\n", config.Version)
		return exitOK
	}

	log := logger.NewWriter(0, stderr)

	policy, err := lower.ParseInheritance(inheritance)
	if err != nil {
		log.Error("%v", err)
		return exitUsage
	}
	opts.Lower.Inheritance = policy
	opts.Lower.FieldTyping = !noFieldTypes
	opts.Exclude = exclude
	opts.Inputs = fs.Args()

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		name := f.Name
		if l, ok := long[name]; ok {
			name = l
		}
		set[name] = true
	})

	if configPath == "" {
		configPath, err = config.Find(".")
		if err != nil {
			log.Error("%v", err)
			return exitUsage
		}
	}
	if configPath != "" {
		file, err := config.Load(configPath)
		if err != nil {
			log.Error("%v", err)
			return exitUsage
		}
		opts.Apply(file, set)
	}

	r := runner.NewRunner(opts)
	r.SetIO(stdin, stdout, stderr)
	stats, err := r.Run(context.Background())
	if err != nil {
		log.Error("%v", err)
		return exitUsage
	}
	if stats.Failed > 0 || stats.Mismatched > 0 {
		return exitFailures
	}
	return exitOK
}

func usage(w io.Writer) {
	banner := "\n" +
		"   \x1b[38;5;93m┌┬┐┌─┐┌─┐┬  ┌─┐┌─┐┌─┐\x1b[0m\n" +
		"   \x1b[38;5;129m ││├┤ │  │  ├─┤└─┐└─┐\x1b[0m\n" +
		"   \x1b[38;5;141m─┴┘└─┘└─┘┴─┘┴ ┴└─┘└─┘\x1b[0m\n" +
		"   \x1b[38;5;141m" + config.Version + "\x1b[0m | \x1b[38;5;141m" + config.Author + "\x1b[0m\n"
	if !logger.IsTerminal(w) {
		banner = "\ndeclass " + config.Version + "\n"
	}
	fmt.Fprint(w, banner)

	h := `
USAGE:
  declass [flags] [file|dir|url|-]...

  Without arguments, input names are read from stdin, one per line.

OUTPUT:
  -o,  --out dir             Write lowered files under dir
  -w,  --write               Rewrite files in place
       --check               Lower and report without writing
       --inspect             List classes and whether they can be lowered
  -f,  --format string       Report format: text, human, json (default "text")
  -e,  --exclude pattern     Skip matching entries when walking directories

LOWERING:
  -i,  --inheritance string  Classes with a superclass: skip, approximate (default "skip")
       --keep-discarded      Keep constructor calls whose instance is discarded
       --sticky-taint        Never forget an instance after reassignment
       --no-field-typing     Do not follow instances stored in fields

VERIFICATION:
  -V,  --verify              Run every unit before and after lowering and compare
       --verify-timeout dur  Time limit of one verification run (default 5s)

INPUTS:
  -c,  --concurrency int     Number of concurrent workers (default 8)
  -t,  --timeout duration    Download timeout (default 10s)
  -x,  --proxy string        Proxy URL (e.g. http://127.0.0.1:8080)
       --rate-limit float    Downloads per second (default unlimited)
       --cache path          Cache lowered units in a database
       --config path         Config file (default: nearest declass.yaml)

LOGGING:
  -v,  --verbose             Verbose output
       --vv                  Debug output
  -q,  --quiet               Only report errors
       --version             Print the version

EXAMPLES:
  declass app.js > app.lowered.js
  declass -o dist/ src/
  declass --check --verify -f human src/
  cat urls.txt | declass -o mirror/ -c 4
`
	fmt.Fprint(w, h)
}

// listFlags collects a repeatable flag
type listFlags []string

func (l *listFlags) String() string {
	return fmt.Sprint(*l)
}

func (l *listFlags) Set(value string) error {
	*l = append(*l, value)
	return nil
}
