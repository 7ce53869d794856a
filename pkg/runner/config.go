package runner

import (
	"time"

	"github.com/lcalzada-xor/declass/pkg/config"
	"github.com/lcalzada-xor/declass/pkg/lower"
)

// Options holds all configuration options for the runner
type Options struct {
	// Inputs are files, directories, URLs or "-" for standard input. When
	// empty, input names are read line by line from standard input.
	Inputs  []string
	Exclude []string

	// Lowering
	Lower lower.Options

	// Output
	OutDir  string
	InPlace bool
	// Check lowers without writing anything but the report.
	Check   bool
	Inspect bool
	Format  string

	// Verification
	Verify        bool
	VerifyTimeout time.Duration

	// Cache is the path of the cache database, empty to disable it.
	Cache string

	// Remote inputs
	Concurrency int
	Timeout     time.Duration
	Proxy       string
	RateLimit   float64

	Verbose     bool
	VeryVerbose bool
	Quiet       bool
}

// DefaultOptions returns a new Options struct with default values
func DefaultOptions() *Options {
	return &Options{
		Lower:         lower.DefaultOptions(),
		Format:        config.DefaultFormat,
		VerifyTimeout: config.DefaultVerifyTimeout,
		Concurrency:   config.DefaultConcurrency,
		Timeout:       config.DefaultTimeout,
	}
}

// Apply fills the options from a config file. Values set on the command
// line win; set lists the flags that were given.
func (o *Options) Apply(f *config.File, set map[string]bool) {
	if !set["inheritance"] {
		o.Lower.Inheritance = f.LowerOptions().Inheritance
	}
	if !set["keep-discarded"] {
		o.Lower.KeepDiscarded = f.KeepDiscarded
	}
	if !set["sticky-taint"] {
		o.Lower.StickyTaint = f.StickyTaint
	}
	if !set["no-field-typing"] && f.FieldTyping != nil {
		o.Lower.FieldTyping = *f.FieldTyping
	}
	if !set["concurrency"] && f.Concurrency > 0 {
		o.Concurrency = f.Concurrency
	}
	if !set["timeout"] && f.Timeout > 0 {
		o.Timeout = f.Timeout
	}
	if !set["verify"] {
		o.Verify = f.Verify
	}
	if !set["verify-timeout"] && f.VerifyTimeout > 0 {
		o.VerifyTimeout = f.VerifyTimeout
	}
	if !set["cache"] && f.Cache != "" {
		o.Cache = f.Cache
	}
	if !set["format"] && f.Format != "" {
		o.Format = f.Format
	}
	o.Exclude = append(o.Exclude, f.Exclude...)
}

func (o *Options) level() int {
	switch {
	case o.Quiet:
		return -1
	case o.VeryVerbose:
		return 2
	case o.Verbose:
		return 1
	}
	return 0
}
