package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lcalzada-xor/declass/pkg/lower"
)

// File is the content of a declass.yaml file. Zero values mean "not set";
// command line flags override what the file sets.
type File struct {
	// Lowering
	Inheritance   string `yaml:"inheritance,omitempty"`
	KeepDiscarded bool   `yaml:"keepDiscarded,omitempty"`
	StickyTaint   bool   `yaml:"stickyTaint,omitempty"`
	// FieldTyping is a pointer so that an explicit false can be told
	// apart from a missing key.
	FieldTyping *bool `yaml:"fieldTyping,omitempty"`

	// Run
	Concurrency   int           `yaml:"concurrency,omitempty"`
	Timeout       time.Duration `yaml:"timeout,omitempty"`
	Verify        bool          `yaml:"verify,omitempty"`
	VerifyTimeout time.Duration `yaml:"verifyTimeout,omitempty"`
	Cache         string        `yaml:"cache,omitempty"`
	Exclude       []string      `yaml:"exclude,omitempty"`

	// Output
	Format string `yaml:"format,omitempty"`
}

// Load reads and parses a config file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse parses config content. The path is used only in error messages.
// Unknown keys are rejected.
func Parse(data []byte, path string) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := f.validate(path); err != nil {
		return nil, err
	}
	f.setDefaults()
	return &f, nil
}

// Find looks for declass.yaml in dir and its parents. It returns an empty
// path when there is none.
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (f *File) validate(path string) error {
	if _, err := lower.ParseInheritance(f.Inheritance); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if f.Concurrency < 0 {
		return fmt.Errorf("%s: concurrency must be positive, got %d", path, f.Concurrency)
	}
	if f.Timeout < 0 || f.VerifyTimeout < 0 {
		return fmt.Errorf("%s: timeouts must be positive", path)
	}
	if f.Format != "" && !slices.Contains(Formats, f.Format) {
		return fmt.Errorf("%s: unknown format %q", path, f.Format)
	}
	for _, pattern := range f.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("%s: exclude pattern %q: %w", path, pattern, err)
		}
	}
	return nil
}

func (f *File) setDefaults() {
	if f.Inheritance == "" {
		f.Inheritance = DefaultInheritance
	}
	if f.FieldTyping == nil {
		on := true
		f.FieldTyping = &on
	}
}

// LowerOptions converts the lowering section.
func (f *File) LowerOptions() lower.Options {
	opts := lower.DefaultOptions()
	if inheritance, err := lower.ParseInheritance(f.Inheritance); err == nil {
		opts.Inheritance = inheritance
	}
	opts.KeepDiscarded = f.KeepDiscarded
	opts.StickyTaint = f.StickyTaint
	if f.FieldTyping != nil {
		opts.FieldTyping = *f.FieldTyping
	}
	return opts
}
