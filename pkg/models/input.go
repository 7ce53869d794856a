package models

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

type InputKind string

const (
	InputFile  InputKind = "file"
	InputURL   InputKind = "url"
	InputStdin InputKind = "stdin"
)

type Language string

const (
	LanguageJS   Language = "js"
	LanguageHTML Language = "html"
)

// Input is one unit of work: a file, a URL or standard input.
type Input struct {
	Kind     InputKind `json:"kind"`
	Location string    `json:"location"`
	Language Language  `json:"language"`
}

// Validate checks that the input can be read.
func (in *Input) Validate() error {
	switch in.Kind {
	case InputFile:
		if in.Location == "" {
			return fmt.Errorf("file path is required")
		}
	case InputURL:
		u, err := url.Parse(in.Location)
		if err != nil {
			return fmt.Errorf("invalid URL: %v", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("URL has no host")
		}
	case InputStdin:
	default:
		return fmt.Errorf("invalid input kind: %s", in.Kind)
	}

	switch in.Language {
	case LanguageJS, LanguageHTML:
	default:
		return fmt.Errorf("invalid language: %s", in.Language)
	}
	return nil
}

// ParseInput parses a command line argument:
// - "-": standard input, read as JavaScript
// - "http://host/app.js": a URL
// - anything else: a file path
//
// HTML is recognized by extension; htmlExts lists the extensions.
func ParseInput(arg string, htmlExts []string) (*Input, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, fmt.Errorf("invalid input format")
	}

	in := &Input{Kind: InputFile, Location: arg, Language: LanguageJS}
	switch {
	case arg == "-":
		in.Kind = InputStdin
	case strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://"):
		in.Kind = InputURL
	}

	path := arg
	if in.Kind == InputURL {
		if u, err := url.Parse(arg); err == nil {
			path = u.Path
		}
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, h := range htmlExts {
		if ext == h {
			in.Language = LanguageHTML
		}
	}

	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}
