package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/lcalzada-xor/declass/pkg/config"
	"github.com/lcalzada-xor/declass/pkg/models"
)

// job is one input with the path its output is written to, relative to
// the output directory.
type job struct {
	index int
	input models.Input
	rel   string
}

// collect expands the command line inputs. Directories are walked for
// script and document files.
func (r *Runner) collect(ctx context.Context, args []string) ([]job, error) {
	var jobs []job
	add := func(in *models.Input, rel string) {
		jobs = append(jobs, job{index: len(jobs), input: *in, rel: rel})
	}

	for _, arg := range args {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		in, err := models.ParseInput(arg, config.DocumentExtensions)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", arg, err)
		}
		if in.Kind != models.InputFile {
			add(in, remoteName(in))
			continue
		}

		info, err := os.Stat(in.Location)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", arg, err)
		}
		if !info.IsDir() {
			add(in, filepath.Base(in.Location))
			continue
		}

		root := in.Location
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, _ := filepath.Rel(root, p)
			if r.excluded(rel, d.Name()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !supported(p) {
				return nil
			}
			file, err := models.ParseInput(p, config.DocumentExtensions)
			if err != nil {
				return err
			}
			add(file, rel)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}
	return jobs, nil
}

// readNames reads input names from r, one per line, skipping blanks and
// # comments.
func readNames(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	return names, sc.Err()
}

// excluded matches a walked entry against the exclude patterns, by base
// name and by path relative to the walked directory.
func (r *Runner) excluded(rel, name string) bool {
	if rel == "." {
		return false
	}
	for _, pattern := range r.options.Exclude {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, filepath.ToSlash(rel)); ok {
			return true
		}
	}
	return false
}

func supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return slices.Contains(config.ScriptExtensions, ext) || slices.Contains(config.DocumentExtensions, ext)
}

func remoteName(in *models.Input) string {
	if in.Kind == models.InputStdin {
		return "stdin.js"
	}
	name := urlBase(in.Location)
	if !strings.Contains(name, ".") {
		if in.Language == models.LanguageHTML {
			return "index.html"
		}
		return "index.js"
	}
	return name
}

// urlBase returns the last segment of the path of a URL.
func urlBase(location string) string {
	u, err := url.Parse(location)
	if err != nil || u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return ""
	}
	return path.Base(u.Path)
}
