// Package bindgen derives a cgo interface from the public C headers of the
// native library. A Parser reads the header closure into a Module, and the
// emitter turns the Module into one Go source file.
package bindgen

import (
	"context"
	"errors"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
)

// ErrConflict marks two definitions of one name that cannot both be
// emitted.
var ErrConflict = errors.New("conflicting definitions")

// Error is a failed generation. Line is zero when the failure has no
// position.
type Error struct {
	Op   string // "parse", "generate", "format" or "write"
	Path string
	Line int
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Path == "":
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("%s %s:%d: %v", e.Op, e.Path, e.Line, e.Err)
	default:
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Options describes one artifact.
type Options struct {
	// Header is the root header. Everything it includes with quotes is part
	// of the interface.
	Header      string
	IncludeDirs []string
	Filter      MacroFilter
	// Package is the Go package clause of the artifact.
	Package string
	// BuildTags becomes a //go:build line when set.
	BuildTags string
	// LibDirs and Libs become #cgo LDFLAGS. Directories are written relative
	// to the artifact.
	LibDirs []string
	Libs    []string
	Output  string
}

// Artifact describes a written interface file.
type Artifact struct {
	Path      string
	Module    *Module
	Constants int
	Types     int
	Functions int
	// Skipped lists declarations that were parsed but not emitted.
	Skipped []Skip
	// UnusedSuppressions are filter names that matched no macro. Only
	// filters with a Names method report them.
	UnusedSuppressions []string
	Diagnostics        []string
}

// Generate parses opts.Header with p and writes the artifact to
// opts.Output. On failure nothing is written and an existing artifact is
// left as it was.
func Generate(ctx context.Context, p Parser, opts Options) (*Artifact, error) {
	if opts.Output == "" {
		return nil, &Error{Op: "generate", Err: errors.New("no output path")}
	}
	if opts.Filter == nil {
		opts.Filter = NewIgnoreMacros()
	}

	mod, err := p.Parse(ctx, ParseRequest{
		Header:      opts.Header,
		IncludeDirs: opts.IncludeDirs,
		Filter:      opts.Filter,
	})
	if err != nil {
		var berr *Error
		if errors.As(err, &berr) {
			return nil, err
		}
		return nil, &Error{Op: "parse", Path: opts.Header, Err: err}
	}

	src, art, err := Render(mod, opts)
	if err != nil {
		return nil, err
	}
	out, err := format.Source(src)
	if err != nil {
		return nil, &Error{Op: "format", Path: opts.Output, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := writeFile(opts.Output, out); err != nil {
		return nil, &Error{Op: "write", Path: opts.Output, Err: err}
	}
	return art, nil
}

// writeFile replaces path in one rename.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
