// Package toolchain compiles native sources and bundles the objects into a
// static archive. The C compiler and archiver are external programs; the
// Toolchain interface is the boundary to them.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// CompileJob is one translation unit.
type CompileJob struct {
	Src    string
	Obj    string
	Cflags []string
}

// Toolchain turns sources into objects and objects into an archive. Output
// is the tool's combined stdout and stderr, returned on success too so
// warnings can be shown.
type Toolchain interface {
	Compile(ctx context.Context, job CompileJob) (output []byte, err error)
	Archive(ctx context.Context, out string, objs []string) (output []byte, err error)
}

var (
	errNoCompiler = errors.New("no C compiler found (set $CC)")
	errNoArchiver = errors.New("no archiver found (set $AR)")
)

// Exec drives a gcc/clang-style compiler and an ar-style archiver.
type Exec struct {
	CC string
	AR string
}

// NewExec finds a compiler and an archiver on the system.
func NewExec() (*Exec, error) {
	cc := FindCompiler()
	if cc == "" {
		return nil, errNoCompiler
	}
	ar := FindArchiver()
	if ar == "" {
		return nil, errNoArchiver
	}
	return &Exec{CC: cc, AR: ar}, nil
}

func (e *Exec) Compile(ctx context.Context, job CompileJob) ([]byte, error) {
	args := make([]string, 0, len(job.Cflags)+4)
	args = append(args, job.Cflags...)
	args = append(args, "-c", job.Src, "-o", job.Obj)
	return run(ctx, e.CC, args)
}

func (e *Exec) Archive(ctx context.Context, out string, objs []string) ([]byte, error) {
	args := make([]string, 0, len(objs)+2)
	args = append(args, "rcs", out)
	args = append(args, objs...)
	return run(ctx, e.AR, args)
}

func run(ctx context.Context, name string, args []string) ([]byte, error) {
	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}

// Error is a failed compile or archive step. Output holds the tool's
// diagnostics exactly as it printed them.
type Error struct {
	Op     string // "compile" or "archive"
	Path   string
	Output []byte
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
