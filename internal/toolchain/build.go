package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/qobs-build/spicegen/internal/msg"
	"golang.org/x/sync/errgroup"
)

// Options is the compilation configuration for one archive.
type Options struct {
	IncludeDirs []string
	Cflags      []string
	// OutDir receives obj/ and the archive.
	OutDir  string
	Archive string
	// Jobs bounds concurrent compiler processes; zero means one per CPU.
	Jobs int
	// Log gets one "CC file" line per translation unit. When Progress is
	// set, a progress bar is drawn on it instead.
	Log      io.Writer
	Progress bool
}

// Result is a successfully published archive.
type Result struct {
	Path    string
	Objects []string
	// Warnings holds compiler output for units that compiled successfully.
	Warnings map[string][]byte
}

func (o Options) cflags() []string {
	flags := make([]string, 0, len(o.IncludeDirs)+len(o.Cflags))
	for _, dir := range o.IncludeDirs {
		flags = append(flags, "-I"+dir)
	}
	return append(flags, o.Cflags...)
}

// objectNames maps every source to a unique object file under objDir.
// Sources from different directories may share a base name.
func objectNames(objDir string, sources []string) []string {
	objs := make([]string, len(sources))
	used := make(map[string]bool, len(sources))
	for i, src := range sources {
		base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
		name := base
		for n := 1; used[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		used[name] = true
		objs[i] = filepath.Join(objDir, name+".o")
	}
	return objs
}

// Build compiles every source and archives the objects. Any failure leaves no
// archive at the target path, including one from an earlier run.
func Build(ctx context.Context, tc Toolchain, sources []string, opts Options) (*Result, error) {
	if opts.Archive == "" {
		return nil, errors.New("archive name is empty")
	}
	out := filepath.Join(opts.OutDir, opts.Archive)

	if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale archive: %w", err)
	}

	objDir := filepath.Join(opts.OutDir, "obj")
	if err := os.MkdirAll(objDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create object directory: %w", err)
	}

	objs := objectNames(objDir, sources)
	cflags := opts.cflags()

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	var bar *msg.ProgressBar
	if opts.Progress && opts.Log != nil {
		bar = msg.NewProgressBar(int64(len(sources)), 4, opts.Log)
	}

	var mu sync.Mutex
	warnings := make(map[string][]byte)

	// gctx is cancelled once Wait returns; the archive step uses ctx
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(jobs)
	for i, src := range sources {
		job := CompileJob{Src: src, Obj: objs[i], Cflags: cflags}
		eg.Go(func() error {
			output, err := tc.Compile(gctx, job)
			if err != nil {
				return &Error{Op: "compile", Path: job.Src, Output: output, Err: err}
			}

			mu.Lock()
			defer mu.Unlock()
			if len(output) > 0 {
				warnings[job.Src] = output
			}
			if bar != nil {
				bar.Add(1)
			} else if opts.Log != nil {
				fmt.Fprintf(opts.Log, "CC %s\n", job.Src)
			}
			return nil
		})
	}
	err := eg.Wait()
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return nil, err
	}

	// archive under a temporary name so a failed ar never leaves a
	// half-written archive where the linker looks for it
	tmp := out + ".tmp"
	os.Remove(tmp)
	if opts.Log != nil {
		fmt.Fprintf(opts.Log, "AR %s\n", out)
	}
	output, err := tc.Archive(ctx, tmp, objs)
	if err != nil {
		os.Remove(tmp)
		return nil, &Error{Op: "archive", Path: out, Output: output, Err: err}
	}
	if len(output) > 0 {
		warnings[out] = output
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to publish archive: %w", err)
	}

	return &Result{Path: out, Objects: objs, Warnings: warnings}, nil
}
