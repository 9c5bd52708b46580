// Package pipeline runs the build stages in order: directive emission,
// source discovery, the package build script, native compilation and
// interface generation.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/qobs-build/spicegen/internal/bindgen"
	"github.com/qobs-build/spicegen/internal/config"
	"github.com/qobs-build/spicegen/internal/discover"
	"github.com/qobs-build/spicegen/internal/msg"
	"github.com/qobs-build/spicegen/internal/rerun"
	"github.com/qobs-build/spicegen/internal/toolchain"
)

type Stage string

const (
	StageDirectives Stage = "directives"
	StageDiscover   Stage = "discover"
	StageScript     Stage = "build script"
	StageCompile    Stage = "compile"
	StageGenerate   Stage = "generate"
	StageState      Stage = "state"
)

// StageError is a failed stage. Later stages did not run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func fail(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Options controls one run. Zero values pick the real toolchain and parser.
type Options struct {
	Toolchain toolchain.Toolchain
	Parser    bindgen.Parser
	// Directives receives the rerun-if-changed lines.
	Directives io.Writer
	// Log receives per-file compiler lines.
	Log      io.Writer
	Progress bool
	// Force ignores the saved state and rebuilds.
	Force bool
	// SkipNative and SkipBindings leave out a stage. Build state is only
	// saved by runs that do both.
	SkipNative   bool
	SkipBindings bool
}

type Result struct {
	BuildID  string
	Sources  *discover.SourceSet
	Archive  *toolchain.Result
	Artifact *bindgen.Artifact
	// UpToDate is set when the saved state matched and nothing was rebuilt.
	UpToDate bool
	// UnusedSuppressions are ignored macro names that no header defines.
	UnusedSuppressions []string
}

// Directives lists the inputs whose change makes the outputs stale. The
// root header is listed on its own since it may live outside the include
// directories.
func Directives(cfg *config.Config) rerun.Directives {
	trees := []string{cfg.SourceDir()}
	trees = append(trees, cfg.IncludeDirs()...)
	if cfg.Bindings.Header != "" {
		trees = append(trees, cfg.Abs(cfg.Bindings.Header))
	}
	trees = append(trees, cfg.Abs(config.Filename))
	return rerun.Directives{Trees: trees}
}

// inputs adds the discovered sources, extra_sources included, to the files
// under the watched trees.
func inputs(files []string, set *discover.SourceSet) []string {
	all := append(slices.Clone(files), set.Files...)
	slices.Sort(all)
	return slices.Compact(all)
}

// libName turns "libspice.a" into "spice" for -l.
func libName(archive string) string {
	return strings.TrimSuffix(strings.TrimPrefix(archive, "lib"), ".a")
}

// Run performs one build. A discovery failure ends the run before anything
// is written.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	res := &Result{BuildID: uuid.NewString()}
	full := !opts.SkipNative && !opts.SkipBindings

	dirs := Directives(cfg)
	if opts.Directives != nil {
		if err := dirs.Emit(opts.Directives); err != nil {
			return nil, fail(StageDirectives, err)
		}
	}

	set, err := discover.ScanDir(cfg.SourceDir(), cfg.Native.Extension)
	if err != nil {
		return nil, fail(StageDiscover, err)
	}
	if err := set.Glob(cfg.Dir(), cfg.Native.ExtraSources); err != nil {
		return nil, fail(StageDiscover, err)
	}
	for _, s := range set.Skipped {
		msg.Warn("skipping unreadable source entry %s", s)
	}
	res.Sources = set

	if err := cfg.RunBuildScript(config.NewEnv(cfg.Dir())); err != nil {
		return nil, fail(StageScript, err)
	}

	outDir := cfg.OutDir()
	files, err := dirs.Files()
	if err != nil {
		return nil, fail(StageDirectives, err)
	}
	files = inputs(files, set)
	fingerprint, err := rerun.Fingerprint(files, []byte(cfg.Digest()))
	if err != nil {
		return nil, fail(StageDirectives, err)
	}
	if full && !opts.Force {
		state, err := rerun.LoadState(outDir)
		if err != nil {
			msg.Warn("failed to load build state: %v", err)
		}
		if state.UpToDate(fingerprint) {
			res.BuildID = state.BuildID
			res.UpToDate = true
			return res, nil
		}
	}

	if !opts.SkipNative {
		archive, err := compile(ctx, cfg, set, opts)
		if err != nil {
			return nil, fail(StageCompile, err)
		}
		res.Archive = archive
	}

	if !opts.SkipBindings {
		art, err := generate(ctx, cfg, opts)
		if err != nil {
			return nil, fail(StageGenerate, err)
		}
		res.Artifact = art
		res.UnusedSuppressions = art.UnusedSuppressions
		if err := rerun.WriteDepfile(art.Path+".d", art.Path, files); err != nil {
			return nil, fail(StageDirectives, err)
		}
	}

	if full {
		state := &rerun.State{
			Fingerprint: fingerprint,
			BuildID:     res.BuildID,
			Archive:     res.Archive.Path,
			Artifact:    res.Artifact.Path,
			Sources:     set.Len(),
		}
		if err := state.Save(outDir); err != nil {
			return nil, fail(StageState, err)
		}
	}
	return res, nil
}

func compile(ctx context.Context, cfg *config.Config, set *discover.SourceSet, opts Options) (*toolchain.Result, error) {
	tc := opts.Toolchain
	if tc == nil {
		exec, err := toolchain.NewExec()
		if err != nil {
			return nil, err
		}
		tc = exec
	}

	msg.Step("Compiling", "%d sources into %s", set.Len(), cfg.Native.Archive)
	archive, err := toolchain.Build(ctx, tc, set.Files, toolchain.Options{
		IncludeDirs: cfg.IncludeDirs(),
		Cflags:      cfg.Cflags(),
		OutDir:      cfg.OutDir(),
		Archive:     cfg.Native.Archive,
		Jobs:        cfg.Build.Jobs,
		Log:         opts.Log,
		Progress:    opts.Progress,
	})
	if err != nil {
		return nil, err
	}
	for _, src := range slices.Sorted(maps.Keys(archive.Warnings)) {
		msg.Warn("%s", src)
		msg.Diagnostics(archive.Warnings[src])
	}
	return archive, nil
}

func generate(ctx context.Context, cfg *config.Config, opts Options) (*bindgen.Artifact, error) {
	parser := opts.Parser
	if parser == nil {
		parser = bindgen.NewTreeSitter()
	}

	libs := append([]string{libName(cfg.Native.Archive)}, cfg.Bindings.Links...)
	out := cfg.Abs(cfg.Bindings.Output)
	msg.Step("Generating", "%s", out)
	art, err := bindgen.Generate(ctx, parser, bindgen.Options{
		Header:      cfg.Abs(cfg.Bindings.Header),
		IncludeDirs: cfg.IncludeDirs(),
		Filter:      bindgen.NewIgnoreMacros(cfg.Bindings.IgnoreMacros...),
		Package:     cfg.Bindings.Package,
		BuildTags:   cfg.Bindings.BuildTags,
		LibDirs:     []string{cfg.OutDir()},
		Libs:        libs,
		Output:      out,
	})
	if err != nil {
		return nil, err
	}

	for _, d := range art.Diagnostics {
		msg.Warn("%s", d)
	}
	for _, name := range art.UnusedSuppressions {
		msg.Warn("ignored macro %s is not defined by any header under %s", name, cfg.Bindings.Header)
	}
	msg.Info("%d constants, %d types, %d functions (%d declarations skipped)",
		art.Constants, art.Types, art.Functions, len(art.Skipped))
	return art, nil
}

// Clean removes everything a run writes: the build directory, the artifact
// and its depfile.
func Clean(cfg *config.Config) error {
	out := cfg.Abs(cfg.Bindings.Output)
	for _, path := range []string{out, out + ".d"} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return os.RemoveAll(cfg.OutDir())
}
