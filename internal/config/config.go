package config

import (
	"bufio"
	"cmp"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/pelletier/go-toml/v2"
)

// Filename is the name of the configuration file looked up in a project directory.
const Filename = "Spicegen.toml"

// DefaultIgnoredMacros are defined both by the CSPICE headers and by the
// host's <math.h> and <netinet/in.h>.
var DefaultIgnoredMacros = []string{
	"FP_INFINITE",
	"FP_NAN",
	"FP_NORMAL",
	"FP_SUBNORMAL",
	"FP_ZERO",
	"IPPORT_RESERVED",
}

type Config struct {
	Package  PackageSection  `toml:"package"`
	Native   NativeSection   `toml:"native"`
	Bindings BindingsSection `toml:"bindings"`
	Build    BuildSection    `toml:"build"`
	Upstream UpstreamSection `toml:"upstream"`

	basedir string
}

// PackageSection defines the [package] section
type PackageSection struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Build       string `toml:"build"`
}

// NativeSection defines the [native(.*)] section: what goes into the static archive
type NativeSection struct {
	SourceDir    string            `toml:"source_dir"`
	Extension    string            `toml:"extension"`
	ExtraSources []string          `toml:"extra_sources"`
	IncludeDirs  []string          `toml:"include_dirs"`
	Cflags       []string          `toml:"cflags"`
	Defines      map[string]string `toml:"defines"`
	Archive      string            `toml:"archive"`
}

// BindingsSection defines the [bindings(.*)] section: the generated cgo interface
type BindingsSection struct {
	Header       string   `toml:"header"`
	Output       string   `toml:"output"`
	Package      string   `toml:"package"`
	BuildTags    string   `toml:"build_tags"`
	IgnoreMacros []string `toml:"ignore_macros"`
	Links        []string `toml:"links"`
}

// BuildSection defines the [build] section
type BuildSection struct {
	Dir  string `toml:"dir"`
	Jobs int    `toml:"jobs"`
}

// UpstreamSection defines where `spicegen fetch` gets the native sources from
type UpstreamSection struct {
	Source string `toml:"source"`
	Into   string `toml:"into"`
}

// applyDefaults fills in every field the file left empty
func (cfg *Config) applyDefaults() {
	if cfg.Package.Name == "" {
		cfg.Package.Name = "spice"
	}
	n := &cfg.Native
	if n.SourceDir == "" {
		n.SourceDir = "src/c"
	}
	if n.Extension == "" {
		n.Extension = ".c"
	}
	if n.IncludeDirs == nil {
		n.IncludeDirs = []string{"src/includes"}
	}
	if n.Cflags == nil {
		n.Cflags = []string{"-Wno-dangling-else"}
	}
	if n.Archive == "" {
		n.Archive = "lib" + cfg.Package.Name + ".a"
	}
	b := &cfg.Bindings
	if b.Header == "" {
		b.Header = "src/includes/" + cfg.Package.Name + ".h"
	}
	if b.Output == "" {
		b.Output = filepath.Join(cfg.Package.Name, "c_"+cfg.Package.Name+".go")
	}
	if b.Package == "" {
		b.Package = cfg.Package.Name
	}
	if b.IgnoreMacros == nil {
		b.IgnoreMacros = append([]string(nil), DefaultIgnoredMacros...)
	}
	if cfg.Build.Dir == "" {
		cfg.Build.Dir = "build"
	}
	if cfg.Upstream.Into == "" {
		cfg.Upstream.Into = "src"
	}
}

// Dir returns the directory the configuration was loaded from.
func (cfg *Config) Dir() string { return cfg.basedir }

// Abs resolves a configuration path against the project directory.
func (cfg *Config) Abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(cfg.basedir, path)
}

// SourceDir is the absolute native-source directory.
func (cfg *Config) SourceDir() string { return cfg.Abs(cfg.Native.SourceDir) }

// IncludeDirs are the absolute include search paths.
func (cfg *Config) IncludeDirs() []string {
	dirs := make([]string, len(cfg.Native.IncludeDirs))
	for i, d := range cfg.Native.IncludeDirs {
		dirs[i] = cfg.Abs(d)
	}
	return dirs
}

// OutDir is the absolute build-output directory.
func (cfg *Config) OutDir() string { return cfg.Abs(cfg.Build.Dir) }

// Cflags returns the configured flags followed by one -D per define, sorted
// by name so the command line is stable between runs.
func (cfg *Config) Cflags() []string {
	flags := append([]string(nil), cfg.Native.Cflags...)
	names := make([]string, 0, len(cfg.Native.Defines))
	for name := range cfg.Native.Defines {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if v := cfg.Native.Defines[name]; v != "" {
			flags = append(flags, "-D"+name+"="+v)
		} else {
			flags = append(flags, "-D"+name)
		}
	}
	return flags
}

// Digest is a canonical text form of the configuration, used to detect
// configuration changes between runs.
func (cfg *Config) Digest() string {
	b, err := toml.Marshal(cfg)
	if err != nil {
		// every field is a string, a slice or a map of strings
		panic(err)
	}
	return string(b)
}

// merge lays a matching conditional [native] table over the base one:
// lists are appended, defines are overridden, scalars replaced when set.
func (n *NativeSection) merge(o NativeSection) {
	n.SourceDir = cmp.Or(o.SourceDir, n.SourceDir)
	n.Extension = cmp.Or(o.Extension, n.Extension)
	n.Archive = cmp.Or(o.Archive, n.Archive)
	n.ExtraSources = append(n.ExtraSources, o.ExtraSources...)
	n.IncludeDirs = append(n.IncludeDirs, o.IncludeDirs...)
	n.Cflags = append(n.Cflags, o.Cflags...)
	if len(o.Defines) > 0 && n.Defines == nil {
		n.Defines = make(map[string]string, len(o.Defines))
	}
	maps.Copy(n.Defines, o.Defines)
}

// merge does the same for [bindings].
func (b *BindingsSection) merge(o BindingsSection) {
	b.Header = cmp.Or(o.Header, b.Header)
	b.Output = cmp.Or(o.Output, b.Output)
	b.Package = cmp.Or(o.Package, b.Package)
	b.BuildTags = cmp.Or(o.BuildTags, b.BuildTags)
	b.IgnoreMacros = append(b.IgnoreMacros, o.IgnoreMacros...)
	b.Links = append(b.Links, o.Links...)
}

// decode re-encodes a table from the raw document and decodes it into T.
func decode[T any](table any, name string) (T, error) {
	var out T
	b, err := toml.Marshal(table)
	if err == nil {
		err = toml.Unmarshal(b, &out)
	}
	if err != nil {
		return out, fmt.Errorf("failed to parse [%s]: %w", name, err)
	}
	return out, nil
}

// decodeSection decodes a plain section into dst. A missing section leaves
// dst alone.
func decodeSection[T any](raw map[string]any, name string, dst *T) error {
	table, ok := raw[name]
	if !ok {
		return nil
	}
	v, err := decode[T](table, name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// conditionalSection decodes a section whose sub-tables are keyed by expr
// conditions, like [native.'target_os == "linux"']. Sub-tables named in
// fields are ordinary inline tables of the section. Matching conditions
// are merged in sorted order so the result is the same every run.
func conditionalSection[T any](raw map[string]any, name string, env Env, fields ...string) (T, []T, error) {
	var base T
	table, ok := raw[name]
	if !ok {
		return base, nil, nil
	}
	section, ok := table.(map[string]any)
	if !ok {
		return base, nil, fmt.Errorf("invalid [%s] section: expected a table", name)
	}

	plain := make(map[string]any, len(section))
	conditions := make(map[string]any)
	for key, val := range section {
		if _, sub := val.(map[string]any); sub && !slices.Contains(fields, key) {
			conditions[key] = val
		} else {
			plain[key] = val
		}
	}

	base, err := decode[T](plain, name)
	if err != nil {
		return base, nil, err
	}

	var matched []T
	for _, cond := range slices.Sorted(maps.Keys(conditions)) {
		where := fmt.Sprintf("%s.%q", name, cond)
		result, err := expr.Eval(cond, env)
		if err != nil {
			return base, nil, fmt.Errorf("failed to evaluate [%s]: %w", where, err)
		}
		ok, isBool := result.(bool)
		if !isBool {
			return base, nil, fmt.Errorf("condition [%s] is %T, not bool", where, result)
		}
		if !ok {
			continue
		}
		v, err := decode[T](conditions[cond], where)
		if err != nil {
			return base, nil, err
		}
		matched = append(matched, v)
	}
	return base, matched, nil
}

var interpolation = regexp.MustCompile(`\{\{(.+?)\}\}`)

// interpolate replaces every {{ expr }} in s with its value.
func interpolate(s string, env Env) (string, error) {
	var firstErr error
	out := interpolation.ReplaceAllStringFunc(s, func(m string) string {
		code := strings.TrimSpace(interpolation.FindStringSubmatch(m)[1])
		v, err := expr.Eval(code, env)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to evaluate %q: %w", code, err)
			}
			return m
		}
		return fmt.Sprint(v)
	})
	return out, firstErr
}

// interpolateAll rewrites every string in the decoded document in place.
func interpolateAll(data any, env Env) (any, error) {
	var err error
	switch v := data.(type) {
	case map[string]any:
		for key, val := range v {
			if v[key], err = interpolateAll(val, env); err != nil {
				return nil, err
			}
		}
	case []any:
		for i, item := range v {
			if v[i], err = interpolateAll(item, env); err != nil {
				return nil, err
			}
		}
	case string:
		return interpolate(v, env)
	}
	return data, nil
}

// Parse reads a configuration. Relative paths in it are resolved against basedir.
func Parse(rdr io.Reader, basedir string, env Env) (*Config, error) {
	var rawConfig map[string]any
	dec := toml.NewDecoder(rdr)
	if err := dec.Decode(&rawConfig); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			return nil, errors.New(derr.String())
		}
		return nil, err
	}
	if rawConfig == nil {
		rawConfig = map[string]any{}
	}

	if _, err := interpolateAll(rawConfig, env); err != nil {
		return nil, fmt.Errorf("error processing expressions in config: %w", err)
	}

	cfg := &Config{basedir: basedir}
	if err := decodeSection(rawConfig, "package", &cfg.Package); err != nil {
		return nil, err
	}
	if err := decodeSection(rawConfig, "build", &cfg.Build); err != nil {
		return nil, err
	}
	if err := decodeSection(rawConfig, "upstream", &cfg.Upstream); err != nil {
		return nil, err
	}

	native, nativeConds, err := conditionalSection[NativeSection](rawConfig, "native", env, "defines")
	if err != nil {
		return nil, err
	}
	for _, c := range nativeConds {
		native.merge(c)
	}
	cfg.Native = native

	bindings, bindingConds, err := conditionalSection[BindingsSection](rawConfig, "bindings", env)
	if err != nil {
		return nil, err
	}
	for _, c := range bindingConds {
		bindings.merge(c)
	}
	cfg.Bindings = bindings

	cfg.applyDefaults()
	if cfg.Build.Jobs < 0 {
		return nil, fmt.Errorf("build.jobs must not be negative, got %d", cfg.Build.Jobs)
	}
	return cfg, nil
}

// ParseFile parses a config file from a filepath
func ParseFile(path string, env Env) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(bufio.NewReader(f), filepath.Dir(path), env)
}

// Load finds and parses the configuration in a project directory. A
// directory without a Spicegen.toml gets the default layout.
func Load(dir string) (*Config, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	env := NewEnv(dir)

	path := filepath.Join(dir, Filename)
	cfg, err := ParseFile(path, env)
	if errors.Is(err, os.ErrNotExist) {
		return Parse(strings.NewReader(""), dir, env)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
