package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnv(dir, goos string) Env {
	return Env{
		TargetOS:   goos,
		TargetArch: "amd64",
		Environ:    map[string]string{"CSPICE_ROOT": "/opt/cspice"},
		basedir:    dir,
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""), "/proj", testEnv("/proj", "linux"))
	require.NoError(t, err)

	assert.Equal(t, "spice", cfg.Package.Name)
	assert.Equal(t, "src/c", cfg.Native.SourceDir)
	assert.Equal(t, ".c", cfg.Native.Extension)
	assert.Equal(t, []string{"src/includes"}, cfg.Native.IncludeDirs)
	assert.Equal(t, []string{"-Wno-dangling-else"}, cfg.Native.Cflags)
	assert.Equal(t, "libspice.a", cfg.Native.Archive)
	assert.Equal(t, "src/includes/spice.h", cfg.Bindings.Header)
	assert.Equal(t, filepath.Join("spice", "c_spice.go"), cfg.Bindings.Output)
	assert.Equal(t, DefaultIgnoredMacros, cfg.Bindings.IgnoreMacros)
	assert.Equal(t, filepath.Join("/proj", "build"), cfg.OutDir())
	assert.Equal(t, filepath.Join("/proj", "src", "c"), cfg.SourceDir())
}

func TestParseConditionalSections(t *testing.T) {
	const text = `
[package]
name = "kernel"

[native]
source_dir = "{{ environ.CSPICE_ROOT }}/src/cspice"
cflags = ["-Wno-dangling-else"]
defines = { NON_UNIX_STDIO = "" }

[native.'target_os == "linux"']
cflags = ["-fPIC"]
defines = { UNIX = "1" }

[native.'target_os == "windows"']
cflags = ["-DMSDOS"]

[bindings]
ignore_macros = ["FP_NAN"]
links = ["m"]
`
	cfg, err := Parse(strings.NewReader(text), "/proj", testEnv("/proj", "linux"))
	require.NoError(t, err)

	assert.Equal(t, "/opt/cspice/src/cspice", cfg.Native.SourceDir)
	assert.Equal(t, "/opt/cspice/src/cspice", cfg.SourceDir())
	assert.Equal(t, []string{"-Wno-dangling-else", "-fPIC"}, cfg.Native.Cflags)
	assert.Equal(t, []string{"-Wno-dangling-else", "-fPIC", "-DNON_UNIX_STDIO", "-DUNIX=1"}, cfg.Cflags())
	assert.Equal(t, "libkernel.a", cfg.Native.Archive)
	assert.Equal(t, []string{"FP_NAN"}, cfg.Bindings.IgnoreMacros)
	assert.Equal(t, []string{"m"}, cfg.Bindings.Links)
}

func TestParseConditionalBindings(t *testing.T) {
	const text = `
[bindings]
links = ["m"]

[bindings.'target_os == "darwin"']
build_tags = "cspice && darwin"

[bindings.'target_arch == "amd64"']
links = ["pthread"]
`
	cfg, err := Parse(strings.NewReader(text), "/proj", testEnv("/proj", "darwin"))
	require.NoError(t, err)
	assert.Equal(t, "cspice && darwin", cfg.Bindings.BuildTags)
	assert.Equal(t, []string{"m", "pthread"}, cfg.Bindings.Links)

	cfg, err = Parse(strings.NewReader(text), "/proj", testEnv("/proj", "linux"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Bindings.BuildTags)
}

func TestParseConditionsMergeInOrder(t *testing.T) {
	const text = `
[native.'target_os == "linux"']
cflags = ["-b"]

[native.'target_arch == "amd64"']
cflags = ["-a"]
`
	for range 5 {
		cfg, err := Parse(strings.NewReader(text), "/proj", testEnv("/proj", "linux"))
		require.NoError(t, err)
		assert.Equal(t, []string{"-a", "-b"}, cfg.Native.Cflags)
	}
}

func TestParseRejectsNonBoolCondition(t *testing.T) {
	_, err := Parse(strings.NewReader("[native.'target_os']\ncflags = [\"-x\"]\n"), "/proj", testEnv("/proj", "linux"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not bool")
}

func TestParseBadInterpolation(t *testing.T) {
	_, err := Parse(strings.NewReader("[native]\nsource_dir = \"{{ 1 + }}\"\n"), "/proj", testEnv("/proj", "linux"))
	require.Error(t, err)
}

func TestParseExplicitEmptyIgnoreList(t *testing.T) {
	cfg, err := Parse(strings.NewReader("[bindings]\nignore_macros = []\n"), "/proj", testEnv("/proj", "linux"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Bindings.IgnoreMacros)
}

func TestParseRejectsNegativeJobs(t *testing.T) {
	_, err := Parse(strings.NewReader("[build]\njobs = -1\n"), "/proj", testEnv("/proj", "linux"))
	require.Error(t, err)
}

func TestParseSyntaxError(t *testing.T) {
	_, err := Parse(strings.NewReader("[package\nname ="), "/proj", testEnv("/proj", "linux"))
	require.Error(t, err)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Dir())
	assert.Equal(t, "libspice.a", cfg.Native.Archive)
}

func TestDigestChangesWithConfig(t *testing.T) {
	env := testEnv("/proj", "linux")
	a, err := Parse(strings.NewReader(""), "/proj", env)
	require.NoError(t, err)
	b, err := Parse(strings.NewReader("[bindings]\nignore_macros = [\"FP_NAN\"]\n"), "/proj", env)
	require.NoError(t, err)

	assert.Equal(t, a.Digest(), a.Digest())
	assert.NotEqual(t, a.Digest(), b.Digest())
}

func TestEnvPatch(t *testing.T) {
	dir := t.TempDir()
	const orig = "int x = 1;\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zzerror.c"), []byte(orig), 0o644))

	dmp := diffmatchpatch.New()
	patch := dmp.PatchToText(dmp.PatchMake(orig, "int x = 2;\n"))

	env := testEnv(dir, "linux")
	assert.True(t, env.Patch("zzerror.c", patch))
	assert.False(t, env.Patch("zzerror.c", patch), "already applied")

	data, err := os.ReadFile(filepath.Join(dir, "zzerror.c"))
	require.NoError(t, err)
	assert.Equal(t, "int x = 2;\n", string(data))

	assert.Panics(t, func() { env.Patch("../outside.c", patch) })
}

func TestBuildScript(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "present.c"), nil, 0o644))
	env := testEnv(dir, "linux")

	cfg, err := Parse(strings.NewReader(`[package]
build = 'Exists("present.c") && target_os == "linux"'
`), dir, env)
	require.NoError(t, err)
	assert.NoError(t, cfg.RunBuildScript(env))

	cfg, err = Parse(strings.NewReader(`[package]
build = 'Exists("missing.c")'
`), dir, env)
	require.NoError(t, err)
	assert.Error(t, cfg.RunBuildScript(env))
}
