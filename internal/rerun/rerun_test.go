package rerun

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range map[string]string{
		"src/c/furnsh_c.c":     "void furnsh_c(void) {}\n",
		"src/c/unload_c.c":     "void unload_c(void) {}\n",
		"src/c/sub/zzhelper.c": "int zz;\n",
		"src/includes/spice.h": "void furnsh_c(void);\n",
		"Spicegen.toml":        "[package]\nname = \"spice\"\n",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestEmit(t *testing.T) {
	d := Directives{Trees: []string{"/p/src/c", "/p/src/includes"}}
	var buf bytes.Buffer
	require.NoError(t, d.Emit(&buf))
	assert.Equal(t, "spicegen:rerun-if-changed=/p/src/c\nspicegen:rerun-if-changed=/p/src/includes\n", buf.String())
}

func TestFilesWalksTrees(t *testing.T) {
	dir := tree(t)
	d := Directives{Trees: []string{
		filepath.Join(dir, "src/includes"),
		filepath.Join(dir, "src/c"),
		filepath.Join(dir, "Spicegen.toml"),
		filepath.Join(dir, "missing"),
	}}

	files, err := d.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "Spicegen.toml"),
		filepath.Join(dir, "src/c/furnsh_c.c"),
		filepath.Join(dir, "src/c/sub/zzhelper.c"),
		filepath.Join(dir, "src/c/unload_c.c"),
		filepath.Join(dir, "src/includes/spice.h"),
	}, files)
}

func TestWriteDepfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c_spice.go.d")
	require.NoError(t, WriteDepfile(path, "spice/c_spice.go", []string{"src/c/a.c", "my dir/b.h"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "spice/c_spice.go: \\\n  src/c/a.c \\\n  my\\ dir/b.h\n", string(data))
}

func TestFingerprint(t *testing.T) {
	dir := tree(t)
	d := Directives{Trees: []string{filepath.Join(dir, "src")}}
	files, err := d.Files()
	require.NoError(t, err)

	a, err := Fingerprint(files, []byte("cfg"))
	require.NoError(t, err)

	reversed := []string{files[3], files[2], files[1], files[0]}
	b, err := Fingerprint(reversed, []byte("cfg"))
	require.NoError(t, err)
	assert.Equal(t, a, b, "order must not matter")

	c, err := Fingerprint(files, []byte("other cfg"))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	require.NoError(t, os.WriteFile(files[0], []byte("changed"), 0o644))
	e, err := Fingerprint(files, []byte("cfg"))
	require.NoError(t, err)
	assert.NotEqual(t, a, e)

	_, err = Fingerprint([]string{filepath.Join(dir, "gone.c")})
	assert.Error(t, err)
}

func TestState(t *testing.T) {
	dir := t.TempDir()

	s, err := LoadState(dir)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.False(t, s.UpToDate("abc"))

	archive := filepath.Join(dir, "libspice.a")
	require.NoError(t, os.WriteFile(archive, []byte("!<arch>\n"), 0o644))

	saved := &State{Fingerprint: "abc", BuildID: "id", Archive: archive, Sources: 2}
	require.NoError(t, saved.Save(dir))

	s, err = LoadState(dir)
	require.NoError(t, err)
	assert.Equal(t, saved, s)
	assert.True(t, s.UpToDate("abc"))
	assert.False(t, s.UpToDate("def"))

	require.NoError(t, os.Remove(archive))
	assert.False(t, s.UpToDate("abc"), "outputs are gone")

	require.NoError(t, Remove(dir))
	require.NoError(t, Remove(dir))
	s, err = LoadState(dir)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestLoadStateCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, StateFile), []byte("{"), 0o644))
	_, err := LoadState(dir)
	assert.Error(t, err)
}

func TestWatch(t *testing.T) {
	dir := tree(t)
	d := Directives{Trees: []string{filepath.Join(dir, "src/c")}}

	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, d, 50*time.Millisecond, func() { changed <- struct{}{} })
	}()

	// give the watcher time to register before touching the tree
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src/c/sub/zzhelper.c"), []byte("int zz = 1;\n"), 0o644))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchNothing(t *testing.T) {
	err := Watch(context.Background(), Directives{Trees: []string{filepath.Join(t.TempDir(), "missing")}}, time.Millisecond, func() {})
	assert.Error(t, err)
}
