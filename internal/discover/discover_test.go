package discover

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanCaseSensitiveSuffix(t *testing.T) {
	fsys := fstest.MapFS{
		"src/a.c":   {Data: []byte("int a;")},
		"src/b.txt": {Data: []byte("notes")},
		"src/c.C":   {Data: []byte("int c;")},
		"src/d.c":   {Data: []byte("int d;")},
	}

	set, err := Scan(fsys, "src", ".c")
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.c", "src/d.c"}, set.Files)
	assert.Empty(t, set.Skipped)
}

func TestScanIgnoresDirectoriesAndNesting(t *testing.T) {
	fsys := fstest.MapFS{
		"src/z.c":        {Data: []byte("")},
		"src/dir.c/x.c":  {Data: []byte("")},
		"src/nested/y.c": {Data: []byte("")},
	}

	set, err := Scan(fsys, "src", ".c")
	require.NoError(t, err)
	assert.Equal(t, []string{"src/z.c"}, set.Files)
}

func TestScanEmptyDirectoryIsNotAnError(t *testing.T) {
	fsys := fstest.MapFS{
		"src/readme.md": {Data: []byte("")},
	}

	set, err := Scan(fsys, "src", ".c")
	require.NoError(t, err)
	assert.Zero(t, set.Len())
}

func TestScanMissingRoot(t *testing.T) {
	_, err := Scan(fstest.MapFS{}, "src", ".c")
	require.Error(t, err)

	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "src", derr.Dir)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestScanRootIsAFile(t *testing.T) {
	fsys := fstest.MapFS{"src": {Data: []byte("")}}
	_, err := Scan(fsys, "src", ".c")
	var derr *Error
	require.ErrorAs(t, err, &derr)
}

// brokenFS serves one directory whose listing contains entries that cannot
// be resolved.
type brokenFS struct {
	entries []fs.DirEntry
	failAt  error
}

func (b brokenFS) Open(name string) (fs.File, error) {
	if name != "." {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return &brokenDir{entries: b.entries, failAt: b.failAt}, nil
}

type brokenDir struct {
	entries []fs.DirEntry
	failAt  error
	done    bool
}

func (d *brokenDir) Stat() (fs.FileInfo, error) { return nil, errors.New("unused") }
func (d *brokenDir) Read([]byte) (int, error)   { return 0, io.EOF }
func (d *brokenDir) Close() error               { return nil }

func (d *brokenDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if d.done {
		return nil, io.EOF
	}
	d.done = true
	if d.failAt != nil {
		return d.entries, d.failAt
	}
	return d.entries, nil
}

type entry struct {
	name string
	err  error
}

func (e entry) Name() string               { return e.name }
func (e entry) IsDir() bool                { return false }
func (e entry) Type() fs.FileMode          { return 0 }
func (e entry) Info() (fs.FileInfo, error) { return fileInfo{e.name}, e.err }

type fileInfo struct{ name string }

func (f fileInfo) Name() string       { return f.name }
func (f fileInfo) Size() int64        { return 0 }
func (f fileInfo) Mode() fs.FileMode  { return 0o644 }
func (f fileInfo) ModTime() time.Time { return time.Time{} }
func (f fileInfo) IsDir() bool        { return false }
func (f fileInfo) Sys() any           { return nil }

func TestScanSkipsUnresolvableEntries(t *testing.T) {
	fsys := brokenFS{entries: []fs.DirEntry{
		entry{name: "spkez_c.c"},
		entry{name: "gone.c", err: fs.ErrPermission},
		entry{name: "bad\xffname.c"},
		entry{name: "furnsh_c.c"},
	}}

	set, err := Scan(fsys, ".", ".c")
	require.NoError(t, err)
	assert.Equal(t, []string{"furnsh_c.c", "spkez_c.c"}, set.Files)
	assert.Equal(t, []string{"gone.c", "bad\xffname.c"}, set.Skipped)
}

func TestScanKeepsEntriesReadBeforeListingError(t *testing.T) {
	fsys := brokenFS{
		entries: []fs.DirEntry{entry{name: "a.c"}},
		failAt:  errors.New("input/output error"),
	}

	set, err := Scan(fsys, ".", ".c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.c"}, set.Files)
	assert.Len(t, set.Skipped, 1)
}

func TestScanDirAndGlob(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src", "c")
	extra := filepath.Join(root, "extra", "deep")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.MkdirAll(extra, 0o755))
	for _, f := range []string{
		filepath.Join(src, "b.c"),
		filepath.Join(src, "a.c"),
		filepath.Join(src, "a.h"),
		filepath.Join(extra, "x.c"),
	} {
		require.NoError(t, os.WriteFile(f, []byte("int v;\n"), 0o644))
	}

	set, err := ScanDir(src, ".c")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(src, "a.c"), filepath.Join(src, "b.c")}, set.Files)

	require.NoError(t, set.Glob(root, []string{"extra/**/*.c", "src/c/*.c"}))
	assert.Equal(t, []string{
		filepath.Join(src, "a.c"),
		filepath.Join(src, "b.c"),
		filepath.Join(extra, "x.c"),
	}, set.Files)
}

func TestScanDirMissing(t *testing.T) {
	_, err := ScanDir(filepath.Join(t.TempDir(), "nope"), ".c")
	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
