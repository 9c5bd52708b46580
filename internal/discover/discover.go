// Package discover finds the native translation units that make up the
// static archive.
package discover

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
)

// Error reports a source directory that could not be scanned at all.
type Error struct {
	Dir string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot scan source directory %s: %v", e.Dir, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// SourceSet is the ordered list of files compiled into the archive.
type SourceSet struct {
	// Files holds the matching paths, sorted lexically. Paths are joined onto
	// the directory that was scanned.
	Files []string
	// Skipped holds entries that could not be resolved. They are left out of
	// Files without failing the scan.
	Skipped []string
}

func (s *SourceSet) Len() int { return len(s.Files) }

// Scan lists the direct entries of dir in fsys whose names end in ext. The
// match is case-sensitive, so "x.C" is not a ".c" source. Directories are
// never sources.
//
// Only a failure to open dir itself is an error. Entries whose name is not
// valid UTF-8, or whose metadata cannot be read, are recorded in Skipped.
func Scan(fsys fs.FS, dir, ext string) (*SourceSet, error) {
	f, err := fsys.Open(dir)
	if err != nil {
		return nil, &Error{Dir: dir, Err: err}
	}
	defer f.Close()

	rd, ok := f.(fs.ReadDirFile)
	if !ok {
		return nil, &Error{Dir: dir, Err: errors.New("not a directory")}
	}

	set := &SourceSet{}
	for {
		entries, err := rd.ReadDir(256)
		for _, e := range entries {
			name := e.Name()
			if !utf8.ValidString(name) {
				set.Skipped = append(set.Skipped, name)
				continue
			}
			if !strings.HasSuffix(name, ext) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				set.Skipped = append(set.Skipped, name)
				continue
			}
			if info.IsDir() {
				continue
			}
			set.Files = append(set.Files, path.Join(dir, name))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			// the listing itself broke off; keep what was read
			set.Skipped = append(set.Skipped, fmt.Sprintf("%s: %v", dir, err))
			break
		}
		if len(entries) == 0 {
			break
		}
	}

	slices.Sort(set.Files)
	return set, nil
}

// ScanDir is Scan over the real filesystem. Returned paths are absolute.
func ScanDir(dir, ext string) (*SourceSet, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, &Error{Dir: dir, Err: err}
	}
	set, err := Scan(os.DirFS(abs), ".", ext)
	if err != nil {
		return nil, &Error{Dir: abs, Err: errors.Unwrap(err)}
	}
	for i, f := range set.Files {
		set.Files[i] = filepath.Join(abs, filepath.FromSlash(f))
	}
	return set, nil
}

// Glob adds the files matched by doublestar patterns under root to the set,
// after the scanned files and without duplicates. Absolute patterns are
// taken as literal paths.
func (s *SourceSet) Glob(root string, patterns []string) error {
	seen := make(map[string]struct{}, len(s.Files))
	for _, f := range s.Files {
		seen[f] = struct{}{}
	}

	var extra []string
	fsys := os.DirFS(root)
	for _, pat := range patterns {
		if filepath.IsAbs(pat) {
			extra = append(extra, filepath.Clean(pat))
			continue
		}
		matches, err := doublestar.Glob(fsys, filepath.ToSlash(pat), doublestar.WithFilesOnly())
		if err != nil {
			return fmt.Errorf("bad source pattern %q: %w", pat, err)
		}
		for _, m := range matches {
			extra = append(extra, filepath.Join(root, filepath.FromSlash(m)))
		}
	}

	slices.Sort(extra)
	for _, f := range extra {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		s.Files = append(s.Files, f)
	}
	return nil
}
