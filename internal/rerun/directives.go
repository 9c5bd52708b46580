// Package rerun decides when the generated outputs are stale and tells the
// host build system which inputs they depend on.
package rerun

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Prefix starts every directive line.
const Prefix = "spicegen:rerun-if-changed="

// Directives is the set of watched trees. A tree is a directory, watched
// recursively, or a single file.
type Directives struct {
	Trees []string
}

// Emit writes one directive per tree, in order. A tree that does not exist
// is still announced so its creation triggers a rebuild.
func (d Directives) Emit(w io.Writer) error {
	for _, tree := range d.Trees {
		if _, err := fmt.Fprintf(w, "%s%s\n", Prefix, tree); err != nil {
			return err
		}
	}
	return nil
}

// Files lists every regular file under the trees, sorted and without
// duplicates. Missing trees contribute nothing.
func (d Directives) Files() ([]string, error) {
	var files []string
	for _, tree := range d.Trees {
		st, err := os.Stat(tree)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		if !st.IsDir() {
			files = append(files, tree)
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(tree), "**", doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("while listing %s: %w", tree, err)
		}
		for _, m := range matches {
			files = append(files, filepath.Join(tree, filepath.FromSlash(m)))
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

// dirs lists the directories under the trees, the trees included.
func (d Directives) dirs() ([]string, error) {
	var dirs []string
	for _, tree := range d.Trees {
		st, err := os.Stat(tree)
		if err != nil || !st.IsDir() {
			continue
		}
		dirs = append(dirs, tree)
		err = doublestar.GlobWalk(os.DirFS(tree), "**", func(path string, e fs.DirEntry) error {
			if e.IsDir() && path != "." {
				dirs = append(dirs, filepath.Join(tree, filepath.FromSlash(path)))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return dirs, nil
}

// WriteDepfile writes a Make rule naming target and its inputs, in the
// format C compilers emit with -MD.
func WriteDepfile(path, target string, deps []string) error {
	var sb strings.Builder
	sb.WriteString(escapeMake(target))
	sb.WriteString(":")
	for _, dep := range deps {
		sb.WriteString(" \\\n  ")
		sb.WriteString(escapeMake(dep))
	}
	sb.WriteString("\n")
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

func escapeMake(s string) string {
	s = strings.ReplaceAll(s, "$", "$$")
	s = strings.ReplaceAll(s, "#", `\#`)
	return strings.ReplaceAll(s, " ", `\ `)
}
