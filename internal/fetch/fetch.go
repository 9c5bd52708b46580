// Package fetch brings the upstream native sources into the project tree.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/qobs-build/spicegen/internal/msg"
)

var shortcuts = map[string]string{
	"gh:": "https://github.com/",
	"gl:": "https://gitlab.com/",
	"bb:": "https://bitbucket.org/",
	"sr:": "https://sr.ht/",
	"cb:": "https://codeberg.org/",
}

const gitPrefix = "git:"

var (
	errEmptySource = errors.New("empty upstream source")
	// ErrArchive is returned for plain URLs. NAIF ships CSPICE as a
	// compressed tarball; unpack it into the source tree by hand or point
	// upstream.source at a git mirror.
	ErrArchive = errors.New("archive downloads are not supported")
)

// Source is a parsed upstream.source value. Exactly one of URL and Local
// is set.
type Source struct {
	URL      string
	Branch   string
	Revision string
	Local    string
}

func (s Source) String() string {
	if s.Local != "" {
		return s.Local
	}
	out := s.URL
	if s.Branch != "" {
		out += "@" + s.Branch
	}
	if s.Revision != "" {
		out += "#" + s.Revision
	}
	return out
}

// Parse understands
//
//	git:https://example.com/naif/cspice.git
//	gh:someone/cspice@main#N0067
//	https://example.com/naif/cspice.git
//	../cspice
func Parse(src string) (Source, error) {
	if src == "" {
		return Source{}, errEmptySource
	}
	if rest, ok := strings.CutPrefix(src, gitPrefix); ok {
		return parseGitURL(rest), nil
	}
	for shortcut, base := range shortcuts {
		if rest, ok := strings.CutPrefix(src, shortcut); ok {
			return parseGitURL(base + rest), nil
		}
	}
	if isURL(src) {
		if base, _, _ := strings.Cut(src, "#"); strings.Contains(base, ".git") {
			return parseGitURL(src), nil
		}
		return Source{}, fmt.Errorf("%w: %s", ErrArchive, src)
	}
	return Source{Local: src}, nil
}

func isURL(maybeURL string) bool {
	u, err := url.Parse(maybeURL)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// someone/something@master#N0067
// someone/something@feature-branch#12345abc
// someone/something#12345abc
func parseGitURL(rawURL string) (res Source) {
	base, rev, _ := strings.Cut(rawURL, "#")
	res.Revision = rev

	// only an @ after the last slash names a branch; git@host:path does not
	slash := strings.LastIndex(base, "/")
	if at := strings.LastIndex(base, "@"); at > slash {
		res.Branch = base[at+1:]
		base = base[:at]
	}
	res.URL = base
	if !strings.HasSuffix(res.URL, ".git") {
		res.URL += ".git"
	}
	return
}

// Fetch makes dest hold the upstream tree. A git checkout already at dest
// is pulled instead of cloned. Local sources are copied, and copying onto
// existing files fails.
func Fetch(ctx context.Context, src Source, dest string, progress io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if progress == nil {
		progress = io.Discard
	}
	progress = &msg.IndentWriter{Indent: "    ", W: progress}

	if src.Local != "" {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return err
		}
		return os.CopyFS(dest, os.DirFS(src.Local))
	}

	if _, err := os.Stat(filepath.Join(dest, ".git")); err == nil {
		return pull(src, dest, progress)
	}
	return clone(src, dest, progress)
}

func clone(src Source, dest string, progress io.Writer) error {
	opts := &git.CloneOptions{
		URL:               src.URL,
		Progress:          progress,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	}
	if src.Revision == "" {
		opts.Depth = 1 // only the tip is needed
	}
	if src.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(src.Branch)
		opts.SingleBranch = true
	}

	repo, err := git.PlainClone(dest, opts)
	if err != nil {
		return fmt.Errorf("failed to clone %s: %w", src.URL, err)
	}
	return checkout(repo, src.Revision)
}

func pull(src Source, dest string, progress io.Writer) error {
	repo, err := git.PlainOpen(dest)
	if err != nil {
		return err
	}
	w, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("could not get worktree: %w", err)
	}
	opts := &git.PullOptions{
		RemoteName: "origin",
		Progress:   progress,
	}
	if src.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(src.Branch)
		opts.SingleBranch = true
	}
	err = w.Pull(opts)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to pull %s: %w", dest, err)
	}
	return checkout(repo, src.Revision)
}

func checkout(repo *git.Repository, revision string) error {
	if revision == "" {
		return nil
	}
	w, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("could not get worktree: %w", err)
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return fmt.Errorf("could not resolve revision `%s`: %w", revision, err)
	}
	err = w.Checkout(&git.CheckoutOptions{
		Hash:  *hash,
		Force: true,
	})
	if err != nil {
		return fmt.Errorf("failed to checkout `%s`: %w", revision, err)
	}
	return nil
}
