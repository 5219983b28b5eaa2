// SPDX-License-Identifier: MPL-2.0

package toolkit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sleapenv/sleapenv/internal/issue"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
)

const peeledSuffix = "^{}"

// ErrRefNotFound is returned when a remote has no branch, tag or HEAD by the
// requested name.
var ErrRefNotFound = errors.New("ref not found on remote")

var commitSHA = regexp.MustCompile(`^[0-9a-f]{40}$`)

type (
	// RefLister lists the references advertised by a git remote.
	RefLister func(ctx context.Context, url string) ([]*plumbing.Reference, error)

	// Resolver checks toolkit sources on the host before a build: local trees
	// must be installable and remote refs must exist.
	Resolver struct {
		list RefLister
	}
)

// NewResolver returns a resolver. A nil lister lists remote refs over the
// network without cloning.
func NewResolver(list RefLister) *Resolver {
	if list == nil {
		list = ListRemoteRefs
	}
	return &Resolver{list: list}
}

// ListRemoteRefs lists url's references into in-memory storage, with peeled
// tag targets appended.
func ListRemoteRefs(ctx context.Context, url string) ([]*plumbing.Reference, error) {
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})
	return remote.ListContext(ctx, &git.ListOptions{
		Auth:          authFromEnv(),
		PeelingOption: git.AppendPeeled,
	})
}

// authFromEnv returns token auth for HTTPS remotes when a token is exported.
func authFromEnv() transport.AuthMethod {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return &http.BasicAuth{Username: "x-access-token", Password: token}
	}
	if token := os.Getenv("GIT_TOKEN"); token != "" {
		return &http.BasicAuth{Username: "git", Password: token}
	}
	return nil
}

// Resolve returns src pinned for a build. A local source gets an absolute
// path and must hold an installable tree. A remote source gets Commit set to
// the commit its ref points at; a full commit SHA is taken as is, since
// remotes do not advertise arbitrary commits.
func (r *Resolver) Resolve(ctx context.Context, src Source) (Source, error) {
	if err := src.Validate(); err != nil {
		return Source{}, r.fail(src, err)
	}
	if src.Kind == KindLocal {
		return r.resolveLocal(src)
	}
	if commitSHA.MatchString(src.Ref) {
		src.Commit = src.Ref
		return src, nil
	}

	refs, err := r.list(ctx, src.URL)
	if err != nil {
		return Source{}, r.fail(src, fmt.Errorf("list remote refs: %w", err))
	}
	hash, err := matchRef(refs, src.Ref)
	if err != nil {
		return Source{}, r.fail(src, err)
	}
	src.Commit = hash
	return src, nil
}

func (r *Resolver) resolveLocal(src Source) (Source, error) {
	abs, err := filepath.Abs(src.Path)
	if err != nil {
		return Source{}, r.fail(src, err)
	}
	if err := ValidateTree(abs); err != nil {
		return Source{}, r.fail(src, err)
	}
	src.Path = abs
	return src, nil
}

func (r *Resolver) fail(src Source, err error) error {
	ec := issue.NewErrorContext().
		WithOperation("resolve toolkit source").
		WithResource(src.String()).
		WithKind(issue.KindResolution)

	switch {
	case errors.Is(err, ErrNotInstallable), errors.Is(err, ErrNotDirectory), errors.Is(err, fs.ErrNotExist):
		ec.WithSuggestion("Point the local toolkit path at a checkout containing pyproject.toml or setup.py")
	case errors.Is(err, ErrInvalidSource), errors.Is(err, ErrInvalidKind):
		ec.WithSuggestion("Configure exactly one of toolkit.local or toolkit.remote for the variant")
	case errors.Is(err, ErrRefNotFound):
		ec.WithSuggestion("Check that " + src.Ref + " is a branch or tag of " + src.URL)
	case errors.Is(err, transport.ErrRepositoryNotFound):
		ec.WithSuggestion("Check the repository URL")
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
		ec.WithSuggestion("Export GITHUB_TOKEN or GIT_TOKEN for private repositories")
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		ec.WithSuggestion("The repository has no commits yet")
	default:
		ec.WithSuggestion("Check network connectivity to the repository host")
	}
	return ec.Wrap(err).BuildError()
}

// matchRef finds ref among refs. Tags take precedence over branches and
// annotated tags resolve to the tagged commit.
func matchRef(refs []*plumbing.Reference, ref string) (string, error) {
	byName := make(map[plumbing.ReferenceName]*plumbing.Reference, len(refs))
	for _, r := range refs {
		byName[r.Name()] = r
	}

	var candidates []plumbing.ReferenceName
	switch {
	case ref == "HEAD":
		candidates = []plumbing.ReferenceName{plumbing.HEAD}
	case strings.HasPrefix(ref, "refs/"):
		candidates = []plumbing.ReferenceName{plumbing.ReferenceName(ref)}
	default:
		candidates = []plumbing.ReferenceName{
			plumbing.NewTagReferenceName(ref),
			plumbing.NewBranchReferenceName(ref),
		}
	}

	for _, name := range candidates {
		if peeled, ok := byName[name+peeledSuffix]; ok {
			return peeled.Hash().String(), nil
		}
		found, ok := byName[name]
		if !ok {
			continue
		}
		// HEAD may be advertised as a symbolic reference.
		for depth := 0; found.Type() == plumbing.SymbolicReference && depth < 5; depth++ {
			target, ok := byName[found.Target()]
			if !ok {
				return "", fmt.Errorf("%w: %s -> %s", ErrRefNotFound, name, found.Target())
			}
			found = target
		}
		if found.Type() != plumbing.HashReference {
			continue
		}
		return found.Hash().String(), nil
	}
	return "", fmt.Errorf("%w: %s", ErrRefNotFound, ref)
}
