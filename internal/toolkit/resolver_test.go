// SPDX-License-Identifier: MPL-2.0

package toolkit

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/sleapenv/sleapenv/internal/issue"
	"github.com/sleapenv/sleapenv/internal/testutil"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

const (
	developHash = "1111111111111111111111111111111111111111"
	mainHash    = "2222222222222222222222222222222222222222"
	tagObject   = "3333333333333333333333333333333333333333"
	taggedHash  = "4444444444444444444444444444444444444444"
	branchTag   = "5555555555555555555555555555555555555555"
)

func testRefs() []*plumbing.Reference {
	return []*plumbing.Reference{
		plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("develop")),
		plumbing.NewHashReference(plumbing.NewBranchReferenceName("develop"), plumbing.NewHash(developHash)),
		plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), plumbing.NewHash(mainHash)),
		plumbing.NewHashReference(plumbing.NewTagReferenceName("v1.3.3"), plumbing.NewHash(tagObject)),
		plumbing.NewReferenceFromStrings("refs/tags/v1.3.3^{}", taggedHash),
		plumbing.NewHashReference(plumbing.NewBranchReferenceName("v1.0"), plumbing.NewHash(mainHash)),
		plumbing.NewHashReference(plumbing.NewTagReferenceName("v1.0"), plumbing.NewHash(branchTag)),
	}
}

func TestMatchRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{"develop", developHash, false},
		{"main", mainHash, false},
		{"HEAD", developHash, false},
		{"v1.3.3", taggedHash, false},
		{"v1.0", branchTag, false},
		{"refs/heads/v1.0", mainHash, false},
		{"feature/missing", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			t.Parallel()

			got, err := matchRef(testRefs(), tt.ref)
			if (err != nil) != tt.wantErr {
				t.Fatalf("matchRef(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrRefNotFound) {
					t.Errorf("error = %v, want ErrRefNotFound", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("matchRef(%q) = %s, want %s", tt.ref, got, tt.want)
			}
		})
	}
}

func fakeLister(refs []*plumbing.Reference, err error) RefLister {
	return func(context.Context, string) ([]*plumbing.Reference, error) {
		return refs, err
	}
}

func TestResolver_Remote(t *testing.T) {
	t.Parallel()

	r := NewResolver(fakeLister(testRefs(), nil))
	src, err := r.Resolve(context.Background(), Remote("https://github.com/talmolab/sleap.git", "develop"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if src.Commit != developHash {
		t.Errorf("Commit = %s, want %s", src.Commit, developHash)
	}
	if src.Ref != "develop" {
		t.Errorf("Ref changed to %q", src.Ref)
	}
}

func TestResolver_RemoteCommitSHA(t *testing.T) {
	t.Parallel()

	r := NewResolver(fakeLister(nil, errors.New("must not list")))
	src, err := r.Resolve(context.Background(), Remote("https://github.com/talmolab/sleap.git", mainHash))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if src.Commit != mainHash {
		t.Errorf("Commit = %s", src.Commit)
	}
}

func TestResolver_RemoteFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		lister  RefLister
		ref     string
		wantErr error
	}{
		{"unknown ref", fakeLister(testRefs(), nil), "nope", ErrRefNotFound},
		{"missing repo", fakeLister(nil, transport.ErrRepositoryNotFound), "main", transport.ErrRepositoryNotFound},
		{"auth", fakeLister(nil, transport.ErrAuthenticationRequired), "main", transport.ErrAuthenticationRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewResolver(tt.lister).Resolve(context.Background(), Remote("https://github.com/talmolab/sleap.git", tt.ref))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
			}
			if issue.KindOf(err) != issue.KindResolution {
				t.Errorf("KindOf() = %q, want resolution", issue.KindOf(err))
			}
			var ae *issue.ActionableError
			if !errors.As(err, &ae) || !ae.HasSuggestions() {
				t.Errorf("expected suggestions on %v", err)
			}
		})
	}
}

func TestResolver_Local(t *testing.T) {
	dir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(dir, "pyproject.toml"), "[project]\nname = \"sleap\"\n")
	restore := testutil.MustChdir(t, filepath.Dir(dir))
	defer restore()

	src, err := NewResolver(nil).Resolve(context.Background(), Local(filepath.Base(dir)))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !filepath.IsAbs(src.Path) {
		t.Errorf("Path = %q, want absolute", src.Path)
	}

	_, err = NewResolver(nil).Resolve(context.Background(), Local(t.TempDir()))
	if !errors.Is(err, ErrNotInstallable) || issue.KindOf(err) != issue.KindResolution {
		t.Errorf("Resolve(empty dir) error = %v", err)
	}
}

func TestListRemoteRefs_LocalRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available for the file transport")
	}

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit() error = %v", err)
	}
	testutil.MustWriteFile(t, filepath.Join(dir, "setup.py"), "from setuptools import setup\n")
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree() error = %v", err)
	}
	if _, err := wt.Add("setup.py"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	commit, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Unix(0, 0)},
	})
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if _, err := repo.CreateTag("v1.0.0", commit, nil); err != nil {
		t.Fatalf("CreateTag() error = %v", err)
	}

	src, err := NewResolver(nil).Resolve(context.Background(), Remote("file://"+dir, "v1.0.0"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if src.Commit != commit.String() {
		t.Errorf("Commit = %s, want %s", src.Commit, commit)
	}
}
