// SPDX-License-Identifier: MPL-2.0

package toolkit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sleapenv/sleapenv/internal/env"
	"github.com/sleapenv/sleapenv/internal/issue"
	"github.com/sleapenv/sleapenv/internal/pipeline"
	"github.com/sleapenv/sleapenv/internal/testutil/execmock"
)

var testSettings = Settings{
	EntryPoints: []string{"sleap-train", "sleap-track", "sleap-label"},
	Ignore:      []string{".git/**"},
}

func TestHelperProcess(t *testing.T) { execmock.HelperProcess() }

func newEnv(t *testing.T, rec *execmock.Recorder) *env.Environment {
	t.Helper()
	return env.New(t.TempDir(), env.WithExecCommand(rec.CommandFunc(t)))
}

func TestNewStep_Rejects(t *testing.T) {
	t.Parallel()

	if _, err := NewStep(Source{}, testSettings); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("NewStep(empty source) error = %v", err)
	}
	if _, err := NewStep(Local("/src"), Settings{InstallPath: "sleap"}); err == nil {
		t.Error("NewStep(relative install path) should fail")
	}
	if _, err := NewStep(Local("/src"), Settings{Ignore: []string{"[bad"}}); err == nil {
		t.Error("NewStep(bad ignore) should fail")
	}
}

func TestStep_LocalStagesAndInstalls(t *testing.T) {
	t.Parallel()

	rec := execmock.New()
	e := newEnv(t, rec)
	writeTree(t, e.Path("/src/sleap"), map[string]string{
		"setup.py":          "from setuptools import setup",
		"sleap/__init__.py": "",
		".git/HEAD":         "ref: refs/heads/develop",
	})

	s, err := NewStep(Local("/src/sleap"), testSettings)
	if err != nil {
		t.Fatalf("NewStep() error = %v", err)
	}
	if s.Name() != pipeline.StepToolkit || s.Kind() != issue.KindInstallation {
		t.Errorf("identity = %s/%s", s.Name(), s.Kind())
	}

	ctx := context.Background()
	if err := s.Check(ctx, e); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if err := s.Apply(ctx, e); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if _, err := os.Stat(e.Path("/sleap/setup.py")); err != nil {
		t.Errorf("tree not staged at /sleap: %v", err)
	}
	if _, err := os.Stat(e.Path("/sleap/.git")); !os.IsNotExist(err) {
		t.Errorf("ignored .git was staged: %v", err)
	}
	// pip reads the tree that was just staged under the environment root.
	rec.AssertCommands(t, "python3 -m pip install "+e.Path("/sleap"))
	last := rec.Last()
	if _, err := os.Stat(filepath.Join(last.Args[len(last.Args)-1], "setup.py")); err != nil {
		t.Errorf("pip install target is not the staged tree: %v", err)
	}
	if v, _ := e.Fact(FactSource); v != "/src/sleap" {
		t.Errorf("Fact(%s) = %q", FactSource, v)
	}
}

func TestStep_LocalAlreadyAtInstallPath(t *testing.T) {
	t.Parallel()

	rec := execmock.New()
	e := newEnv(t, rec)
	writeTree(t, e.Path("/sleap"), map[string]string{"pyproject.toml": ""})

	s, err := NewStep(Local("/sleap"), testSettings)
	if err != nil {
		t.Fatalf("NewStep() error = %v", err)
	}
	if err := s.Apply(context.Background(), e); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	rec.AssertCommands(t, "python3 -m pip install "+e.Path("/sleap"))
}

func TestStep_LocalCheckFails(t *testing.T) {
	t.Parallel()

	e := newEnv(t, execmock.New())
	if err := os.MkdirAll(filepath.Join(e.Root(), "src"), 0o755); err != nil {
		t.Fatal(err)
	}

	s, err := NewStep(Local("/src"), testSettings)
	if err != nil {
		t.Fatalf("NewStep() error = %v", err)
	}
	if err := s.Check(context.Background(), e); !errors.Is(err, ErrNotInstallable) {
		t.Errorf("Check() error = %v, want ErrNotInstallable", err)
	}
}

func TestStep_RemoteInstallsWithoutCopy(t *testing.T) {
	t.Parallel()

	rec := execmock.New()
	e := newEnv(t, rec)

	src := Remote("https://github.com/talmolab/sleap.git", "develop")
	src.Commit = developHash
	s, err := NewStep(src, testSettings)
	if err != nil {
		t.Fatalf("NewStep() error = %v", err)
	}
	if err := s.Check(context.Background(), e); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if err := s.Apply(context.Background(), e); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	rec.AssertCommands(t, "python3 -m pip install git+https://github.com/talmolab/sleap.git@"+developHash)
	if _, err := os.Stat(e.Path("/sleap")); !os.IsNotExist(err) {
		t.Errorf("remote install staged a local copy: %v", err)
	}
	if v, _ := e.Fact(FactCommit); v != developHash {
		t.Errorf("Fact(%s) = %q", FactCommit, v)
	}
}

func TestStep_PipFails(t *testing.T) {
	t.Parallel()

	rec := execmock.New().Fail(1, "ERROR: No matching distribution found for tensorflow==2.9", "python3", "-m", "pip")
	s, err := NewStep(Remote("https://github.com/talmolab/sleap.git", "develop"), testSettings)
	if err != nil {
		t.Fatalf("NewStep() error = %v", err)
	}

	err = s.Apply(context.Background(), newEnv(t, rec))
	var cmdErr *env.CommandError
	if !errors.As(err, &cmdErr) || issue.KindOf(err) != issue.KindInstallation {
		t.Errorf("Apply() error = %v, want installation CommandError", err)
	}
}

func TestStep_Verify(t *testing.T) {
	t.Parallel()

	s, err := NewStep(Remote("https://github.com/talmolab/sleap.git", "develop"), testSettings)
	if err != nil {
		t.Fatalf("NewStep() error = %v", err)
	}

	ok := execmock.New().Stdout("/usr/local/bin/sleap", "sh", "-c")
	if err := s.Verify(context.Background(), newEnv(t, ok)); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
	if ok.Count("sh") != 3 {
		t.Errorf("expected 3 lookups, got %v", ok.Commands())
	}

	missing := execmock.New().
		Stdout("/usr/local/bin/sleap", "sh", "-c").
		Fail(1, "", "sh", "-c", "command -v sleap-label")
	err = s.Verify(context.Background(), newEnv(t, missing))
	if !errors.Is(err, ErrMissingEntryPoints) {
		t.Fatalf("Verify() error = %v, want ErrMissingEntryPoints", err)
	}
	if issue.KindOf(err) != issue.KindInstallation {
		t.Errorf("KindOf() = %q", issue.KindOf(err))
	}
}
