// SPDX-License-Identifier: MPL-2.0

package packages

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/sleapenv/sleapenv/internal/env"
	"github.com/sleapenv/sleapenv/internal/issue"
	"github.com/sleapenv/sleapenv/internal/pipeline"
	"github.com/sleapenv/sleapenv/internal/testutil/execmock"
)

const dpkgInstalled = "install ok installed"

func TestHelperProcess(t *testing.T) { execmock.HelperProcess() }

func mustSet(t *testing.T, names ...string) Set {
	t.Helper()

	set, err := NewSet(names...)
	if err != nil {
		t.Fatalf("NewSet() error = %v", err)
	}
	return set
}

func newEnv(t *testing.T, rec *execmock.Recorder) *env.Environment {
	t.Helper()
	return env.New(t.TempDir(), env.WithExecCommand(rec.CommandFunc(t)))
}

func TestInstaller_AllInstalledIsNoop(t *testing.T) {
	t.Parallel()

	rec := execmock.New().Stdout(dpkgInstalled, "dpkg-query")
	set := mustSet(t, "libgl1-mesa-glx", "wget", "unzip")

	changed, err := NewInstaller(nil).Install(context.Background(), newEnv(t, rec), set)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if changed {
		t.Error("Install() reported changes for an up-to-date environment")
	}
	if rec.Count("apt-get") != 0 {
		t.Errorf("apt-get should not run, got %v", rec.Commands())
	}
}

func TestInstaller_InstallsMissing(t *testing.T) {
	t.Parallel()

	rec := execmock.New().
		Stdout(dpkgInstalled, "dpkg-query").
		Fail(1, "dpkg-query: no packages found matching unzip", "dpkg-query", "-W", "-f=${Status}", "unzip").
		Stdout("deinstall ok config-files", "dpkg-query", "-W", "-f=${Status}", "wget")
	set := mustSet(t, "libgl1-mesa-glx", "wget", "unzip")

	inst := NewInstaller(nil)
	e := newEnv(t, rec)

	missing, err := inst.Missing(context.Background(), e, set)
	if err != nil {
		t.Fatalf("Missing() error = %v", err)
	}
	if !slices.Equal(missing, []string{"wget", "unzip"}) {
		t.Errorf("Missing() = %v", missing)
	}

	changed, err := inst.Install(context.Background(), e, set)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if !changed {
		t.Error("Install() should report changes")
	}

	var apt []execmock.Invocation
	for _, inv := range rec.Invocations() {
		if inv.Name == "apt-get" {
			apt = append(apt, inv)
		}
	}
	if len(apt) != 2 {
		t.Fatalf("apt-get invocations = %d, want 2", len(apt))
	}
	if !slices.Equal(apt[0].Args, []string{"update"}) {
		t.Errorf("first apt-get = %v, want update", apt[0].Args)
	}
	wantInstall := []string{"install", "-y", "--no-install-recommends", "libgl1-mesa-glx", "wget", "unzip"}
	if !slices.Equal(apt[1].Args, wantInstall) {
		t.Errorf("install args = %v, want %v", apt[1].Args, wantInstall)
	}
	for _, inv := range apt {
		if !inv.HasEnv("DEBIAN_FRONTEND", "noninteractive") {
			t.Errorf("%v ran without DEBIAN_FRONTEND=noninteractive", inv.Args)
		}
	}
}

func TestInstaller_UpdateFails(t *testing.T) {
	t.Parallel()

	rec := execmock.New().
		Fail(1, "", "dpkg-query").
		Fail(100, "E: Could not resolve 'archive.ubuntu.com'", "apt-get", "update")

	_, err := NewInstaller(nil).Install(context.Background(), newEnv(t, rec), mustSet(t, "wget"))
	var cmdErr *env.CommandError
	if !errors.As(err, &cmdErr) || cmdErr.ExitCode != 100 {
		t.Fatalf("Install() error = %v, want apt-get exit 100", err)
	}
	if rec.Count("apt-get", "install") != 0 {
		t.Error("install must not run after a failed update")
	}
}

func TestInstaller_QueryError(t *testing.T) {
	t.Parallel()

	rec := execmock.New().Fail(2, "dpkg-query: error: database locked", "dpkg-query")
	if _, err := NewInstaller(nil).Missing(context.Background(), newEnv(t, rec), mustSet(t, "wget")); err == nil {
		t.Error("Missing() should fail on dpkg-query exit 2")
	}
}

func TestStep_Apply(t *testing.T) {
	t.Parallel()

	rec := execmock.New().
		Fail(1, "", "dpkg-query").
		Fail(100, "E: Unable to locate package libgl1-mesa-glx", "apt-get", "install")
	s := NewStep(mustSet(t, "libgl1-mesa-glx"), nil)

	if s.Name() != pipeline.StepPackages || s.Kind() != issue.KindInstallation {
		t.Errorf("identity = %s/%s", s.Name(), s.Kind())
	}

	err := s.Apply(context.Background(), newEnv(t, rec))
	if issue.KindOf(err) != issue.KindInstallation {
		t.Fatalf("Apply() error = %v, want installation kind", err)
	}
}

func TestStep_ApplyRecordsAndVerifies(t *testing.T) {
	t.Parallel()

	installed := execmock.New().Stdout(dpkgInstalled, "dpkg-query")
	e := newEnv(t, installed)
	s := NewStep(mustSet(t, "wget"), nil)

	if err := s.Apply(context.Background(), e); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if _, ok := e.Fact(FactInstalled); ok {
		t.Error("no-op apply should not record installed packages")
	}
	if err := s.Verify(context.Background(), e); err != nil {
		t.Errorf("Verify() error = %v", err)
	}

	missing := execmock.New().Fail(1, "", "dpkg-query")
	e = newEnv(t, missing)
	if err := s.Apply(context.Background(), e); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if v, _ := e.Fact(FactInstalled); v != "wget" {
		t.Errorf("Fact(%s) = %q", FactInstalled, v)
	}
	if err := s.Verify(context.Background(), e); issue.KindOf(err) != issue.KindInstallation {
		t.Errorf("Verify() error = %v, want installation failure", err)
	}
}

func TestStep_EmptySet(t *testing.T) {
	t.Parallel()

	rec := execmock.New()
	if err := NewStep(Set{}, nil).Apply(context.Background(), newEnv(t, rec)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(rec.Invocations()) != 0 {
		t.Errorf("empty set ran commands: %v", rec.Commands())
	}
}
