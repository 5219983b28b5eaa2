// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/sleapenv/sleapenv/internal/config"
	"github.com/sleapenv/sleapenv/internal/container"
	"github.com/sleapenv/sleapenv/internal/issue"
	"github.com/sleapenv/sleapenv/internal/pipeline"
	"github.com/sleapenv/sleapenv/internal/session"
	"github.com/sleapenv/sleapenv/pkg/types"
)

type fakeEngine struct {
	images   map[string]bool
	exitCode types.ExitCode
	runs     []container.RunOptions
	builds   []container.BuildOptions
}

func (f *fakeEngine) Name() string { return "docker" }
func (f *fakeEngine) Available(context.Context) bool { return true }
func (f *fakeEngine) Version(context.Context) (string, error) { return "27.0.0", nil }

func (f *fakeEngine) Build(_ context.Context, opts container.BuildOptions) error {
	f.builds = append(f.builds, opts)
	return nil
}

func (f *fakeEngine) Run(_ context.Context, opts container.RunOptions) (*container.RunResult, error) {
	f.runs = append(f.runs, opts)
	return &container.RunResult{ExitCode: f.exitCode}, nil
}

func (f *fakeEngine) ImageExists(_ context.Context, image string) (bool, error) {
	return f.images[image], nil
}

func (f *fakeEngine) ImageLabel(context.Context, string, string) (string, error) { return "", nil }

func newTestApp(t *testing.T, eng container.Engine, engErr error) (app *App, stdout, stderr *bytes.Buffer) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	stdout, stderr = &bytes.Buffer{}, &bytes.Buffer{}
	app = &App{
		Config: config.NewProvider(),
		NewEngine: func(context.Context, container.EngineType) (container.Engine, error) {
			return eng, engErr
		},
		Stdin:  strings.NewReader(""),
		Stdout: stdout,
		Stderr: stderr,
	}
	return app, stdout, stderr
}

func TestGetVersionString(t *testing.T) {
	// Not parallel: subtests mutate package-level Version/Commit/BuildDate vars.

	t.Run("ldflags version", func(t *testing.T) {
		origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
		t.Cleanup(func() {
			Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
		})

		Version = "v1.2.3"
		Commit = "abc1234"
		BuildDate = "2025-06-15T10:00:00Z"

		want := "v1.2.3 (commit: abc1234, built: 2025-06-15T10:00:00Z)"
		if got := getVersionString(); got != want {
			t.Errorf("getVersionString() = %q, want %q", got, want)
		}
	})

	t.Run("dev build", func(t *testing.T) {
		origVersion := Version
		t.Cleanup(func() { Version = origVersion })

		Version = "dev"
		if got := getVersionString(); got != "dev (built from source)" {
			t.Errorf("getVersionString() = %q", got)
		}
	})
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	kinded := func(k issue.Kind) error {
		return issue.NewErrorContext().WithOperation("op").WithKind(k).Wrap(errors.New("boom")).BuildError()
	}

	tests := []struct {
		name string
		err  error
		want issue.Id
	}{
		{"binary", fmt.Errorf("%w (host is darwin/arm64)", errBinaryNotLinux), issue.BinaryNotLinuxId},
		{"engine", &container.EngineNotAvailableError{Engine: container.EngineTypeDocker, Reason: "not found"}, issue.ContainerEngineNotFoundId},
		{"smoke", fmt.Errorf("wrapped: %w", &session.SmokeFailedError{Image: "sleap:latest", ExitCode: 1}), issue.SmokeTestFailedId},
		{"unknown variant", &config.UnknownVariantError{Name: "gpu"}, issue.ConfigLoadFailedId},
		{"step kind", &pipeline.StepError{Step: pipeline.StepDataset, Kind: issue.KindProvisioning, Err: errors.New("x")}, issue.ProvisioningFailedId},
		{"actionable kind", kinded(issue.KindResolution), issue.ResolutionFailedId},
		{"installation", kinded(issue.KindInstallation), issue.InstallationFailedId},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := classifyError(tt.err)
			if got == nil {
				t.Fatalf("classifyError() = nil, want issue %d", tt.want)
			}
			if got.Id() != tt.want {
				t.Errorf("classifyError() = %d, want %d", got.Id(), tt.want)
			}
		})
	}

	if got := classifyError(errors.New("plain")); got != nil {
		t.Errorf("classifyError(plain) = %d, want nil", got.Id())
	}
}

func TestFormatErrorForDisplay(t *testing.T) {
	t.Parallel()

	err := issue.NewErrorContext().
		WithOperation("resolve base image").
		WithResource("tensorflow/tensorflow:2.6.3-gpu").
		WithSuggestion("Use --offline").
		Wrap(errors.New("unauthorized")).
		BuildError()

	got := formatErrorForDisplay(err, false)
	for _, want := range []string{"failed to resolve base image", "tensorflow/tensorflow:2.6.3-gpu", "Use --offline"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatErrorForDisplay() = %q, missing %q", got, want)
		}
	}

	if got := formatErrorForDisplay(errors.New("plain"), true); got != "plain" {
		t.Errorf("formatErrorForDisplay(plain) = %q", got)
	}
}

func TestRun_ShellExitCode(t *testing.T) {
	eng := &fakeEngine{images: map[string]bool{"sleap:latest": true}, exitCode: 3}
	app, _, _ := newTestApp(t, eng, nil)

	if code := Run(context.Background(), app, []string{"run", "--", "python3", "-c", "exit(3)"}); code != 3 {
		t.Fatalf("Run() = %d, want 3", code)
	}
	if len(eng.runs) != 1 {
		t.Fatalf("engine ran %d containers, want 1", len(eng.runs))
	}
	got := eng.runs[0]
	if !slices.Equal(got.Command, []string{"python3", "-c", "exit(3)"}) {
		t.Errorf("Command = %v", got.Command)
	}
	if !got.GPU || !got.Interactive {
		t.Errorf("RunOptions = %+v, want GPU and interactive", got)
	}
}

func TestRun_Smoke(t *testing.T) {
	tests := []struct {
		name     string
		exitCode types.ExitCode
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{name: "passes", exitCode: 0, wantCode: 0, wantOut: "Smoke test passed"},
		{name: "fails", exitCode: 1, wantCode: 1, wantErr: "run smoke test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &fakeEngine{images: map[string]bool{"sleap:ci": true}, exitCode: tt.exitCode}
			app, stdout, stderr := newTestApp(t, eng, nil)

			if code := Run(context.Background(), app, []string{"smoke", "-t", "sleap:ci"}); code != tt.wantCode {
				t.Fatalf("Run() = %d, want %d (stderr: %s)", code, tt.wantCode, stderr)
			}
			if !strings.Contains(stdout.String(), tt.wantOut) {
				t.Errorf("stdout = %q, want %q", stdout, tt.wantOut)
			}
			if !strings.Contains(stderr.String(), tt.wantErr) {
				t.Errorf("stderr = %q, want %q", stderr, tt.wantErr)
			}
			if len(eng.runs) != 1 || eng.runs[0].WorkDir != "/root" {
				t.Errorf("runs = %+v, want one run in /root", eng.runs)
			}
		})
	}
}

func TestRun_SmokeMissingImage(t *testing.T) {
	eng := &fakeEngine{images: map[string]bool{}}
	app, _, stderr := newTestApp(t, eng, nil)

	if code := Run(context.Background(), app, []string{"smoke"}); code != 1 {
		t.Fatalf("Run() = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "sleapenv build -t sleap:latest") {
		t.Errorf("stderr = %q, want build suggestion", stderr)
	}
	if len(eng.runs) != 0 {
		t.Errorf("engine ran %d containers, want 0", len(eng.runs))
	}
}

func TestRun_BuildPull(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("build copies the running binary into the image, which needs a Linux host")
	}
	eng := &fakeEngine{images: map[string]bool{}}
	app, _, stderr := newTestApp(t, eng, nil)
	t.Setenv("HOME", t.TempDir())
	if err := os.WriteFile("setup.py", []byte("from setuptools import setup\nsetup(name=\"sleap\")\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if code := Run(context.Background(), app, []string{"--verbose", "build", "--offline", "--pull"}); code != 0 {
		t.Fatalf("Run() = %d, want 0 (stderr: %s)", code, stderr)
	}
	if len(eng.builds) != 1 || !eng.builds[0].Pull {
		t.Errorf("builds = %+v, want one build with Pull", eng.builds)
	}
	if !strings.Contains(stderr.String(), "27.0.0") {
		t.Errorf("stderr = %q, want engine version in debug log", stderr)
	}
}

func TestRun_NoEngine(t *testing.T) {
	app, _, stderr := newTestApp(t, nil, &container.EngineNotAvailableError{Engine: container.EngineTypeDocker, Reason: "not installed"})

	if code := Run(context.Background(), app, []string{"run"}); code != 1 {
		t.Fatalf("Run() = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "not installed") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRun_EngineFlag(t *testing.T) {
	var got container.EngineType
	app, _, _ := newTestApp(t, nil, nil)
	app.NewEngine = func(_ context.Context, preferred container.EngineType) (container.Engine, error) {
		got = preferred
		return &fakeEngine{images: map[string]bool{"sleap:latest": true}}, nil
	}

	if code := Run(context.Background(), app, []string{"--engine", "podman", "run"}); code != 0 {
		t.Fatalf("Run() = %d, want 0", code)
	}
	if got != container.EngineTypePodman {
		t.Errorf("preferred engine = %q, want podman", got)
	}
}
