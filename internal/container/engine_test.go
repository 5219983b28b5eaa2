// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/sleapenv/sleapenv/internal/issue"
	"github.com/sleapenv/sleapenv/internal/testutil/execmock"
)

const fakeBinary = "/usr/bin/engine"

func TestHelperProcess(t *testing.T) { execmock.HelperProcess() }

func TestEngineType_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value   EngineType
		wantErr bool
	}{
		{EngineTypeDocker, false},
		{EngineTypePodman, false},
		{"", true},
		{"containerd", true},
	}
	for _, tt := range tests {
		err := tt.value.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("EngineType(%q).Validate() error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidEngineType) {
			t.Errorf("EngineType(%q).Validate() error does not wrap ErrInvalidEngineType", tt.value)
		}
	}
}

func TestBuildArgs(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine(fakeBinary)
	tests := []struct {
		name string
		opts BuildOptions
		want []string
	}{
		{
			name: "minimal",
			opts: BuildOptions{ContextDir: "/ctx", Tag: "sleap:latest"},
			want: []string{"build", "-t", "sleap:latest", "/ctx"},
		},
		{
			name: "dockerfile relative to context",
			opts: BuildOptions{ContextDir: "/ctx", Dockerfile: "Dockerfile", Tag: "sleap:latest"},
			want: []string{"build", "-f", "/ctx/Dockerfile", "-t", "sleap:latest", "/ctx"},
		},
		{
			name: "labels sorted and cache flags",
			opts: BuildOptions{
				ContextDir: "/ctx",
				Tag:        "sleap:gpu",
				NoCache:    true,
				Pull:       true,
				Labels:     map[string]string{"b": "2", "a": "1"},
			},
			want: []string{"build", "-t", "sleap:gpu", "--no-cache", "--pull", "--label", "a=1", "--label", "b=2", "/ctx"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := e.BuildArgs(tt.opts); !slices.Equal(got, tt.want) {
				t.Errorf("BuildArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunArgs_GPU(t *testing.T) {
	t.Parallel()

	opts := RunOptions{
		Image:       "sleap:latest",
		Command:     []string{"sleap-train", "--help"},
		WorkDir:     "/root",
		GPU:         true,
		Remove:      true,
		Interactive: true,
		TTY:         true,
	}

	tests := []struct {
		name   string
		engine *BaseCLIEngine
		want   []string
	}{
		{
			name:   "docker",
			engine: NewDockerEngine(WithBinaryPath(fakeBinary)).BaseCLIEngine,
			want: []string{
				"run", "--rm", "--gpus", "all", "-w", "/root", "-i", "-t",
				"sleap:latest", "sleap-train", "--help",
			},
		},
		{
			name:   "podman",
			engine: NewPodmanEngine(WithBinaryPath(fakeBinary)).BaseCLIEngine,
			want: []string{
				"run", "--rm", "--device", "nvidia.com/gpu=all", "-w", "/root", "-i", "-t",
				"sleap:latest", "sleap-train", "--help",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.engine.RunArgs(opts); !slices.Equal(got, tt.want) {
				t.Errorf("RunArgs() =\n  %v\nwant\n  %v", got, tt.want)
			}
		})
	}

	noGPU := opts
	noGPU.GPU = false
	if got := NewDockerEngine().RunArgs(noGPU); slices.Contains(got, "--gpus") {
		t.Errorf("RunArgs() without GPU = %v, want no --gpus", got)
	}
}

func TestBaseCLIEngine_Build(t *testing.T) {
	t.Parallel()

	rec := execmock.New()
	e := NewDockerEngine(WithBinaryPath(fakeBinary), WithExecCommand(rec.CommandFunc(t)))

	if err := e.Build(context.Background(), BuildOptions{ContextDir: "/ctx", Tag: "sleap:latest"}); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	rec.AssertCommands(t, fakeBinary+" build -t sleap:latest /ctx")

	if err := e.Build(context.Background(), BuildOptions{ContextDir: "/ctx"}); err == nil {
		t.Error("Build() without tag expected error")
	}
}

func TestBaseCLIEngine_BuildFailure(t *testing.T) {
	t.Parallel()

	rec := execmock.New().Fail(1, "step 3 failed", fakeBinary, "build")
	e := NewPodmanEngine(WithBinaryPath(fakeBinary), WithExecCommand(rec.CommandFunc(t)))

	err := e.Build(context.Background(), BuildOptions{ContextDir: "/ctx", Tag: "sleap:latest"})
	if err == nil {
		t.Fatal("Build() expected error")
	}
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("Build() error = %T, want *issue.ActionableError", err)
	}
	if ae.Resource != "sleap:latest" {
		t.Errorf("Resource = %q, want sleap:latest", ae.Resource)
	}
	if !strings.Contains(strings.Join(ae.Suggestions, "\n"), "podman pull") {
		t.Errorf("Suggestions = %v, want a podman pull hint", ae.Suggestions)
	}
}

func TestBaseCLIEngine_Run(t *testing.T) {
	t.Parallel()

	rec := execmock.New().
		Stdout("ok", fakeBinary, "run", "--rm", "--gpus", "all", "sleap:latest", "true").
		Fail(3, "", fakeBinary, "run", "--rm", "--gpus", "all", "sleap:latest", "false")
	e := NewDockerEngine(WithBinaryPath(fakeBinary), WithExecCommand(rec.CommandFunc(t)))

	var out strings.Builder
	res, err := e.Run(context.Background(), RunOptions{Image: "sleap:latest", Command: []string{"true"}, GPU: true, Remove: true, Stdout: &out})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 0 || res.Error != nil {
		t.Errorf("Run() = %+v, want success", res)
	}
	if out.String() != "ok" {
		t.Errorf("Run() stdout = %q, want ok", out.String())
	}

	res, err = e.Run(context.Background(), RunOptions{Image: "sleap:latest", Command: []string{"false"}, GPU: true, Remove: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 3 || res.Error != nil {
		t.Errorf("Run() = %+v, want exit code 3 and no engine error", res)
	}

	if _, err := e.Run(context.Background(), RunOptions{}); err == nil {
		t.Error("Run() without image expected error")
	}
}

func TestBaseCLIEngine_ImageLabel(t *testing.T) {
	t.Parallel()

	const key = "io.sleapenv.cache-key"
	rec := execmock.New().
		Stdout("abc123\n", fakeBinary, "image", "inspect", "--format", `{{ index .Config.Labels "io.sleapenv.cache-key" }}`, "sleap:latest").
		Stdout("<no value>\n", fakeBinary, "image", "inspect", "--format", `{{ index .Config.Labels "io.sleapenv.cache-key" }}`, "plain:latest").
		Fail(1, "Error: No such image", fakeBinary, "image", "inspect", "--format", `{{ index .Config.Labels "io.sleapenv.cache-key" }}`, "missing:latest")
	e := NewDockerEngine(WithBinaryPath(fakeBinary), WithExecCommand(rec.CommandFunc(t)))
	ctx := context.Background()

	if got, err := e.ImageLabel(ctx, "sleap:latest", key); err != nil || got != "abc123" {
		t.Errorf("ImageLabel(sleap) = %q, %v; want abc123", got, err)
	}
	if got, err := e.ImageLabel(ctx, "plain:latest", key); err != nil || got != "" {
		t.Errorf("ImageLabel(plain) = %q, %v; want empty", got, err)
	}
	_, err := e.ImageLabel(ctx, "missing:latest", key)
	if err == nil || !strings.Contains(err.Error(), "No such image") {
		t.Errorf("ImageLabel(missing) error = %v, want stderr in message", err)
	}
}

func TestImageExists(t *testing.T) {
	t.Parallel()

	rec := execmock.New().
		Fail(1, "", fakeBinary, "image", "inspect", "absent").
		Fail(1, "", fakeBinary, "image", "exists", "absent")
	ctx := context.Background()

	engines := []Engine{
		NewDockerEngine(WithBinaryPath(fakeBinary), WithExecCommand(rec.CommandFunc(t))),
		NewPodmanEngine(WithBinaryPath(fakeBinary), WithExecCommand(rec.CommandFunc(t))),
	}
	for _, e := range engines {
		if ok, _ := e.ImageExists(ctx, "present"); !ok {
			t.Errorf("%s ImageExists(present) = false", e.Name())
		}
		if ok, _ := e.ImageExists(ctx, "absent"); ok {
			t.Errorf("%s ImageExists(absent) = true", e.Name())
		}
	}
}

func TestNewEngine_Fallback(t *testing.T) {
	t.Parallel()

	rec := execmock.New().
		Fail(1, "cannot connect to podman", fakeBinary, "version", "--format", "{{.Version}}").
		Stdout("27.1.0\n", fakeBinary, "version", "--format", "{{.Server.Version}}")

	e, err := NewEngine(context.Background(), EngineTypePodman, WithBinaryPath(fakeBinary), WithExecCommand(rec.CommandFunc(t)))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if e.Name() != "docker" {
		t.Errorf("NewEngine(podman) = %s, want docker fallback", e.Name())
	}
	v, err := e.Version(context.Background())
	if err != nil || v != "27.1.0" {
		t.Errorf("Version() = %q, %v", v, err)
	}
}

func TestNewEngine_NoneAvailable(t *testing.T) {
	t.Parallel()

	rec := execmock.New().Fail(1, "", fakeBinary, "version")
	_, err := NewEngine(context.Background(), EngineTypeDocker, WithBinaryPath(fakeBinary), WithExecCommand(rec.CommandFunc(t)))
	if !errors.Is(err, ErrEngineNotAvailable) {
		t.Fatalf("NewEngine() error = %v, want ErrEngineNotAvailable", err)
	}
	if !strings.Contains(err.Error(), "podman fallback") {
		t.Errorf("NewEngine() error = %q, want fallback mention", err)
	}

	if _, err := NewEngine(context.Background(), "lxc"); !errors.Is(err, ErrInvalidEngineType) {
		t.Errorf("NewEngine(lxc) error = %v, want ErrInvalidEngineType", err)
	}
}
