// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sleapenv/sleapenv/pkg/types"
)

const (
	// EngineTypePodman is the podman CLI.
	EngineTypePodman EngineType = "podman"
	// EngineTypeDocker is the docker CLI.
	EngineTypeDocker EngineType = "docker"
)

var (
	// ErrEngineNotAvailable is the sentinel error wrapped by EngineNotAvailableError.
	ErrEngineNotAvailable = errors.New("container engine not available")

	// ErrInvalidEngineType is the sentinel error wrapped by InvalidEngineTypeError.
	ErrInvalidEngineType = errors.New("invalid container engine type")
)

type (
	// Engine is a container runtime driven through its CLI.
	Engine interface {
		// Name returns the engine name (docker or podman).
		Name() string
		// Available reports whether the engine binary exists and its daemon answers.
		Available(ctx context.Context) bool
		// Version returns the engine version.
		Version(ctx context.Context) (string, error)
		// Build builds an image from a Dockerfile.
		Build(ctx context.Context, opts BuildOptions) error
		// Run runs a command in a new container.
		Run(ctx context.Context, opts RunOptions) (*RunResult, error)
		// ImageExists reports whether an image is present locally.
		ImageExists(ctx context.Context, image string) (bool, error)
		// ImageLabel returns the value of a label on a local image, or "" if unset.
		ImageLabel(ctx context.Context, image, key string) (string, error)
	}

	// EngineType identifies the container engine.
	EngineType string

	// InvalidEngineTypeError is returned for an EngineType other than docker or podman.
	InvalidEngineTypeError struct {
		Value EngineType
	}

	// EngineNotAvailableError is returned when neither the preferred engine nor
	// its fallback is usable.
	EngineNotAvailableError struct {
		Engine EngineType
		Reason string
	}

	// BuildOptions contains options for building an image.
	BuildOptions struct {
		// ContextDir is the build context directory.
		ContextDir string
		// Dockerfile is the path to the Dockerfile, relative to ContextDir.
		Dockerfile string
		// Tag is the image tag.
		Tag string
		// Labels are added to the image.
		Labels map[string]string
		// NoCache disables the engine's layer cache.
		NoCache bool
		// Pull always pulls the base image.
		Pull bool
		// Stdout receives build output.
		Stdout io.Writer
		// Stderr receives build errors.
		Stderr io.Writer
	}

	// RunOptions contains options for running a container.
	RunOptions struct {
		Image   string
		Command []string
		WorkDir string
		// GPU exposes every host GPU to the container.
		GPU         bool
		Remove      bool
		Interactive bool
		TTY         bool
		Stdin       io.Reader
		Stdout      io.Writer
		Stderr      io.Writer
	}

	// RunResult is the outcome of a container run. A non-zero exit of the
	// containerized command is reported in ExitCode, not as an error.
	RunResult struct {
		ExitCode types.ExitCode
		// Error is set when the engine itself could not be executed.
		Error error
	}
)

// String returns the string representation of the EngineType.
func (t EngineType) String() string { return string(t) }

// Validate returns an error if the EngineType is not docker or podman.
func (t EngineType) Validate() error {
	switch t {
	case EngineTypeDocker, EngineTypePodman:
		return nil
	default:
		return &InvalidEngineTypeError{Value: t}
	}
}

// Error implements the error interface.
func (e *InvalidEngineTypeError) Error() string {
	return fmt.Sprintf("invalid container engine type %q (valid: docker, podman)", e.Value)
}

// Unwrap returns ErrInvalidEngineType for errors.Is() compatibility.
func (e *InvalidEngineTypeError) Unwrap() error { return ErrInvalidEngineType }

// Error implements the error interface.
func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// Unwrap returns ErrEngineNotAvailable for errors.Is() compatibility.
func (e *EngineNotAvailableError) Unwrap() error { return ErrEngineNotAvailable }

// Validate checks that the build has a context directory and a tag.
func (o BuildOptions) Validate() error {
	if o.ContextDir == "" {
		return errors.New("build context directory is required")
	}
	if o.Tag == "" {
		return errors.New("image tag is required")
	}
	return nil
}

// Validate checks that the run names an image.
func (o RunOptions) Validate() error {
	if o.Image == "" {
		return errors.New("image is required")
	}
	return nil
}

// NewEngine returns the preferred engine, or the other one when the preferred
// engine is unavailable.
func NewEngine(ctx context.Context, preferred EngineType, opts ...BaseCLIEngineOption) (Engine, error) {
	if err := preferred.Validate(); err != nil {
		return nil, err
	}

	docker := func() Engine { return NewDockerEngine(opts...) }
	podman := func() Engine { return NewPodmanEngine(opts...) }
	candidates := []func() Engine{docker, podman}
	if preferred == EngineTypePodman {
		candidates = []func() Engine{podman, docker}
	}

	for _, newEngine := range candidates {
		if e := newEngine(); e.Available(ctx) {
			return e, nil
		}
	}
	other := EngineTypePodman
	if preferred == EngineTypePodman {
		other = EngineTypeDocker
	}
	return nil, &EngineNotAvailableError{
		Engine: preferred,
		Reason: fmt.Sprintf("%s is not installed or not accessible, and %s fallback is also not available", preferred, other),
	}
}
