// SPDX-License-Identifier: MPL-2.0

// Package workspace finalizes the environment's default working directory.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/sleapenv/sleapenv/internal/env"
	"github.com/sleapenv/sleapenv/internal/issue"
	"github.com/sleapenv/sleapenv/internal/pipeline"
)

// DefaultDir is the working directory sessions start in.
const DefaultDir = "/root"

var (
	// ErrNotDirectory is returned when the workspace path is not a directory.
	ErrNotDirectory = errors.New("workspace is not a directory")
	// ErrRelativeDir is returned for a relative workspace path.
	ErrRelativeDir = errors.New("workspace must be an absolute path")
)

// Step sets the default working directory.
type Step struct {
	dir string
}

// NewStep returns the workspace step for dir. Empty means DefaultDir.
func NewStep(dir string) (*Step, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if !path.IsAbs(dir) {
		return nil, fmt.Errorf("%q: %w", dir, ErrRelativeDir)
	}
	return &Step{dir: path.Clean(dir)}, nil
}

// Dir returns the workspace directory.
func (s *Step) Dir() string { return s.dir }

// Name implements pipeline.Step.
func (s *Step) Name() pipeline.StepName { return pipeline.StepWorkspace }

// Kind implements pipeline.Step.
func (s *Step) Kind() issue.Kind { return issue.KindProvisioning }

// Apply verifies the directory and records it as the working directory.
func (s *Step) Apply(_ context.Context, e *env.Environment) error {
	info, err := os.Stat(e.Path(s.dir))
	if err == nil && !info.IsDir() {
		err = fmt.Errorf("%s: %w", s.dir, ErrNotDirectory)
	}
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("set working directory").
			WithResource(s.dir).
			WithKind(issue.KindProvisioning).
			WithSuggestion("Set workspace.dir to an existing directory such as the dataset's parent").
			Wrap(err).
			BuildError()
	}
	e.SetWorkDir(s.dir)
	e.Logger().Info("workspace ready", "dir", s.dir)
	return nil
}
