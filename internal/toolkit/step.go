// SPDX-License-Identifier: MPL-2.0

package toolkit

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/sleapenv/sleapenv/internal/env"
	"github.com/sleapenv/sleapenv/internal/issue"
	"github.com/sleapenv/sleapenv/internal/pipeline"
)

const (
	// FactSource records the installed source.
	FactSource = "toolkit.source"
	// FactCommit records the installed commit of a remote source.
	FactCommit = "toolkit.commit"
)

// ErrMissingEntryPoints is returned by Verify when entry points do not resolve.
var ErrMissingEntryPoints = errors.New("toolkit entry points not on PATH")

// Step installs the toolkit into the environment.
type Step struct {
	src      Source
	settings Settings
	ignore   Ignore
}

// NewStep returns the toolkit step.
func NewStep(src Source, settings Settings) (*Step, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	settings = settings.WithDefaults()
	if !path.IsAbs(settings.InstallPath) {
		return nil, fmt.Errorf("install path %q must be absolute", settings.InstallPath)
	}
	ig, err := NewIgnore(settings.Ignore)
	if err != nil {
		return nil, err
	}
	return &Step{src: src, settings: settings, ignore: ig}, nil
}

// Name implements pipeline.Step.
func (s *Step) Name() pipeline.StepName { return pipeline.StepToolkit }

// Kind implements pipeline.Step.
func (s *Step) Kind() issue.Kind { return issue.KindInstallation }

// Check confirms a local source tree is present and installable.
func (s *Step) Check(_ context.Context, e *env.Environment) error {
	if s.src.Kind != KindLocal {
		return nil
	}
	if err := ValidateTree(e.Path(s.src.Path)); err != nil {
		return s.fail("locate toolkit source", s.src.Path, err,
			"Point variants.<name>.toolkit.local.path at a checkout containing pyproject.toml or setup.py")
	}
	return nil
}

// Apply stages a local tree at the install path and installs the toolkit with pip.
func (s *Step) Apply(ctx context.Context, e *env.Environment) error {
	var target string
	switch s.src.Kind {
	case KindLocal:
		if err := s.stage(e); err != nil {
			return err
		}
		target = e.Path(s.settings.InstallPath)
	case KindRemote:
		target = s.src.PipSpec()
	}

	e.Logger().Info("installing toolkit", "source", s.src.String(), "target", target)
	if err := e.Run(ctx, s.settings.Python, "-m", "pip", "install", target); err != nil {
		return s.fail("install toolkit", s.src.String(), err,
			"Check the pip output above for the failing requirement",
			"Pin a framework-compatible toolkit version")
	}

	e.Record(FactSource, s.src.String())
	if s.src.Commit != "" {
		e.Record(FactCommit, s.src.Commit)
	}
	return nil
}

// stage copies the local tree to the install path unless it is already there.
func (s *Step) stage(e *env.Environment) error {
	src := e.Path(s.src.Path)
	dst := e.Path(s.settings.InstallPath)
	if src != dst {
		n, err := CopyTree(src, dst, s.ignore)
		if err != nil {
			return s.fail("stage toolkit source", s.settings.InstallPath, err)
		}
		e.Logger().Debug("staged toolkit tree", "from", s.src.Path, "to", s.settings.InstallPath, "files", n)
	}
	if err := ValidateTree(dst); err != nil {
		return s.fail("stage toolkit source", s.settings.InstallPath, err)
	}
	return nil
}

// Verify checks that every configured entry point resolves on PATH.
func (s *Step) Verify(ctx context.Context, e *env.Environment) error {
	var missing []string
	for _, ep := range s.settings.EntryPoints {
		p, err := e.LookPath(ctx, ep)
		if err != nil {
			missing = append(missing, ep)
			continue
		}
		e.Logger().Debug("entry point", "name", ep, "path", p)
	}
	if len(missing) > 0 {
		return s.fail("verify toolkit installation", s.src.String(),
			fmt.Errorf("%w: %s", ErrMissingEntryPoints, strings.Join(missing, ", ")),
			"Check that pip installed console scripts into a directory on PATH")
	}
	return nil
}

func (s *Step) fail(op, resource string, err error, suggestions ...string) error {
	return issue.NewErrorContext().
		WithOperation(op).
		WithResource(resource).
		WithKind(issue.KindInstallation).
		WithSuggestions(suggestions...).
		Wrap(err).
		BuildError()
}
