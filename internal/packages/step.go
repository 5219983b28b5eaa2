// SPDX-License-Identifier: MPL-2.0

package packages

import (
	"context"
	"fmt"
	"strings"

	"github.com/sleapenv/sleapenv/internal/env"
	"github.com/sleapenv/sleapenv/internal/issue"
	"github.com/sleapenv/sleapenv/internal/pipeline"
)

// FactInstalled records the packages installed by Step.
const FactInstalled = "packages.installed"

// Step is the native dependency installation step.
type Step struct {
	set       Set
	installer *Installer
}

// NewStep returns the packages step for set.
func NewStep(set Set, installer *Installer) *Step {
	if installer == nil {
		installer = NewInstaller(nil)
	}
	return &Step{set: set, installer: installer}
}

// Name implements pipeline.Step.
func (s *Step) Name() pipeline.StepName { return pipeline.StepPackages }

// Kind implements pipeline.Step.
func (s *Step) Kind() issue.Kind { return issue.KindInstallation }

// Apply installs the missing packages.
func (s *Step) Apply(ctx context.Context, e *env.Environment) error {
	if s.set.Len() == 0 {
		return nil
	}
	changed, err := s.installer.Install(ctx, e, s.set)
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("install native packages").
			WithResource(s.set.String()).
			WithKind(issue.KindInstallation).
			WithSuggestions(
				"Check that the base image uses apt and can reach its package mirrors",
				"Check the package names in packages.required and packages.optional",
			).
			Wrap(err).
			BuildError()
	}
	if !changed {
		e.Logger().Info("native packages already installed", "count", s.set.Len())
		return nil
	}
	e.Record(FactInstalled, s.set.String())
	return nil
}

// Verify checks that every package is installed after Apply.
func (s *Step) Verify(ctx context.Context, e *env.Environment) error {
	missing, err := s.installer.Missing(ctx, e, s.set)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return issue.NewErrorContext().
			WithOperation("verify native packages").
			WithKind(issue.KindInstallation).
			Wrap(fmt.Errorf("still missing after install: %s", strings.Join(missing, " "))).
			BuildError()
	}
	return nil
}
