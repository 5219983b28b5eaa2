// SPDX-License-Identifier: MPL-2.0

package baseimage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sleapenv/sleapenv/internal/env"
	"github.com/sleapenv/sleapenv/internal/issue"
	"github.com/sleapenv/sleapenv/internal/pipeline"

	"github.com/Masterminds/semver/v3"
)

// FactFrameworkVersion is the environment fact recorded by Step.
const FactFrameworkVersion = "framework.version"

// ErrEmptyProbe is returned by NewStep when no probe command is configured.
var ErrEmptyProbe = errors.New("framework probe command is empty")

// Step confirms the running image ships a framework version that satisfies
// the toolkit's constraint.
type Step struct {
	spec       Spec
	probe      []string
	constraint *semver.Constraints
}

// NewStep returns the base environment step. probe is run inside the
// environment and must print the framework version on its last line.
func NewStep(spec Spec, constraint string, probe []string) (*Step, error) {
	if len(probe) == 0 {
		return nil, ErrEmptyProbe
	}
	c, err := ParseConstraint(constraint)
	if err != nil {
		return nil, err
	}
	return &Step{spec: spec, probe: probe, constraint: c}, nil
}

// Name implements pipeline.Step.
func (s *Step) Name() pipeline.StepName { return pipeline.StepBase }

// Kind implements pipeline.Step.
func (s *Step) Kind() issue.Kind { return issue.KindResolution }

// Apply runs the framework probe and records the detected version.
func (s *Step) Apply(ctx context.Context, e *env.Environment) error {
	out, err := e.Output(ctx, s.probe[0], s.probe[1:]...)
	if err != nil {
		return s.fail(err, "Check that "+s.spec.Reference()+" ships "+s.frameworkName())
	}

	version := lastNonEmptyLine(out)
	if err := CheckFramework(s.constraint, version); err != nil {
		return s.fail(err, "Select a base image whose "+s.frameworkName()+" satisfies the constraint")
	}
	if want := s.spec.Framework.Version; want != "" && !sameVersion(want, version) {
		e.Logger().Warn("framework version differs from variant declaration", "declared", want, "detected", version)
	}

	e.Record(FactFrameworkVersion, version)
	e.Logger().Info("base environment ready", "image", s.spec.Pinned(), "framework", s.frameworkName(), "version", version)
	return nil
}

func (s *Step) frameworkName() string {
	if s.spec.Framework.Name == "" {
		return "the framework"
	}
	return s.spec.Framework.Name
}

func (s *Step) fail(err error, suggestion string) error {
	return issue.NewErrorContext().
		WithOperation("verify base environment").
		WithResource(s.spec.Pinned()).
		WithKind(issue.KindResolution).
		WithSuggestion(suggestion).
		Wrap(fmt.Errorf("%s probe: %w", s.frameworkName(), err)).
		BuildError()
}

func sameVersion(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return strings.TrimSpace(a) == strings.TrimSpace(b)
	}
	return va.Equal(vb)
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
