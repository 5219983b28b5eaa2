// SPDX-License-Identifier: MPL-2.0

package baseimage

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/sleapenv/sleapenv/internal/issue"

	"github.com/Masterminds/semver/v3"
)

var (
	// ErrUnknownVariant is returned by Select for a variant with no base image.
	ErrUnknownVariant = errors.New("unknown build variant")
	// ErrFrameworkMismatch is returned when a framework version violates the constraint.
	ErrFrameworkMismatch = errors.New("framework version does not satisfy constraint")
)

// Selector maps build variants to base images.
type Selector struct {
	variants   map[string]Spec
	constraint *semver.Constraints
}

// NewSelector returns a Selector over variants. constraint is a semver range
// such as ">=2.6.0, <2.7.0"; empty accepts any framework version.
func NewSelector(variants map[string]Spec, constraint string) (*Selector, error) {
	for name, spec := range variants {
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("variant %s: %w", name, err)
		}
	}
	c, err := ParseConstraint(constraint)
	if err != nil {
		return nil, err
	}
	return &Selector{variants: maps.Clone(variants), constraint: c}, nil
}

// ParseConstraint parses a framework version constraint. Empty yields nil.
func ParseConstraint(constraint string) (*semver.Constraints, error) {
	if strings.TrimSpace(constraint) == "" {
		return nil, nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("invalid framework constraint %q: %w", constraint, err)
	}
	return c, nil
}

// Variants returns the known variant names, sorted.
func (s *Selector) Variants() []string {
	return slices.Sorted(maps.Keys(s.variants))
}

// Select returns the base image for variant. The same variant always yields
// the same Spec.
func (s *Selector) Select(variant string) (Spec, error) {
	spec, ok := s.variants[variant]
	if !ok {
		return Spec{}, issue.NewErrorContext().
			WithOperation("select base image").
			WithResource(variant).
			WithKind(issue.KindResolution).
			WithSuggestion("Available variants: " + strings.Join(s.Variants(), ", ")).
			Wrap(fmt.Errorf("%w: %q", ErrUnknownVariant, variant)).
			BuildError()
	}

	if spec.Framework.Version != "" {
		if err := CheckFramework(s.constraint, spec.Framework.Version); err != nil {
			return Spec{}, issue.NewErrorContext().
				WithOperation("select base image").
				WithResource(spec.Reference()).
				WithKind(issue.KindResolution).
				WithSuggestion("Pick a base image tag whose framework version satisfies the constraint").
				WithSuggestion("Or relax framework.constraint in the configuration").
				Wrap(err).
				BuildError()
		}
	}
	return spec, nil
}

// CheckFramework reports whether version satisfies c. A nil constraint accepts
// every parseable version.
func CheckFramework(c *semver.Constraints, version string) error {
	v, err := semver.NewVersion(strings.TrimSpace(version))
	if err != nil {
		return fmt.Errorf("framework version %q: %w", version, err)
	}
	if c != nil && !c.Check(v) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrFrameworkMismatch, v, c)
	}
	return nil
}
