// SPDX-License-Identifier: MPL-2.0

package baseimage

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSpec is the sentinel error wrapped by InvalidSpecError.
var ErrInvalidSpec = errors.New("invalid base image spec")

type (
	// Spec identifies a base runtime image. Digest is set once resolved.
	Spec struct {
		Registry  string    `yaml:"registry"`
		Tag       string    `yaml:"tag"`
		Digest    string    `yaml:"digest,omitempty"`
		Framework Framework `yaml:"framework"`
	}

	// Framework is the ML framework the image ships.
	Framework struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version,omitempty"`
	}

	// InvalidSpecError is returned when a Spec lacks a registry reference or tag.
	InvalidSpecError struct {
		Spec   Spec
		Reason string
	}
)

// Error implements the error interface.
func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("invalid base image %q: %s", e.Spec.Reference(), e.Reason)
}

// Unwrap returns ErrInvalidSpec for errors.Is() compatibility.
func (e *InvalidSpecError) Unwrap() error { return ErrInvalidSpec }

// Validate checks that the spec names a registry reference and a tag.
func (s Spec) Validate() error {
	switch {
	case strings.TrimSpace(s.Registry) == "":
		return &InvalidSpecError{Spec: s, Reason: "registry reference is required"}
	case strings.TrimSpace(s.Tag) == "":
		return &InvalidSpecError{Spec: s, Reason: "tag is required"}
	case strings.ContainsAny(s.Tag, ":@/"):
		return &InvalidSpecError{Spec: s, Reason: "tag must not contain ':', '@' or '/'"}
	}
	return nil
}

// Reference returns "registry:tag".
func (s Spec) Reference() string { return s.Registry + ":" + s.Tag }

// Pinned returns "registry:tag@digest" when resolved, otherwise Reference.
func (s Spec) Pinned() string {
	if s.Digest == "" {
		return s.Reference()
	}
	return s.Reference() + "@" + s.Digest
}

// String returns the pinned reference.
func (s Spec) String() string { return s.Pinned() }
