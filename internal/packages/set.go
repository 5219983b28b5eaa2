// SPDX-License-Identifier: MPL-2.0

package packages

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// debianName is the Debian policy grammar for package names.
var debianName = regexp.MustCompile(`^[a-z0-9][a-z0-9+.-]+$`)

// ErrInvalidPackageName is the sentinel error wrapped by InvalidPackageNameError.
var ErrInvalidPackageName = errors.New("invalid package name")

type (
	// Set is an ordered collection of package names without duplicates.
	// The zero value is an empty set ready to use.
	Set struct {
		names []string
	}

	// InvalidPackageNameError is returned for names outside the Debian grammar.
	InvalidPackageNameError struct {
		Value string
	}
)

// Error implements the error interface.
func (e *InvalidPackageNameError) Error() string {
	return fmt.Sprintf("invalid package name %q (lowercase letters, digits, '+', '-', '.'; at least two characters)", e.Value)
}

// Unwrap returns ErrInvalidPackageName for errors.Is() compatibility.
func (e *InvalidPackageNameError) Unwrap() error { return ErrInvalidPackageName }

// ValidateName checks name against the Debian package name grammar.
func ValidateName(name string) error {
	if !debianName.MatchString(name) {
		return &InvalidPackageNameError{Value: name}
	}
	return nil
}

// NewSet builds a Set from names, keeping first occurrences in order.
func NewSet(names ...string) (Set, error) {
	var s Set
	for _, n := range names {
		if err := s.Add(n); err != nil {
			return Set{}, err
		}
	}
	return s, nil
}

// Merge returns required followed by optional, with duplicates removed.
func Merge(required, optional []string) (Set, error) {
	return NewSet(slices.Concat(required, optional)...)
}

// Add appends name unless it is already present.
func (s *Set) Add(name string) error {
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return err
	}
	if !slices.Contains(s.names, name) {
		s.names = append(s.names, name)
	}
	return nil
}

// Names returns the packages in insertion order.
func (s Set) Names() []string { return slices.Clone(s.names) }

// Len returns the number of packages.
func (s Set) Len() int { return len(s.names) }

// Contains reports whether name is in the set.
func (s Set) Contains(name string) bool { return slices.Contains(s.names, name) }

// String returns the names separated by spaces.
func (s Set) String() string { return strings.Join(s.names, " ") }

// MarshalYAML encodes the set as a sequence of names.
func (s Set) MarshalYAML() (any, error) {
	if s.names == nil {
		return []string{}, nil
	}
	return s.names, nil
}

// UnmarshalYAML decodes and validates a sequence of names.
func (s *Set) UnmarshalYAML(node *yaml.Node) error {
	var names []string
	if err := node.Decode(&names); err != nil {
		return err
	}
	set, err := NewSet(names...)
	if err != nil {
		return err
	}
	*s = set
	return nil
}
