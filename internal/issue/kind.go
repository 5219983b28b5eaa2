// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
)

const (
	// KindResolution covers an unreachable base image or remote toolkit source.
	KindResolution Kind = "resolution"
	// KindInstallation covers package and toolkit installation failures.
	KindInstallation Kind = "installation"
	// KindProvisioning covers dataset download, directory creation, and extraction failures.
	KindProvisioning Kind = "provisioning"
)

// ErrInvalidKind is the sentinel error wrapped by InvalidKindError.
var ErrInvalidKind = errors.New("invalid failure kind")

type (
	// Kind classifies a provisioning failure. The zero value means unclassified.
	Kind string

	// InvalidKindError is returned when a Kind is not one of the defined kinds.
	InvalidKindError struct {
		Value Kind
	}
)

// Error implements the error interface.
func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("invalid failure kind %q (valid: resolution, installation, provisioning)", e.Value)
}

// Unwrap returns ErrInvalidKind so callers can use errors.Is for programmatic detection.
func (e *InvalidKindError) Unwrap() error { return ErrInvalidKind }

// Validate returns an error if the Kind is not one of the defined kinds.
// The zero value is valid.
func (k Kind) Validate() error {
	switch k {
	case "", KindResolution, KindInstallation, KindProvisioning:
		return nil
	default:
		return &InvalidKindError{Value: k}
	}
}

// String returns the string representation of the Kind.
func (k Kind) String() string { return string(k) }

// KindOf returns the Kind of the first ActionableError in err's chain that has one.
func KindOf(err error) Kind {
	for err != nil {
		var ae *ActionableError
		if !errors.As(err, &ae) {
			return ""
		}
		if ae.Kind != "" {
			return ae.Kind
		}
		err = ae.Cause
	}
	return ""
}

// IssueFor maps a failure kind to the catalog issue that explains it.
func IssueFor(kind Kind) *Issue {
	switch kind {
	case KindResolution:
		return Get(ResolutionFailedId)
	case KindInstallation:
		return Get(InstallationFailedId)
	case KindProvisioning:
		return Get(ProvisioningFailedId)
	default:
		return nil
	}
}
