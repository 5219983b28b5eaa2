// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sleapenv/sleapenv/internal/env"
	"github.com/sleapenv/sleapenv/internal/issue"
)

const (
	// StepBase verifies the base environment provides the pinned framework.
	StepBase StepName = "base"
	// StepPackages installs native OS packages.
	StepPackages StepName = "packages"
	// StepToolkit installs the toolkit from its local or remote source.
	StepToolkit StepName = "toolkit"
	// StepDataset downloads and unpacks the sample dataset.
	StepDataset StepName = "dataset"
	// StepWorkspace sets the default working directory.
	StepWorkspace StepName = "workspace"

	// PhaseCheck is the precondition phase.
	PhaseCheck Phase = "check"
	// PhaseApply is the mutation phase.
	PhaseApply Phase = "apply"
	// PhaseVerify is the postcondition phase.
	PhaseVerify Phase = "verify"
)

// Order is the canonical step order.
var Order = []StepName{StepBase, StepPackages, StepToolkit, StepDataset, StepWorkspace}

// ErrInvalidStepName is the sentinel error wrapped by InvalidStepNameError.
var ErrInvalidStepName = errors.New("invalid step name")

type (
	// StepName identifies a provisioning step.
	StepName string

	// InvalidStepNameError is returned when a StepName is not one of Order.
	InvalidStepNameError struct {
		Value StepName
	}

	// Phase identifies which part of a step failed.
	Phase string

	// Step is one provisioning stage.
	Step interface {
		Name() StepName
		// Kind classifies failures of this step when the error carries no kind.
		Kind() issue.Kind
		Apply(ctx context.Context, e *env.Environment) error
	}

	// Checker is implemented by steps with a precondition.
	Checker interface {
		Check(ctx context.Context, e *env.Environment) error
	}

	// Verifier is implemented by steps with a postcondition.
	Verifier interface {
		Verify(ctx context.Context, e *env.Environment) error
	}

	// StepError reports the step, phase and kind of a pipeline failure.
	StepError struct {
		Step  StepName
		Phase Phase
		Kind  issue.Kind
		Err   error
	}
)

// String returns the string representation of the StepName.
func (n StepName) String() string { return string(n) }

// Validate returns an error unless n is one of Order.
func (n StepName) Validate() error {
	if !slices.Contains(Order, n) {
		return &InvalidStepNameError{Value: n}
	}
	return nil
}

func (n StepName) index() int { return slices.Index(Order, n) }

// Error implements the error interface.
func (e *InvalidStepNameError) Error() string {
	names := make([]string, len(Order))
	for i, n := range Order {
		names[i] = string(n)
	}
	return fmt.Sprintf("invalid step name %q (valid: %s)", e.Value, strings.Join(names, ", "))
}

// Unwrap returns ErrInvalidStepName for errors.Is() compatibility.
func (e *InvalidStepNameError) Unwrap() error { return ErrInvalidStepName }

// ParseStepNames converts and validates step names.
func ParseStepNames(names []string) ([]StepName, error) {
	out := make([]StepName, 0, len(names))
	for _, s := range names {
		n := StepName(s)
		if err := n.Validate(); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed (%s, %s): %v", e.Step, e.Phase, e.Kind, e.Err)
}

// Unwrap returns the step's error.
func (e *StepError) Unwrap() error { return e.Err }
