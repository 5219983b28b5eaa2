// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/sleapenv/sleapenv/internal/config"
	"github.com/sleapenv/sleapenv/internal/container"
	"github.com/sleapenv/sleapenv/internal/issue"
	"github.com/sleapenv/sleapenv/internal/pipeline"
	"github.com/sleapenv/sleapenv/internal/session"
)

// errBinaryNotLinux is returned by build on a non-Linux host without provision.binary_path.
var errBinaryNotLinux = errors.New("the running sleapenv binary cannot run inside a Linux image")

// formatErrorForDisplay formats an error for user-friendly display.
// Actionable errors carry their suggestions; verbose adds the error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// classifyError maps a failure to the catalog issue that explains it, or nil.
func classifyError(err error) *issue.Issue {
	var stepErr *pipeline.StepError
	switch {
	case errors.Is(err, errBinaryNotLinux):
		return issue.Get(issue.BinaryNotLinuxId)
	case errors.Is(err, container.ErrEngineNotAvailable):
		return issue.Get(issue.ContainerEngineNotFoundId)
	case errors.Is(err, session.ErrSmokeFailed):
		return issue.Get(issue.SmokeTestFailedId)
	case errors.Is(err, config.ErrInvalidConfig), errors.Is(err, config.ErrUnknownVariant), errors.Is(err, config.ErrInvalidVariant):
		return issue.Get(issue.ConfigLoadFailedId)
	case errors.As(err, &stepErr) && stepErr.Kind != "":
		return issue.IssueFor(stepErr.Kind)
	default:
		return issue.IssueFor(issue.KindOf(err))
	}
}

// fail reports err with the issue classifyError picks for it.
func (app *App) fail(err error) error {
	return app.failWith(classifyError(err), err)
}

// failWith prints the rendered issue (when known) and the styled error to
// stderr, and returns an ExitError so the error handler stays quiet.
func (app *App) failWith(is *issue.Issue, err error) error {
	if is != nil {
		if rendered, renderErr := is.Render("dark"); renderErr == nil {
			fmt.Fprint(app.Stderr, rendered)
		}
	}
	fmt.Fprintf(app.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), formatErrorForDisplay(err, app.flags.verbose))
	return &ExitError{Code: 1, Err: err}
}
