// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// ActionableError carries the failed operation, the resource involved, and
// remediation hints. Kind places a failure in the provisioning taxonomy
// (resolution, installation, provisioning) and the Issue catalog holds
// Markdown guidance for each kind, rendered with glamour by the CLI.
package issue
