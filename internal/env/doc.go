// SPDX-License-Identifier: MPL-2.0

// Package env provides the environment handle that provisioning steps act on.
//
// An Environment pairs a filesystem root with a command runner. Inside an image
// build the root is "/" and commands run in the image being built. Tests use a
// temporary root and an injected exec function, so steps never touch the host
// system or rely on ambient global state.
//
// The root only maps file paths (see Environment.Path). Commands run through
// the exec function as-is, so any path handed to a command must be mapped first.
package env
