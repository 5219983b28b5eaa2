// SPDX-License-Identifier: MPL-2.0

// Package packages installs the native OS libraries and utilities the toolkit
// needs. Required packages are installed ahead of optional helpers, and an
// environment that already has every package is left untouched.
package packages
