// SPDX-License-Identifier: MPL-2.0

// Package baseimage selects and resolves the pinned base runtime image.
//
// A Selector picks exactly one Spec per build variant and checks the image's
// framework version against the toolkit's constraint. A Resolver asks the
// registry for the manifest digest of the selected reference; an unreachable or
// unknown image is a resolution failure and nothing falls back to another
// image. Inside the environment, Step confirms the framework the image
// actually ships satisfies the same constraint.
package baseimage
