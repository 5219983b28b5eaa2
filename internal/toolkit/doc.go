// SPDX-License-Identifier: MPL-2.0

// Package toolkit installs the pose-estimation toolkit from exactly one
// source: a local source tree staged at a fixed path, or a remote git
// repository pinned to a branch, tag or commit.
//
// The host resolves the source before any build work starts (a local tree
// must carry a Python package descriptor, a remote ref must exist). The
// environment side then installs it with pip and checks that the toolkit's
// entry points resolve on PATH.
package toolkit
