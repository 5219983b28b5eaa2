// SPDX-License-Identifier: MPL-2.0

// Package container drives the docker and podman command line tools.
//
// The Engine interface covers what environment builds need: building an image
// from a generated context, running a command in a GPU-enabled container, and
// inspecting the cache label of an existing image. DockerEngine and
// PodmanEngine both embed BaseCLIEngine, which builds the argument lists and
// executes them through an injectable ExecCommandFunc.
//
// Engine selection uses NewEngine(EngineType), which falls back to the other
// engine when the preferred one is unavailable.
package container
