// SPDX-License-Identifier: MPL-2.0

// Package plan holds the immutable provisioning plan.
//
// A Plan is built once from configuration on the host, resolved against the
// outside world (registry digest, remote git commit, local tree location) and
// then serialized to YAML so the same plan drives the steps that run inside
// the image. Nothing mutates a Plan after construction; resolution and
// relocation return modified copies.
package plan
