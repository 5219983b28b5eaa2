// SPDX-License-Identifier: MPL-2.0

// Package provision builds the environment image from a resolved plan.
//
// The image is a layer stack on top of the pinned base image: the sleapenv
// binary and the plan are copied in, and each provisioning step runs as its
// own RUN instruction so a failing step names itself in the build output and
// earlier layers stay cached. Built images carry a content-hash label, and a
// build whose inputs are unchanged is skipped:
//
//	b := provision.NewBuilder(engine, cfg)
//	result, err := b.Build(ctx, resolved)
//	// result.Image is the image tag, result.Cached reports a skipped build
package provision
