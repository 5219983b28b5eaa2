// SPDX-License-Identifier: MPL-2.0

// Package pipeline runs provisioning steps in their fixed order and stops at the
// first failure.
//
// The order is base, packages, toolkit, dataset, workspace. A step may declare
// a precondition (Checker) and a postcondition (Verifier) around Apply. The
// first error from any phase ends the run; the returned *StepError names the
// step, the phase, and the failure kind (resolution, installation or
// provisioning). There are no retries.
package pipeline
