// SPDX-License-Identifier: MPL-2.0

// Package dataset provisions the sample dataset inside an environment.
//
// Provisioning runs four sub-steps in order: download the archive next to
// the destination (the destination path plus the archive extension), create
// the destination directory, extract, and delete the archive. Extraction is
// staged in a sibling temporary directory and published entry by entry only
// once the whole archive has been read, so a failed extraction leaves no
// partial tree behind. The downloaded archive is removed on every exit path.
//
// Archive entries that would land outside the destination are rejected.
// Symbolic and hard links inside archives are skipped.
package dataset
