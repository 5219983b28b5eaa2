// SPDX-License-Identifier: MPL-2.0

package dataset

import (
	"errors"
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	// ErrEmptyDataset is returned when the destination holds no entries.
	ErrEmptyDataset = errors.New("dataset directory is empty")
	// ErrMissingExpected is returned when an expectation pattern matches nothing.
	ErrMissingExpected = errors.New("dataset is missing expected files")
)

// Verify checks that dest is a non-empty directory and that every pattern in
// expect matches at least one file below it.
func Verify(dest string, expect []string) error {
	info, err := os.Stat(dest)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", dest, ErrNotDirectory)
	}
	entries, err := os.ReadDir(dest)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("%s: %w", dest, ErrEmptyDataset)
	}

	fsys := os.DirFS(dest)
	for _, pattern := range expect {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return fmt.Errorf("expectation %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return fmt.Errorf("%w: nothing matches %q in %s", ErrMissingExpected, pattern, dest)
		}
	}
	return nil
}
