// SPDX-License-Identifier: MPL-2.0

package toolkit

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Descriptors are the files that make a directory pip-installable.
var Descriptors = []string{"pyproject.toml", "setup.py", "setup.cfg"}

var (
	// ErrNotInstallable is returned for trees without a package descriptor.
	ErrNotInstallable = errors.New("toolkit tree has no package descriptor")
	// ErrNotDirectory is returned when a local source path is not a directory.
	ErrNotDirectory = errors.New("toolkit source is not a directory")
)

// Ignore matches tree-relative, slash-separated paths against doublestar
// patterns.
type Ignore []string

// NewIgnore validates patterns.
func NewIgnore(patterns []string) (Ignore, error) {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", pat, doublestar.ErrBadPattern)
		}
	}
	return Ignore(patterns), nil
}

// Match reports whether rel is ignored.
func (ig Ignore) Match(rel string) bool {
	normalized := filepath.ToSlash(rel)
	for _, pat := range ig {
		if matched, err := doublestar.Match(pat, normalized); err == nil && matched {
			return true
		}
	}
	return false
}

// ValidateTree checks that dir is a directory holding a package descriptor.
func ValidateTree(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("toolkit source %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	}
	for _, name := range Descriptors {
		if fi, err := os.Stat(filepath.Join(dir, name)); err == nil && fi.Mode().IsRegular() {
			return nil
		}
	}
	return fmt.Errorf("%s: %w (want one of %s)", dir, ErrNotInstallable, strings.Join(Descriptors, ", "))
}

// Walk calls fn for every regular file under root that ig does not match, in
// lexical order. rel is slash-separated and relative to root. Symlinks and
// other special files are skipped.
func Walk(root string, ig Ignore, fn func(rel, path string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if ig.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return fn(rel, path)
	})
}

// CopyTree copies the files of src not matched by ig into dst, creating
// directories as needed. It returns the number of files copied.
func CopyTree(src, dst string, ig Ignore) (int, error) {
	n := 0
	err := Walk(src, ig, func(rel, path string) error {
		target := filepath.Join(dst, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := copyFile(path, target); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("copy toolkit tree %s to %s: %w", src, dst, err)
	}
	return n, nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
