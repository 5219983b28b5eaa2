// SPDX-License-Identifier: MPL-2.0

package toolkit

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/sleapenv/sleapenv/internal/testutil"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		testutil.MustMkdirAll(t, filepath.Dir(p), 0o755)
		testutil.MustWriteFile(t, p, content)
	}
}

func TestValidateTree(t *testing.T) {
	t.Parallel()

	for _, desc := range Descriptors {
		t.Run(desc, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			writeTree(t, dir, map[string]string{desc: ""})
			if err := ValidateTree(dir); err != nil {
				t.Errorf("ValidateTree() error = %v", err)
			}
		})
	}

	t.Run("no descriptor", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeTree(t, dir, map[string]string{"sleap/__init__.py": ""})
		if err := ValidateTree(dir); !errors.Is(err, ErrNotInstallable) {
			t.Errorf("ValidateTree() error = %v, want ErrNotInstallable", err)
		}
	})

	t.Run("descriptor is a directory", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		testutil.MustMkdirAll(t, filepath.Join(dir, "setup.py"), 0o755)
		if err := ValidateTree(dir); !errors.Is(err, ErrNotInstallable) {
			t.Errorf("ValidateTree() error = %v, want ErrNotInstallable", err)
		}
	})

	t.Run("file", func(t *testing.T) {
		t.Parallel()

		f := filepath.Join(t.TempDir(), "setup.py")
		testutil.MustWriteFile(t, f, "")
		if err := ValidateTree(f); !errors.Is(err, ErrNotDirectory) {
			t.Errorf("ValidateTree() error = %v, want ErrNotDirectory", err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		t.Parallel()

		if err := ValidateTree(filepath.Join(t.TempDir(), "nope")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("ValidateTree() error = %v, want not exist", err)
		}
	})
}

func TestNewIgnore(t *testing.T) {
	t.Parallel()

	if _, err := NewIgnore([]string{"**/*.pyc", ".git/**"}); err != nil {
		t.Errorf("NewIgnore() error = %v", err)
	}
	if _, err := NewIgnore([]string{"[unterminated"}); err == nil {
		t.Error("NewIgnore() should reject a malformed pattern")
	}
}

func TestCopyTree(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"setup.py":                        "from setuptools import setup",
		"sleap/__init__.py":               "",
		"sleap/nn/training.py":            "def main(): pass",
		"sleap/__pycache__/x.cpython.pyc": "bytecode",
		"sleap/nn/old.pyc":                "bytecode",
		".git/HEAD":                       "ref: refs/heads/develop",
		"models/baseline/best_model.h5":   "weights",
	})

	ig, err := NewIgnore([]string{".git/**", "**/__pycache__/**", "**/*.pyc", "models/**"})
	if err != nil {
		t.Fatalf("NewIgnore() error = %v", err)
	}

	dst := filepath.Join(t.TempDir(), "sleap")
	n, err := CopyTree(src, dst, ig)
	if err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}
	if n != 3 {
		t.Errorf("CopyTree() copied %d files, want 3", n)
	}

	var got []string
	if err := Walk(dst, nil, func(rel, _ string) error {
		got = append(got, rel)
		return nil
	}); err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	want := []string{"setup.py", "sleap/__init__.py", "sleap/nn/training.py"}
	if !slices.Equal(got, want) {
		t.Errorf("copied files = %v, want %v", got, want)
	}
	if content := testutil.MustReadFile(t, filepath.Join(dst, "sleap", "nn", "training.py")); content != "def main(): pass" {
		t.Errorf("content = %q", content)
	}
	if err := ValidateTree(dst); err != nil {
		t.Errorf("copied tree is not installable: %v", err)
	}
}
