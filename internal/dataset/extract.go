// SPDX-License-Identifier: MPL-2.0

package dataset

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

const (
	stagingPattern = ".sleapenv-extract-*"
	backupPattern  = ".sleapenv-replaced-*"
)

// ErrUnsafePath is returned for archive entries that escape the destination.
var ErrUnsafePath = errors.New("archive entry escapes destination")

// Extract unpacks archive into the existing directory dest. Entries are
// written to a staging directory inside dest, so publishing them is a rename
// on one filesystem even when dest is a mount point. A top-level entry
// already present in dest is replaced. On failure dest is left as it was.
func Extract(archive, dest string, format Format) (err error) {
	staging, err := os.MkdirTemp(dest, stagingPattern)
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(staging); rmErr != nil && err == nil {
			err = fmt.Errorf("remove staging directory: %w", rmErr)
		}
	}()

	switch format {
	case FormatZip:
		err = extractZip(archive, staging)
	case FormatTarGz:
		err = extractTarGz(archive, staging)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return err
	}
	return publish(staging, dest, os.Rename)
}

// publish moves every top-level entry of staging into dest. Entries it
// replaces are first moved to a backup directory in dest; if any move fails
// the published entries are removed and the backups restored.
func publish(staging, dest string, rename func(oldpath, newpath string) error) (err error) {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return err
	}
	backup, err := os.MkdirTemp(dest, backupPattern)
	if err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	var replaced, published []string
	defer func() {
		keepBackup := false
		if err != nil {
			for _, name := range published {
				_ = os.RemoveAll(filepath.Join(dest, name))
			}
			for _, name := range replaced {
				if rbErr := rename(filepath.Join(backup, name), filepath.Join(dest, name)); rbErr != nil {
					keepBackup = true
					err = errors.Join(err, fmt.Errorf("restore %s (previous copy kept in %s): %w", name, backup, rbErr))
				}
			}
		}
		if keepBackup {
			return
		}
		if rmErr := os.RemoveAll(backup); rmErr != nil && err == nil {
			err = fmt.Errorf("remove backup directory: %w", rmErr)
		}
	}()

	for _, entry := range entries {
		target := filepath.Join(dest, entry.Name())
		if _, statErr := os.Lstat(target); statErr != nil {
			if errors.Is(statErr, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("replace %s: %w", target, statErr)
		}
		if err := rename(target, filepath.Join(backup, entry.Name())); err != nil {
			return fmt.Errorf("replace %s: %w", target, err)
		}
		replaced = append(replaced, entry.Name())
	}
	for _, entry := range entries {
		target := filepath.Join(dest, entry.Name())
		if err := rename(filepath.Join(staging, entry.Name()), target); err != nil {
			return fmt.Errorf("publish %s: %w", target, err)
		}
		published = append(published, entry.Name())
	}
	return nil
}

// safeJoin resolves an archive entry name under root.
func safeJoin(root, name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if name == "" || strings.HasPrefix(name, "/") || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return filepath.Join(root, cleaned), nil
}

func extractZip(archive, root string) error {
	r, err := zip.OpenReader(archive)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("open zip %s: %w", archive, err)
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		target, err := safeJoin(root, f.Name)
		if err != nil {
			return err
		}
		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case mode&fs.ModeSymlink != 0:
			continue
		default:
			if err := writeZipEntry(f, target); err != nil {
				return fmt.Errorf("extract %s: %w", f.Name, err)
			}
		}
	}
	return nil
}

func writeZipEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	return writeFile(target, rc, f.Mode().Perm())
}

func extractTarGz(archive, root string) error {
	file, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("open tarball %s: %w", archive, err)
	}
	defer func() { _ = file.Close() }()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("open tarball %s: %w", archive, err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tarball %s: %w", archive, err)
		}

		target, err := safeJoin(root, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, fs.FileMode(hdr.Mode).Perm()); err != nil {
				return fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
		}
	}
}

func writeFile(target string, r io.Reader, perm fs.FileMode) (err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm|0o200)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	_, err = io.Copy(out, r)
	return err
}
