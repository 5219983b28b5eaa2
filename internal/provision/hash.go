// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/sleapenv/sleapenv/internal/plan"
	"github.com/sleapenv/sleapenv/internal/toolkit"

	"github.com/zeebo/blake3"
)

// HashFile returns the BLAKE3 digest of a file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }() // Read-only file; close error non-critical

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashTree returns a digest over the relative paths, modes and contents of
// every file under root that ig does not exclude. Walk order is lexical, so
// the digest is stable.
func HashTree(root string, ig toolkit.Ignore) (string, error) {
	h := blake3.New()
	err := toolkit.Walk(root, ig, func(rel, path string) error {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		sum, err := HashFile(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(h, "%s\x00%o\x00%s\n", rel, info.Mode().Perm(), sum)
		return nil
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CacheKey digests every build input: the plan (without its run id), the
// binary, and the local toolkit tree when there is one.
func CacheKey(p *plan.Plan, binaryPath string) (string, error) {
	stable := *p
	stable.ID = ""
	data, err := stable.Marshal()
	if err != nil {
		return "", fmt.Errorf("encode plan: %w", err)
	}

	h := blake3.New()
	fmt.Fprintf(h, "plan:%x\n", blake3.Sum256(data))

	binHash, err := HashFile(binaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to hash sleapenv binary: %w", err)
	}
	fmt.Fprintf(h, "binary:%s\n", binHash)

	if p.Toolkit.Source.Kind == toolkit.KindLocal {
		ig, err := toolkit.NewIgnore(p.Toolkit.Settings.Ignore)
		if err != nil {
			return "", err
		}
		treeHash, err := HashTree(p.Toolkit.Source.Path, ig)
		if err != nil {
			return "", fmt.Errorf("failed to hash toolkit tree: %w", err)
		}
		fmt.Fprintf(h, "toolkit:%s\n", treeHash)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
