// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sleapenv/sleapenv/internal/container"
	"github.com/sleapenv/sleapenv/internal/issue"
	"github.com/sleapenv/sleapenv/internal/plan"
	"github.com/sleapenv/sleapenv/internal/toolkit"
)

type (
	// Builder turns a resolved plan into an image.
	Builder struct {
		engine container.Engine
		config *Config
	}

	// Result is the outcome of a build.
	Result struct {
		// Image is the tag of the built or cached image.
		Image string
		// CacheKey is the content hash of the build inputs.
		CacheKey string
		// Cached reports that an image with the same cache key already existed.
		Cached bool
	}
)

// NewBuilder creates a Builder. A nil cfg means DefaultConfig.
func NewBuilder(engine container.Engine, cfg *Config) *Builder {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Builder{engine: engine, config: cfg}
}

// Config returns the builder's configuration.
func (b *Builder) Config() *Config {
	return b.config
}

// Build builds p.Image unless an image with that tag already carries the same
// cache key. p should be resolved: its base pinned and its toolkit located.
func (b *Builder) Build(ctx context.Context, p *plan.Plan) (*Result, error) {
	logger := b.config.Logger

	key, err := CacheKey(p, b.config.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate cache key: %w", err)
	}
	res := &Result{Image: p.Image, CacheKey: key}

	if !b.config.ForceRebuild && b.cached(ctx, p.Image, key) {
		logger.Info("image is up to date", "image", p.Image, "cache-key", key[:12])
		res.Cached = true
		return res, nil
	}

	buildCtx, cleanup, err := b.prepareBuildContext(p)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	logger.Info("building image", "image", p.Image, "base", p.Base.Pinned(), "variant", p.Variant)
	opts := container.BuildOptions{
		ContextDir: buildCtx,
		Dockerfile: dockerfile,
		Tag:        p.Image,
		Labels: map[string]string{
			LabelCacheKey: key,
			LabelPlanID:   p.ID,
			LabelVariant:  p.Variant,
		},
		NoCache: b.config.NoCache,
		Pull:    b.config.Pull,
		Stdout:  b.config.Output,
		Stderr:  b.config.Output,
	}
	if err := b.engine.Build(ctx, opts); err != nil {
		return nil, err
	}
	return res, nil
}

// Dockerfile renders the Dockerfile Build would use for p.
func (b *Builder) Dockerfile(p *plan.Plan) (string, error) {
	return generateDockerfile(p)
}

// cached reports whether image exists with the given cache key. Inspection
// errors count as a miss.
func (b *Builder) cached(ctx context.Context, image, key string) bool {
	exists, _ := b.engine.ImageExists(ctx, image) //nolint:errcheck // Error treated as "not found"
	if !exists {
		return false
	}
	got, err := b.engine.ImageLabel(ctx, image, LabelCacheKey)
	return err == nil && got == key
}

// prepareBuildContext creates a directory under BuildDir holding the binary,
// the in-image plan, the local toolkit tree and the Dockerfile.
func (b *Builder) prepareBuildContext(p *plan.Plan) (dir string, cleanup func(), err error) {
	if err := os.MkdirAll(b.config.BuildDir, 0o755); err != nil {
		return "", nil, contextError(b.config.BuildDir, "create build directory", err)
	}
	dir, err = os.MkdirTemp(b.config.BuildDir, "ctx-*")
	if err != nil {
		return "", nil, contextError(b.config.BuildDir, "create build context", err)
	}
	cleanup = func() {
		_ = os.RemoveAll(dir) // Cleanup temp dir; error non-critical
	}
	defer func() {
		if err != nil {
			cleanup()
		}
	}()

	binaryDst := filepath.Join(dir, binaryFile)
	if err := copyFile(b.config.BinaryPath, binaryDst, 0o755); err != nil {
		return "", nil, contextError(b.config.BinaryPath, "copy sleapenv binary", err)
	}

	if err := p.ForImage().Save(filepath.Join(dir, plan.FileName)); err != nil {
		return "", nil, contextError(dir, "write plan", err)
	}

	if p.Toolkit.Source.Kind == toolkit.KindLocal {
		ig, err := toolkit.NewIgnore(p.Toolkit.Settings.Ignore)
		if err != nil {
			return "", nil, err
		}
		n, err := toolkit.CopyTree(p.Toolkit.Source.Path, filepath.Join(dir, toolkitDir), ig)
		if err != nil {
			return "", nil, contextError(p.Toolkit.Source.Path, "copy toolkit tree", err)
		}
		b.config.Logger.Debug("staged toolkit tree", "files", n, "source", p.Toolkit.Source.Path)
	}

	content, err := generateDockerfile(p)
	if err != nil {
		return "", nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, dockerfile), []byte(content), 0o644); err != nil {
		return "", nil, contextError(dir, "write Dockerfile", err)
	}

	return dir, cleanup, nil
}

func contextError(resource, op string, cause error) error {
	return issue.NewErrorContext().
		WithOperation(op).
		WithResource(resource).
		WithSuggestion("Check that the build directory is writable (set provision.build_dir to change it)").
		Wrap(cause).
		BuildError()
}

// copyFile copies src to dst with the given permissions.
func copyFile(src, dst string, perm os.FileMode) (err error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer func() { _ = srcFile.Close() }() // Read-only file; close error non-critical

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() {
		if closeErr := dstFile.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close destination file: %w", closeErr)
		}
	}()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	return nil
}
