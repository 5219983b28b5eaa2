// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

type (
	// Config holds configuration for building environment images.
	Config struct {
		// ForceRebuild bypasses the cache label check.
		ForceRebuild bool

		// NoCache disables the engine's layer cache.
		NoCache bool

		// Pull makes the engine fetch the base image even when a copy is local.
		Pull bool

		// BinaryPath is the Linux sleapenv binary copied into the image.
		// If empty, os.Executable() is used.
		BinaryPath string

		// BuildDir holds temporary build contexts.
		BuildDir string

		// Output receives the engine's build output.
		Output io.Writer

		// Logger receives progress messages.
		Logger *log.Logger
	}

	// Option is a functional option for configuring a Config.
	Option func(*Config)
)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	binaryPath, _ := os.Executable()
	return &Config{
		BinaryPath: binaryPath,
		BuildDir:   defaultBuildDir(),
		Output:     os.Stderr,
		Logger:     log.NewWithOptions(io.Discard, log.Options{}),
	}
}

// defaultBuildDir returns a visible directory in the user's home.
//
// Docker installed via Snap cannot read /tmp (different namespace) or hidden
// directories such as ~/.cache, but can read visible directories in $HOME.
func defaultBuildDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		if _, statErr := os.Stat(home); statErr == nil {
			return filepath.Join(home, "sleapenv-build")
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, ".sleapenv-build")
	}
	return filepath.Join(os.TempDir(), "sleapenv-build")
}

// WithForceRebuild returns an Option that sets ForceRebuild on the config.
func WithForceRebuild(force bool) Option {
	return func(c *Config) {
		c.ForceRebuild = force
	}
}

// WithNoCache returns an Option that sets NoCache on the config.
func WithNoCache(noCache bool) Option {
	return func(c *Config) {
		c.NoCache = noCache
	}
}

// WithPull returns an Option that sets Pull on the config.
func WithPull(pull bool) Option {
	return func(c *Config) {
		c.Pull = pull
	}
}

// WithBinaryPath returns an Option that sets BinaryPath when path is not empty.
func WithBinaryPath(path string) Option {
	return func(c *Config) {
		if path != "" {
			c.BinaryPath = path
		}
	}
}

// WithBuildDir returns an Option that sets BuildDir when dir is not empty.
func WithBuildDir(dir string) Option {
	return func(c *Config) {
		if dir != "" {
			c.BuildDir = dir
		}
	}
}

// WithOutput returns an Option that sets the build output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Config) {
		c.Output = w
	}
}

// WithLogger returns an Option that sets the progress logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Apply applies the given options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
