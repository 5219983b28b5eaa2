// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sleapenv/sleapenv/internal/issue"
	"github.com/sleapenv/sleapenv/pkg/cueutil"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "sleapenv"
	// ConfigFileName is the name of the user config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// ProjectFileName is the config file looked up in the working directory.
	ProjectFileName = AppName + "." + ConfigFileExt
	// EnvPrefix prefixes environment variable overrides.
	EnvPrefix = "SLEAPENV"
)

//go:embed config_schema.cue
var configSchema []byte

// ConfigDir returns $XDG_CONFIG_HOME/sleapenv, defaulting to ~/.config/sleapenv.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}

	return filepath.Join(configDir, AppName), nil
}

// loadWithOptions loads defaults, the first config file found, and environment
// overrides, in increasing precedence.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := newViper()

	path, err := locateConfigFile(opts)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("Use 'sleapenv config show' to see the effective configuration").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.Variants) == 0 {
		cfg.Variants = DefaultVariants()
	}

	if err := cfg.Validate(); err != nil {
		resource := path
		if resource == "" {
			resource = "defaults"
		}
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resource).
			WithSuggestion("Each variant needs base.registry, base.tag and exactly one toolkit source").
			WithSuggestion("Select a variant with --variant or 'variant:' in the config file").
			Wrap(err).
			BuildError()
	}

	return &cfg, path, nil
}

// newViper returns a Viper instance with every default registered so that
// SLEAPENV_* environment variables can override any scalar key.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("container_engine", d.ContainerEngine)
	v.SetDefault("variant", d.Variant)
	v.SetDefault("image.name", d.Image.Name)
	v.SetDefault("image.tag", d.Image.Tag)
	v.SetDefault("framework.name", d.Framework.Name)
	v.SetDefault("framework.constraint", d.Framework.Constraint)
	v.SetDefault("framework.probe", d.Framework.Probe)
	v.SetDefault("packages.required", d.Packages.Required)
	v.SetDefault("packages.optional", d.Packages.Optional)
	v.SetDefault("toolkit.python", d.Toolkit.Python)
	v.SetDefault("toolkit.install_path", d.Toolkit.InstallPath)
	v.SetDefault("toolkit.entry_points", d.Toolkit.EntryPoints)
	v.SetDefault("toolkit.ignore", d.Toolkit.Ignore)
	v.SetDefault("dataset.url", d.Dataset.URL)
	v.SetDefault("dataset.dest", d.Dataset.Dest)
	v.SetDefault("dataset.expect", d.Dataset.Expect)
	v.SetDefault("dataset.s3.endpoint", d.Dataset.S3.Endpoint)
	v.SetDefault("dataset.s3.region", d.Dataset.S3.Region)
	v.SetDefault("dataset.s3.secure", d.Dataset.S3.Secure)
	v.SetDefault("workspace.dir", d.Workspace.Dir)
	v.SetDefault("smoke.command", d.Smoke.Command)
	v.SetDefault("smoke.config", d.Smoke.Config)
	v.SetDefault("smoke.labels", d.Smoke.Labels)
	v.SetDefault("smoke.run_name", d.Smoke.RunName)
	v.SetDefault("smoke.video", d.Smoke.Video)
	v.SetDefault("provision.binary_path", d.Provision.BinaryPath)
	v.SetDefault("provision.build_dir", d.Provision.BuildDir)
	v.SetDefault("provision.force_rebuild", d.Provision.ForceRebuild)
	v.SetDefault("ui.verbose", d.UI.Verbose)
	return v
}

// locateConfigFile returns the config file to load, or "" when none exists.
// An explicit ConfigFilePath that does not exist is an error.
func locateConfigFile(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		path := string(opts.ConfigFilePath)
		if !fileExists(path) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Create one with 'sleapenv config init --path " + path + "'").
				Wrap(fmt.Errorf("config file not found: %w", fs.ErrNotExist)).
				BuildError()
		}
		return path, nil
	}

	cfgDir := string(opts.ConfigDirPath)
	if cfgDir == "" {
		var err error
		if cfgDir, err = ConfigDir(); err != nil {
			return "", err
		}
	}
	if userPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt); fileExists(userPath) {
		return userPath, nil
	}

	projectPath := ProjectFileName
	if opts.WorkDir != "" {
		projectPath = filepath.Join(string(opts.WorkDir), ProjectFileName)
	}
	if fileExists(projectPath) {
		return projectPath, nil
	}
	return "", nil
}

// loadCUEIntoViper validates a CUE file against #Config and merges it into Viper.
// Decoding goes to a map so Viper keeps its defaults and environment overrides.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	res, err := cueutil.ParseAndDecode[map[string]any](configSchema, data, "#Config",
		cueutil.WithFilename(path),
		cueutil.WithConcrete(false),
	)
	if err != nil {
		return err
	}

	if err := v.MergeConfigMap(*res.Value); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ErrConfigExists is returned by CreateDefaultConfig when the target file exists.
var ErrConfigExists = errors.New("config file already exists")

// CreateDefaultConfig writes the default configuration to path, or to the user
// config directory when path is empty. It returns the written path.
func CreateDefaultConfig(path string) (string, error) {
	if path == "" {
		cfgDir, err := ConfigDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
	}

	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return path, nil
}

// GenerateCUE renders cfg as a CUE document accepted by the #Config schema.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// sleapenv configuration\n\n")
	fmt.Fprintf(&sb, "container_engine: %q\n", cfg.ContainerEngine)
	fmt.Fprintf(&sb, "variant: %q\n", cfg.Variant)

	sb.WriteString("\nimage: {\n")
	fmt.Fprintf(&sb, "\tname: %q\n", cfg.Image.Name)
	fmt.Fprintf(&sb, "\ttag: %q\n", cfg.Image.Tag)
	sb.WriteString("}\n")

	sb.WriteString("\nvariants: {\n")
	for _, name := range cfg.VariantNames() {
		variant := cfg.Variants[name]
		fmt.Fprintf(&sb, "\t%q: {\n", name)
		fmt.Fprintf(&sb, "\t\tbase: {registry: %q, tag: %q", variant.Base.Registry, variant.Base.Tag)
		if variant.Base.FrameworkVersion != "" {
			fmt.Fprintf(&sb, ", framework_version: %q", variant.Base.FrameworkVersion)
		}
		sb.WriteString("}\n")
		switch {
		case variant.Toolkit.Local != nil:
			fmt.Fprintf(&sb, "\t\ttoolkit: local: path: %q\n", variant.Toolkit.Local.Path)
		case variant.Toolkit.Remote != nil:
			fmt.Fprintf(&sb, "\t\ttoolkit: remote: {url: %q, ref: %q}\n",
				variant.Toolkit.Remote.URL, variant.Toolkit.Remote.Ref)
		}
		sb.WriteString("\t}\n")
	}
	sb.WriteString("}\n")

	sb.WriteString("\nframework: {\n")
	fmt.Fprintf(&sb, "\tname: %q\n", cfg.Framework.Name)
	fmt.Fprintf(&sb, "\tconstraint: %q\n", cfg.Framework.Constraint)
	fmt.Fprintf(&sb, "\tprobe: %s\n", cueList(cfg.Framework.Probe))
	sb.WriteString("}\n")

	sb.WriteString("\npackages: {\n")
	fmt.Fprintf(&sb, "\trequired: %s\n", cueList(cfg.Packages.Required))
	fmt.Fprintf(&sb, "\toptional: %s\n", cueList(cfg.Packages.Optional))
	sb.WriteString("}\n")

	sb.WriteString("\ntoolkit: {\n")
	fmt.Fprintf(&sb, "\tpython: %q\n", cfg.Toolkit.Python)
	fmt.Fprintf(&sb, "\tinstall_path: %q\n", cfg.Toolkit.InstallPath)
	fmt.Fprintf(&sb, "\tentry_points: %s\n", cueList(cfg.Toolkit.EntryPoints))
	fmt.Fprintf(&sb, "\tignore: %s\n", cueList(cfg.Toolkit.Ignore))
	sb.WriteString("}\n")

	sb.WriteString("\ndataset: {\n")
	fmt.Fprintf(&sb, "\turl: %q\n", cfg.Dataset.URL)
	fmt.Fprintf(&sb, "\tdest: %q\n", cfg.Dataset.Dest)
	fmt.Fprintf(&sb, "\texpect: %s\n", cueList(cfg.Dataset.Expect))
	if cfg.Dataset.S3.Endpoint != "" {
		fmt.Fprintf(&sb, "\ts3: {endpoint: %q, region: %q, secure: %v}\n",
			cfg.Dataset.S3.Endpoint, cfg.Dataset.S3.Region, cfg.Dataset.S3.Secure)
	}
	sb.WriteString("}\n")

	fmt.Fprintf(&sb, "\nworkspace: dir: %q\n", cfg.Workspace.Dir)

	sb.WriteString("\nsmoke: {\n")
	fmt.Fprintf(&sb, "\tcommand: %q\n", cfg.Smoke.Command)
	fmt.Fprintf(&sb, "\tconfig: %q\n", cfg.Smoke.Config)
	fmt.Fprintf(&sb, "\tlabels: %q\n", cfg.Smoke.Labels)
	fmt.Fprintf(&sb, "\trun_name: %q\n", cfg.Smoke.RunName)
	fmt.Fprintf(&sb, "\tvideo: %q\n", cfg.Smoke.Video)
	sb.WriteString("}\n")

	sb.WriteString("\nprovision: {\n")
	if cfg.Provision.BinaryPath != "" {
		fmt.Fprintf(&sb, "\tbinary_path: %q\n", cfg.Provision.BinaryPath)
	}
	if cfg.Provision.BuildDir != "" {
		fmt.Fprintf(&sb, "\tbuild_dir: %q\n", cfg.Provision.BuildDir)
	}
	fmt.Fprintf(&sb, "\tforce_rebuild: %v\n", cfg.Provision.ForceRebuild)
	sb.WriteString("}\n")

	fmt.Fprintf(&sb, "\nui: verbose: %v\n", cfg.UI.Verbose)

	return sb.String()
}

func cueList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
