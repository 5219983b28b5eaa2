// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const (
	// ContainerEnginePodman uses Podman to build and run images.
	ContainerEnginePodman ContainerEngine = "podman"
	// ContainerEngineDocker uses Docker to build and run images.
	ContainerEngineDocker ContainerEngine = "docker"

	// VariantLocal installs the toolkit from a source tree on the host.
	VariantLocal = "local"
	// VariantRemote installs the toolkit from a pinned git ref.
	VariantRemote = "remote"
)

var (
	// ErrInvalidContainerEngine is returned when a ContainerEngine value is not recognized.
	ErrInvalidContainerEngine = errors.New("invalid container engine")
	// ErrUnknownVariant is returned when the selected variant is not configured.
	ErrUnknownVariant = errors.New("unknown build variant")
	// ErrInvalidVariant is the sentinel error wrapped by InvalidVariantError.
	ErrInvalidVariant = errors.New("invalid build variant")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ContainerEngine specifies which container runtime builds and runs images.
	ContainerEngine string

	// InvalidContainerEngineError is returned when a ContainerEngine value is not recognized.
	InvalidContainerEngineError struct {
		Value ContainerEngine
	}

	// UnknownVariantError is returned when Config.Variant names no entry in Config.Variants.
	UnknownVariantError struct {
		Name      string
		Available []string
	}

	// InvalidVariantError is returned when a variant definition is incomplete or
	// declares both toolkit sources.
	InvalidVariantError struct {
		Name   string
		Reason string
	}

	// InvalidConfigError collects field-level validation errors for a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the sleapenv configuration.
	Config struct {
		// ContainerEngine is "podman" or "docker". Unavailable engines fall back to the other.
		ContainerEngine ContainerEngine `json:"container_engine" mapstructure:"container_engine"`
		// Variant selects an entry of Variants.
		Variant string `json:"variant" mapstructure:"variant"`
		// Image names the image produced by a build.
		Image ImageConfig `json:"image" mapstructure:"image"`
		// Variants maps a variant name to its base image and toolkit source.
		Variants map[string]VariantConfig `json:"variants" mapstructure:"variants"`
		// Framework describes the ML framework the base image must provide.
		Framework FrameworkConfig `json:"framework" mapstructure:"framework"`
		// Packages lists native OS packages.
		Packages PackagesConfig `json:"packages" mapstructure:"packages"`
		// Toolkit configures toolkit installation.
		Toolkit ToolkitConfig `json:"toolkit" mapstructure:"toolkit"`
		// Dataset configures the sample dataset.
		Dataset DatasetConfig `json:"dataset" mapstructure:"dataset"`
		// Workspace configures the default working directory of the image.
		Workspace WorkspaceConfig `json:"workspace" mapstructure:"workspace"`
		// Smoke configures the toolkit smoke command.
		Smoke SmokeConfig `json:"smoke" mapstructure:"smoke"`
		// Provision configures image building.
		Provision ProvisionConfig `json:"provision" mapstructure:"provision"`
		// UI configures console output.
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}

	// ImageConfig names the built image.
	ImageConfig struct {
		Name string `json:"name" mapstructure:"name"`
		Tag  string `json:"tag" mapstructure:"tag"`
	}

	// VariantConfig is one build variant.
	VariantConfig struct {
		Base    BaseConfig           `json:"base" mapstructure:"base"`
		Toolkit VariantToolkitConfig `json:"toolkit" mapstructure:"toolkit"`
	}

	// BaseConfig identifies the base runtime image.
	BaseConfig struct {
		Registry string `json:"registry" mapstructure:"registry"`
		Tag      string `json:"tag" mapstructure:"tag"`
		// FrameworkVersion is the framework version the image ships.
		FrameworkVersion string `json:"framework_version" mapstructure:"framework_version"`
	}

	// VariantToolkitConfig selects exactly one toolkit source.
	VariantToolkitConfig struct {
		Local  *LocalToolkitConfig  `json:"local,omitempty" mapstructure:"local"`
		Remote *RemoteToolkitConfig `json:"remote,omitempty" mapstructure:"remote"`
	}

	// LocalToolkitConfig points at a toolkit source tree on the host.
	LocalToolkitConfig struct {
		Path string `json:"path" mapstructure:"path"`
	}

	// RemoteToolkitConfig points at a git repository and ref.
	RemoteToolkitConfig struct {
		URL string `json:"url" mapstructure:"url"`
		Ref string `json:"ref" mapstructure:"ref"`
	}

	// FrameworkConfig describes the framework pin.
	FrameworkConfig struct {
		Name       string `json:"name" mapstructure:"name"`
		Constraint string `json:"constraint" mapstructure:"constraint"`
		// Probe prints the installed framework version inside the environment.
		Probe []string `json:"probe" mapstructure:"probe"`
	}

	// PackagesConfig lists native packages. Required packages install first.
	PackagesConfig struct {
		Required []string `json:"required" mapstructure:"required"`
		Optional []string `json:"optional" mapstructure:"optional"`
	}

	// ToolkitConfig configures toolkit installation.
	ToolkitConfig struct {
		Python      string   `json:"python" mapstructure:"python"`
		InstallPath string   `json:"install_path" mapstructure:"install_path"`
		EntryPoints []string `json:"entry_points" mapstructure:"entry_points"`
		// Ignore holds doublestar patterns excluded when copying a local tree.
		Ignore []string `json:"ignore" mapstructure:"ignore"`
	}

	// DatasetConfig configures the sample dataset.
	DatasetConfig struct {
		URL  string `json:"url" mapstructure:"url"`
		Dest string `json:"dest" mapstructure:"dest"`
		// Expect holds doublestar patterns that must each match a file after extraction.
		Expect []string `json:"expect" mapstructure:"expect"`
		S3     S3Config `json:"s3" mapstructure:"s3"`
	}

	// S3Config configures the s3:// dataset fetcher. Credentials come from
	// AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.
	S3Config struct {
		Endpoint string `json:"endpoint" mapstructure:"endpoint"`
		Region   string `json:"region" mapstructure:"region"`
		Secure   bool   `json:"secure" mapstructure:"secure"`
	}

	// WorkspaceConfig configures the working directory.
	WorkspaceConfig struct {
		Dir string `json:"dir" mapstructure:"dir"`
	}

	// SmokeConfig configures the toolkit smoke command. Relative paths resolve
	// against the workspace directory inside the container.
	SmokeConfig struct {
		Command string `json:"command" mapstructure:"command"`
		Config  string `json:"config" mapstructure:"config"`
		Labels  string `json:"labels" mapstructure:"labels"`
		RunName string `json:"run_name" mapstructure:"run_name"`
		Video   string `json:"video" mapstructure:"video"`
	}

	// ProvisionConfig configures image building.
	ProvisionConfig struct {
		// BinaryPath is the Linux sleapenv binary copied into the image.
		// Empty means the running executable.
		BinaryPath string `json:"binary_path" mapstructure:"binary_path"`
		// BuildDir holds build contexts. Empty means $HOME/sleapenv-build.
		BuildDir     string `json:"build_dir" mapstructure:"build_dir"`
		ForceRebuild bool   `json:"force_rebuild" mapstructure:"force_rebuild"`
	}

	// UIConfig configures console output.
	UIConfig struct {
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}
)

// Error implements the error interface for InvalidContainerEngineError.
func (e *InvalidContainerEngineError) Error() string {
	return fmt.Sprintf("invalid container engine %q (valid: podman, docker)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidContainerEngineError) Unwrap() error { return ErrInvalidContainerEngine }

// String returns the string representation of the ContainerEngine.
func (ce ContainerEngine) String() string { return string(ce) }

// Validate returns an error if the ContainerEngine is not podman or docker.
func (ce ContainerEngine) Validate() error {
	switch ce {
	case ContainerEnginePodman, ContainerEngineDocker:
		return nil
	default:
		return &InvalidContainerEngineError{Value: ce}
	}
}

// Error implements the error interface for UnknownVariantError.
func (e *UnknownVariantError) Error() string {
	return fmt.Sprintf("unknown build variant %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// Unwrap returns ErrUnknownVariant for errors.Is() compatibility.
func (e *UnknownVariantError) Unwrap() error { return ErrUnknownVariant }

// Error implements the error interface for InvalidVariantError.
func (e *InvalidVariantError) Error() string {
	return fmt.Sprintf("invalid build variant %q: %s", e.Name, e.Reason)
}

// Unwrap returns ErrInvalidVariant for errors.Is() compatibility.
func (e *InvalidVariantError) Unwrap() error { return ErrInvalidVariant }

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig followed by every field error, so errors.Is
// and errors.As reach both the sentinel and the individual causes.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// Validate checks a single variant definition.
func (v VariantConfig) Validate(name string) error {
	switch {
	case v.Base.Registry == "":
		return &InvalidVariantError{Name: name, Reason: "base.registry is required"}
	case v.Base.Tag == "":
		return &InvalidVariantError{Name: name, Reason: "base.tag is required"}
	case v.Toolkit.Local != nil && v.Toolkit.Remote != nil:
		return &InvalidVariantError{Name: name, Reason: "toolkit must be either local or remote, not both"}
	case v.Toolkit.Local == nil && v.Toolkit.Remote == nil:
		return &InvalidVariantError{Name: name, Reason: "toolkit source is required"}
	}
	return nil
}

// VariantNames returns the configured variant names, sorted.
func (c *Config) VariantNames() []string {
	names := make([]string, 0, len(c.Variants))
	for name := range c.Variants {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// SelectedVariant returns the definition of the variant named by name, or of
// c.Variant when name is empty.
func (c *Config) SelectedVariant(name string) (string, VariantConfig, error) {
	if name == "" {
		name = c.Variant
	}
	v, ok := c.Variants[name]
	if !ok {
		return "", VariantConfig{}, &UnknownVariantError{Name: name, Available: c.VariantNames()}
	}
	return name, v, nil
}

// Validate checks cross-field constraints the CUE schema cannot express.
func (c *Config) Validate() error {
	var errs []error
	if err := c.ContainerEngine.Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, name := range c.VariantNames() {
		if err := c.Variants[name].Validate(name); err != nil {
			errs = append(errs, err)
		}
	}
	if _, ok := c.Variants[c.Variant]; !ok {
		errs = append(errs, &UnknownVariantError{Name: c.Variant, Available: c.VariantNames()})
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// DefaultVariants returns the two stock variants: a local source tree on a
// GPU base image, and the upstream repository on the notebook-flavored image.
func DefaultVariants() map[string]VariantConfig {
	return map[string]VariantConfig{
		VariantLocal: {
			Base: BaseConfig{
				Registry:         "tensorflow/tensorflow",
				Tag:              "2.6.3-gpu",
				FrameworkVersion: "2.6.3",
			},
			Toolkit: VariantToolkitConfig{Local: &LocalToolkitConfig{Path: "."}},
		},
		VariantRemote: {
			Base: BaseConfig{
				Registry:         "tensorflow/tensorflow",
				Tag:              "2.6.3-gpu-jupyter",
				FrameworkVersion: "2.6.3",
			},
			Toolkit: VariantToolkitConfig{Remote: &RemoteToolkitConfig{
				URL: "https://github.com/talmolab/sleap.git",
				Ref: "develop",
			}},
		},
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ContainerEngine: ContainerEngineDocker,
		Variant:         VariantLocal,
		Image:           ImageConfig{Name: "sleap", Tag: "latest"},
		Variants:        DefaultVariants(),
		Framework: FrameworkConfig{
			Name:       "tensorflow",
			Constraint: ">=2.6.0, <2.7.0",
			Probe:      []string{"python3", "-c", "import tensorflow; print(tensorflow.__version__)"},
		},
		Packages: PackagesConfig{
			Required: []string{"libgl1-mesa-glx"},
			Optional: []string{"wget", "unzip"},
		},
		Toolkit: ToolkitConfig{
			Python:      "python3",
			InstallPath: "/sleap",
			EntryPoints: []string{"sleap-train", "sleap-track", "sleap-label"},
			Ignore:      []string{".git/**", "**/__pycache__/**", "**/*.pyc", "models/**"},
		},
		Dataset: DatasetConfig{
			URL:    "https://storage.googleapis.com/sleap-data/datasets/drosophila-melanogaster-courtship/drosophila-melanogaster-courtship.zip",
			Dest:   "/root/dataset",
			Expect: []string{"**/*.slp", "**/*.mp4"},
			S3:     S3Config{Secure: true},
		},
		Workspace: WorkspaceConfig{Dir: "/root"},
		Smoke: SmokeConfig{
			Command: "sleap-train",
			Config:  "baseline.centroid.json",
			Labels:  "dataset/drosophila-melanogaster-courtship/courtship_labels.slp",
			RunName: "courtship_test",
			Video:   "dataset/drosophila-melanogaster-courtship/20190128_113421.mp4",
		},
	}
}
