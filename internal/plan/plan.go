// SPDX-License-Identifier: MPL-2.0

package plan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/sleapenv/sleapenv/internal/baseimage"
	"github.com/sleapenv/sleapenv/internal/config"
	"github.com/sleapenv/sleapenv/internal/dataset"
	"github.com/sleapenv/sleapenv/internal/packages"
	"github.com/sleapenv/sleapenv/internal/pipeline"
	"github.com/sleapenv/sleapenv/internal/toolkit"
	"github.com/sleapenv/sleapenv/internal/workspace"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// FileName is the plan's file name in a build context and inside the image.
const FileName = "plan.yaml"

// ErrInvalidPlan is the sentinel error wrapped by InvalidPlanError.
var ErrInvalidPlan = errors.New("invalid plan")

type (
	// Plan is the static description of one environment build.
	Plan struct {
		ID        string         `yaml:"id"`
		Variant   string         `yaml:"variant"`
		Image     string         `yaml:"image"`
		Base      baseimage.Spec `yaml:"base"`
		Framework Framework      `yaml:"framework"`
		Packages  packages.Set   `yaml:"packages"`
		Toolkit   Toolkit        `yaml:"toolkit"`
		Dataset   Dataset        `yaml:"dataset"`
		Workspace string         `yaml:"workspace"`
	}

	// Framework is the framework constraint and the probe that checks it.
	Framework struct {
		Constraint string   `yaml:"constraint,omitempty"`
		Probe      []string `yaml:"probe"`
	}

	// Toolkit is the toolkit source and install settings.
	Toolkit struct {
		Source   toolkit.Source   `yaml:"source"`
		Settings toolkit.Settings `yaml:"settings"`
	}

	// Dataset is the dataset spec and the S3 fetcher settings.
	Dataset struct {
		dataset.Spec `yaml:",inline"`
		S3           S3 `yaml:"s3,omitempty"`
	}

	// S3 configures the s3:// dataset fetcher.
	S3 struct {
		Endpoint string `yaml:"endpoint,omitempty"`
		Region   string `yaml:"region,omitempty"`
		Secure   bool   `yaml:"secure"`
	}

	// InvalidPlanError lists the problems found in a plan.
	InvalidPlanError struct {
		Errs []error
	}
)

// Error implements the error interface.
func (e *InvalidPlanError) Error() string {
	return fmt.Sprintf("invalid plan: %v", errors.Join(e.Errs...))
}

// Unwrap returns ErrInvalidPlan and the individual problems.
func (e *InvalidPlanError) Unwrap() []error {
	return append([]error{ErrInvalidPlan}, e.Errs...)
}

// FromConfig builds the plan for variant (cfg.Variant when empty). image
// overrides the configured name:tag when not empty.
func FromConfig(cfg *config.Config, variant, image string) (*Plan, error) {
	name, vc, err := cfg.SelectedVariant(variant)
	if err != nil {
		return nil, err
	}

	specs := make(map[string]baseimage.Spec, len(cfg.Variants))
	for n, v := range cfg.Variants {
		specs[n] = baseimage.Spec{
			Registry:  v.Base.Registry,
			Tag:       v.Base.Tag,
			Framework: baseimage.Framework{Name: cfg.Framework.Name, Version: v.Base.FrameworkVersion},
		}
	}
	sel, err := baseimage.NewSelector(specs, cfg.Framework.Constraint)
	if err != nil {
		return nil, err
	}
	base, err := sel.Select(name)
	if err != nil {
		return nil, err
	}

	src := toolkitSource(vc.Toolkit)
	pkgs, err := packages.Merge(cfg.Packages.Required, cfg.Packages.Optional)
	if err != nil {
		return nil, err
	}
	if src.Kind == toolkit.KindRemote {
		// pip needs git to install from a repository URL.
		if err := pkgs.Add("git"); err != nil {
			return nil, err
		}
	}

	if image == "" {
		image = DefaultImage(cfg)
	}

	p := &Plan{
		ID:      uuid.NewString(),
		Variant: name,
		Image:   image,
		Base:    base,
		Framework: Framework{
			Constraint: cfg.Framework.Constraint,
			Probe:      slices.Clone(cfg.Framework.Probe),
		},
		Packages: pkgs,
		Toolkit: Toolkit{
			Source: src,
			Settings: toolkit.Settings{
				Python:      cfg.Toolkit.Python,
				InstallPath: cfg.Toolkit.InstallPath,
				EntryPoints: slices.Clone(cfg.Toolkit.EntryPoints),
				Ignore:      slices.Clone(cfg.Toolkit.Ignore),
			}.WithDefaults(),
		},
		Dataset: Dataset{
			Spec: dataset.Spec{
				URL:    cfg.Dataset.URL,
				Dest:   cfg.Dataset.Dest,
				Expect: slices.Clone(cfg.Dataset.Expect),
			},
			S3: S3{
				Endpoint: cfg.Dataset.S3.Endpoint,
				Region:   cfg.Dataset.S3.Region,
				Secure:   cfg.Dataset.S3.Secure,
			},
		},
		Workspace: cfg.Workspace.Dir,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// DefaultImage returns the configured image name and tag.
func DefaultImage(cfg *config.Config) string {
	return cfg.Image.Name + ":" + cfg.Image.Tag
}

func toolkitSource(tc config.VariantToolkitConfig) toolkit.Source {
	switch {
	case tc.Local != nil && tc.Remote == nil:
		return toolkit.Local(tc.Local.Path)
	case tc.Remote != nil && tc.Local == nil:
		return toolkit.Remote(tc.Remote.URL, tc.Remote.Ref)
	}
	// Neither or both: Validate reports the missing kind.
	return toolkit.Source{}
}

// Validate checks every part of the plan.
func (p *Plan) Validate() error {
	var errs []error
	if err := p.Base.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(p.Framework.Probe) == 0 {
		errs = append(errs, baseimage.ErrEmptyProbe)
	}
	if _, err := baseimage.ParseConstraint(p.Framework.Constraint); err != nil {
		errs = append(errs, err)
	}
	if err := p.Toolkit.Source.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := toolkit.NewIgnore(p.Toolkit.Settings.Ignore); err != nil {
		errs = append(errs, err)
	}
	if err := p.Dataset.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := workspace.NewStep(p.Workspace); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &InvalidPlanError{Errs: errs}
	}
	return nil
}

// Resolvers are the host-side checks run before a build.
type Resolvers struct {
	Image   *baseimage.Resolver
	Toolkit *toolkit.Resolver
	// Offline skips every network lookup. Local trees are still checked.
	Offline bool
}

// Resolve runs the resolution phase and returns a pinned copy of p: the base
// image carries its digest and the toolkit source is located or pinned to a
// commit. Any failure is a resolution error and nothing is built.
func (p *Plan) Resolve(ctx context.Context, r Resolvers) (*Plan, error) {
	if r.Image == nil {
		r.Image = baseimage.NewResolver(baseimage.WithOffline(r.Offline))
	}
	if r.Toolkit == nil {
		r.Toolkit = toolkit.NewResolver(nil)
	}

	out := p.clone()
	base, err := r.Image.Resolve(ctx, p.Base)
	if err != nil {
		return nil, err
	}
	out.Base = base

	if r.Offline && p.Toolkit.Source.Kind == toolkit.KindRemote {
		return out, nil
	}
	src, err := r.Toolkit.Resolve(ctx, p.Toolkit.Source)
	if err != nil {
		return nil, err
	}
	out.Toolkit.Source = src
	return out, nil
}

// ForImage returns the copy of p that runs inside the image, where a local
// toolkit tree has already been copied to the install path.
func (p *Plan) ForImage() *Plan {
	out := p.clone()
	if out.Toolkit.Source.Kind == toolkit.KindLocal {
		out.Toolkit.Source.Path = out.Toolkit.Settings.InstallPath
	}
	return out
}

// Steps builds the provisioning steps in canonical order.
func (p *Plan) Steps() ([]pipeline.Step, error) {
	base, err := baseimage.NewStep(p.Base, p.Framework.Constraint, p.Framework.Probe)
	if err != nil {
		return nil, err
	}
	tk, err := toolkit.NewStep(p.Toolkit.Source, p.Toolkit.Settings)
	if err != nil {
		return nil, err
	}
	ds, err := dataset.NewStep(p.Dataset.Spec, dataset.DefaultFetchers(dataset.S3Options{
		Endpoint: p.Dataset.S3.Endpoint,
		Region:   p.Dataset.S3.Region,
		Secure:   p.Dataset.S3.Secure,
	}))
	if err != nil {
		return nil, err
	}
	ws, err := workspace.NewStep(p.Workspace)
	if err != nil {
		return nil, err
	}
	return []pipeline.Step{
		base,
		packages.NewStep(p.Packages, nil),
		tk,
		ds,
		ws,
	}, nil
}

// Pipeline returns the pipeline over Steps.
func (p *Plan) Pipeline(opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	steps, err := p.Steps()
	if err != nil {
		return nil, err
	}
	return pipeline.New(steps, opts...)
}

// Marshal encodes p as YAML.
func (p *Plan) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}

// Unmarshal decodes and validates a YAML plan.
func Unmarshal(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	p, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Save writes p to path, creating parent directories.
func (p *Plan) Save(path string) error {
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (p *Plan) clone() *Plan {
	out := *p
	out.Framework.Probe = slices.Clone(p.Framework.Probe)
	out.Toolkit.Settings.EntryPoints = slices.Clone(p.Toolkit.Settings.EntryPoints)
	out.Toolkit.Settings.Ignore = slices.Clone(p.Toolkit.Settings.Ignore)
	out.Dataset.Expect = slices.Clone(p.Dataset.Expect)
	// packages.Set copies on read, so sharing it is safe.
	return &out
}
