// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"runtime"

	"github.com/sleapenv/sleapenv/internal/plan"
	"github.com/sleapenv/sleapenv/internal/provision"

	"github.com/spf13/cobra"
)

type buildFlags struct {
	tag          string
	variant      string
	forceRebuild bool
	noCache      bool
	pull         bool
	offline      bool
	dryRun       bool
}

func newBuildCommand(app *App) *cobra.Command {
	var f buildFlags

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the environment image",
		Long: `Resolve the base image and toolkit source, then build an image that applies
the base, packages, toolkit, dataset and workspace steps in order.

The build is skipped when an image with the same tag already carries the
cache key of the current inputs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), app, f)
		},
	}

	cmd.Flags().StringVarP(&f.tag, "tag", "t", "", "image tag (default is image.name:image.tag)")
	cmd.Flags().StringVar(&f.variant, "variant", "", "build variant (default is the configured variant)")
	cmd.Flags().BoolVar(&f.forceRebuild, "force-rebuild", false, "build even when a cached image matches")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "disable the engine's layer cache")
	cmd.Flags().BoolVar(&f.pull, "pull", false, "always pull the base image before building")
	cmd.Flags().BoolVar(&f.offline, "offline", false, "skip registry and git lookups")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "print the Dockerfile and plan without building")
	return cmd
}

func runBuild(ctx context.Context, app *App, f buildFlags) error {
	logger := app.logger()

	p, err := plan.FromConfig(app.cfg, f.variant, f.tag)
	if err != nil {
		return app.fail(err)
	}
	logger.Debug("resolving build inputs", "variant", p.Variant, "base", p.Base.Reference(), "toolkit", p.Toolkit.Source.String())
	resolved, err := p.Resolve(ctx, plan.Resolvers{Offline: f.offline})
	if err != nil {
		return app.fail(err)
	}

	binaryPath := app.cfg.Provision.BinaryPath
	if binaryPath == "" && runtime.GOOS != "linux" && !f.dryRun {
		return app.fail(fmt.Errorf("%w (host is %s/%s)", errBinaryNotLinux, runtime.GOOS, runtime.GOARCH))
	}

	cfg := provision.DefaultConfig()
	cfg.Apply(
		provision.WithForceRebuild(f.forceRebuild || app.cfg.Provision.ForceRebuild),
		provision.WithNoCache(f.noCache),
		provision.WithPull(f.pull),
		provision.WithBinaryPath(binaryPath),
		provision.WithBuildDir(app.cfg.Provision.BuildDir),
		provision.WithOutput(app.Stderr),
		provision.WithLogger(logger),
	)

	if f.dryRun {
		return printDryRun(app, provision.NewBuilder(nil, cfg), resolved)
	}

	engine, err := app.engine(ctx)
	if err != nil {
		return err
	}
	if v, err := engine.Version(ctx); err == nil {
		logger.Debug("container engine", "name", engine.Name(), "version", v)
	} else {
		logger.Debug("container engine version unknown", "name", engine.Name(), "error", err)
	}
	res, err := provision.NewBuilder(engine, cfg).Build(ctx, resolved)
	if err != nil {
		return app.fail(err)
	}

	status := "Built"
	if res.Cached {
		status = "Up to date"
	}
	fmt.Fprintf(app.Stdout, "%s %s %s\n", SuccessStyle.Render("✓"), status, CmdStyle.Render(res.Image))
	logger.Debug("build finished", "cache_key", res.CacheKey, "cached", res.Cached)
	return nil
}

func printDryRun(app *App, b *provision.Builder, p *plan.Plan) error {
	dockerfile, err := b.Dockerfile(p)
	if err != nil {
		return app.fail(err)
	}
	data, err := p.ForImage().Marshal()
	if err != nil {
		return app.fail(err)
	}
	fmt.Fprintln(app.Stdout, TitleStyle.Render("# Dockerfile"))
	fmt.Fprintln(app.Stdout, dockerfile)
	fmt.Fprintln(app.Stdout, TitleStyle.Render("# "+plan.FileName))
	fmt.Fprint(app.Stdout, string(data))
	return nil
}
