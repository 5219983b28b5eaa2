// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/sleapenv/sleapenv/internal/env"
	"github.com/sleapenv/sleapenv/internal/pipeline"
	"github.com/sleapenv/sleapenv/internal/plan"
	"github.com/sleapenv/sleapenv/internal/provision"

	"github.com/spf13/cobra"
)

type applyFlags struct {
	planPath string
	steps    []string
	root     string
	trace    bool
}

func newApplyCommand(app *App) *cobra.Command {
	var f applyFlags

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply plan steps to this environment",
		Long: `Apply the steps of a build plan to the environment sleapenv runs in.

This runs inside the image during a build, once per step. Steps run in the
order base, packages, toolkit, dataset, workspace; the first failure stops
the run.

--root maps every file path the steps read or write below a directory. It is
not a chroot: apt-get, dpkg-query and python3 still run from the host PATH
against the host system, so outside an image build use it only with steps
that do not run commands (dataset, workspace) or in a disposable machine.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationSkipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), app, f)
		},
	}

	cmd.Flags().StringVar(&f.planPath, "plan", provision.ImagePlanPath, "plan file to apply")
	cmd.Flags().StringArrayVar(&f.steps, "step", nil, "run only this step (repeatable)")
	cmd.Flags().StringVar(&f.root, "root", "/", "directory file paths are mapped below (commands are not chrooted)")
	cmd.Flags().BoolVar(&f.trace, "trace", false, "log a trace span for every step")
	return cmd
}

func runApply(ctx context.Context, app *App, f applyFlags) error {
	logger := app.logger()

	p, err := plan.Load(f.planPath)
	if err != nil {
		return app.fail(err)
	}
	var opts []pipeline.Option
	if f.trace {
		tp := newTracerProvider(logger)
		defer func() { _ = tp.Shutdown(ctx) }()
		opts = append(opts, pipeline.WithTracerProvider(tp))
	}
	pl, err := p.Pipeline(opts...)
	if err != nil {
		return app.fail(err)
	}
	if len(f.steps) > 0 {
		names, err := pipeline.ParseStepNames(f.steps)
		if err != nil {
			return app.fail(err)
		}
		if pl, err = pl.Only(names...); err != nil {
			return app.fail(err)
		}
	}

	e := env.New(f.root, env.WithOutput(app.Stdout, app.Stderr), env.WithLogger(logger))
	res, err := pl.Run(ctx, e)
	printReport(app, res)
	if err != nil {
		return app.fail(err)
	}
	return nil
}

func printReport(app *App, res *pipeline.Result) {
	if res == nil {
		return
	}
	for _, s := range res.Steps {
		switch s.Status {
		case pipeline.StatusSucceeded:
			fmt.Fprintf(app.Stdout, "%s %s\n", SuccessStyle.Render("✓"), s.Name)
		case pipeline.StatusFailed:
			fmt.Fprintf(app.Stdout, "%s %s\n", ErrorStyle.Render("✗"), s.Name)
		default:
			fmt.Fprintf(app.Stdout, "%s %s (not run)\n", WarningStyle.Render("-"), s.Name)
		}
	}
}
