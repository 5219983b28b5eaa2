// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/sleapenv/sleapenv/internal/plan"
	"github.com/sleapenv/sleapenv/internal/session"

	"github.com/spf13/cobra"
)

func newRunCommand(app *App) *cobra.Command {
	var tag string

	cmd := &cobra.Command{
		Use:   "run [-- command [args...]]",
		Short: "Start an interactive GPU session in the image",
		Long: `Start a container from the built image with the GPU attached and the terminal
connected. Without a command the image's default command runs. The exit code
of the command becomes the exit code of sleapenv.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := app.engine(cmd.Context())
			if err != nil {
				return err
			}
			s := session.New(engine, imageRef(app, tag),
				session.WithIO(app.Stdin, app.Stdout, app.Stderr),
				session.WithLogger(app.logger()))

			code, err := s.Shell(cmd.Context(), args)
			if err != nil {
				return app.fail(err)
			}
			if code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVarP(&tag, "tag", "t", "", "image tag (default is image.name:image.tag)")
	return cmd
}

func newSmokeCommand(app *App) *cobra.Command {
	var tag string

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Train a model on the sample dataset inside the image",
		Long: `Run the toolkit's training entry point against the bundled dataset with the
GPU attached. Success shows that the framework, toolkit and dataset all work
together.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := app.engine(cmd.Context())
			if err != nil {
				return err
			}
			image := imageRef(app, tag)
			s := session.New(engine, image,
				session.WithIO(nil, app.Stdout, app.Stderr),
				session.WithLogger(app.logger()))

			sc := app.cfg.Smoke
			err = s.Smoke(cmd.Context(), session.Smoke{
				Command: sc.Command,
				Config:  sc.Config,
				Labels:  sc.Labels,
				RunName: sc.RunName,
				Video:   sc.Video,
				WorkDir: app.cfg.Workspace.Dir,
			})
			if err != nil {
				return app.fail(err)
			}
			fmt.Fprintf(app.Stdout, "%s Smoke test passed on %s\n", SuccessStyle.Render("✓"), CmdStyle.Render(image))
			return nil
		},
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", "", "image tag (default is image.name:image.tag)")
	return cmd
}

// imageRef returns tag, or the configured image name and tag.
func imageRef(app *App, tag string) string {
	if tag != "" {
		return tag
	}
	return plan.DefaultImage(app.cfg)
}
