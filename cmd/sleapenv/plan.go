// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/sleapenv/sleapenv/internal/plan"

	"github.com/spf13/cobra"
)

func newPlanCommand(app *App) *cobra.Command {
	var (
		variant string
		tag     string
		offline bool
		output  string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Resolve and print the build plan",
		Long: `Resolve the configured variant into a pinned build plan and print it as YAML.

With --output the plan is written to a file that "sleapenv apply" accepts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := plan.FromConfig(app.cfg, variant, tag)
			if err != nil {
				return app.fail(err)
			}
			resolved, err := p.Resolve(cmd.Context(), plan.Resolvers{Offline: offline})
			if err != nil {
				return app.fail(err)
			}
			if output != "" {
				if err := resolved.Save(output); err != nil {
					return app.fail(err)
				}
				fmt.Fprintf(app.Stdout, "%s Wrote %s\n", SuccessStyle.Render("✓"), output)
				return nil
			}
			data, err := resolved.Marshal()
			if err != nil {
				return app.fail(err)
			}
			fmt.Fprint(app.Stdout, string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&variant, "variant", "", "build variant (default is the configured variant)")
	cmd.Flags().StringVarP(&tag, "tag", "t", "", "image tag (default is image.name:image.tag)")
	cmd.Flags().BoolVar(&offline, "offline", false, "skip registry and git lookups")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the plan to this file")
	return cmd
}
