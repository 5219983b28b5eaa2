// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sleapenv/sleapenv/internal/config"

	"github.com/spf13/cobra"
)

// newConfigCommand creates the `sleapenv config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage sleapenv configuration",
		Long: `Manage sleapenv configuration.

Configuration is read from the first of:
  - the file given with --config
  - $XDG_CONFIG_HOME/sleapenv/config.cue (~/.config/sleapenv/config.cue)
  - ./sleapenv.cue

SLEAPENV_* environment variables override file values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(app.Stdout, config.GenerateCUE(app.cfg))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.path == "" {
				fmt.Fprintln(app.Stdout, SubtitleStyle.Render("(no config file, using defaults)"))
				return nil
			}
			fmt.Fprintln(app.Stdout, app.path)
			return nil
		},
	})

	var initPath string
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a default configuration file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationSkipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.CreateDefaultConfig(initPath)
			if errors.Is(err, config.ErrConfigExists) {
				fmt.Fprintf(app.Stdout, "%s Config file already exists: %s\n", WarningStyle.Render("!"), path)
				return nil
			}
			if err != nil {
				return app.fail(err)
			}
			if abs, absErr := filepath.Abs(path); absErr == nil {
				path = abs
			}
			fmt.Fprintf(app.Stdout, "%s Created %s\n", SuccessStyle.Render("✓"), path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&initPath, "path", "", "write the file here instead of the user config directory")
	cfgCmd.AddCommand(initCmd)

	return cfgCmd
}
