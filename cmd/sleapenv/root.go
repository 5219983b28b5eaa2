// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for sleapenv.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sleapenv/sleapenv/internal/config"
	"github.com/sleapenv/sleapenv/internal/container"
	"github.com/sleapenv/sleapenv/internal/issue"
	"github.com/sleapenv/sleapenv/pkg/types"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// annotationSkipConfig marks commands that run without loading configuration.
const annotationSkipConfig = "sleapenv/skip-config"

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

type (
	// App holds the dependencies shared by all commands.
	App struct {
		// Config loads configuration.
		Config    config.Provider
		// NewEngine selects the container engine.
		NewEngine func(ctx context.Context, preferred container.EngineType) (container.Engine, error)
		Stdin     io.Reader
		Stdout    io.Writer
		Stderr    io.Writer

		flags rootFlags
		cfg   *config.Config
		path  string
	}

	rootFlags struct {
		configPath string
		engine     string
		verbose    bool
	}
)

// NewApp returns an App wired to the real config provider, container engines
// and process streams.
func NewApp() *App {
	return &App{
		Config: config.NewProvider(),
		NewEngine: func(ctx context.Context, preferred container.EngineType) (container.Engine, error) {
			return container.NewEngine(ctx, preferred)
		},
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// NewRootCommand builds the command tree for app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sleapenv",
		Short: "Build GPU environments for the SLEAP toolkit",
		Long: TitleStyle.Render("sleapenv") + SubtitleStyle.Render(" - Build GPU environments for the SLEAP toolkit") + `

sleapenv assembles a reproducible container image from a pinned GPU base
image, native packages, the SLEAP toolkit (from a local tree or a pinned git
ref) and a sample dataset, then runs sessions and smoke tests against it.

` + SubtitleStyle.Render("Examples:") + `
  sleapenv build                     Build the default variant
  sleapenv build --variant remote    Build from the upstream repository
  sleapenv plan --offline            Print the plan without network lookups
  sleapenv run                       Start an interactive GPU session
  sleapenv smoke                     Run the toolkit smoke test
  sleapenv config init               Create a default configuration file`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[annotationSkipConfig] == "true" {
				return nil
			}
			return app.loadConfig(cmd.Context())
		},
	}

	rootCmd.SetIn(app.Stdin)
	rootCmd.SetOut(app.Stdout)
	rootCmd.SetErr(app.Stderr)

	rootCmd.PersistentFlags().StringVar(&app.flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/sleapenv/config.cue)")
	rootCmd.PersistentFlags().StringVar(&app.flags.engine, "engine", "", "container engine: docker or podman (overrides container_engine)")
	rootCmd.PersistentFlags().BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(
		newBuildCommand(app),
		newApplyCommand(app),
		newPlanCommand(app),
		newRunCommand(app),
		newSmokeCommand(app),
		newConfigCommand(app),
	)
	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits the process with its exit code.
// This is called by main.main().
func Execute() {
	os.Exit(Run(context.Background(), NewApp(), os.Args[1:]))
}

// Run executes the command tree with args and returns the process exit code.
func Run(ctx context.Context, app *App, args []string) int {
	rootCmd := NewRootCommand(app)
	rootCmd.SetArgs(args)

	err := fang.Execute(
		ctx,
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(func(w io.Writer, _ fang.Styles, err error) {
			var exitErr *ExitError
			if errors.As(err, &exitErr) {
				// Already reported by the command.
				return
			}
			fmt.Fprintln(w, ErrorStyle.Render("Error:")+" "+formatErrorForDisplay(err, app.flags.verbose))
		}),
	)
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code != 0 {
		return int(exitErr.Code)
	}
	return 1
}

// loadConfig loads configuration once, before any subcommand runs.
func (app *App) loadConfig(ctx context.Context) error {
	loaded, err := app.Config.Load(ctx, config.LoadOptions{ConfigFilePath: types.FilesystemPath(app.flags.configPath)})
	if err != nil {
		return app.failWith(issue.Get(issue.ConfigLoadFailedId), err)
	}
	app.cfg, app.path = loaded.Config, loaded.Path

	if !app.flags.verbose {
		app.flags.verbose = app.cfg.UI.Verbose
	}
	return nil
}

// logger returns a leveled logger writing to stderr.
func (app *App) logger() *log.Logger {
	level := log.InfoLevel
	if app.flags.verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(app.Stderr, log.Options{
		Prefix:          "sleapenv",
		Level:           level,
		ReportTimestamp: app.flags.verbose,
	})
}

// engine returns the engine named by --engine or the configuration.
func (app *App) engine(ctx context.Context) (container.Engine, error) {
	preferred := container.EngineType(app.cfg.ContainerEngine)
	if app.flags.engine != "" {
		preferred = container.EngineType(app.flags.engine)
	}
	e, err := app.NewEngine(ctx, preferred)
	if err != nil {
		return nil, app.fail(err)
	}
	return e, nil
}
