// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/launchpad/launchpad/internal/issue"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand creates the launchpad command tree bound to app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "launchpad",
		Short: "Build and launch a Python service image step by step",
		Long: TitleStyle.Render("launchpad") + SubtitleStyle.Render(" - Build and launch a Python service image step by step") + `

launchpad turns a service recipe into a container image by running a fixed
bootstrap sequence: select the base image, set the working directory, install
system packages, install the dependency manager, copy the source, resolve the
locked dependencies, expose the service port, set the environment and launch
the server. A failing step aborts the sequence and nothing runs after it.

` + SubtitleStyle.Render("Examples:") + `
  launchpad init            Write launchpad.cue with the default recipe
  launchpad plan            Show the steps and the instructions they render
  launchpad build           Build and verify the service image
  launchpad launch --wait   Build, start detached and wait for the port`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			app.loadSettings(cmd.Context())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable verbose output and stream engine progress")
	flags.StringVar(&app.flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/launchpad/config.cue)")
	flags.StringVarP(&app.flags.projectDir, "dir", "C", ".", "project directory containing the recipe and the source tree")
	flags.StringVar(&app.flags.engine, "engine", "", "container engine to prefer (podman or docker)")

	rootCmd.AddCommand(
		newInitCommand(app),
		newPlanCommand(app),
		newRenderCommand(app),
		newLockCommand(app),
		newBuildCommand(app),
		newLaunchCommand(app),
		newVerifyCommand(app),
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

// Execute runs the CLI and exits with the code of the failure, if any.
// This is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	app.installLogger = true

	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(func(w io.Writer, styles fang.Styles, err error) {
			var exitErr *ExitError
			if errors.As(err, &exitErr) && exitErr.Err == nil {
				// The entry-point already reported its own failure.
				return
			}
			var ae *issue.ActionableError
			if !errors.As(err, &ae) {
				fang.DefaultErrorHandler(w, styles, err)
				return
			}
			app.renderError(w, err)
		}),
	); err != nil {
		os.Exit(int(exitCodeFor(err)))
	}
}
