// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/launchpad/launchpad/internal/config"
)

func newConfigCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the launchpad configuration",
		Long: `Inspect the launchpad configuration.

Settings come from the defaults, then the config file, then LAUNCHPAD_*
environment variables (for example LAUNCHPAD_BUILD_REUSE=true).`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				fmt.Fprint(app.stdout, config.GenerateCUE(app.settings))
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				if app.flags.configPath != "" {
					fmt.Fprintln(app.stdout, app.flags.configPath)
					return nil
				}
				path, err := config.FilePath()
				if err != nil {
					return err
				}
				fmt.Fprintln(app.stdout, path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Write the default config file unless one exists",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				path, err := config.CreateDefaultConfig()
				if err != nil {
					return err
				}
				fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Config:"), path)
				return nil
			},
		},
	)
	return cmd
}
