// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newPlanCommand(app *App) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the bootstrap steps and the instructions they render",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := app.loadRecipe()
			if err != nil {
				return err
			}
			s, err := app.offlineSequencer(r)
			if err != nil {
				return err
			}
			plan, err := s.Plan()
			if err != nil {
				return err
			}

			if asJSON {
				data, err := json.MarshalIndent(plan, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(app.stdout, string(data))
				return nil
			}
			title := "Bootstrap plan"
			if r.Description != "" {
				title += " for " + r.Description
			}
			fmt.Fprintln(app.stdout, TitleStyle.Render(title))
			fmt.Fprintln(app.stdout)
			renderPlan(app.stdout, plan)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan as JSON")
	return cmd
}

func newRenderCommand(app *App) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the Dockerfile the build uses",
		Long: `Print the Dockerfile the build uses. Equal recipes render byte-identical
text, so the output can be committed and diffed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := app.loadRecipe()
			if err != nil {
				return err
			}
			s, err := app.offlineSequencer(r)
			if err != nil {
				return err
			}
			text, err := s.Render()
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				fmt.Fprint(app.stdout, text)
				return nil
			}
			if err := os.WriteFile(output, []byte(text), 0o644); err != nil {
				return fmt.Errorf("write dockerfile: %w", err)
			}
			app.logger.Info("dockerfile written", "path", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the Dockerfile to this file instead of stdout")
	return cmd
}
