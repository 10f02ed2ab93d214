// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/launchpad/launchpad/pkg/recipe"
)

// ErrRecipeExists is returned by init when the project already has a recipe.
var ErrRecipeExists = errors.New("recipe already exists")

func newInitCommand(app *App) *cobra.Command {
	var (
		force       bool
		description string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write launchpad.cue with the default recipe",
		Long: `Write launchpad.cue with the default recipe into the project directory.

The default recipe builds on a pinned Python base image, installs git and
curl, installs uv, copies the project into /app, runs 'uv sync --locked',
exposes port 8080 and starts 'uv run server.py'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := app.projectDir()
			if err != nil {
				return err
			}
			path := filepath.Join(dir, recipe.DefaultFileName)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%w: %s (use --force to overwrite)", ErrRecipeExists, path)
			}

			r := recipe.Default()
			if description != "" {
				r.Description = description
			}
			if err := os.WriteFile(path, []byte(recipe.GenerateCUE(r)), 0o644); err != nil {
				return fmt.Errorf("write recipe: %w", err)
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Created"), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing recipe")
	cmd.Flags().StringVar(&description, "description", "", "free-form label recorded on the image")
	return cmd
}
