// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/launchpad/launchpad/internal/container"
	"github.com/launchpad/launchpad/internal/sequencer"
)

// buildFlags are the build knobs shared by build and launch.
type buildFlags struct {
	noCache bool
	pull    bool
	reuse   bool
	asJSON  bool
}

func (f *buildFlags) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.noCache, "no-cache", true, "rebuild every layer (default from build.no_cache)")
	cmd.Flags().BoolVar(&f.pull, "pull", true, "pull the base image before building (default from build.pull)")
	cmd.Flags().BoolVar(&f.reuse, "reuse", false, "skip the build when the image for this source exists (default from build.reuse)")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print the result as JSON")
}

// settings layers explicitly set flags over the configuration.
func (f *buildFlags) settings(cmd *cobra.Command, app *App) buildSettings {
	bs := app.defaultBuildSettings()
	if cmd.Flags().Changed("no-cache") {
		bs.noCache = f.noCache
	}
	if cmd.Flags().Changed("pull") {
		bs.pull = f.pull
	}
	if cmd.Flags().Changed("reuse") {
		bs.reuse = f.reuse
	}
	return bs
}

// buildImage runs steps 1-8 and returns the sequencer ready to launch.
func buildImage(ctx context.Context, app *App, bs buildSettings) (*sequencer.Sequencer, *sequencer.Result, error) {
	r, err := app.loadRecipe()
	if err != nil {
		return nil, nil, err
	}
	engine, err := app.engine(ctx)
	if err != nil {
		return nil, nil, err
	}
	s, err := app.newSequencer(r, engine, bs)
	if err != nil {
		return nil, nil, err
	}
	res, err := s.Build(ctx)
	return s, res, err
}

// printResult writes res as JSON or as the step listing.
func printResult(app *App, res *sequencer.Result, asJSON bool) error {
	if res == nil {
		return nil
	}
	if asJSON {
		data, err := res.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(app.stdout, string(data))
		return nil
	}
	renderResult(app.stdout, res)
	return nil
}

func newBuildCommand(app *App) *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build and verify the service image",
		Long: `Build and verify the service image.

Every step is checked on the host before the engine runs, so a missing
manifest or lock file fails without building anything. After the build the
image is inspected: working directory, environment, port and default command
must match the recipe, otherwise the image is removed.

Exit status is 2 when a step fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, res, err := buildImage(cmd.Context(), app, flags.settings(cmd, app))
			if printErr := printResult(app, res, flags.asJSON); printErr != nil && err == nil {
				err = printErr
			}
			return err
		},
	}
	flags.bind(cmd)
	return cmd
}

func newVerifyCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [image]",
		Short: "Check that an image matches the recipe",
		Long: `Check that an image matches the recipe: working directory, PYTHONPATH,
unbuffered output, exposed port, default command and, when the source tree
resolves, the dependency fingerprint label.

Without an argument the image built from the current source tree is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := app.loadRecipe()
			if err != nil {
				return err
			}
			engine, err := app.engine(cmd.Context())
			if err != nil {
				return err
			}
			s, err := app.newSequencer(r, engine, app.defaultBuildSettings())
			if err != nil {
				return err
			}

			var image container.ImageTag
			if len(args) == 1 {
				image = container.ImageTag(args[0])
			} else if image, err = s.ImageTag(); err != nil {
				return err
			}
			if err := image.Validate(); err != nil {
				return err
			}
			if err := s.Verify(cmd.Context(), image); err != nil {
				return err
			}
			fmt.Fprintf(app.stdout, "%s %s matches the recipe\n", SuccessStyle.Render("✓"), image)
			return nil
		},
	}
}
