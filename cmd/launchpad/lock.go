// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/launchpad/launchpad/internal/depset"
	"github.com/launchpad/launchpad/internal/issue"
)

func newLockCommand(app *App) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Show the exact dependency set the build installs",
		Long: `Show the exact dependency set the build installs: the manifest's declared
requirements, the default dependency groups and their transitive closure
through uv.lock on Linux, nothing else. The fingerprint is recorded on the built image.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := app.loadRecipe()
			if err != nil {
				return err
			}
			set, err := depset.Load(r.SourcePath())
			if err != nil {
				return issue.NewErrorContext().
					WithOperation("resolve dependencies").
					WithResource(r.SourcePath()).
					WithIssue(issue.DependencyResolutionFailedId).
					WithSuggestion("Run 'uv lock' after editing pyproject.toml").
					Wrap(err).
					BuildError()
			}

			if asJSON {
				data, err := json.MarshalIndent(set, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(app.stdout, string(data))
				return nil
			}

			fmt.Fprintf(app.stdout, "%s %s\n", TitleStyle.Render("project"), set.Project)
			if len(set.Groups) > 0 {
				fmt.Fprintf(app.stdout, "%s %s\n", SubtitleStyle.Render("groups"), strings.Join(set.Groups, ", "))
			}
			fmt.Fprintln(app.stdout)
			if len(set.Packages) == 0 {
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("(no dependencies)"))
			}
			for _, p := range set.Packages {
				fmt.Fprintf(app.stdout, "  %s %s\n", p.Name, CmdStyle.Render(p.Version))
			}
			fmt.Fprintf(app.stdout, "\n%s %s\n", SubtitleStyle.Render("fingerprint"), set.Fingerprint)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the dependency set as JSON")
	return cmd
}
