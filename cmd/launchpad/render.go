// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/launchpad/launchpad/internal/issue"
	"github.com/launchpad/launchpad/internal/sequencer"
	"github.com/launchpad/launchpad/pkg/types"
)

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// renderError prints the catalog entry linked to err, if any, followed by
// the error itself.
func (a *App) renderError(w io.Writer, err error) {
	if id := issue.IdOf(err); id != 0 {
		if entry := issue.Get(id); entry != nil {
			rendered, renderErr := entry.Render(a.issueStyle())
			if renderErr != nil {
				slog.Warn("failed to render issue catalog entry", "issueID", id, "error", renderErr)
			} else {
				fmt.Fprint(w, rendered)
			}
		}
	}
	fmt.Fprintln(w, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, a.flags.verbose))
}

// exitCodeFor maps a command error to the process exit code: step
// failures exit 2, an entry-point exit code is propagated, anything else
// exits 1.
func exitCodeFor(err error) types.ExitCode {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, sequencer.ErrStepFailed) {
		return types.ExitBuildFailed
	}
	return types.ExitFailure
}

// renderResult prints the step outcomes of a build or launch.
func renderResult(w io.Writer, res *sequencer.Result) {
	for _, st := range res.Steps {
		var mark string
		switch st.Outcome {
		case sequencer.OutcomeOK:
			mark = SuccessStyle.Render("✓")
		case sequencer.OutcomeFailed:
			mark = ErrorStyle.Render("✗")
		case sequencer.OutcomeSkipped:
			mark = WarningStyle.Render("-")
		default:
			mark = SubtitleStyle.Render("·")
		}
		fmt.Fprintf(w, "%s %s %s\n", stepNumberStyle.Render(fmt.Sprint(st.Number)), mark, st.Name)
	}

	if res.Image != "" {
		note := ""
		if res.Reused {
			note = SubtitleStyle.Render(" (reused)")
		}
		fmt.Fprintf(w, "\n%s %s%s\n", CmdStyle.Render("image:"), res.Image, note)
	}
	if res.Fingerprint != "" {
		fmt.Fprintf(w, "%s %d package(s), %s\n", CmdStyle.Render("dependencies:"), len(res.Dependencies), shortFingerprint(res.Fingerprint))
	}
	if res.Address != "" {
		fmt.Fprintf(w, "%s %s\n", CmdStyle.Render("address:"), res.Address)
	}
	if res.ContainerID != "" {
		fmt.Fprintf(w, "%s %s\n", CmdStyle.Render("container:"), res.ContainerID.Short())
	}
	if res.Failure != nil && res.Failure.Detail != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", WarningStyle.Render("engine output:"), indent(res.Failure.Detail))
	}
}

// renderPlan prints the steps with the instructions each contributes.
func renderPlan(w io.Writer, plan []sequencer.Step) {
	for _, st := range plan {
		fmt.Fprintf(w, "%s %s %s\n",
			stepNumberStyle.Render(fmt.Sprint(st.Number)),
			st.Name,
			SubtitleStyle.Render("→ "+st.State.String()),
		)
		if len(st.Instructions) == 0 {
			fmt.Fprintf(w, "      %s\n", SubtitleStyle.Render("(nothing to render)"))
		}
		for _, in := range st.Instructions {
			fmt.Fprintf(w, "      %s\n", CmdStyle.Render(in))
		}
	}
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
