// SPDX-License-Identifier: MPL-2.0

package sequencer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/launchpad/launchpad/internal/provision"
)

var (
	// BuildKit plain progress: "#7 [3/6] RUN ..." and "ERROR [3/6] RUN ...",
	// optionally with a stage name: "[stage-0 3/6]".
	buildKitStepPattern  = regexp.MustCompile(`(?m)^#\d+ \[(?:\S+ )?(\d+)/(\d+)\]`)
	buildKitErrorPattern = regexp.MustCompile(`(?m)ERROR \[(?:\S+ )?(\d+)/(\d+)\]`)
	// Podman "STEP 3/9: RUN ..." and the legacy Docker builder "Step 3/9 : RUN ...".
	legacyStepPattern = regexp.MustCompile(`(?mi)^step (\d+)/(\d+)\s*:`)
	// BuildKit prefixes a vertex's error lines with its number: "#7 ERROR: ...".
	buildKitErrorLine = regexp.MustCompile(`^#\d+ error`)

	// baseImageMarkers identify a base image the engine could not obtain.
	baseImageMarkers = []string{
		"failed to resolve source metadata",
		"pull access denied",
		"manifest unknown",
		"manifest for",
		"repository does not exist",
		"requested access to the resource is denied",
		"error pulling image",
		"initializing source docker://",
		"unable to find image",
	}
)

// classification attributes a failed build to a step.
type classification struct {
	// Step is 0 when the output names no step.
	Step int
	Kind FailureKind
	// Detail is the engine's own error text.
	Detail string
}

// classifyBuild reads engine build output and finds the step whose
// instruction failed.
func classifyBuild(df *provision.Dockerfile, output string) classification {
	c := classification{Kind: EngineFailure, Detail: nativeMessage(output)}

	if step, ok := markerStep(df, buildKitErrorPattern.FindAllStringSubmatch(output, -1), provision.CountBuildKit); ok {
		return c.at(step)
	}

	lower := strings.ToLower(output)
	for _, marker := range baseImageMarkers {
		if strings.Contains(lower, marker) {
			return c.at(1)
		}
	}

	if step, ok := markerStep(df, buildKitStepPattern.FindAllStringSubmatch(output, -1), provision.CountBuildKit); ok {
		return c.at(step)
	}
	if step, ok := markerStep(df, legacyStepPattern.FindAllStringSubmatch(output, -1), provision.CountAll); ok {
		return c.at(step)
	}
	return c
}

func (c classification) at(step int) classification {
	c.Step = step
	c.Kind = stepDefAt(step).kind
	return c
}

// markerStep maps the last "k/M" marker to a step. M tells the numbering
// style apart when it matches only one of the two counts.
func markerStep(df *provision.Dockerfile, matches [][]string, preferred provision.CountStyle) (int, bool) {
	if len(matches) == 0 {
		return 0, false
	}
	last := matches[len(matches)-1]
	k, errK := strconv.Atoi(last[1])
	total, errM := strconv.Atoi(last[2])
	if errK != nil || errM != nil {
		return 0, false
	}

	style := preferred
	switch total {
	case df.Count(provision.CountBuildKit):
		style = provision.CountBuildKit
	case df.Count(provision.CountAll):
		style = provision.CountAll
	}
	if df.Count(provision.CountBuildKit) == df.Count(provision.CountAll) {
		style = preferred
	}

	in, ok := df.StepAt(k, style)
	if !ok || in.Step < 1 || in.Step > StepCount {
		return 0, false
	}
	return in.Step, true
}

// nativeMessage returns the engine's error lines, or the last output line
// when there are none.
func nativeMessage(output string) string {
	var errLines []string
	lastLine := ""
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lastLine = line
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "error") || strings.Contains(lower, "] error") ||
			buildKitErrorLine.MatchString(lower) {
			errLines = append(errLines, line)
		}
	}
	if len(errLines) == 0 {
		return lastLine
	}
	if len(errLines) > 3 {
		errLines = errLines[len(errLines)-3:]
	}
	return strings.Join(errLines, "\n")
}
