// SPDX-License-Identifier: MPL-2.0

package sequencer

import (
	"strings"
	"testing"

	"github.com/launchpad/launchpad/pkg/recipe"
)

func testDockerfileSequencer(t *testing.T, mutate func(*recipe.Recipe)) *Sequencer {
	t.Helper()
	r := recipe.Default()
	if mutate != nil {
		mutate(r)
	}
	s, err := New(r, Options{Engine: &fakeEngine{recipe: r}})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestClassifyBuild_NumberingFollowsRenderedSteps(t *testing.T) {
	t.Parallel()

	// Without system packages step 3 renders nothing, so every engine
	// counter shifts by one.
	df := testDockerfileSequencer(t, func(r *recipe.Recipe) { r.SystemPackages = nil }).Dockerfile()

	tests := []struct {
		output string
		step   int
	}{
		{"#6 [3/5] RUN pip install --no-cache-dir uv\nERROR [3/5] RUN pip install --no-cache-dir uv\n", 4},
		{"#8 [5/5] RUN uv sync --locked\n#8 ERROR: exit code: 1\n", 6},
		{"STEP 3/8: RUN pip install --no-cache-dir uv\nError: exit status 1\n", 4},
		{"Step 8/8 : CMD [\"uv\",\"run\",\"server.py\"]\nerror\n", 9},
		{"STEP 2/8: WORKDIR /app\nError: mkdir: permission denied\n", 2},
	}
	for _, tt := range tests {
		if got := classifyBuild(df, tt.output); got.Step != tt.step {
			t.Errorf("classifyBuild(%q) step = %d, want %d", tt.output, got.Step, tt.step)
		}
	}
}

func TestClassifyBuild_LastMarkerWins(t *testing.T) {
	t.Parallel()

	df := testDockerfileSequencer(t, nil).Dockerfile()
	output := "#5 [1/6] FROM docker.io/library/python:3.12.5\n#5 DONE 3.0s\n" +
		"#6 [2/6] WORKDIR /app\n#6 DONE 0.0s\n" +
		"#8 [4/6] RUN pip install --no-cache-dir uv\n#8 ERROR: process did not complete successfully\n"

	got := classifyBuild(df, output)
	if got.Step != 4 || got.Kind != ManagerInstall {
		t.Errorf("classifyBuild() = %+v, want step 4 manager_install", got)
	}
}

func TestClassifyBuild_StageNamedMarkers(t *testing.T) {
	t.Parallel()

	df := testDockerfileSequencer(t, nil).Dockerfile()
	got := classifyBuild(df, "ERROR [stage-0 5/6] COPY . .\n")
	if got.Step != 5 || got.Kind != SourceCopy {
		t.Errorf("classifyBuild() = %+v, want step 5 source_copy", got)
	}
}

func TestClassifyBuild_OutOfRangeMarker(t *testing.T) {
	t.Parallel()

	df := testDockerfileSequencer(t, nil).Dockerfile()
	got := classifyBuild(df, "STEP 12/12: RUN something else\n")
	if got.Step != 0 || got.Kind != EngineFailure {
		t.Errorf("classifyBuild() = %+v, want an unattributed engine failure", got)
	}
}

func TestNativeMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output string
		want   string
	}{
		{"no output", "", ""},
		{"no error lines", "step one\nstep two\n\n", "step two"},
		{"single error", "Step 6/9 : RUN uv sync\nerror: lockfile needs to be updated\ndone\n", "error: lockfile needs to be updated"},
		{
			"keeps the last three",
			"ERROR: one\nERROR: two\n#7 ERROR: three\nERROR: four\n",
			"ERROR: two\n#7 ERROR: three\nERROR: four",
		},
		{"bracketed", " > [3/6] RUN apt-get update:\n[3/6] ERROR: apt failed\n", "[3/6] ERROR: apt failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := nativeMessage(tt.output); got != tt.want {
				t.Errorf("nativeMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFailureKind_IssueIdCoversEveryKind(t *testing.T) {
	t.Parallel()

	for _, def := range steps {
		if def.kind.IssueId() == 0 {
			t.Errorf("step %q kind %s has no catalog entry", def.name, def.kind)
		}
	}
	for _, k := range []FailureKind{ImageVerification, EngineFailure} {
		if k.IssueId() == 0 {
			t.Errorf("kind %s has no catalog entry", k)
		}
	}
	if !strings.Contains((&StepError{Step: 6, Name: "resolve dependencies", Kind: DependencyResolution, Err: ErrStepFailed}).Error(), "step 6") {
		t.Error("StepError should name its step")
	}
}
