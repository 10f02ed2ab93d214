// SPDX-License-Identifier: MPL-2.0

package sequencer

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/launchpad/launchpad/internal/container"
	"github.com/launchpad/launchpad/internal/depset"
	"github.com/launchpad/launchpad/internal/issue"
	"github.com/launchpad/launchpad/internal/provision"
	"github.com/launchpad/launchpad/internal/runtime"
	"github.com/launchpad/launchpad/internal/testutil"
	"github.com/launchpad/launchpad/pkg/recipe"
	"github.com/launchpad/launchpad/pkg/types"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	flag.Parse()
	if !testing.Short() {
		// Engine clients of the integration tests keep pooled connections open.
		os.Exit(m.Run())
	}
	goleak.VerifyTestMain(m)
}

// fakeEngine answers inspect with the configuration the recipe describes,
// so a successful build verifies unless the test mutates it.
type fakeEngine struct {
	mu sync.Mutex

	recipe *recipe.Recipe
	labels map[string]string

	buildErr      error
	pullErr       error
	inspectMutate func(*container.ImageConfig)
	runResult     container.RunResult
	runErr        error
	stopErr       error

	builds  int
	pulls   []container.ImageTag
	removed []container.ImageTag
	runs    []container.RunOptions
	stopped []container.ContainerID
	// forced are containers removed with force.
	forced []container.ContainerID
}

func (f *fakeEngine) Name() string                            { return "fake" }
func (f *fakeEngine) Available() bool                         { return true }
func (f *fakeEngine) Version(context.Context) (string, error) { return "1.0", nil }

func (f *fakeEngine) Build(_ context.Context, opts container.BuildOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds++
	f.labels = opts.Labels
	return f.buildErr
}

func (f *fakeEngine) Pull(_ context.Context, image container.ImageTag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls = append(f.pulls, image)
	return f.pullErr
}

func (f *fakeEngine) ImageExists(context.Context, container.ImageTag) (bool, error) {
	return false, nil
}

func (f *fakeEngine) InspectImage(context.Context, container.ImageTag) (*container.ImageConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg := imageConfigFor(f.recipe, f.labels)
	if f.inspectMutate != nil {
		f.inspectMutate(cfg)
	}
	return cfg, nil
}

func (f *fakeEngine) RemoveImage(_ context.Context, image container.ImageTag, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, image)
	return nil
}

func (f *fakeEngine) Run(_ context.Context, opts container.RunOptions) (*container.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, opts)
	rr := f.runResult
	return &rr, f.runErr
}

func (f *fakeEngine) Stop(_ context.Context, id container.ContainerID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	return f.stopErr
}

func (f *fakeEngine) Remove(_ context.Context, id container.ContainerID, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if force {
		f.forced = append(f.forced, id)
	}
	return nil
}

func imageConfigFor(r *recipe.Recipe, labels map[string]string) *container.ImageConfig {
	env := map[string]string{"PATH": "/usr/local/bin:/usr/bin:/bin"}
	for _, v := range r.Environment() {
		env[v.Name] = v.Value
	}
	return &container.ImageConfig{
		ID:           "sha256:0123456789ab",
		WorkingDir:   string(r.WorkDir),
		Env:          env,
		Cmd:          r.Commands().Run,
		ExposedPorts: []string{fmt.Sprintf("%d/tcp", r.Port)},
		Labels:       labels,
	}
}

// newTestSequencer writes files as the project tree and returns a
// sequencer over a fake engine. The host environment is hidden from the
// env builder.
func newTestSequencer(t *testing.T, files map[string]string, mutate ...func(*recipe.Recipe)) (*Sequencer, *fakeEngine) {
	t.Helper()

	r := recipe.Default()
	r.SetDir(testutil.WriteProject(t, files))
	for _, m := range mutate {
		m(r)
	}

	engine := &fakeEngine{recipe: r}
	cfg := provision.DefaultConfig()
	cfg.Apply(provision.WithBuildRoot(t.TempDir()), provision.WithTagSuffix(""))

	s, err := New(r, Options{
		Engine:      engine,
		Provisioner: provision.NewImageProvisioner(engine, cfg),
		EnvBuilder:  &runtime.DefaultEnvBuilder{Environ: func() []string { return nil }},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, engine
}

func mustBuild(t *testing.T, s *Sequencer) *Result {
	t.Helper()
	res, err := s.Build(t.Context())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return res
}

func outcomes(res *Result) []Outcome {
	out := make([]Outcome, len(res.Steps))
	for i, st := range res.Steps {
		out[i] = st.Outcome
	}
	return out
}

func TestImageTag_MatchesBuildAndHonoursExclude(t *testing.T) {
	t.Parallel()

	files := testutil.WithFiles(testutil.ServiceProject(), map[string]string{"notes/todo.md": "draft\n"})
	s, _ := newTestSequencer(t, files, func(r *recipe.Recipe) { r.Exclude = []string{"notes"} })

	before, err := s.ImageTag()
	if err != nil {
		t.Fatalf("ImageTag() error = %v", err)
	}
	testutil.WriteFiles(t, s.recipe.SourcePath(), map[string]string{"notes/todo.md": "edited\n"})
	after, err := s.ImageTag()
	if err != nil {
		t.Fatalf("ImageTag() error = %v", err)
	}
	if before != after {
		t.Errorf("excluded file changed the tag: %s -> %s", before, after)
	}

	res := mustBuild(t, s)
	if res.Image != after {
		t.Errorf("Build() image = %s, want ImageTag() %s", res.Image, after)
	}
}

func TestNew_RequiresEngine(t *testing.T) {
	t.Parallel()

	if _, err := New(recipe.Default(), Options{}); !errors.Is(err, ErrNoEngine) {
		t.Errorf("New() = %v, want ErrNoEngine", err)
	}
}

func TestBuild_Success(t *testing.T) {
	t.Parallel()

	s, engine := newTestSequencer(t, testutil.ServiceProject())
	res := mustBuild(t, s)

	if res.Status != StatusOK || res.State != EnvSet || s.State() != EnvSet {
		t.Errorf("status = %s, state = %s (machine %s), want ok/env_set", res.Status, res.State, s.State())
	}
	want := []Outcome{
		OutcomeOK, OutcomeOK, OutcomeOK, OutcomeOK, OutcomeOK,
		OutcomeOK, OutcomeOK, OutcomeOK, OutcomePending,
	}
	if diff := cmp.Diff(want, outcomes(res)); diff != "" {
		t.Errorf("step outcomes mismatch (-want +got):\n%s", diff)
	}

	set, err := depset.Load(s.recipe.SourcePath())
	if err != nil {
		t.Fatal(err)
	}
	if res.Fingerprint != set.Fingerprint {
		t.Errorf("Fingerprint = %q, want %q", res.Fingerprint, set.Fingerprint)
	}
	if diff := cmp.Diff([]depset.Package{{Name: "idna", Version: "3.8", Source: "https://pypi.org/simple"}}, res.Dependencies); diff != "" {
		t.Errorf("Dependencies mismatch (-want +got):\n%s", diff)
	}

	if engine.builds != 1 {
		t.Errorf("builds = %d, want 1", engine.builds)
	}
	if engine.labels[LabelFingerprint] != set.Fingerprint {
		t.Errorf("fingerprint label = %q", engine.labels[LabelFingerprint])
	}
	if !strings.HasPrefix(string(res.Image), "launchpad:") || res.Reused {
		t.Errorf("Image = %q, Reused = %v", res.Image, res.Reused)
	}
	if len(engine.removed) != 0 {
		t.Errorf("verified image should be kept, removed %v", engine.removed)
	}
}

func TestBuild_OnlyOnce(t *testing.T) {
	t.Parallel()

	s, _ := newTestSequencer(t, testutil.ServiceProject())
	mustBuild(t, s)

	_, err := s.Build(t.Context())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Build() = %v, want ErrInvalidTransition", err)
	}
}

func TestBuild_EqualSourcesShareTag(t *testing.T) {
	t.Parallel()

	a, _ := newTestSequencer(t, testutil.ServiceProject())
	b, _ := newTestSequencer(t, testutil.ServiceProject())

	if ra, rb := mustBuild(t, a), mustBuild(t, b); ra.Image != rb.Image {
		t.Errorf("tags differ for equal inputs: %s vs %s", ra.Image, rb.Image)
	}

	c, _ := newTestSequencer(t, testutil.WithFiles(testutil.ServiceProject(), map[string]string{
		"server.py": "print('changed')\n",
	}))
	if rc := mustBuild(t, c); rc.Image == a.Result().Image {
		t.Error("changing the source tree should change the tag")
	}
}

func TestBuild_PreflightFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		files   map[string]string
		mutate  func(*recipe.Recipe)
		step    int
		kind    FailureKind
		wantErr error
	}{
		{
			name:    "unpinned base image",
			files:   testutil.ServiceProject(),
			mutate:  func(r *recipe.Recipe) { r.BaseImage = "python" },
			step:    1,
			kind:    BaseImageUnavailable,
			wantErr: recipe.ErrUnpinnedBaseImage,
		},
		{
			name:   "duplicate package",
			files:  testutil.ServiceProject(),
			mutate: func(r *recipe.Recipe) { r.SystemPackages = []recipe.PackageName{"git", "git=1:2.39.2"} },
			step:   3,
			kind:   SystemPackageInstall,
		},
		{
			name:    "unsupported manager",
			files:   testutil.ServiceProject(),
			mutate:  func(r *recipe.Recipe) { r.DependencyManager.Name = "poetry" },
			step:    4,
			kind:    ManagerInstall,
			wantErr: recipe.ErrUnsupportedManager,
		},
		{
			name:   "missing source directory",
			files:  testutil.ServiceProject(),
			mutate: func(r *recipe.Recipe) { r.SourceDir = "service" },
			step:   5,
			kind:   SourceCopy,
		},
		{
			name:    "missing manifest",
			files:   testutil.WithFiles(testutil.ServiceProject(), map[string]string{"pyproject.toml": ""}),
			step:    6,
			kind:    DependencyResolution,
			wantErr: depset.ErrManifestNotFound,
		},
		{
			name:    "missing lock",
			files:   testutil.WithFiles(testutil.ServiceProject(), map[string]string{"uv.lock": ""}),
			step:    6,
			kind:    DependencyResolution,
			wantErr: depset.ErrLockNotFound,
		},
		{
			name: "stale lock",
			files: testutil.WithFiles(testutil.ServiceProject(), map[string]string{
				"pyproject.toml": "[project]\nname = \"hello-service\"\ndependencies = [\"idna\", \"httpx\"]\n",
			}),
			step:    6,
			kind:    DependencyResolution,
			wantErr: depset.ErrLockStale,
		},
		{
			name:   "conflicting module path",
			files:  testutil.ServiceProject(),
			mutate: func(r *recipe.Recipe) { r.Env = map[string]string{recipe.EnvModulePath: "/opt"} },
			step:   8,
			kind:   RecipeInvalid,
		},
		{
			name:  "missing entry-point",
			files: testutil.WithFiles(testutil.ServiceProject(), map[string]string{"server.py": ""}),
			step:  9,
			kind:  EntryPointLaunch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var mutate []func(*recipe.Recipe)
			if tt.mutate != nil {
				mutate = append(mutate, tt.mutate)
			}
			s, engine := newTestSequencer(t, tt.files, mutate...)

			res, err := s.Build(t.Context())
			if err == nil {
				t.Fatal("Build() should fail")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Build() = %v, want errors.Is %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrStepFailed) {
				t.Errorf("Build() = %v, want ErrStepFailed in chain", err)
			}

			var se *StepError
			if !errors.As(err, &se) || se.Step != tt.step || se.Kind != tt.kind {
				t.Fatalf("StepError = %+v, want step %d kind %s", se, tt.step, tt.kind)
			}
			if got := issue.IdOf(err); got != tt.kind.IssueId() {
				t.Errorf("issue = %d, want %d", got, tt.kind.IssueId())
			}

			if engine.builds != 0 {
				t.Errorf("engine built %d times after a failed preflight", engine.builds)
			}
			if s.State() != Failed || s.machine.FailedFrom() != stepState(tt.step-1) {
				t.Errorf("state = %s from %s, want failed from %s", s.State(), s.machine.FailedFrom(), stepState(tt.step-1))
			}
			for i, st := range res.Steps {
				want := OutcomeSkipped
				switch {
				case i+1 < tt.step:
					want = OutcomeOK
				case i+1 == tt.step:
					want = OutcomeFailed
				}
				if st.Outcome != want {
					t.Errorf("step %d outcome = %s, want %s", i+1, st.Outcome, want)
				}
			}
			if res.Image != "" {
				t.Errorf("failed build reported image %q", res.Image)
			}
		})
	}
}

func TestBuild_PullBaseFailure(t *testing.T) {
	t.Parallel()

	r := recipe.Default()
	r.SetDir(testutil.WriteProject(t, testutil.ServiceProject()))
	engine := &fakeEngine{recipe: r, pullErr: errors.New("manifest unknown")}
	s, err := New(r, Options{Engine: engine, PullBase: true})
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Build(t.Context())
	var se *StepError
	if !errors.As(err, &se) || se.Step != 1 || se.Kind != BaseImageUnavailable {
		t.Fatalf("Build() = %v, want step 1 base_image_unavailable", err)
	}
	if diff := cmp.Diff([]container.ImageTag{"python:3.12.5"}, engine.pulls); diff != "" {
		t.Errorf("pulls mismatch (-want +got):\n%s", diff)
	}
	if engine.builds != 0 {
		t.Error("engine should not build after the base image failed")
	}
}

func TestBuild_EngineFailureAttributedToStep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output string
		step   int
		kind   FailureKind
		detail string
	}{
		{
			name: "buildkit package install",
			output: "#7 [3/6] RUN apt-get update && apt-get install -y --no-install-recommends curl git\n" +
				"#7 1.203 E: Unable to locate package gti\n" +
				"#7 ERROR: process \"/bin/sh -c apt-get update\" did not complete successfully: exit code: 100\n" +
				"------\n > [3/6] RUN apt-get update:\n------\n",
			step:   3,
			kind:   SystemPackageInstall,
			detail: "exit code: 100",
		},
		{
			name: "buildkit locked sync",
			output: "#9 [5/6] COPY . .\n#9 DONE 0.1s\n#10 [6/6] RUN uv sync --locked\n" +
				"#10 0.4 error: The lockfile at `uv.lock` needs to be updated\n" +
				"ERROR [6/6] RUN uv sync --locked\n",
			step: 6,
			kind: DependencyResolution,
		},
		{
			name: "podman manager install",
			output: "STEP 1/9: FROM python:3.12.5\nSTEP 2/9: WORKDIR /app\n" +
				"STEP 3/9: RUN apt-get update\nSTEP 4/9: RUN pip install --no-cache-dir uv\n" +
				"ERROR: No matching distribution found for uv\n" +
				"Error: building at STEP \"RUN pip install --no-cache-dir uv\": exit status 1\n",
			step:   4,
			kind:   ManagerInstall,
			detail: "No matching distribution",
		},
		{
			name: "legacy builder sync",
			output: "Step 5/9 : COPY . .\n ---> 1c2d\nStep 6/9 : RUN uv sync --locked\n" +
				" ---> Running in 3f4e\nThe command '/bin/sh -c uv sync --locked' returned a non-zero code: 2\n",
			step: 6,
			kind: DependencyResolution,
		},
		{
			name:   "base image not found",
			output: "ERROR: failed to solve: python:3.12.5: failed to resolve source metadata for docker.io/library/python:3.12.5: not found\n",
			step:   1,
			kind:   BaseImageUnavailable,
			detail: "failed to resolve source metadata",
		},
		{
			name:   "daemon unreachable",
			output: "Cannot connect to the Docker daemon at unix:///var/run/docker.sock. Is the docker daemon running?\n",
			step:   0,
			kind:   EngineFailure,
			detail: "Cannot connect",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, engine := newTestSequencer(t, testutil.ServiceProject())
			engine.buildErr = &container.BuildError{
				Engine: "fake",
				Tag:    "launchpad:test",
				Output: tt.output,
				Err:    errors.New("exit status 1"),
			}

			res, err := s.Build(t.Context())
			var se *StepError
			if !errors.As(err, &se) {
				t.Fatalf("Build() = %v, want StepError", err)
			}
			if se.Step != tt.step || se.Kind != tt.kind {
				t.Errorf("failure = step %d %s, want step %d %s", se.Step, se.Kind, tt.step, tt.kind)
			}
			if !strings.Contains(res.Failure.Detail, tt.detail) {
				t.Errorf("Detail = %q, want it to contain %q", res.Failure.Detail, tt.detail)
			}
			if s.State() != Failed || res.Image != "" {
				t.Errorf("state = %s, image = %q after failed build", s.State(), res.Image)
			}
		})
	}
}

func TestBuild_VerificationFailureRemovesImage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*container.ImageConfig)
		step   int
	}{
		{"working directory", func(c *container.ImageConfig) { c.WorkingDir = "/" }, 2},
		{"fingerprint label", func(c *container.ImageConfig) { c.Labels = nil }, 6},
		{"exposed port", func(c *container.ImageConfig) { c.ExposedPorts = []string{"80/tcp"} }, 7},
		{"module path", func(c *container.ImageConfig) { c.Env[recipe.EnvModulePath] = "/" }, 8},
		{"unbuffered output", func(c *container.ImageConfig) { delete(c.Env, recipe.EnvUnbuffered) }, 8},
		{"entrypoint override", func(c *container.ImageConfig) { c.Entrypoint = []string{"/bin/sh", "-c"} }, 9},
		{"default command", func(c *container.ImageConfig) { c.Cmd = []string{"python3"} }, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, engine := newTestSequencer(t, testutil.ServiceProject())
			engine.inspectMutate = tt.mutate

			res, err := s.Build(t.Context())
			if !errors.Is(err, ErrImageMismatch) {
				t.Fatalf("Build() = %v, want ErrImageMismatch", err)
			}
			var se *StepError
			if !errors.As(err, &se) || se.Step != tt.step || se.Kind != ImageVerification {
				t.Errorf("StepError = %+v, want step %d image_verification", se, tt.step)
			}
			if len(engine.removed) != 1 {
				t.Errorf("removed = %v, want the built image", engine.removed)
			}
			if res.Image != "" || s.State() != Failed {
				t.Errorf("image = %q, state = %s", res.Image, s.State())
			}
		})
	}
}

func TestVerify_ActionableError(t *testing.T) {
	t.Parallel()

	s, engine := newTestSequencer(t, testutil.ServiceProject())
	engine.labels = map[string]string{}
	engine.inspectMutate = func(c *container.ImageConfig) { c.ExposedPorts = nil }

	err := s.Verify(t.Context(), "launchpad:abc")
	var ae *issue.ActionableError
	if !errors.As(err, &ae) || ae.IssueId != issue.ImageVerificationFailedId {
		t.Fatalf("Verify() = %v, want ActionableError with ImageVerificationFailedId", err)
	}
	// Without a prior build the fingerprint comes from the source tree.
	var me *MismatchError
	if !errors.As(err, &me) || me.Step != 6 {
		t.Errorf("mismatch = %+v, want the fingerprint label first", me)
	}
	if s.State() != Pending {
		t.Errorf("Verify() changed state to %s", s.State())
	}
}

func TestPlan(t *testing.T) {
	t.Parallel()

	s, _ := newTestSequencer(t, testutil.ServiceProject())
	plan, err := s.Plan()
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan) != StepCount {
		t.Fatalf("len(Plan()) = %d, want %d", len(plan), StepCount)
	}

	want := []string{
		"FROM python:3.12.5",
		"WORKDIR /app",
		"RUN apt-get update && apt-get install -y --no-install-recommends curl git && rm -rf /var/lib/apt/lists/*",
		"RUN pip install --no-cache-dir uv",
		"COPY . .",
		"RUN uv sync --locked",
		"EXPOSE 8080",
		"ENV PYTHONPATH=/app PYTHONUNBUFFERED=1",
		`CMD ["uv","run","server.py"]`,
	}
	for i, st := range plan {
		if st.Number != i+1 || st.State != State(i+1) {
			t.Errorf("plan[%d] = step %d reaching %s", i, st.Number, st.State)
		}
		if diff := cmp.Diff([]string{want[i]}, st.Instructions); diff != "" {
			t.Errorf("step %d instructions mismatch (-want +got):\n%s", i+1, diff)
		}
	}
}

func TestPlan_NoSystemPackages(t *testing.T) {
	t.Parallel()

	s, _ := newTestSequencer(t, testutil.ServiceProject(), func(r *recipe.Recipe) { r.SystemPackages = nil })
	plan, err := s.Plan()
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan[2].Instructions) != 0 {
		t.Errorf("step 3 instructions = %v, want none", plan[2].Instructions)
	}
}

func TestRender_ModulePathFollowsWorkDir(t *testing.T) {
	t.Parallel()

	s, _ := newTestSequencer(t, testutil.ServiceProject(), func(r *recipe.Recipe) { r.WorkDir = "/srv/hello" })
	text, err := s.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for _, line := range []string{"WORKDIR /srv/hello\n", "ENV PYTHONPATH=/srv/hello PYTHONUNBUFFERED=1\n"} {
		if !strings.Contains(text, line) {
			t.Errorf("Render() missing %q:\n%s", line, text)
		}
	}

	again, _ := s.Render() //nolint:errcheck // checked above
	if again != text {
		t.Error("Render() is not deterministic")
	}
}

func TestLaunch_BeforeBuild(t *testing.T) {
	t.Parallel()

	s, engine := newTestSequencer(t, testutil.ServiceProject())
	if _, err := s.Launch(t.Context(), LaunchRequest{}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Launch() = %v, want ErrInvalidTransition", err)
	}
	if len(engine.runs) != 0 {
		t.Error("engine ran a container before the image was built")
	}
}

func TestLaunch_Foreground(t *testing.T) {
	t.Parallel()

	s, engine := newTestSequencer(t, testutil.ServiceProject())
	mustBuild(t, s)

	res, err := s.Launch(t.Context(), LaunchRequest{Vars: map[string]string{"TAVILY_API_KEY": "tvly-test"}})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if res.State != Launched || res.Status != StatusOK || s.State() != Launched {
		t.Errorf("state = %s status = %s", res.State, res.Status)
	}
	for _, st := range res.Steps {
		if st.Outcome != OutcomeOK {
			t.Errorf("step %d outcome = %s", st.Number, st.Outcome)
		}
	}
	if res.Address != "localhost:8080" {
		t.Errorf("Address = %q", res.Address)
	}

	if len(engine.runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(engine.runs))
	}
	opts := engine.runs[0]
	if opts.Image != res.Image || opts.Detach || !opts.Remove {
		t.Errorf("run options = %+v", opts)
	}
	if diff := cmp.Diff(map[string]string{"TAVILY_API_KEY": "tvly-test"}, opts.Env); diff != "" {
		t.Errorf("launch env mismatch (-want +got):\n%s", diff)
	}
	wantPorts := []container.PortMapping{{HostPort: 8080, ContainerPort: 8080, Protocol: container.PortProtocolTCP}}
	if diff := cmp.Diff(wantPorts, opts.Ports); diff != "" {
		t.Errorf("ports mismatch (-want +got):\n%s", diff)
	}
}

func TestLaunch_EntryPointExitCode(t *testing.T) {
	t.Parallel()

	s, engine := newTestSequencer(t, testutil.ServiceProject())
	mustBuild(t, s)
	engine.runResult = container.RunResult{ExitCode: 3}

	res, err := s.Launch(t.Context(), LaunchRequest{Vars: map[string]string{"TAVILY_API_KEY": "x"}})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if res.State != Launched || res.Status != StatusError || res.ExitCode != 3 {
		t.Errorf("state = %s status = %s exit = %d", res.State, res.Status, res.ExitCode)
	}
	if res.Failure == nil || res.Failure.Kind != EntryPointLaunch || res.Failure.Step != StepCount {
		t.Errorf("Failure = %+v", res.Failure)
	}
}

func TestLaunch_EngineExitCodeFails(t *testing.T) {
	t.Parallel()

	for _, code := range []types.ExitCode{125, 126, 127} {
		t.Run(strconv.Itoa(int(code)), func(t *testing.T) {
			t.Parallel()

			s, engine := newTestSequencer(t, testutil.ServiceProject())
			mustBuild(t, s)
			engine.runResult = container.RunResult{ExitCode: code}

			res, err := s.Launch(t.Context(), LaunchRequest{Vars: map[string]string{"TAVILY_API_KEY": "x"}})
			var se *StepError
			if !errors.As(err, &se) || se.Step != StepCount || se.Kind != EntryPointLaunch {
				t.Fatalf("Launch() = %v, want step 9 entrypoint_launch", err)
			}
			if s.State() != Failed || res.ExitCode != code {
				t.Errorf("state = %s exit = %d", s.State(), res.ExitCode)
			}
			if res.Steps[StepCount-2].Outcome != OutcomeOK {
				t.Error("steps before the launch should stay ok")
			}
		})
	}
}

func TestLaunch_MissingRuntimeEnv(t *testing.T) {
	t.Parallel()

	s, engine := newTestSequencer(t, testutil.ServiceProject())
	mustBuild(t, s)

	res, err := s.Launch(t.Context(), LaunchRequest{})
	if !errors.Is(err, runtime.ErrRuntimeEnvMissing) {
		t.Fatalf("Launch() = %v, want ErrRuntimeEnvMissing", err)
	}
	if got := issue.IdOf(err); got != issue.RuntimeEnvMissingId {
		t.Errorf("issue = %d, want RuntimeEnvMissingId", got)
	}
	if res.Failure == nil || res.Failure.Issue != issue.RuntimeEnvMissingId {
		t.Errorf("Failure = %+v", res.Failure)
	}
	if len(engine.runs) != 0 {
		t.Error("engine should not run without the required environment")
	}
}

func TestLaunch_EnvFromProjectDotenv(t *testing.T) {
	t.Parallel()

	files := testutil.WithFiles(testutil.ServiceProject(), map[string]string{
		".env": "TAVILY_API_KEY=from-dotenv\nPYTHONUNBUFFERED=1\n",
	})
	s, engine := newTestSequencer(t, files)
	mustBuild(t, s)

	if _, err := s.Launch(t.Context(), LaunchRequest{Vars: map[string]string{"AWS_REGION": "eu-west-1"}}); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	want := map[string]string{"TAVILY_API_KEY": "from-dotenv", "AWS_REGION": "eu-west-1"}
	if diff := cmp.Diff(want, engine.runs[0].Env); diff != "" {
		t.Errorf("launch env mismatch (-want +got):\n%s", diff)
	}
}

func TestLaunch_WaitReady(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	port := srv.Listener.Addr().(*net.TCPAddr).Port

	s, engine := newTestSequencer(t, testutil.ServiceProject())
	mustBuild(t, s)
	engine.runResult = container.RunResult{ContainerID: "c0ffee"}

	res, err := s.Launch(t.Context(), LaunchRequest{
		HostIP:       "127.0.0.1",
		HostPort:     types.NetworkPort(port),
		Wait:         true,
		ReadyTimeout: 5 * time.Second,
		Vars:         map[string]string{"TAVILY_API_KEY": "x"},
	})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if res.ContainerID != "c0ffee" || res.Address != net.JoinHostPort("127.0.0.1", strconv.Itoa(port)) {
		t.Errorf("ContainerID = %q Address = %q", res.ContainerID, res.Address)
	}
	if !engine.runs[0].Detach {
		t.Error("Wait should detach the container")
	}
	if len(engine.stopped) != 0 {
		t.Errorf("ready container was stopped: %v", engine.stopped)
	}
}

func TestLaunch_WaitTimeoutStopsContainer(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	testutil.MustClose(t, ln)

	s, engine := newTestSequencer(t, testutil.ServiceProject())
	mustBuild(t, s)
	engine.runResult = container.RunResult{ContainerID: "c0ffee"}

	_, err = s.Launch(t.Context(), LaunchRequest{
		HostIP:       "127.0.0.1",
		HostPort:     types.NetworkPort(port),
		Wait:         true,
		ReadyTimeout: 300 * time.Millisecond,
		Vars:         map[string]string{"TAVILY_API_KEY": "x"},
	})
	if !errors.Is(err, runtime.ErrNotReady) {
		t.Fatalf("Launch() = %v, want ErrNotReady", err)
	}
	if diff := cmp.Diff([]container.ContainerID{"c0ffee"}, engine.stopped); diff != "" {
		t.Errorf("stopped mismatch (-want +got):\n%s", diff)
	}
	if len(engine.forced) != 0 {
		t.Errorf("stopped container should not be force-removed: %v", engine.forced)
	}
	if s.State() != Failed {
		t.Errorf("state = %s, want failed", s.State())
	}
}

func TestLaunch_WaitTimeoutRemovesContainerWhenStopFails(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	testutil.MustClose(t, ln)

	s, engine := newTestSequencer(t, testutil.ServiceProject())
	mustBuild(t, s)
	engine.runResult = container.RunResult{ContainerID: "c0ffee"}
	engine.stopErr = errors.New("stop timed out")

	_, err = s.Launch(t.Context(), LaunchRequest{
		HostIP:       "127.0.0.1",
		HostPort:     types.NetworkPort(port),
		Wait:         true,
		ReadyTimeout: 300 * time.Millisecond,
		Vars:         map[string]string{"TAVILY_API_KEY": "x"},
	})
	if !errors.Is(err, runtime.ErrNotReady) {
		t.Fatalf("Launch() = %v, want ErrNotReady", err)
	}
	if diff := cmp.Diff([]container.ContainerID{"c0ffee"}, engine.forced); diff != "" {
		t.Errorf("force-removed mismatch (-want +got):\n%s", diff)
	}
}

func TestResult_JSON(t *testing.T) {
	t.Parallel()

	s, _ := newTestSequencer(t, testutil.WithFiles(testutil.ServiceProject(), map[string]string{"uv.lock": ""}))
	res, _ := s.Build(t.Context()) //nolint:errcheck // the failure is in the result

	data, err := res.JSON()
	if err != nil {
		t.Fatalf("JSON() error = %v", err)
	}
	var doc struct {
		Status  string `json:"status"`
		State   string `json:"state"`
		Failure struct {
			Step int    `json:"step"`
			Kind string `json:"kind"`
		} `json:"failure"`
		Steps []struct {
			Outcome string `json:"outcome"`
		} `json:"steps"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode: %v\n%s", err, data)
	}
	if doc.Status != "error" || doc.State != "failed" || doc.Failure.Step != 6 || doc.Failure.Kind != "dependency_resolution" {
		t.Errorf("unexpected report:\n%s", data)
	}
	if len(doc.Steps) != StepCount || doc.Steps[5].Outcome != "failed" || doc.Steps[6].Outcome != "skipped" {
		t.Errorf("unexpected steps:\n%s", data)
	}
}
