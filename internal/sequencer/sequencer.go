// SPDX-License-Identifier: MPL-2.0

package sequencer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/launchpad/launchpad/internal/container"
	"github.com/launchpad/launchpad/internal/depset"
	"github.com/launchpad/launchpad/internal/issue"
	"github.com/launchpad/launchpad/internal/provision"
	"github.com/launchpad/launchpad/internal/runtime"
	"github.com/launchpad/launchpad/pkg/recipe"
	"github.com/launchpad/launchpad/pkg/types"
)

// DefaultReadyTimeout bounds the readiness probe of Launch.
const DefaultReadyTimeout = 60 * time.Second

// ErrNoEngine is returned by New when Options.Engine is nil.
var ErrNoEngine = errors.New("no container engine")

var kindSuggestions = map[FailureKind][]string{
	BaseImageUnavailable: {"Check that the base image tag exists and the registry is reachable"},
	SystemPackageInstall: {"Check system_packages against the base image's distribution"},
	ManagerInstall:       {"Check dependency_manager.version"},
	SourceCopy:           {"Check source_dir and the permissions of the project tree"},
	DependencyResolution: {"Run 'uv lock' after editing pyproject.toml", "Run 'launchpad lock' to inspect the resolved set"},
	EntryPointLaunch:     {"Run 'launchpad launch' in the foreground to see the server output"},
	RecipeInvalid:        {"Run 'launchpad plan' to check the recipe"},
	ImageVerification:    {"Rebuild with --verbose and inspect the image configuration"},
	EngineFailure:        {"Check that the container engine is running (try: docker info or podman info)"},
}

type (
	// Options configures a Sequencer.
	Options struct {
		// Engine runs builds and containers. Required.
		Engine container.Engine
		// Provisioner builds the image. Defaults to an ImageProvisioner
		// over Engine with provision.DefaultConfig.
		Provisioner provision.Provisioner
		// EnvBuilder resolves the launch environment. Defaults to
		// runtime.NewDefaultEnvBuilder.
		EnvBuilder runtime.EnvBuilder
		// Logger receives progress; nil discards it.
		Logger *log.Logger
		// PullBase pulls the base image during preflight of step 1.
		PullBase bool
		// Stdout and Stderr receive engine build output.
		Stdout io.Writer
		Stderr io.Writer
	}

	// LaunchRequest describes how Launch starts the built image.
	LaunchRequest struct {
		// HostPort publishes the service port on the host; zero keeps the number.
		HostPort types.NetworkPort
		HostIP   string
		// Name is the container name (optional).
		Name string
		// Detach returns once the container started.
		Detach bool
		// Wait detaches and probes the published port until it accepts connections.
		Wait         bool
		ReadyTimeout time.Duration
		// EnvFiles and Vars are the --env-file and --env inputs.
		EnvFiles    []string
		Vars        map[string]string
		Cwd         string
		Interactive bool
		Stdin       io.Reader
		Stdout      io.Writer
		Stderr      io.Writer
	}

	// Sequencer drives one recipe through the bootstrap sequence. A
	// Sequencer is single-use: Build once, then Launch once.
	Sequencer struct {
		recipe    *recipe.Recipe
		sourceDir string
		opts      Options
		engine    container.Engine
		prov      provision.Provisioner
		envs      runtime.EnvBuilder
		log       *log.Logger

		machine Machine
		deps    *depset.Set
		result  *Result
	}
)

// New creates a Sequencer for r. The source tree is r.SourcePath().
func New(r *recipe.Recipe, opts Options) (*Sequencer, error) {
	if r == nil {
		return nil, errors.New("nil recipe")
	}
	if opts.Engine == nil {
		return nil, ErrNoEngine
	}

	s := &Sequencer{
		recipe:    r,
		sourceDir: r.SourcePath(),
		opts:      opts,
		engine:    opts.Engine,
		prov:      opts.Provisioner,
		envs:      opts.EnvBuilder,
		log:       opts.Logger,
		result:    newResult(),
	}
	if s.prov == nil {
		s.prov = provision.NewImageProvisioner(opts.Engine, provision.DefaultConfig())
	}
	if s.envs == nil {
		s.envs = runtime.NewDefaultEnvBuilder()
	}
	if s.log == nil {
		s.log = log.New(io.Discard)
	}
	return s, nil
}

// State returns the current state of the sequence.
func (s *Sequencer) State() State { return s.machine.State() }

// Result returns the report of the last operation.
func (s *Sequencer) Result() *Result { return s.result }

// Dependencies returns the set resolved during Build, or nil.
func (s *Sequencer) Dependencies() *depset.Set { return s.deps }

// Dockerfile assembles the instructions of every step in order. The
// returned Dockerfile carries the first rendering error, if any.
func (s *Sequencer) Dockerfile() *provision.Dockerfile {
	df := provision.NewDockerfile()
	for n := 1; n <= StepCount; n++ {
		df.ForStep(n)
		stepDefAt(n).render(df, s.recipe)
	}
	return df
}

// Render returns the Dockerfile text. Equal recipes render byte-identical text.
func (s *Sequencer) Render() (string, error) {
	return s.Dockerfile().Render()
}

// Plan returns the ordered steps with the instructions each contributes.
func (s *Sequencer) Plan() ([]Step, error) {
	df := s.Dockerfile()
	if err := df.Err(); err != nil {
		return nil, err
	}
	plan := make([]Step, StepCount)
	for i, def := range steps {
		plan[i] = Step{Number: i + 1, Name: def.name, State: stepState(i + 1), Kind: def.kind, Instructions: []string{}}
	}
	for _, in := range df.Instructions() {
		plan[in.Step-1].Instructions = append(plan[in.Step-1].Instructions, in.String())
	}
	return plan, nil
}

// ImageTag returns the content-addressed tag a Build of the current source
// tree produces, without calling the engine.
func (s *Sequencer) ImageTag() (container.ImageTag, error) {
	df := s.Dockerfile()
	if err := df.Err(); err != nil {
		return "", err
	}
	return s.prov.Tag(&provision.Request{
		Dockerfile: df,
		SourceDir:  s.sourceDir,
		Excludes:   s.recipe.Exclude,
	})
}

// Build preflights every step on the host, builds the image and verifies
// it. The engine is not called when a preflight fails. When verification
// fails the image is removed. The sequence ends in EnvSet or Failed.
func (s *Sequencer) Build(ctx context.Context) (*Result, error) {
	if s.machine.State() != Pending {
		return s.result, &TransitionError{From: s.machine.State(), To: BaseSelected}
	}
	res := s.result

	for n := 1; n <= StepCount; n++ {
		def := stepDefAt(n)
		s.log.Debug("preflight", "step", n, "name", def.name)
		if err := def.preflight(ctx, s); err != nil {
			return res, s.fail(n, def.kind, s.sourceDir, "", err)
		}
	}
	if s.deps != nil {
		res.Fingerprint = s.deps.Fingerprint
		res.Dependencies = s.deps.Packages
		s.log.Info("dependencies resolved", "packages", len(s.deps.Packages), "fingerprint", s.deps.ShortFingerprint())
	}

	df := s.Dockerfile()
	if err := df.Err(); err != nil {
		step := 1
		var ie *provision.InvalidInstructionError
		if errors.As(err, &ie) && ie.Step > 0 {
			step = ie.Step
		}
		return res, s.fail(step, RecipeInvalid, s.sourceDir, "", err)
	}

	labels := map[string]string{}
	if res.Fingerprint != "" {
		labels[LabelFingerprint] = res.Fingerprint
	}
	if s.recipe.Description != "" {
		labels[LabelRecipe] = s.recipe.Description
	}

	s.log.Info("building image", "engine", s.engine.Name(), "base", s.recipe.BaseImage)
	out, err := s.prov.Provision(ctx, &provision.Request{
		Dockerfile: df,
		SourceDir:  s.sourceDir,
		Excludes:   s.recipe.Exclude,
		Labels:     labels,
		Stdout:     s.opts.Stdout,
		Stderr:     s.opts.Stderr,
	})
	if err != nil {
		return res, s.buildFailure(df, err)
	}
	res.Image = out.ImageTag
	res.Reused = !out.Built

	if err := s.verify(ctx, out.ImageTag, res.Fingerprint); err != nil {
		if out.Built {
			if rmErr := s.engine.RemoveImage(ctx, out.ImageTag, true); rmErr != nil {
				s.log.Warn("failed to remove image", "tag", out.ImageTag, "err", rmErr)
			}
		}
		res.Image = ""
		step := StepCount
		var me *MismatchError
		if errors.As(err, &me) {
			step = me.Step
		}
		return res, s.fail(step, ImageVerification, string(out.ImageTag), "", err)
	}

	if err := s.machine.AdvanceTo(EnvSet); err != nil {
		return res, err
	}
	res.markThrough(StepCount - 1)
	res.State = EnvSet
	s.log.Info("image ready", "tag", out.ImageTag, "reused", res.Reused)
	return res, nil
}

// Verify inspects image and checks it against the recipe. Outside of
// Build the dependency fingerprint is read from the source tree when
// available.
func (s *Sequencer) Verify(ctx context.Context, image container.ImageTag) error {
	fingerprint := ""
	if s.deps != nil {
		fingerprint = s.deps.Fingerprint
	} else if set, err := depset.Load(s.sourceDir); err == nil {
		fingerprint = set.Fingerprint
	}
	if err := s.verify(ctx, image, fingerprint); err != nil {
		return issue.NewErrorContext().
			WithOperation("verify image").
			WithResource(string(image)).
			WithSuggestions(kindSuggestions[ImageVerification]...).
			WithIssue(issue.ImageVerificationFailedId).
			Wrap(err).
			BuildError()
	}
	return nil
}

// Launch starts the built image with its default command, publishing the
// declared port. Foreground launches return when the entry-point exits and
// report its exit code; with Wait the container is detached and Launch
// returns once the published port accepts connections.
func (s *Sequencer) Launch(ctx context.Context, req LaunchRequest) (*Result, error) {
	if s.machine.State() != EnvSet {
		return s.result, &TransitionError{From: s.machine.State(), To: Launched}
	}
	res := s.result
	const step = StepCount

	env, err := s.envs.Build(&runtime.EnvRequest{
		Recipe:   s.recipe,
		EnvFiles: req.EnvFiles,
		Vars:     req.Vars,
		Cwd:      req.Cwd,
	})
	if err != nil {
		return res, s.fail(step, EntryPointLaunch, string(res.Image), "", err)
	}

	launch := runtime.LaunchOptions{
		Image:       res.Image,
		Port:        s.recipe.Port,
		HostPort:    req.HostPort,
		HostIP:      req.HostIP,
		Name:        req.Name,
		Detach:      req.Detach || req.Wait,
		Interactive: req.Interactive,
		Env:         env,
		Stdin:       req.Stdin,
		Stdout:      req.Stdout,
		Stderr:      req.Stderr,
	}
	runOpts, err := launch.RunOptions()
	if err != nil {
		return res, s.fail(step, EntryPointLaunch, string(res.Image), "", err)
	}

	host := req.HostIP
	if host == "" {
		host = "localhost"
	}
	res.Address = net.JoinHostPort(host, strconv.Itoa(int(launch.PublishedPort())))

	s.log.Info("launching entry-point", "image", res.Image, "address", res.Address, "env", env.LaunchNames())
	rr, err := s.engine.Run(ctx, runOpts)
	if err == nil && rr.Error != nil {
		err = rr.Error
	}
	if err != nil {
		return res, s.fail(step, EntryPointLaunch, string(res.Image), "", err)
	}

	if launch.Detach {
		res.ContainerID = rr.ContainerID
		if req.Wait {
			timeout := req.ReadyTimeout
			if timeout <= 0 {
				timeout = DefaultReadyTimeout
			}
			if err := runtime.WaitReady(ctx, res.Address, timeout); err != nil {
				s.discard(ctx, rr.ContainerID)
				return res, s.fail(step, EntryPointLaunch, string(res.Image), "", err)
			}
			s.log.Info("service ready", "address", res.Address)
		}
		return res, s.launched()
	}

	res.ExitCode = rr.ExitCode
	if engineExit(rr.ExitCode) {
		detail := fmt.Sprintf("%s exited with code %d before the entry-point started", s.engine.Name(), rr.ExitCode)
		return res, s.fail(step, EntryPointLaunch, string(res.Image), detail, errors.New(detail))
	}
	if err := s.launched(); err != nil {
		return res, err
	}
	if rr.ExitCode != 0 {
		res.Status = StatusError
		res.Steps[step-1].Outcome = OutcomeFailed
		res.Failure = &Failure{
			Step:    step,
			Name:    steps[step-1].name,
			Kind:    EntryPointLaunch,
			Issue:   issue.EntryPointLaunchFailedId,
			Message: fmt.Sprintf("entry-point exited with code %d", rr.ExitCode),
		}
	}
	return res, nil
}

// discard stops a detached container that never became ready. It runs
// with --rm, so stopping removes it; when the stop fails it is removed by
// force.
func (s *Sequencer) discard(ctx context.Context, id container.ContainerID) {
	ctx = context.WithoutCancel(ctx)
	stopErr := s.engine.Stop(ctx, id)
	if stopErr == nil {
		return
	}
	s.log.Warn("failed to stop container, removing it", "id", id.Short(), "err", stopErr)
	if err := s.engine.Remove(ctx, id, true); err != nil {
		s.log.Warn("failed to remove container", "id", id.Short(), "err", err)
	}
}

func (s *Sequencer) launched() error {
	if err := s.machine.Advance(Launched); err != nil {
		return err
	}
	s.result.markThrough(StepCount)
	s.result.State = Launched
	return nil
}

func (s *Sequencer) verify(ctx context.Context, image container.ImageTag, fingerprint string) error {
	cfg, err := s.engine.InspectImage(ctx, image)
	if err != nil {
		return err
	}
	return verifyImage(cfg, s.recipe, fingerprint)
}

// buildFailure attributes a failed Provision call to a step.
func (s *Sequencer) buildFailure(df *provision.Dockerfile, err error) error {
	if errors.Is(err, provision.ErrContextPreparation) {
		return s.fail(5, SourceCopy, s.sourceDir, "", err)
	}

	var be *container.BuildError
	if !errors.As(err, &be) {
		return s.fail(0, EngineFailure, s.engine.Name(), "", err)
	}
	c := classifyBuild(df, be.Output)
	if container.IsTransientError(err) {
		s.log.Warn("build failure looks transient; retrying may help", "step", c.Step)
	}
	return s.fail(c.Step, c.Kind, string(be.Tag), c.Detail, err)
}

// fail moves the sequence to Failed and returns the user-facing error.
// Step 0 means the failure could not be attributed to a step.
func (s *Sequencer) fail(step int, kind FailureKind, resource, detail string, cause error) error {
	name := "build"
	if step > 0 {
		name = steps[step-1].name
		if err := s.machine.AdvanceTo(stepState(step - 1)); err != nil {
			s.log.Debug("state not advanced", "err", err)
		}
	}
	if err := s.machine.Fail(); err != nil {
		s.log.Debug("state not failed", "err", err)
	}

	res := s.result
	res.markThrough(step - 1)
	res.markFailed(step)
	res.Status = StatusError
	res.State = Failed

	id := kind.IssueId()
	switch {
	case errors.Is(cause, runtime.ErrRuntimeEnvMissing):
		id = issue.RuntimeEnvMissingId
	case issue.IdOf(cause) != 0:
		id = issue.IdOf(cause)
	}

	stepErr := &StepError{Step: step, Name: name, Kind: kind, Detail: detail, Err: cause}
	res.Failure = &Failure{
		Step:    step,
		Name:    name,
		Kind:    kind,
		Issue:   id,
		Message: cause.Error(),
		Detail:  detail,
	}
	s.log.Error("step failed", "step", step, "name", name, "kind", kind)

	operation := "bootstrap"
	if step > 0 {
		operation = fmt.Sprintf("step %d/%d: %s", step, StepCount, name)
	}
	suggestions := kindSuggestions[kind]
	if detail != "" {
		suggestions = append([]string{"Engine output: " + detail}, suggestions...)
	}
	return issue.NewErrorContext().
		WithOperation(operation).
		WithResource(resource).
		WithSuggestions(suggestions...).
		WithIssue(id).
		Wrap(stepErr).
		BuildError()
}

// engineExit reports exit codes the engine uses for its own failures:
// 125 (engine error), 126 (command not executable), 127 (command not found).
func engineExit(code types.ExitCode) bool {
	return code >= 125 && code <= 127
}
