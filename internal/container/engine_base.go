// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/launchpad/launchpad/internal/issue"
	"github.com/launchpad/launchpad/pkg/platform"
	"github.com/launchpad/launchpad/pkg/types"
)

// buildOutputLimit bounds the build output kept for failure reports.
const buildOutputLimit = 256 << 10

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// Tests inject a helper-process implementation.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine implements everything Docker and Podman share: argument
	// construction and command execution. Engine-specific probes
	// (Available, Version, ImageExists) live on the concrete types.
	BaseCLIEngine struct {
		name            string // for error messages, e.g. "docker"
		binaryPath      string
		execCommand     ExecCommandFunc
		cmdEnvOverrides map[string]string
		sandbox         platform.SandboxType
	}

	// BuildError carries the engine output of a failed build so callers can
	// tell which instruction failed.
	BuildError struct {
		Engine string
		Tag    ImageTag
		// Output is the tail of the combined build output.
		Output string
		Err    error
	}
)

// Error implements the error interface.
func (e *BuildError) Error() string {
	return fmt.Sprintf("%s build %s: %v", e.Engine, e.Tag, e.Err)
}

// Unwrap returns the exec error.
func (e *BuildError) Unwrap() error { return e.Err }

// WithName sets the engine name used in error messages.
func WithName(name string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.name = name
	}
}

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.execCommand = fn
	}
}

// WithCmdEnvOverride adds an environment variable applied to every command
// the engine runs. Docker uses it to force plain BuildKit progress output.
func WithCmdEnvOverride(key, value string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		if e.cmdEnvOverrides == nil {
			e.cmdEnvOverrides = make(map[string]string)
		}
		e.cmdEnvOverrides[key] = value
	}
}

// WithSandbox runs every engine command on the host through the spawn
// helper of the given sandbox (flatpak-spawn --host, snap run).
func WithSandbox(st platform.SandboxType) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.sandbox = st
	}
}

// NewBaseCLIEngine creates a new base engine with the given binary path.
// Inside a sandbox the binary is not visible to PATH lookups, so an empty
// path falls back to the engine name resolved on the host.
func NewBaseCLIEngine(binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		name:        filepath.Base(binaryPath),
		binaryPath:  binaryPath,
		execCommand: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.binaryPath == "" && e.sandbox != platform.SandboxNone {
		e.binaryPath = e.name
	}
	return e
}

// Name returns the engine name used in error messages.
func (e *BaseCLIEngine) Name() string {
	return e.name
}

// BinaryPath returns the path to the container engine binary.
func (e *BaseCLIEngine) BinaryPath() string {
	return e.binaryPath
}

// BuildArgs constructs arguments for a build command.
//
// Generated command: <binary> build [options] <context>
func (e *BaseCLIEngine) BuildArgs(opts BuildOptions) []string {
	args := []string{"build"}

	if opts.Dockerfile != "" {
		dockerfilePath := opts.Dockerfile
		if !filepath.IsAbs(dockerfilePath) && opts.ContextDir != "" {
			dockerfilePath = filepath.Join(opts.ContextDir, dockerfilePath)
		}
		args = append(args, "-f", dockerfilePath)
	}

	if opts.Tag != "" {
		args = append(args, "-t", string(opts.Tag))
	}
	if opts.NoCache {
		args = append(args, "--no-cache")
	}
	if opts.Pull {
		args = append(args, "--pull")
	}
	for _, k := range sortedKeys(opts.Labels) {
		args = append(args, "--label", k+"="+opts.Labels[k])
	}

	return append(args, opts.ContextDir)
}

// RunArgs constructs arguments for a run command. The image is always the
// last argument so the image's CMD is used unchanged.
//
// Generated command: <binary> run [options] <image>
func (e *BaseCLIEngine) RunArgs(opts RunOptions) []string {
	args := []string{"run"}

	if opts.Remove {
		args = append(args, "--rm")
	}
	if opts.Detach {
		args = append(args, "-d")
	}
	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}
	if opts.Interactive {
		args = append(args, "-i")
	}
	if opts.TTY {
		args = append(args, "-t")
	}
	for _, k := range sortedKeys(opts.Env) {
		args = append(args, "-e", k+"="+opts.Env[k])
	}
	for _, p := range opts.Ports {
		args = append(args, "-p", p.String())
	}

	return append(args, string(opts.Image))
}

// PullArgs constructs arguments for a pull command.
func (e *BaseCLIEngine) PullArgs(image ImageTag) []string {
	return []string{"pull", string(image)}
}

// RemoveArgs constructs arguments for a container remove command.
func (e *BaseCLIEngine) RemoveArgs(id ContainerID, force bool) []string {
	args := []string{"rm"}
	if force {
		args = append(args, "-f")
	}
	return append(args, string(id))
}

// RemoveImageArgs constructs arguments for an image remove command.
func (e *BaseCLIEngine) RemoveImageArgs(image ImageTag, force bool) []string {
	args := []string{"rmi"}
	if force {
		args = append(args, "-f")
	}
	return append(args, string(image))
}

// RunCommandStatus executes a command and returns only the error status.
func (e *BaseCLIEngine) RunCommandStatus(ctx context.Context, args ...string) error {
	cmd := e.CreateCommand(ctx, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return e.commandError(args, stderr.String(), err)
	}
	return nil
}

// RunCommandWithOutput executes a command with stdout captured to a buffer.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	cmd := e.CreateCommand(ctx, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", e.commandError(args, stderr.String(), err)
	}
	return stdout.String(), nil
}

// CreateCommand creates an exec.Cmd with the engine's env overrides applied.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	if e.sandbox == platform.SandboxNone {
		cmd := e.execCommand(ctx, e.binaryPath, args...)
		e.customizeCmd(cmd)
		return cmd
	}

	cmd := e.execCommand(ctx, platform.SpawnCommandFor(e.sandbox), e.hostArgs(args)...)
	e.customizeCmd(cmd)
	return cmd
}

// hostArgs prefixes args with the spawn helper arguments. flatpak-spawn does
// not forward the caller's environment, so overrides travel as --env flags.
func (e *BaseCLIEngine) hostArgs(args []string) []string {
	spawn := platform.SpawnArgsFor(e.sandbox)
	out := make([]string, 0, len(spawn)+len(e.cmdEnvOverrides)+1+len(args))
	out = append(out, spawn...)
	if e.sandbox == platform.SandboxFlatpak {
		for _, k := range sortedKeys(e.cmdEnvOverrides) {
			out = append(out, "--env="+k+"="+e.cmdEnvOverrides[k])
		}
	}
	out = append(out, e.binaryPath)
	return append(out, args...)
}

// Build builds an image. Progress goes to opts.Stdout/opts.Stderr and is
// also captured so a failure can report the engine's own message.
func (e *BaseCLIEngine) Build(ctx context.Context, opts BuildOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	capture := &tailBuffer{limit: buildOutputLimit}
	cmd := e.CreateCommand(ctx, e.BuildArgs(opts)...)
	cmd.Stdout = teeWriter(opts.Stdout, capture)
	cmd.Stderr = teeWriter(opts.Stderr, capture)

	if err := cmd.Run(); err != nil {
		return buildContainerError(e.name, opts, &BuildError{
			Engine: e.name,
			Tag:    opts.Tag,
			Output: capture.String(),
			Err:    err,
		})
	}
	return nil
}

// Pull fetches an image.
func (e *BaseCLIEngine) Pull(ctx context.Context, image ImageTag) error {
	if err := image.Validate(); err != nil {
		return err
	}
	if err := e.RunCommandStatus(ctx, e.PullArgs(image)...); err != nil {
		return issue.NewErrorContext().
			WithOperation("pull image").
			WithResource(string(image)).
			WithSuggestion("Check that the tag exists in the registry").
			WithSuggestion("Log in to the registry if the image is private (try: " + e.name + " login)").
			Wrap(err).
			BuildError()
	}
	return nil
}

// Run runs a container. A non-zero exit code of a foreground container is
// reported in RunResult.ExitCode, not as an error; only infrastructure
// failures set RunResult.Error. Detached runs return the container ID.
func (e *BaseCLIEngine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	cmd := e.CreateCommand(ctx, e.RunArgs(opts)...)
	cmd.Stdin = opts.Stdin
	cmd.Stderr = opts.Stderr
	var id bytes.Buffer
	if opts.Detach {
		cmd.Stdout = &id
	} else {
		cmd.Stdout = opts.Stdout
	}

	err := cmd.Run()

	result := &RunResult{}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = types.ExitCode(exitErr.ExitCode())
		} else {
			result.ExitCode = types.ExitFailure
			result.Error = runContainerError(e.name, opts, err)
		}
		if opts.Detach {
			// A detached run that exits non-zero never started the container.
			return result, runContainerError(e.name, opts, err)
		}
		return result, nil
	}

	if opts.Detach {
		result.ContainerID = ContainerID(strings.TrimSpace(id.String()))
	}
	return result, nil
}

// Stop stops a running container.
func (e *BaseCLIEngine) Stop(ctx context.Context, id ContainerID) error {
	if err := id.Validate(); err != nil {
		return err
	}
	return e.RunCommandStatus(ctx, "stop", string(id))
}

// Remove removes a container.
func (e *BaseCLIEngine) Remove(ctx context.Context, id ContainerID, force bool) error {
	if err := id.Validate(); err != nil {
		return err
	}
	return e.RunCommandStatus(ctx, e.RemoveArgs(id, force)...)
}

// RemoveImage removes an image.
func (e *BaseCLIEngine) RemoveImage(ctx context.Context, image ImageTag, force bool) error {
	if err := image.Validate(); err != nil {
		return err
	}
	return e.RunCommandStatus(ctx, e.RemoveImageArgs(image, force)...)
}

// InspectImage returns the runtime configuration recorded in an image.
func (e *BaseCLIEngine) InspectImage(ctx context.Context, image ImageTag) (*ImageConfig, error) {
	out, err := e.RunCommandWithOutput(ctx, "image", "inspect", string(image))
	if err != nil {
		return nil, err
	}
	return ParseImageInspect([]byte(out))
}

// customizeCmd layers the engine's env overrides on top of the command's
// environment, or the process environment when the command has none.
func (e *BaseCLIEngine) customizeCmd(cmd *exec.Cmd) {
	if len(e.cmdEnvOverrides) == 0 {
		return
	}
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	for _, k := range sortedKeys(e.cmdEnvOverrides) {
		cmd.Env = append(cmd.Env, k+"="+e.cmdEnvOverrides[k])
	}
}

func (e *BaseCLIEngine) commandError(args []string, stderr string, err error) error {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		return fmt.Errorf("command %s %v failed: %w", e.binaryPath, args, err)
	}
	return fmt.Errorf("command %s %v failed: %w: %s", e.binaryPath, args, err, msg)
}

// buildContainerError creates an actionable error for build failures.
func buildContainerError(engine string, opts BuildOptions, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("build container image").
		WithResource(string(opts.Tag))

	ctx.WithSuggestion("Read the failing step in the build output above")
	ctx.WithSuggestion("Ensure the base image is available (try: " + engine + " pull <base-image>)")
	ctx.WithSuggestion("Run with --verbose to see the full build output")

	return ctx.Wrap(cause).BuildError()
}

// runContainerError creates an actionable error for run failures.
func runContainerError(engine string, opts RunOptions, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("run container").
		WithResource(string(opts.Image))

	ctx.WithSuggestion("Verify the image exists (try: " + engine + " images)")
	ctx.WithSuggestion("Ensure port mappings don't conflict with running services")

	return ctx.Wrap(cause).BuildError()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func teeWriter(w io.Writer, capture io.Writer) io.Writer {
	if w == nil {
		return capture
	}
	return io.MultiWriter(w, capture)
}

// tailBuffer keeps the last limit bytes written to it. Stdout and stderr
// copy goroutines write concurrently.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
