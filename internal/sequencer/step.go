// SPDX-License-Identifier: MPL-2.0

package sequencer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/launchpad/launchpad/internal/container"
	"github.com/launchpad/launchpad/internal/depset"
	"github.com/launchpad/launchpad/internal/provision"
	"github.com/launchpad/launchpad/pkg/recipe"
)

// aptCleanup removes the package indexes in the layer that downloaded them.
const aptCleanup = "rm -rf /var/lib/apt/lists/*"

type (
	// Step describes one bootstrap step for display.
	Step struct {
		Number int    `json:"number"`
		Name   string `json:"name"`
		// State is reached when the step succeeds.
		State State       `json:"state"`
		Kind  FailureKind `json:"failure_kind"`
		// Instructions are the rendered Dockerfile lines the step contributes.
		Instructions []string `json:"instructions"`
	}

	stepDef struct {
		name      string
		kind      FailureKind
		preflight func(ctx context.Context, s *Sequencer) error
		render    func(df *provision.Dockerfile, r *recipe.Recipe)
	}
)

// steps is indexed by step number - 1; step n reaches State(n).
var steps = [...]stepDef{
	{
		name:      "select base image",
		kind:      BaseImageUnavailable,
		preflight: preflightBase,
		render: func(df *provision.Dockerfile, r *recipe.Recipe) {
			df.From(r.BaseImage.String())
		},
	},
	{
		name: "set working directory",
		kind: RecipeInvalid,
		preflight: func(_ context.Context, s *Sequencer) error {
			return s.recipe.WorkDir.Validate()
		},
		render: func(df *provision.Dockerfile, r *recipe.Recipe) {
			df.Workdir(string(r.WorkDir))
		},
	},
	{
		name:      "install system packages",
		kind:      SystemPackageInstall,
		preflight: preflightPackages,
		render: func(df *provision.Dockerfile, r *recipe.Recipe) {
			pkgs := r.Packages()
			if len(pkgs) == 0 {
				return
			}
			words := make([]string, len(pkgs))
			for i, p := range pkgs {
				words[i] = p.String()
			}
			quoted, err := provision.ShellQuote(words...)
			if err != nil {
				df.Reject(provision.KeywordRun, err.Error())
				return
			}
			df.RunScript("apt-get update && apt-get install -y --no-install-recommends " + quoted + " && " + aptCleanup)
		},
	},
	{
		name: "install dependency manager",
		kind: ManagerInstall,
		preflight: func(_ context.Context, s *Sequencer) error {
			if s.recipe.DependencyManager.Name != recipe.ManagerUV {
				return fmt.Errorf("%w: %q", recipe.ErrUnsupportedManager, s.recipe.DependencyManager.Name)
			}
			_, err := provision.ShellQuote(s.recipe.Commands().Install...)
			return err
		},
		render: func(df *provision.Dockerfile, r *recipe.Recipe) {
			df.Run(r.Commands().Install)
		},
	},
	{
		name:      "copy project source",
		kind:      SourceCopy,
		preflight: preflightSource,
		render: func(df *provision.Dockerfile, _ *recipe.Recipe) {
			df.Copy(".", ".")
		},
	},
	{
		name:      "resolve dependencies",
		kind:      DependencyResolution,
		preflight: preflightDependencies,
		render: func(df *provision.Dockerfile, r *recipe.Recipe) {
			df.Run(r.Commands().Sync)
		},
	},
	{
		name: "declare port",
		kind: RecipeInvalid,
		preflight: func(_ context.Context, s *Sequencer) error {
			return s.recipe.Port.Validate()
		},
		render: func(df *provision.Dockerfile, r *recipe.Recipe) {
			df.Expose(int(r.Port))
		},
	},
	{
		name:      "set environment",
		kind:      RecipeInvalid,
		preflight: preflightEnv,
		render: func(df *provision.Dockerfile, r *recipe.Recipe) {
			vars := r.Environment()
			pairs := make([]provision.EnvPair, len(vars))
			for i, v := range vars {
				pairs[i] = provision.EnvPair{Name: v.Name, Value: v.Value}
			}
			df.Env(pairs...)
		},
	},
	{
		name:      "launch entry-point",
		kind:      EntryPointLaunch,
		preflight: preflightEntryPoint,
		render: func(df *provision.Dockerfile, r *recipe.Recipe) {
			df.Cmd(r.Commands().Run...)
		},
	},
}

// StepCount is the number of bootstrap steps.
const StepCount = len(steps)

// stepState is the state step n reaches.
func stepState(n int) State { return State(n) }

func stepDefAt(n int) stepDef { return steps[n-1] }

func preflightBase(ctx context.Context, s *Sequencer) error {
	if err := s.recipe.BaseImage.Validate(); err != nil {
		return err
	}
	if !s.opts.PullBase {
		return nil
	}
	return s.engine.Pull(ctx, container.ImageTag(s.recipe.BaseImage))
}

func preflightPackages(_ context.Context, s *Sequencer) error {
	seen := make(map[string]bool)
	for _, p := range s.recipe.SystemPackages {
		if seen[p.Name()] {
			return fmt.Errorf("duplicate package %q", p.Name())
		}
		seen[p.Name()] = true
		if _, err := provision.ShellQuote(p.String()); err != nil {
			return err
		}
	}
	return nil
}

func preflightSource(_ context.Context, s *Sequencer) error {
	info, err := os.Stat(s.sourceDir)
	if err != nil {
		return fmt.Errorf("source directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", s.sourceDir)
	}
	if _, err := os.ReadDir(s.sourceDir); err != nil {
		return fmt.Errorf("source directory: %w", err)
	}
	return nil
}

func preflightDependencies(_ context.Context, s *Sequencer) error {
	set, err := depset.Load(s.sourceDir)
	if err != nil {
		return err
	}
	s.deps = set
	return nil
}

func preflightEnv(_ context.Context, s *Sequencer) error {
	r := s.recipe
	vars := r.Environment()
	if vars[0].Name != recipe.EnvModulePath || vars[0].Value != string(r.WorkDir) {
		return fmt.Errorf("%s must equal the working directory %s", recipe.EnvModulePath, r.WorkDir)
	}
	if v, ok := r.Env[recipe.EnvModulePath]; ok && v != string(r.WorkDir) {
		return fmt.Errorf("%s=%q conflicts with the working directory %s", recipe.EnvModulePath, v, r.WorkDir)
	}
	if v, ok := r.Env[recipe.EnvUnbuffered]; ok && v != "1" {
		return fmt.Errorf("%s must be \"1\", got %q", recipe.EnvUnbuffered, v)
	}
	return nil
}

func preflightEntryPoint(_ context.Context, s *Sequencer) error {
	script := filepath.Join(s.sourceDir, filepath.FromSlash(s.recipe.EntryPoint))
	info, err := os.Stat(script)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("entry-point %s not found in the source tree", s.recipe.EntryPoint)
		}
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("entry-point %s is not a regular file", s.recipe.EntryPoint)
	}
	return nil
}
