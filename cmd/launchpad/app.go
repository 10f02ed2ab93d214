// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/launchpad/launchpad/internal/config"
	"github.com/launchpad/launchpad/internal/container"
	"github.com/launchpad/launchpad/internal/issue"
	"github.com/launchpad/launchpad/internal/provision"
	"github.com/launchpad/launchpad/internal/runtime"
	"github.com/launchpad/launchpad/internal/sequencer"
	"github.com/launchpad/launchpad/pkg/recipe"
)

type (
	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, string, error)
	}

	// EngineFactory returns a usable engine, preferring the given type.
	EngineFactory func(preferred container.EngineType) (container.Engine, error)

	// App wires CLI services and shared dependencies. Every command handler
	// receives the App and reads the settings resolved by the root command.
	App struct {
		Config  ConfigProvider
		Engines EngineFactory
		// Environ is the host environment seen by launch; nil means os.Environ.
		Environ func() []string
		// BuildRoot overrides the parent of temporary build contexts.
		BuildRoot string

		stdout io.Writer
		stderr io.Writer

		// installLogger makes the charm logger the slog default.
		installLogger bool

		flags    rootFlags
		settings *config.Config
		logger   *log.Logger
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config    ConfigProvider
		Engines   EngineFactory
		Environ   func() []string
		BuildRoot string
		Stdout    io.Writer
		Stderr    io.Writer
	}

	// rootFlags are the persistent flags shared by every command.
	rootFlags struct {
		verbose    bool
		configPath string
		projectDir string
		engine     string
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Engines == nil {
		deps.Engines = container.NewEngine
	}

	return &App{
		Config:    deps.Config,
		Engines:   deps.Engines,
		Environ:   deps.Environ,
		BuildRoot: deps.BuildRoot,
		stdout:    deps.Stdout,
		stderr:    deps.Stderr,
		settings:  config.DefaultConfig(),
		logger:    log.New(io.Discard),
	}
}

// loadSettings resolves the configuration and sets up logging. A broken
// config file is reported and the defaults apply, so that 'config path' and
// 'init' keep working.
func (a *App) loadSettings(ctx context.Context) {
	cfg, _, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.flags.configPath})
	if err != nil {
		fmt.Fprintln(a.stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, a.flags.verbose))
		cfg = config.DefaultConfig()
	}
	if !a.flags.verbose {
		a.flags.verbose = cfg.UI.Verbose
	}
	a.settings = cfg
	a.logger = a.newLogger()
	if a.installLogger {
		slog.SetDefault(slog.New(a.logger))
	}
}

func (a *App) newLogger() *log.Logger {
	level, err := log.ParseLevel(string(a.settings.Log.Level))
	if err != nil {
		level = log.InfoLevel
	}
	if a.flags.verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(a.stderr, log.Options{
		Prefix: "launchpad",
		Level:  level,
	})
}

// projectDir returns the absolute project directory.
func (a *App) projectDir() (string, error) {
	dir := a.flags.projectDir
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve project directory: %w", err)
	}
	return abs, nil
}

// loadRecipe reads launchpad.cue from the project directory. Without one
// the default recipe applies to the directory.
func (a *App) loadRecipe() (*recipe.Recipe, error) {
	dir, err := a.projectDir()
	if err != nil {
		return nil, err
	}

	r, err := recipe.Load(dir)
	switch {
	case err == nil:
		return r, nil
	case errors.Is(err, recipe.ErrRecipeNotFound):
		a.logger.Debug("no recipe file, using the default recipe", "dir", dir)
		r = recipe.Default()
		r.SetDir(dir)
		return r, nil
	default:
		return nil, issue.NewErrorContext().
			WithOperation("load recipe").
			WithResource(filepath.Join(dir, recipe.DefaultFileName)).
			WithIssue(issue.RecipeInvalidId).
			WithSuggestion("Run 'launchpad plan' after fixing the recipe to review the steps").
			Wrap(err).
			BuildError()
	}
}

// engine returns the container engine, honoring --engine over the config.
// With --verbose the engine version is logged.
func (a *App) engine(ctx context.Context) (container.Engine, error) {
	preferred := container.EngineType(a.settings.ContainerEngine)
	if a.flags.engine != "" {
		preferred = container.EngineType(a.flags.engine)
	}
	if err := preferred.Validate(); err != nil {
		return nil, err
	}

	engine, err := a.Engines(preferred)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("select container engine").
			WithResource(string(preferred)).
			WithIssue(issue.ContainerEngineNotFoundId).
			WithSuggestion("Install podman or docker and make sure the daemon is running").
			Wrap(err).
			BuildError()
	}
	if a.flags.verbose {
		version, err := engine.Version(ctx)
		if err != nil {
			a.logger.Warn("engine version unavailable", "engine", engine.Name(), "error", err)
		}
		a.logger.Debug("container engine selected", "engine", engine.Name(), "version", version)
	}
	return engine, nil
}

// buildSettings are the per-invocation build knobs; flags override config.
type buildSettings struct {
	noCache bool
	pull    bool
	reuse   bool
}

func (a *App) defaultBuildSettings() buildSettings {
	return buildSettings{
		noCache: a.settings.Build.NoCache,
		pull:    a.settings.Build.Pull,
		reuse:   a.settings.Build.Reuse,
	}
}

// newSequencer builds a sequencer for r. Engine output is streamed to
// stderr only in verbose mode; failures still report its tail.
func (a *App) newSequencer(r *recipe.Recipe, engine container.Engine, bs buildSettings) (*sequencer.Sequencer, error) {
	provCfg := provision.DefaultConfig()
	// Step 1 preflight pulls the base image, so the build need not.
	provCfg.Apply(
		provision.WithTagPrefix(a.settings.Build.TagPrefix),
		provision.WithNoCache(bs.noCache),
		provision.WithPull(false),
		provision.WithReuse(bs.reuse),
	)
	if a.BuildRoot != "" {
		provCfg.Apply(provision.WithBuildRoot(a.BuildRoot))
	}

	var progress io.Writer = io.Discard
	if a.flags.verbose {
		progress = a.stderr
	}

	envs := runtime.NewDefaultEnvBuilder()
	if a.Environ != nil {
		envs.Environ = a.Environ
	}

	return sequencer.New(r, sequencer.Options{
		Engine:      engine,
		Provisioner: provision.NewImageProvisioner(engine, provCfg),
		EnvBuilder:  envs,
		Logger:      a.logger,
		PullBase:    bs.pull,
		Stdout:      progress,
		Stderr:      progress,
	})
}

// offlineSequencer serves plan and render, which never call the engine.
func (a *App) offlineSequencer(r *recipe.Recipe) (*sequencer.Sequencer, error) {
	return sequencer.New(r, sequencer.Options{
		Engine: container.NewPodmanEngine(),
		Logger: a.logger,
	})
}

// issueStyle maps the configured color scheme to a glamour style.
func (a *App) issueStyle() string {
	switch a.settings.UI.ColorScheme {
	case config.ColorSchemeDark:
		return "dark"
	case config.ColorSchemeLight:
		return "light"
	default:
		return "auto"
	}
}
