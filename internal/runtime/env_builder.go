// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/launchpad/launchpad/pkg/recipe"
)

type (
	// EnvRequest carries the launch-time inputs of EnvBuilder.
	EnvRequest struct {
		Recipe *recipe.Recipe
		// EnvFiles come from --env-file flags and resolve against Cwd.
		EnvFiles []string
		// Vars come from --env flags and have the highest precedence.
		Vars map[string]string
		// Cwd is the invocation directory; empty means os.Getwd().
		Cwd string
	}

	// EnvBuilder builds the Environment of a launch.
	EnvBuilder interface {
		Build(req *EnvRequest) (*Environment, error)
	}

	// DefaultEnvBuilder applies the precedence documented on the package.
	DefaultEnvBuilder struct {
		// Environ returns the host environment as "KEY=VALUE" strings.
		// When nil, os.Environ() is used.
		Environ func() []string
	}

	// MockEnvBuilder is a test helper that returns a fixed launch map.
	MockEnvBuilder struct {
		// Launch is copied into the returned Environment.
		Launch map[string]string
		// Err is the error to return from Build (if non-nil).
		Err error
	}
)

// NewDefaultEnvBuilder creates a new DefaultEnvBuilder.
func NewDefaultEnvBuilder() *DefaultEnvBuilder {
	return &DefaultEnvBuilder{}
}

// Build resolves the launch environment and checks it against the image
// environment and the recipe's required variables.
func (b *DefaultEnvBuilder) Build(req *EnvRequest) (*Environment, error) {
	r := req.Recipe
	env := ImageEnvironment(r)
	host := b.hostEnv()

	var searched []string

	// 1. Recipe dotenv file, optional. Like a server loading .env itself, it
	// never overrides a variable the host already sets.
	if f := r.Runtime.EnvFile; f != "" {
		if err := LoadEnvFile(env.Launch, f+"?", r.SourcePath()); err != nil {
			return nil, err
		}
		searched = append(searched, filepath.Join(r.SourcePath(), filepath.FromSlash(f)))
	}

	// 2. Host passthrough and required variables
	for _, name := range append(append([]string(nil), r.Runtime.PassthroughEnv...), r.Runtime.RequiredEnv...) {
		if v, ok := host[name]; ok {
			env.Launch[name] = v
		}
	}
	searched = append(searched, "host environment")

	// 3. --env-file flag files
	for _, f := range req.EnvFiles {
		if err := LoadEnvFileFromCwd(env.Launch, f, req.Cwd); err != nil {
			return nil, err
		}
		searched = append(searched, strings.TrimSuffix(f, "?"))
	}

	// 4. --env flag values (highest priority)
	maps.Copy(env.Launch, req.Vars)

	for _, name := range env.LaunchNames() {
		imageValue, baked := env.ImageValue(name)
		if !baked {
			continue
		}
		if env.Launch[name] != imageValue {
			return nil, &ImmutableEnvError{Name: name, ImageValue: imageValue, Value: env.Launch[name]}
		}
		delete(env.Launch, name)
	}

	var missing []string
	for _, name := range r.Runtime.RequiredEnv {
		if env.Launch[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingEnvError{Names: missing, Searched: searched}
	}

	return env, nil
}

func (b *DefaultEnvBuilder) hostEnv() map[string]string {
	environ := b.Environ
	if environ == nil {
		environ = os.Environ
	}
	host := make(map[string]string)
	for _, kv := range environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			host[k] = v
		}
	}
	return host
}

// Build returns the mock environment or error.
func (m *MockEnvBuilder) Build(req *EnvRequest) (*Environment, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	env := ImageEnvironment(req.Recipe)
	maps.Copy(env.Launch, m.Launch)
	return env, nil
}
