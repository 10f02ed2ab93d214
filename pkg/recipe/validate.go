// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
)

var (
	// ErrInvalidRecipe is the sentinel error wrapped by InvalidRecipeError.
	ErrInvalidRecipe = errors.New("invalid recipe")

	// ErrUnsupportedManager is returned for dependency managers other than uv.
	ErrUnsupportedManager = errors.New("unsupported dependency manager")

	packagePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9+.-]+(=[A-Za-z0-9.+~:-]+)?$`)
	envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	versionPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)
)

// InvalidRecipeError collects every field error found by Validate.
type InvalidRecipeError struct {
	FieldErrors []error
}

// Error implements the error interface.
func (e *InvalidRecipeError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, fe := range e.FieldErrors {
		msgs = append(msgs, fe.Error())
	}
	return fmt.Sprintf("invalid recipe: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidRecipe for errors.Is() compatibility.
func (e *InvalidRecipeError) Unwrap() []error {
	return append([]error{ErrInvalidRecipe}, e.FieldErrors...)
}

// Validate checks every invariant the CUE schema cannot express on its own
// and returns an *InvalidRecipeError listing all violations.
func (r *Recipe) Validate() error {
	var errs []error
	add := func(field string, err error) {
		errs = append(errs, fmt.Errorf("%s: %w", field, err))
	}

	if err := r.BaseImage.Validate(); err != nil {
		add("base_image", err)
	}
	if err := r.WorkDir.Validate(); err != nil {
		add("workdir", err)
	}

	seen := make(map[string]bool, len(r.SystemPackages))
	for i, p := range r.SystemPackages {
		if !packagePattern.MatchString(string(p)) {
			add(fmt.Sprintf("system_packages[%d]", i), fmt.Errorf("invalid package name %q", p))
			continue
		}
		if seen[p.Name()] {
			add(fmt.Sprintf("system_packages[%d]", i), fmt.Errorf("duplicate package %q", p.Name()))
		}
		seen[p.Name()] = true
	}

	if r.DependencyManager.Name != ManagerUV {
		add("dependency_manager.name", fmt.Errorf("%w: %q (supported: uv)", ErrUnsupportedManager, r.DependencyManager.Name))
	}
	if v := r.DependencyManager.Version; v != "" && !versionPattern.MatchString(v) {
		add("dependency_manager.version", fmt.Errorf("invalid version %q", v))
	}

	for i, pattern := range r.Exclude {
		if err := validateExclude(pattern, r.EntryPoint); err != nil {
			add(fmt.Sprintf("exclude[%d]", i), err)
		}
	}

	if err := r.Port.Validate(); err != nil {
		add("port", err)
	}

	envNames := make([]string, 0, len(r.Env))
	for name := range r.Env {
		envNames = append(envNames, name)
	}
	sort.Strings(envNames)
	for _, name := range envNames {
		value := r.Env[name]
		if !envNamePattern.MatchString(name) {
			add("env", fmt.Errorf("invalid variable name %q", name))
			continue
		}
		switch {
		case name == EnvModulePath && value != string(r.WorkDir):
			add("env."+name, fmt.Errorf("must equal workdir %q, got %q", r.WorkDir, value))
		case name == EnvUnbuffered && value != "1":
			add("env."+name, fmt.Errorf("must be \"1\", got %q", value))
		}
	}

	if err := validateEntryPoint(r.EntryPoint); err != nil {
		add("entrypoint", err)
	}

	for _, name := range r.Runtime.RequiredEnv {
		if !envNamePattern.MatchString(name) {
			add("runtime.required_env", fmt.Errorf("invalid variable name %q", name))
		}
		if _, baked := r.Env[name]; baked {
			add("env."+name, fmt.Errorf("runtime variable %q must not be baked into the image", name))
		}
	}
	for _, name := range r.Runtime.PassthroughEnv {
		if !envNamePattern.MatchString(name) {
			add("runtime.passthrough_env", fmt.Errorf("invalid variable name %q", name))
		}
	}

	if len(errs) > 0 {
		return &InvalidRecipeError{FieldErrors: errs}
	}
	return nil
}

// validateExclude rejects malformed globs and globs that would drop a file
// the build reads.
func validateExclude(pattern, entryPoint string) error {
	if pattern == "" || strings.Contains(pattern, "/") {
		return fmt.Errorf("%q must be a non-empty base-name glob", pattern)
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("%q: %w", pattern, err)
	}
	required := []string{"pyproject.toml", "uv.lock", path.Base(entryPoint)}
	required = append(required, strings.Split(path.Dir(entryPoint), "/")...)
	for _, name := range required {
		if name == "." || name == "" {
			continue
		}
		if ok, _ := path.Match(pattern, name); ok {
			return fmt.Errorf("%q would leave %s out of the image", pattern, name)
		}
	}
	return nil
}

func validateEntryPoint(script string) error {
	switch {
	case script == "":
		return errors.New("must be non-empty")
	case path.IsAbs(script):
		return fmt.Errorf("%q must be relative to workdir", script)
	case path.Clean(script) != script || strings.HasPrefix(script, "../"):
		return fmt.Errorf("%q must be a clean path inside workdir", script)
	case !strings.HasSuffix(script, ".py"):
		return fmt.Errorf("%q is not a Python script", script)
	}
	return nil
}
