// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"errors"
	"fmt"
	"strings"

	"github.com/launchpad/launchpad/pkg/recipe"

	"golang.org/x/exp/slices"
)

var (
	// ErrRuntimeEnvMissing is the sentinel error wrapped by MissingEnvError.
	ErrRuntimeEnvMissing = errors.New("required runtime variable missing")

	// ErrImmutableEnv is returned when a launch variable redefines an image variable.
	ErrImmutableEnv = errors.New("image variable cannot be changed at launch")
)

type (
	// Environment is the complete variable set of one service process.
	Environment struct {
		// Image is baked into the image in order. It never changes at runtime.
		Image []recipe.EnvVar
		// Launch is passed to the container when it starts.
		Launch map[string]string
	}

	// MissingEnvError lists required variables that no source provided.
	MissingEnvError struct {
		Names []string
		// Searched describes where the variables were looked up.
		Searched []string
	}

	// ImmutableEnvError reports a launch variable that conflicts with the image.
	ImmutableEnvError struct {
		Name       string
		ImageValue string
		Value      string
	}
)

// ImageEnvironment returns an Environment whose image part comes from r and
// whose launch part is empty.
func ImageEnvironment(r *recipe.Recipe) *Environment {
	return &Environment{Image: r.Environment(), Launch: map[string]string{}}
}

// LaunchNames returns the launch variable names, sorted. Values are left
// out so the list can be logged.
func (e *Environment) LaunchNames() []string {
	names := make([]string, 0, len(e.Launch))
	for name := range e.Launch {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ImageValue returns the image value of name.
func (e *Environment) ImageValue(name string) (string, bool) {
	for _, v := range e.Image {
		if v.Name == name {
			return v.Value, true
		}
	}
	return "", false
}

// Error implements the error interface.
func (e *MissingEnvError) Error() string {
	msg := fmt.Sprintf("required runtime variable(s) not set: %s", strings.Join(e.Names, ", "))
	if len(e.Searched) > 0 {
		msg += fmt.Sprintf(" (searched %s)", strings.Join(e.Searched, ", "))
	}
	return msg
}

// Unwrap returns ErrRuntimeEnvMissing for errors.Is() compatibility.
func (e *MissingEnvError) Unwrap() error { return ErrRuntimeEnvMissing }

// Error implements the error interface.
func (e *ImmutableEnvError) Error() string {
	return fmt.Sprintf("%s is %q in the image; launch value %q is not allowed", e.Name, e.ImageValue, e.Value)
}

// Unwrap returns ErrImmutableEnv for errors.Is() compatibility.
func (e *ImmutableEnvError) Unwrap() error { return ErrImmutableEnv }
