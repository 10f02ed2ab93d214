// SPDX-License-Identifier: MPL-2.0

package sequencer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/launchpad/launchpad/internal/container"
	"github.com/launchpad/launchpad/pkg/recipe"

	"golang.org/x/exp/slices"
)

const (
	// LabelFingerprint records the dependency set fingerprint on the image.
	LabelFingerprint = "io.launchpad.dependencies.fingerprint"
	// LabelRecipe records the recipe description on the image.
	LabelRecipe = "io.launchpad.recipe"
)

// ErrImageMismatch is the sentinel error wrapped by MismatchError.
var ErrImageMismatch = errors.New("image does not match the recipe")

// MismatchError reports one image setting that differs from the recipe.
type MismatchError struct {
	// Step is the step whose instruction sets Field.
	Step  int
	Field string
	Want  string
	Got   string
}

// Error implements the error interface.
func (e *MismatchError) Error() string {
	return fmt.Sprintf("image %s = %q, want %q", e.Field, e.Got, e.Want)
}

// Unwrap returns ErrImageMismatch for errors.Is() compatibility.
func (e *MismatchError) Unwrap() error { return ErrImageMismatch }

// verifyImage compares the inspected image configuration with the recipe
// and returns the mismatch of the earliest step.
func verifyImage(cfg *container.ImageConfig, r *recipe.Recipe, fingerprint string) error {
	if cfg.WorkingDir != string(r.WorkDir) {
		return &MismatchError{Step: 2, Field: "working directory", Want: string(r.WorkDir), Got: cfg.WorkingDir}
	}
	if fingerprint != "" && cfg.Labels[LabelFingerprint] != fingerprint {
		return &MismatchError{Step: 6, Field: "label " + LabelFingerprint, Want: fingerprint, Got: cfg.Labels[LabelFingerprint]}
	}
	if !cfg.Exposes(int(r.Port)) {
		return &MismatchError{
			Step:  7,
			Field: "exposed ports",
			Want:  fmt.Sprintf("%d/tcp", r.Port),
			Got:   strings.Join(cfg.ExposedPorts, ","),
		}
	}
	for _, v := range r.Environment() {
		if got, ok := cfg.Env[v.Name]; !ok || got != v.Value {
			return &MismatchError{Step: 8, Field: "env " + v.Name, Want: v.Value, Got: got}
		}
	}
	want := r.Commands().Run
	if len(cfg.Entrypoint) > 0 {
		return &MismatchError{Step: 9, Field: "entrypoint", Want: "", Got: strings.Join(cfg.Entrypoint, " ")}
	}
	if !slices.Equal(cfg.Cmd, want) {
		return &MismatchError{Step: 9, Field: "cmd", Want: strings.Join(want, " "), Got: strings.Join(cfg.Cmd, " ")}
	}
	return nil
}
