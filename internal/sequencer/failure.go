// SPDX-License-Identifier: MPL-2.0

package sequencer

import (
	"errors"
	"fmt"

	"github.com/launchpad/launchpad/internal/issue"
)

const (
	// BaseImageUnavailable: the base image cannot be pulled or its tag does not match.
	BaseImageUnavailable FailureKind = "base_image_unavailable"
	// SystemPackageInstall: package index fetch, install or cleanup failed.
	SystemPackageInstall FailureKind = "system_package_install"
	// ManagerInstall: the dependency manager could not be installed.
	ManagerInstall FailureKind = "manager_install"
	// SourceCopy: the source tree is missing or unreadable.
	SourceCopy FailureKind = "source_copy"
	// DependencyResolution: manifest or lock missing, malformed, stale or unsatisfiable.
	DependencyResolution FailureKind = "dependency_resolution"
	// EntryPointLaunch: the script is missing, its environment is incomplete or it failed to start.
	EntryPointLaunch FailureKind = "entrypoint_launch"
	// RecipeInvalid: a recipe value cannot be rendered.
	RecipeInvalid FailureKind = "recipe_invalid"
	// ImageVerification: the built image does not carry the recipe's configuration.
	ImageVerification FailureKind = "image_verification"
	// EngineFailure: the engine failed in a way no step accounts for.
	EngineFailure FailureKind = "engine_failure"
)

// ErrStepFailed is the sentinel error wrapped by StepError.
var ErrStepFailed = errors.New("bootstrap step failed")

type (
	// FailureKind classifies why a step failed.
	FailureKind string

	// StepError is the fatal error of one step.
	StepError struct {
		Step int
		Name string
		Kind FailureKind
		// Detail is the native message of the failing tool, when there is one.
		Detail string
		Err    error
	}
)

// IssueId returns the catalog entry that explains k.
func (k FailureKind) IssueId() issue.Id {
	switch k {
	case BaseImageUnavailable:
		return issue.BaseImageUnavailableId
	case SystemPackageInstall:
		return issue.SystemPackageInstallFailedId
	case ManagerInstall:
		return issue.ManagerInstallFailedId
	case SourceCopy:
		return issue.SourceCopyFailedId
	case DependencyResolution:
		return issue.DependencyResolutionFailedId
	case EntryPointLaunch:
		return issue.EntryPointLaunchFailedId
	case RecipeInvalid:
		return issue.RecipeInvalidId
	case ImageVerification:
		return issue.ImageVerificationFailedId
	case EngineFailure:
		return issue.ContainerEngineNotFoundId
	default:
		return 0
	}
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed [%s]: %v", e.Step, e.Name, e.Kind, e.Err)
}

// Unwrap returns ErrStepFailed and the cause.
func (e *StepError) Unwrap() []error {
	return []error{ErrStepFailed, e.Err}
}
