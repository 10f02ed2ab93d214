// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
)

const (
	EngineTypePodman EngineType = "podman"
	EngineTypeDocker EngineType = "docker"
)

type (
	// Engine defines the container operations a service image needs.
	Engine interface {
		// Name returns the engine name (docker or podman).
		Name() string
		// Available checks if the engine is usable on this host.
		Available() bool
		// Version returns the engine version.
		Version(ctx context.Context) (string, error)

		// Build builds an image from a Dockerfile. A failing build returns an
		// error whose chain contains a *BuildError with the captured output.
		Build(ctx context.Context, opts BuildOptions) error
		// Pull fetches an image from its registry.
		Pull(ctx context.Context, image ImageTag) error
		// ImageExists checks if an image exists locally.
		ImageExists(ctx context.Context, image ImageTag) (bool, error)
		// InspectImage returns the runtime configuration recorded in an image.
		InspectImage(ctx context.Context, image ImageTag) (*ImageConfig, error)
		// RemoveImage removes an image.
		RemoveImage(ctx context.Context, image ImageTag, force bool) error

		// Run starts a container with the image's default command.
		Run(ctx context.Context, opts RunOptions) (*RunResult, error)
		// Stop stops a running container.
		Stop(ctx context.Context, id ContainerID) error
		// Remove removes a container.
		Remove(ctx context.Context, id ContainerID, force bool) error
	}

	// EngineType identifies the container engine type.
	EngineType string

	// ErrEngineNotAvailable is returned when no usable engine binary exists.
	ErrEngineNotAvailable struct {
		Engine string
		Reason string
	}
)

// String returns the engine type name.
func (t EngineType) String() string { return string(t) }

// Validate accepts "docker" and "podman".
func (t EngineType) Validate() error {
	switch t {
	case EngineTypeDocker, EngineTypePodman:
		return nil
	default:
		return fmt.Errorf("unknown container engine type %q (valid: docker, podman)", string(t))
	}
}

func (e *ErrEngineNotAvailable) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// NewEngine returns the preferred engine, falling back to the other one.
func NewEngine(preferredType EngineType) (Engine, error) {
	switch preferredType {
	case EngineTypePodman:
		if engine := NewPodmanEngine(); engine.Available() {
			return engine, nil
		}
		if fallback := NewDockerEngine(); fallback.Available() {
			return fallback, nil
		}
		return nil, &ErrEngineNotAvailable{
			Engine: "podman",
			Reason: "podman is not installed or not accessible, and docker fallback is also not available",
		}

	case EngineTypeDocker:
		if engine := NewDockerEngine(); engine.Available() {
			return engine, nil
		}
		if fallback := NewPodmanEngine(); fallback.Available() {
			return fallback, nil
		}
		return nil, &ErrEngineNotAvailable{
			Engine: "docker",
			Reason: "docker is not installed or not accessible, and podman fallback is also not available",
		}

	default:
		return nil, fmt.Errorf("unknown container engine type: %s", preferredType)
	}
}
