// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"errors"
	"io"

	"github.com/launchpad/launchpad/internal/container"
)

// ErrContextPreparation wraps failures to materialize the build context.
var ErrContextPreparation = errors.New("build context preparation failed")

type (
	// Provisioner builds images from a Dockerfile and a source tree.
	Provisioner interface {
		// Tag returns the image tag Provision would produce without building.
		Tag(req *Request) (container.ImageTag, error)
		// Provision builds (or reuses) the image for req.
		Provision(ctx context.Context, req *Request) (*Result, error)
	}

	// Request describes one image build.
	Request struct {
		// Dockerfile is rendered into the build context.
		Dockerfile *Dockerfile
		// SourceDir is copied as the build context root.
		SourceDir string
		// Excludes are base-name globs left out of the copy and the tag.
		Excludes []string
		// Labels are attached to the image.
		Labels map[string]string
		// Stdout and Stderr receive engine progress output.
		Stdout io.Writer
		Stderr io.Writer
	}

	// Result contains the output of a provisioning operation.
	Result struct {
		// ImageTag is the content-addressed tag, e.g. "launchpad:3f9c0a1b2c4d".
		ImageTag container.ImageTag
		// ContextHash is the content hash of the copied source tree.
		ContextHash string
		// Dockerfile is the rendered text that was built.
		Dockerfile string
		// Built is false when an existing image was reused.
		Built bool
	}
)
