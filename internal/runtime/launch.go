// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"errors"
	"io"

	"github.com/launchpad/launchpad/internal/container"
	"github.com/launchpad/launchpad/pkg/types"
)

// LaunchOptions describes how a built image is started.
type LaunchOptions struct {
	Image container.ImageTag
	// Port is the port the image exposes.
	Port types.NetworkPort
	// HostPort publishes Port on the host; zero means the same number.
	HostPort types.NetworkPort
	// HostIP restricts the published port to one host address.
	HostIP string
	// Name is the container name (optional).
	Name string
	// Detach starts the container in the background.
	Detach bool
	// Interactive forwards stdin to the entry-point.
	Interactive bool
	Env         *Environment
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer
}

// PublishedPort returns the host side of the port mapping.
func (o LaunchOptions) PublishedPort() types.NetworkPort {
	if o.HostPort == 0 {
		return o.Port
	}
	return o.HostPort
}

// RunOptions converts o into engine run options. The image's default
// command is never overridden and the container is removed on exit.
func (o LaunchOptions) RunOptions() (container.RunOptions, error) {
	if o.Env == nil {
		return container.RunOptions{}, errors.New("launch environment not built")
	}
	opts := container.RunOptions{
		Image: o.Image,
		Name:  o.Name,
		Env:   o.Env.Launch,
		Ports: []container.PortMapping{{
			HostIP:        o.HostIP,
			HostPort:      o.PublishedPort(),
			ContainerPort: o.Port,
			Protocol:      container.PortProtocolTCP,
		}},
		Remove:      true,
		Detach:      o.Detach,
		Interactive: o.Interactive && !o.Detach,
		Stdin:       o.Stdin,
		Stdout:      o.Stdout,
		Stderr:      o.Stderr,
	}
	if err := opts.Validate(); err != nil {
		return container.RunOptions{}, err
	}
	return opts, nil
}
