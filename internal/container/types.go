// SPDX-License-Identifier: MPL-2.0

package container

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/launchpad/launchpad/pkg/types"
)

const (
	// PortProtocolTCP is the TCP transport protocol for port mappings.
	PortProtocolTCP PortProtocol = "tcp"
	// PortProtocolUDP is the UDP transport protocol for port mappings.
	PortProtocolUDP PortProtocol = "udp"
)

var (
	// ErrInvalidImageTag is the sentinel error wrapped by InvalidImageTagError.
	ErrInvalidImageTag = errors.New("invalid image tag")

	// ErrInvalidContainerID is the sentinel error wrapped by InvalidContainerIDError.
	ErrInvalidContainerID = errors.New("invalid container ID")

	// ErrInvalidPortProtocol is the sentinel error wrapped by InvalidPortProtocolError.
	ErrInvalidPortProtocol = errors.New("invalid port protocol")

	// ErrInvalidPortMapping is the sentinel error wrapped by InvalidPortMappingError.
	ErrInvalidPortMapping = errors.New("invalid port mapping")

	// ErrInvalidBuildOptions is the sentinel error wrapped by InvalidBuildOptionsError.
	ErrInvalidBuildOptions = errors.New("invalid build options")

	// ErrInvalidRunOptions is the sentinel error wrapped by InvalidRunOptionsError.
	ErrInvalidRunOptions = errors.New("invalid run options")
)

type (
	// ImageTag is an image reference as accepted by build -t, pull, run and rmi.
	ImageTag string

	// InvalidImageTagError is returned when an ImageTag is empty or contains whitespace.
	InvalidImageTagError struct {
		Value ImageTag
	}

	// ContainerID identifies a container by ID or name.
	ContainerID string

	// InvalidContainerIDError is returned when a ContainerID is empty.
	InvalidContainerIDError struct {
		Value ContainerID
	}

	// PortProtocol represents a network transport protocol for port mappings.
	// The zero value ("") is valid and means "default to tcp".
	PortProtocol string

	// InvalidPortProtocolError is returned when a PortProtocol is not recognized.
	InvalidPortProtocolError struct {
		Value PortProtocol
	}

	// PortMapping publishes a container port on the host.
	PortMapping struct {
		// HostIP restricts the published port to one host address (optional).
		HostIP        string
		HostPort      types.NetworkPort
		ContainerPort types.NetworkPort
		Protocol      PortProtocol
	}

	// InvalidPortMappingError wraps the field errors of a PortMapping.
	InvalidPortMappingError struct {
		Value     PortMapping
		FieldErrs []error
	}

	// BuildOptions contains options for building an image.
	BuildOptions struct {
		// ContextDir is the build context directory.
		ContextDir string
		// Dockerfile is the Dockerfile path, relative to ContextDir unless absolute.
		Dockerfile string
		// Tag is the resulting image tag.
		Tag ImageTag
		// NoCache disables the layer cache for every instruction.
		NoCache bool
		// Pull always attempts to pull a newer version of the base image.
		Pull bool
		// Labels are image labels (--label k=v), applied in sorted key order.
		Labels map[string]string
		// Stdout and Stderr receive the engine's progress output.
		Stdout io.Writer
		Stderr io.Writer
	}

	// InvalidBuildOptionsError wraps the field errors of BuildOptions.
	InvalidBuildOptionsError struct {
		FieldErrs []error
	}

	// RunOptions contains options for running a container. There is no
	// command field: a container always starts with the image's default
	// command.
	RunOptions struct {
		// Image is the image to run.
		Image ImageTag
		// Name is the container name (optional).
		Name string
		// Env contains environment variables, passed in sorted key order.
		Env map[string]string
		// Ports are the published port mappings.
		Ports []PortMapping
		// Remove automatically removes the container after exit.
		Remove bool
		// Detach runs the container in the background; RunResult.ContainerID is set.
		Detach bool
		// Interactive keeps stdin open.
		Interactive bool
		// TTY allocates a pseudo-TTY.
		TTY    bool
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}

	// InvalidRunOptionsError wraps the field errors of RunOptions.
	InvalidRunOptionsError struct {
		FieldErrs []error
	}

	// RunResult contains the result of running a container.
	RunResult struct {
		// ContainerID is set for detached runs.
		ContainerID ContainerID
		// ExitCode is the container's exit code for foreground runs.
		ExitCode types.ExitCode
		// Error is set for infrastructure failures (binary missing, etc.).
		Error error
	}
)

// String returns the image reference.
func (t ImageTag) String() string { return string(t) }

// Validate rejects empty tags and tags containing whitespace.
func (t ImageTag) Validate() error {
	s := string(t)
	if strings.TrimSpace(s) == "" || strings.ContainsAny(s, " \t\n") {
		return &InvalidImageTagError{Value: t}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidImageTagError) Error() string {
	return fmt.Sprintf("invalid image tag %q: must be non-empty without whitespace", e.Value)
}

// Unwrap returns ErrInvalidImageTag for errors.Is() compatibility.
func (e *InvalidImageTagError) Unwrap() error { return ErrInvalidImageTag }

// String returns the container ID.
func (c ContainerID) String() string { return string(c) }

// Short returns the first 12 characters of the ID.
func (c ContainerID) Short() string {
	if len(c) > 12 {
		return string(c[:12])
	}
	return string(c)
}

// Validate rejects empty IDs.
func (c ContainerID) Validate() error {
	if strings.TrimSpace(string(c)) == "" {
		return &InvalidContainerIDError{Value: c}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidContainerIDError) Error() string {
	return fmt.Sprintf("invalid container ID %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidContainerID for errors.Is() compatibility.
func (e *InvalidContainerIDError) Unwrap() error { return ErrInvalidContainerID }

// String returns the protocol name.
func (p PortProtocol) String() string { return string(p) }

// Validate returns an error if the PortProtocol is not one of the defined protocols.
func (p PortProtocol) Validate() error {
	switch p {
	case PortProtocolTCP, PortProtocolUDP, "":
		return nil
	default:
		return &InvalidPortProtocolError{Value: p}
	}
}

// Error implements the error interface.
func (e *InvalidPortProtocolError) Error() string {
	return fmt.Sprintf("invalid port protocol %q (valid: tcp, udp)", e.Value)
}

// Unwrap returns ErrInvalidPortProtocol for errors.Is() compatibility.
func (e *InvalidPortProtocolError) Unwrap() error { return ErrInvalidPortProtocol }

// Validate returns an error if any field of the PortMapping is invalid.
func (p PortMapping) Validate() error {
	var errs []error
	if err := p.HostPort.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("host port: %w", err))
	}
	if err := p.ContainerPort.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("container port: %w", err))
	}
	if err := p.Protocol.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &InvalidPortMappingError{Value: p, FieldErrs: errs}
	}
	return nil
}

// String returns the mapping in -p flag format: "[ip:]host:container[/udp]".
func (p PortMapping) String() string {
	s := fmt.Sprintf("%d:%d", p.HostPort, p.ContainerPort)
	if p.HostIP != "" {
		s = p.HostIP + ":" + s
	}
	if p.Protocol != "" && p.Protocol != PortProtocolTCP {
		s += "/" + string(p.Protocol)
	}
	return s
}

// Error implements the error interface.
func (e *InvalidPortMappingError) Error() string {
	return fmt.Sprintf("invalid port mapping %d:%d: %v", e.Value.HostPort, e.Value.ContainerPort, errors.Join(e.FieldErrs...))
}

// Unwrap returns ErrInvalidPortMapping and the field errors.
func (e *InvalidPortMappingError) Unwrap() []error {
	return append([]error{ErrInvalidPortMapping}, e.FieldErrs...)
}

// ParsePortMapping parses "[ip:]host:container[/protocol]".
func ParsePortMapping(s string) (PortMapping, error) {
	var m PortMapping

	rest, proto, hasProto := strings.Cut(s, "/")
	if hasProto {
		m.Protocol = PortProtocol(proto)
	}
	parts := strings.Split(rest, ":")
	switch len(parts) {
	case 2:
	case 3:
		m.HostIP = parts[0]
		parts = parts[1:]
	default:
		return m, fmt.Errorf("%w: %q must be [ip:]host:container[/protocol]", ErrInvalidPortMapping, s)
	}

	host, err := strconv.Atoi(parts[0])
	if err != nil {
		return m, fmt.Errorf("%w: host port %q: %w", ErrInvalidPortMapping, parts[0], err)
	}
	ctr, err := strconv.Atoi(parts[1])
	if err != nil {
		return m, fmt.Errorf("%w: container port %q: %w", ErrInvalidPortMapping, parts[1], err)
	}
	m.HostPort = types.NetworkPort(host)
	m.ContainerPort = types.NetworkPort(ctr)

	if err := m.Validate(); err != nil {
		return m, err
	}
	return m, nil
}

// Validate checks the fields a build cannot do without.
func (o BuildOptions) Validate() error {
	var errs []error
	if strings.TrimSpace(o.ContextDir) == "" {
		errs = append(errs, errors.New("context directory must be non-empty"))
	}
	if err := o.Tag.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &InvalidBuildOptionsError{FieldErrs: errs}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidBuildOptionsError) Error() string {
	return fmt.Sprintf("invalid build options: %v", errors.Join(e.FieldErrs...))
}

// Unwrap returns ErrInvalidBuildOptions and the field errors.
func (e *InvalidBuildOptionsError) Unwrap() []error {
	return append([]error{ErrInvalidBuildOptions}, e.FieldErrs...)
}

// Validate checks the image and every port mapping.
func (o RunOptions) Validate() error {
	var errs []error
	if err := o.Image.Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, p := range o.Ports {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if o.Detach && (o.Interactive || o.TTY) {
		errs = append(errs, errors.New("a detached container cannot be interactive"))
	}
	if len(errs) > 0 {
		return &InvalidRunOptionsError{FieldErrs: errs}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidRunOptionsError) Error() string {
	return fmt.Sprintf("invalid run options: %v", errors.Join(e.FieldErrs...))
}

// Unwrap returns ErrInvalidRunOptions and the field errors.
func (e *InvalidRunOptionsError) Unwrap() []error {
	return append([]error{ErrInvalidRunOptions}, e.FieldErrs...)
}
