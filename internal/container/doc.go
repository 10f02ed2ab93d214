// SPDX-License-Identifier: MPL-2.0

// Package container provides a unified abstraction over the Docker and Podman
// CLIs for the operations a service image needs: build, pull, inspect, run
// and remove.
//
// Both engines embed BaseCLIEngine, which builds argument lists and executes
// the binary through an injectable ExecCommandFunc so tests can substitute a
// helper process. NewEngine selects an engine with fallback to the other one.
//
// Only Linux images are supported.
package container
