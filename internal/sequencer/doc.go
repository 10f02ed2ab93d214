// SPDX-License-Identifier: MPL-2.0

// Package sequencer implements the service bootstrap sequence: nine ordered
// steps that turn a recipe and a project source tree into a running
// entry-point process.
//
//	Pending → BaseSelected → DirSet → SysPackagesInstalled → ManagerInstalled →
//	SourceCopied → DependenciesResolved → PortDeclared → EnvSet → Launched
//
// Each step owns a host-side preflight check and the Dockerfile instructions
// it contributes. Build preflights every step, builds the image through a
// container engine without layer cache and verifies the result; Launch starts
// the image with its own default command. Any failure is fatal and moves the
// sequence to Failed. A failed build leaves no image behind.
//
// The sequencer runs strictly sequentially and starts no goroutines.
package sequencer
