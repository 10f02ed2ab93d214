// SPDX-License-Identifier: MPL-2.0

// Package provision turns a rendered Dockerfile and a project source tree
// into a tagged image.
//
// A Dockerfile is assembled instruction by instruction; every RUN command is
// quoted word by word and parse-checked as POSIX shell before it is rendered.
// The build context is a private copy of the source tree with host-only files
// (virtualenvs, caches, dotenv files) left out, and the image tag is derived
// from the Dockerfile text plus the content hash of that copy:
//
//	df := provision.NewDockerfile().From("python:3.12.5").Workdir("/app")
//	p := provision.NewImageProvisioner(engine, provision.DefaultConfig())
//	result, err := p.Provision(ctx, &provision.Request{Dockerfile: df, SourceDir: dir})
//	defer result.Cleanup()
package provision
