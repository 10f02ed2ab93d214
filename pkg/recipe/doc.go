// SPDX-License-Identifier: MPL-2.0

// Package recipe defines the service bootstrap recipe: the fixed inputs from
// which launchpad renders and builds an image.
//
// A recipe names a pinned base image, a working directory, the OS packages to
// install, the dependency manager, the project source tree, the exposed port,
// extra build-time environment and the server script. Recipes are CUE files
// (launchpad.cue) validated against an embedded #Recipe schema; missing fields
// take the defaults of the reference Python service:
//
//	base_image:      "python:3.12.5"
//	workdir:         "/app"
//	system_packages: ["git", "curl"]
//	dependency_manager: name: "uv"
//	port:            8080
//	entrypoint:      "server.py"
//
// PYTHONPATH always equals workdir and PYTHONUNBUFFERED is always "1"; a recipe
// may restate them but never change them.
package recipe
