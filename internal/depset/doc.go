// SPDX-License-Identifier: MPL-2.0

// Package depset reads a project's dependency manifest (pyproject.toml) and
// lock file (uv.lock) and resolves the exact package set a locked sync
// installs.
//
// Resolution is a pure function of the two files: the same pair always yields
// the same sorted package list and the same Fingerprint, which is what makes
// image builds from the same source tree reproducible.
package depset
