// SPDX-License-Identifier: MPL-2.0

// Package platform detects the host facts the engine adapters depend on:
// the operating system and whether the process runs inside a Flatpak or
// Snap sandbox, where container engines must be reached through a host
// spawn helper.
package platform
