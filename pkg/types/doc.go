// SPDX-License-Identifier: MPL-2.0

// Package types holds small validated value types shared across launchpad
// packages. Each type exposes Validate() returning a typed error that wraps a
// package sentinel, so callers can branch with errors.Is.
package types
