// SPDX-License-Identifier: MPL-2.0

// Package cueutil holds the schema-validate-decode flow shared by the recipe
// and configuration loaders:
//
//  1. Compile the embedded schema
//  2. Compile user data and unify it with the schema definition
//  3. Validate and decode into a Go value
//
// Errors carry the file name and a JSON-style path to the offending field,
// e.g. "launchpad.cue: system_packages[1]: invalid value".
package cueutil
