// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the launchpad CLI: cobra commands executed through
// fang that drive the bootstrap sequencer over a project directory.
package cmd
