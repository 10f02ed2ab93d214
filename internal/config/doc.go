// SPDX-License-Identifier: MPL-2.0

// Package config handles user configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/launchpad/config.cue (or the XDG equivalent on Linux,
// ~/Library/Application Support/launchpad/config.cue on macOS, %APPDATA%\launchpad\config.cue
// on Windows) and validated against the embedded schema (config_schema.cue). Any key with a
// default can be overridden through a LAUNCHPAD_* environment variable whose name is the key
// upper-cased with dots replaced by underscores, e.g. LAUNCHPAD_LAUNCH_READY_TIMEOUT=90s.
//
// The configuration selects the container engine, the image build and launch behavior, and
// the terminal output of the CLI. The build recipe itself lives in the project (launchpad.cue).
package config
