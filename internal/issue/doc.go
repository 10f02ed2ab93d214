// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and the markdown catalog that
// explains each build and launch failure class.
//
// An ActionableError may link to a catalog entry through its IssueId; the CLI
// renders the linked entry with glamour below the one-line error.
package issue
