// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Common helpers include environment variable management (MustSetenv, MustUnsetenv),
// directory operations (MustChdir, MustMkdirAll), and resource cleanup
// (MustClose, DeferClose). Project fixtures (WriteProject,
// ServiceProject, BareProject) lay out service source trees, and
// ContainerSemaphore bounds concurrent engine use in integration tests.
package testutil
