// SPDX-License-Identifier: MPL-2.0

package platform

// OS names as reported by runtime.GOOS.
const (
	Windows = "windows"
	Darwin  = "darwin"
)
