// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidNetworkPort is the sentinel error wrapped by InvalidNetworkPortError.
var ErrInvalidNetworkPort = errors.New("invalid network port")

type (
	// NetworkPort is a TCP port number a service binds or publishes.
	// Unlike a listen port there is no auto-select value: zero is invalid.
	NetworkPort int

	// InvalidNetworkPortError is returned when a NetworkPort is outside 1-65535.
	InvalidNetworkPortError struct {
		Value NetworkPort
	}
)

// String returns the decimal string representation of the NetworkPort.
func (p NetworkPort) String() string { return strconv.Itoa(int(p)) }

// Validate returns an error if the NetworkPort is outside the range 1-65535.
func (p NetworkPort) Validate() error {
	if p < 1 || p > 65535 {
		return &InvalidNetworkPortError{Value: p}
	}
	return nil
}

// Error implements the error interface for InvalidNetworkPortError.
func (e *InvalidNetworkPortError) Error() string {
	return fmt.Sprintf("invalid network port %d: must be in range 1-65535", e.Value)
}

// Unwrap returns ErrInvalidNetworkPort for errors.Is() compatibility.
func (e *InvalidNetworkPortError) Unwrap() error { return ErrInvalidNetworkPort }
