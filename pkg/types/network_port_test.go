// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"testing"
)

func TestNetworkPortValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		port    NetworkPort
		wantErr bool
	}{
		{8080, false},
		{1, false},
		{65535, false},
		{0, true},
		{-80, true},
		{65536, true},
	}

	for _, tt := range tests {
		err := tt.port.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("NetworkPort(%d).Validate() error = %v, wantErr %v", tt.port, err, tt.wantErr)
		}
		if tt.wantErr && !errors.Is(err, ErrInvalidNetworkPort) {
			t.Errorf("NetworkPort(%d).Validate() error should wrap ErrInvalidNetworkPort", tt.port)
		}
	}
}

func TestNetworkPortString(t *testing.T) {
	t.Parallel()

	if got := NetworkPort(8080).String(); got != "8080" {
		t.Errorf("String() = %q, want %q", got, "8080")
	}
}
