// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"testing"
)

func TestFilesystemPathValidate(t *testing.T) {
	t.Parallel()

	if err := FilesystemPath("./project").Validate(); err != nil {
		t.Errorf("relative path should be valid: %v", err)
	}
	if err := FilesystemPath(" \t").Validate(); !errors.Is(err, ErrInvalidFilesystemPath) {
		t.Errorf("whitespace path should wrap ErrInvalidFilesystemPath, got %v", err)
	}
}

func TestContainerPathValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    ContainerPath
		wantErr bool
	}{
		{"app", "/app", false},
		{"nested", "/srv/arxiv/app", false},
		{"root", "/", false},
		{"empty", "", true},
		{"relative", "app", true},
		{"trailing slash", "/app/", true},
		{"dot dot", "/app/../etc", true},
		{"space", "/my app", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.path.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ContainerPath(%q).Validate() error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidContainerPath) {
				t.Errorf("error should wrap ErrInvalidContainerPath, got %v", err)
			}
		})
	}
}
