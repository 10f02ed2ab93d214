// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnpinnedBaseImage is the sentinel error wrapped by InvalidBaseImageError.
var ErrUnpinnedBaseImage = errors.New("base image is not pinned")

var (
	imageRepoPattern   = regexp.MustCompile(`^[a-z0-9]+([._-][a-z0-9]+)*(:[0-9]+)?(/[a-z0-9]+([._-][a-z0-9]+)*)*$`)
	imageTagPattern    = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]{0,127}$`)
	imageDigestPattern = regexp.MustCompile(`^sha256:[a-f0-9]{64}$`)
)

type (
	// BaseImage is an image reference "repo:tag" or "repo[:tag]@sha256:...".
	// Only pinned references are valid: a bare repository or the "latest"
	// tag would make two builds of the same recipe start from different
	// filesystems.
	BaseImage string

	// InvalidBaseImageError describes why a BaseImage was rejected.
	InvalidBaseImageError struct {
		Value  BaseImage
		Reason string
	}
)

// String returns the image reference.
func (b BaseImage) String() string { return string(b) }

// Split returns the repository, tag and digest parts of the reference.
func (b BaseImage) Split() (repo, tag, digest string) {
	ref := string(b)
	if at := strings.LastIndex(ref, "@"); at >= 0 {
		ref, digest = ref[:at], ref[at+1:]
	}
	// A colon after the last slash separates the tag; earlier colons are registry ports.
	if colon := strings.LastIndex(ref, ":"); colon > strings.LastIndex(ref, "/") {
		return ref[:colon], ref[colon+1:], digest
	}
	return ref, "", digest
}

// Validate rejects malformed and unpinned references.
func (b BaseImage) Validate() error {
	if strings.TrimSpace(string(b)) == "" {
		return &InvalidBaseImageError{Value: b, Reason: "must be non-empty"}
	}
	repo, tag, digest := b.Split()
	if !imageRepoPattern.MatchString(repo) {
		return &InvalidBaseImageError{Value: b, Reason: fmt.Sprintf("malformed repository %q", repo)}
	}
	if tag != "" && !imageTagPattern.MatchString(tag) {
		return &InvalidBaseImageError{Value: b, Reason: fmt.Sprintf("malformed tag %q", tag)}
	}
	if digest != "" && !imageDigestPattern.MatchString(digest) {
		return &InvalidBaseImageError{Value: b, Reason: fmt.Sprintf("malformed digest %q", digest)}
	}
	if digest == "" && (tag == "" || tag == "latest") {
		return &InvalidBaseImageError{Value: b, Reason: "an explicit version tag or digest is required"}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidBaseImageError) Error() string {
	return fmt.Sprintf("invalid base image %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrUnpinnedBaseImage for errors.Is() compatibility.
func (e *InvalidBaseImageError) Unwrap() error { return ErrUnpinnedBaseImage }
