// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"os"
	"path/filepath"

	"github.com/launchpad/launchpad/pkg/types"
)

// TagSuffixEnv names the variable read by DefaultConfig for Config.TagSuffix.
const TagSuffixEnv = "LAUNCHPAD_PROVISION_TAG_SUFFIX"

type (
	// Config holds configuration for image provisioning.
	Config struct {
		// TagPrefix is the repository part of generated image tags.
		TagPrefix string

		// TagSuffix is an optional suffix appended to generated tags. Tests
		// set it so parallel runs never share an image.
		TagSuffix string

		// BuildRoot is the parent of temporary build contexts.
		BuildRoot types.FilesystemPath

		// NoCache disables the engine layer cache.
		NoCache bool

		// Pull refreshes the base image before building.
		Pull bool

		// Reuse skips the build when an image with the computed tag exists.
		Reuse bool

		// Excludes are glob patterns matched against each entry's base name,
		// applied to every build in addition to Request.Excludes. Empty by
		// default: the whole source tree is copied.
		Excludes []string
	}

	// Option is a functional option for configuring a Config.
	Option func(*Config)
)

// DefaultConfig returns a Config with default values: uncached, pulling
// builds tagged "launchpad:<hash>".
func DefaultConfig() *Config {
	return &Config{
		TagPrefix: "launchpad",
		TagSuffix: os.Getenv(TagSuffixEnv),
		BuildRoot: defaultBuildRoot(),
		NoCache:   true,
		Pull:      true,
	}
}

// WithTagPrefix returns an Option that sets TagPrefix.
func WithTagPrefix(prefix string) Option {
	return func(c *Config) {
		c.TagPrefix = prefix
	}
}

// WithTagSuffix returns an Option that sets TagSuffix.
func WithTagSuffix(suffix string) Option {
	return func(c *Config) {
		c.TagSuffix = suffix
	}
}

// WithBuildRoot returns an Option that sets BuildRoot.
func WithBuildRoot(dir string) Option {
	return func(c *Config) {
		c.BuildRoot = types.FilesystemPath(dir)
	}
}

// WithNoCache returns an Option that sets NoCache.
func WithNoCache(noCache bool) Option {
	return func(c *Config) {
		c.NoCache = noCache
	}
}

// WithPull returns an Option that sets Pull.
func WithPull(pull bool) Option {
	return func(c *Config) {
		c.Pull = pull
	}
}

// WithReuse returns an Option that sets Reuse.
func WithReuse(reuse bool) Option {
	return func(c *Config) {
		c.Reuse = reuse
	}
}

// WithExcludes returns an Option that appends exclude patterns.
func WithExcludes(patterns ...string) Option {
	return func(c *Config) {
		c.Excludes = append(c.Excludes, patterns...)
	}
}

// Apply applies the given options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// defaultBuildRoot picks a visible directory under $HOME. Docker installed
// via Snap cannot read /tmp or hidden directories in the home directory.
func defaultBuildRoot() types.FilesystemPath {
	if home, err := os.UserHomeDir(); err == nil {
		if _, statErr := os.Stat(home); statErr == nil {
			return types.FilesystemPath(filepath.Join(home, "launchpad-build"))
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		return types.FilesystemPath(filepath.Join(cwd, ".launchpad-build"))
	}
	return types.FilesystemPath(filepath.Join(os.TempDir(), "launchpad-build"))
}
