// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/exp/slices"

	"github.com/launchpad/launchpad/internal/container"
)

// Compile-time interface check
var _ Provisioner = (*ImageProvisioner)(nil)

// ImageProvisioner builds images through a container engine.
//
// The tag is derived from a hash of:
// - the rendered Dockerfile text
// - the content hash of the copied source tree
//
// so any change to a step's instruction or to the source yields a new tag.
type ImageProvisioner struct {
	engine container.Engine
	config *Config
}

// NewImageProvisioner creates a new ImageProvisioner.
func NewImageProvisioner(engine container.Engine, cfg *Config) *ImageProvisioner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &ImageProvisioner{
		engine: engine,
		config: cfg,
	}
}

// Config returns the provisioner's configuration.
func (p *ImageProvisioner) Config() *Config {
	return p.config
}

// Tag returns the tag Provision would use for req.
func (p *ImageProvisioner) Tag(req *Request) (container.ImageTag, error) {
	text, err := req.Dockerfile.Render()
	if err != nil {
		return "", err
	}
	contextHash, err := CalculateDirHash(req.SourceDir, p.excludes(req))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrContextPreparation, err)
	}
	return p.buildTag(cacheKey(text, contextHash)), nil
}

// Provision renders the Dockerfile, copies the source tree into a private
// build context and builds the image. The build context is removed before
// Provision returns.
func (p *ImageProvisioner) Provision(ctx context.Context, req *Request) (*Result, error) {
	text, err := req.Dockerfile.Render()
	if err != nil {
		return nil, err
	}
	contextHash, err := CalculateDirHash(req.SourceDir, p.excludes(req))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContextPreparation, err)
	}

	result := &Result{
		ImageTag:    p.buildTag(cacheKey(text, contextHash)),
		ContextHash: contextHash,
		Dockerfile:  text,
	}

	if p.config.Reuse {
		exists, _ := p.engine.ImageExists(ctx, result.ImageTag) //nolint:errcheck // Error treated as "not found"
		if exists {
			slog.Debug("reusing image", "tag", result.ImageTag)
			return result, nil
		}
	}

	buildCtx, dockerfilePath, cleanup, err := p.prepareBuildContext(req.SourceDir, text, p.excludes(req))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContextPreparation, err)
	}
	defer cleanup()

	opts := container.BuildOptions{
		ContextDir: buildCtx,
		Dockerfile: dockerfilePath,
		Tag:        result.ImageTag,
		NoCache:    p.config.NoCache,
		Pull:       p.config.Pull,
		Labels:     req.Labels,
		Stdout:     req.Stdout,
		Stderr:     req.Stderr,
	}
	slog.Debug("building image", "tag", opts.Tag, "context", buildCtx, "no_cache", opts.NoCache, "pull", opts.Pull)
	if err := p.engine.Build(ctx, opts); err != nil {
		return nil, err
	}

	result.Built = true
	return result, nil
}

func (p *ImageProvisioner) excludes(req *Request) []string {
	return append(slices.Clone(p.config.Excludes), req.Excludes...)
}

// buildTag constructs the image tag with optional suffix.
// When TagSuffix is set, the tag format is "<prefix>:<hash>-<suffix>".
func (p *ImageProvisioner) buildTag(key string) container.ImageTag {
	prefix := p.config.TagPrefix
	if prefix == "" {
		prefix = "launchpad"
	}
	if p.config.TagSuffix != "" {
		return container.ImageTag(fmt.Sprintf("%s:%s-%s", prefix, key[:12], p.config.TagSuffix))
	}
	return container.ImageTag(fmt.Sprintf("%s:%s", prefix, key[:12]))
}

// prepareBuildContext creates <BuildRoot>/ctx-*/ holding the Dockerfile and
// a copy of the source tree in src/. The Dockerfile stays outside src/ so
// COPY . . never copies it into the image.
func (p *ImageProvisioner) prepareBuildContext(sourceDir, dockerfile string, excludes []string) (contextDir, dockerfilePath string, cleanup func(), err error) {
	root := p.config.BuildRoot
	if root.Validate() != nil {
		root = defaultBuildRoot()
	}
	if err := os.MkdirAll(root.String(), 0o755); err != nil {
		return "", "", nil, fmt.Errorf("create build root: %w", err)
	}

	tmpDir, err := os.MkdirTemp(root.String(), "ctx-*")
	if err != nil {
		return "", "", nil, fmt.Errorf("create temp directory: %w", err)
	}
	cleanup = func() {
		_ = os.RemoveAll(tmpDir) // Cleanup temp dir; error non-critical
	}

	contextDir = filepath.Join(tmpDir, "src")
	if err := CopyDir(sourceDir, contextDir, excludes); err != nil {
		cleanup()
		return "", "", nil, err
	}

	dockerfilePath = filepath.Join(tmpDir, "Dockerfile")
	if err := os.WriteFile(dockerfilePath, []byte(dockerfile), 0o644); err != nil {
		cleanup()
		return "", "", nil, fmt.Errorf("write Dockerfile: %w", err)
	}

	abs, err := filepath.Abs(dockerfilePath)
	if err != nil {
		cleanup()
		return "", "", nil, err
	}
	return contextDir, abs, cleanup, nil
}

func cacheKey(dockerfile, contextHash string) string {
	h := sha256.New()
	h.Write([]byte("dockerfile\x00" + dockerfile + "\x00"))
	h.Write([]byte("context\x00" + contextHash))
	return hex.EncodeToString(h.Sum(nil))
}
