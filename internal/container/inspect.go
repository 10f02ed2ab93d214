// SPDX-License-Identifier: MPL-2.0

package container

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrImageNotFound is returned when inspect output holds no image.
var ErrImageNotFound = errors.New("image not found")

type (
	// ImageConfig is the runtime configuration recorded in an image.
	ImageConfig struct {
		ID         string
		WorkingDir string
		// Env maps variable names to values.
		Env        map[string]string
		Cmd        []string
		Entrypoint []string
		// ExposedPorts are "port/proto" entries, sorted.
		ExposedPorts []string
		Labels       map[string]string
	}

	inspectDoc struct {
		ID     string `json:"Id"`
		Config struct {
			WorkingDir   string              `json:"WorkingDir"`
			Env          []string            `json:"Env"`
			Cmd          []string            `json:"Cmd"`
			Entrypoint   []string            `json:"Entrypoint"`
			ExposedPorts map[string]struct{} `json:"ExposedPorts"`
			Labels       map[string]string   `json:"Labels"`
		} `json:"Config"`
	}
)

// ParseImageInspect decodes `image inspect` output. Docker and Podman both
// print a JSON array with one document per image.
func ParseImageInspect(data []byte) (*ImageConfig, error) {
	var docs []inspectDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode image inspect output: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrImageNotFound
	}

	d := docs[0]
	cfg := &ImageConfig{
		ID:         d.ID,
		WorkingDir: d.Config.WorkingDir,
		Env:        make(map[string]string, len(d.Config.Env)),
		Cmd:        d.Config.Cmd,
		Entrypoint: d.Config.Entrypoint,
		Labels:     d.Config.Labels,
	}
	for _, kv := range d.Config.Env {
		k, v, _ := strings.Cut(kv, "=")
		cfg.Env[k] = v
	}
	for p := range d.Config.ExposedPorts {
		cfg.ExposedPorts = append(cfg.ExposedPorts, p)
	}
	sort.Strings(cfg.ExposedPorts)
	return cfg, nil
}

// Exposes reports whether the image declares port/tcp.
func (c *ImageConfig) Exposes(port int) bool {
	want := fmt.Sprintf("%d/tcp", port)
	for _, p := range c.ExposedPorts {
		if p == want {
			return true
		}
	}
	return false
}
