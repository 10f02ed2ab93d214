// SPDX-License-Identifier: MPL-2.0

package depset

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ErrInvalidManifest is returned when pyproject.toml cannot be used.
var ErrInvalidManifest = errors.New("invalid dependency manifest")

// requirementPattern matches the head of a PEP 508 requirement:
// name, optional extras, and the version specifier up to any marker.
var requirementPattern = regexp.MustCompile(`^\s*([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(\[[^\]]*\])?\s*([^;]*)`)

var separatorRun = regexp.MustCompile(`[-_.]+`)

type (
	// Requirement is one declared dependency.
	Requirement struct {
		// Name is the normalized distribution name.
		Name string `json:"name"`
		// Specifier is the version constraint as written, e.g. ">=2.0,<3".
		Specifier string `json:"specifier,omitempty"`
		// Marker is the environment marker after ';', if any.
		Marker string `json:"marker,omitempty"`
		// Raw is the original requirement string.
		Raw string `json:"-"`
	}

	// Manifest is the subset of pyproject.toml the resolver needs.
	Manifest struct {
		Name           string
		Version        string
		RequiresPython string
		Dependencies   []Requirement
		// DefaultGroups are the dependency groups a plain sync installs.
		DefaultGroups []string
		// AllGroups is set by default-groups = "all".
		AllGroups bool
	}

	pyproject struct {
		Project struct {
			Name           string   `toml:"name"`
			Version        string   `toml:"version"`
			RequiresPython string   `toml:"requires-python"`
			Dependencies   []string `toml:"dependencies"`
		} `toml:"project"`
		Tool struct {
			UV struct {
				// DefaultGroups is a list of names or the string "all".
				DefaultGroups any `toml:"default-groups"`
			} `toml:"uv"`
		} `toml:"tool"`
	}
)

// NormalizeName applies PEP 503 normalization: lowercase with runs of
// "-", "_" and "." collapsed to a single "-".
func NormalizeName(name string) string {
	return strings.ToLower(separatorRun.ReplaceAllString(strings.TrimSpace(name), "-"))
}

// ParseRequirement parses a PEP 508 requirement string.
func ParseRequirement(raw string) (Requirement, error) {
	m := requirementPattern.FindStringSubmatch(raw)
	if m == nil {
		return Requirement{}, fmt.Errorf("%w: malformed requirement %q", ErrInvalidManifest, raw)
	}
	spec := strings.TrimSpace(m[3])
	var marker string
	if _, after, ok := strings.Cut(raw, ";"); ok {
		marker = strings.TrimSpace(after)
	}
	if strings.HasPrefix(spec, "@") {
		// Direct URL references are pinned by the lock like any other source.
		spec = strings.TrimSpace(strings.TrimPrefix(spec, "@"))
	}
	return Requirement{
		Name:      NormalizeName(m[1]),
		Specifier: strings.ReplaceAll(spec, " ", ""),
		Marker:    marker,
		Raw:       raw,
	}, nil
}

// ParseManifest decodes pyproject.toml content.
func ParseManifest(data []byte) (*Manifest, error) {
	var doc pyproject
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if strings.TrimSpace(doc.Project.Name) == "" {
		return nil, fmt.Errorf("%w: [project].name is required", ErrInvalidManifest)
	}

	m := &Manifest{
		Name:           NormalizeName(doc.Project.Name),
		Version:        doc.Project.Version,
		RequiresPython: doc.Project.RequiresPython,
	}
	if err := m.setDefaultGroups(doc.Tool.UV.DefaultGroups); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(doc.Project.Dependencies))
	for _, raw := range doc.Project.Dependencies {
		req, err := ParseRequirement(raw)
		if err != nil {
			return nil, err
		}
		if seen[req.Name] {
			return nil, fmt.Errorf("%w: dependency %q declared twice", ErrInvalidManifest, req.Name)
		}
		seen[req.Name] = true
		m.Dependencies = append(m.Dependencies, req)
	}
	return m, nil
}

// setDefaultGroups applies [tool.uv].default-groups; uv syncs "dev" when
// the key is absent.
func (m *Manifest) setDefaultGroups(v any) error {
	switch groups := v.(type) {
	case nil:
		m.DefaultGroups = []string{"dev"}
	case string:
		if groups != "all" {
			return fmt.Errorf("%w: tool.uv.default-groups must be a list or \"all\"", ErrInvalidManifest)
		}
		m.AllGroups = true
	case []any:
		m.DefaultGroups = make([]string, 0, len(groups))
		for _, g := range groups {
			name, ok := g.(string)
			if !ok {
				return fmt.Errorf("%w: tool.uv.default-groups entries must be strings", ErrInvalidManifest)
			}
			m.DefaultGroups = append(m.DefaultGroups, NormalizeName(name))
		}
	default:
		return fmt.Errorf("%w: tool.uv.default-groups must be a list or \"all\"", ErrInvalidManifest)
	}
	return nil
}
