// SPDX-License-Identifier: MPL-2.0

package depset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ErrInvalidLock is returned when uv.lock cannot be used.
var ErrInvalidLock = errors.New("invalid lock file")

type (
	// LockedPackage is one [[package]] entry of uv.lock.
	LockedPackage struct {
		Name         string        `toml:"name"`
		Version      string        `toml:"version"`
		Source       PackageSource `toml:"source"`
		Dependencies []PackageRef  `toml:"dependencies"`
		// DevDependencies are the project's dependency groups by group name.
		DevDependencies map[string][]PackageRef `toml:"dev-dependencies"`
		Metadata        struct {
			RequiresDist []PackageRef `toml:"requires-dist"`
		} `toml:"metadata"`
	}

	// PackageSource says where a locked package comes from.
	PackageSource struct {
		Registry  string `toml:"registry"`
		Virtual   string `toml:"virtual"`
		Editable  string `toml:"editable"`
		Directory string `toml:"directory"`
		Git       string `toml:"git"`
		URL       string `toml:"url"`
	}

	// PackageRef names a dependency edge in the lock.
	PackageRef struct {
		Name      string `toml:"name"`
		Version   string `toml:"version"`
		Specifier string `toml:"specifier"`
		Marker    string `toml:"marker"`
	}

	// Lock is a decoded uv.lock.
	Lock struct {
		Version        int             `toml:"version"`
		RequiresPython string          `toml:"requires-python"`
		Packages       []LockedPackage `toml:"package"`
	}
)

// IsProject reports whether the package is the local project itself.
func (s PackageSource) IsProject() bool {
	return s.Virtual == "." || s.Editable == "."
}

// IsOptional reports whether the edge only applies to an optional extra.
func (r PackageRef) IsOptional() bool {
	return strings.Contains(r.Marker, "extra ==")
}

// ParseLock decodes uv.lock content.
func ParseLock(data []byte) (*Lock, error) {
	var l Lock
	if err := toml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLock, err)
	}
	if l.Version < 1 {
		return nil, fmt.Errorf("%w: missing lock format version", ErrInvalidLock)
	}
	for i, p := range l.Packages {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: package[%d] has no name", ErrInvalidLock, i)
		}
		l.Packages[i].Name = NormalizeName(p.Name)
		for j, d := range p.Dependencies {
			l.Packages[i].Dependencies[j].Name = NormalizeName(d.Name)
		}
		for group, refs := range p.DevDependencies {
			for j, d := range refs {
				l.Packages[i].DevDependencies[group][j].Name = NormalizeName(d.Name)
			}
		}
		for j, d := range p.Metadata.RequiresDist {
			l.Packages[i].Metadata.RequiresDist[j].Name = NormalizeName(d.Name)
		}
	}
	return &l, nil
}

// Installed reports whether the edge applies inside the image.
func (r PackageRef) Installed() (bool, error) {
	return MarkerHolds(r.Marker, ImageEnvironment)
}

// project returns the lock entry of the local project named name, if any.
func (l *Lock) project(name string) *LockedPackage {
	for i := range l.Packages {
		if l.Packages[i].Name == name && l.Packages[i].Source.IsProject() {
			return &l.Packages[i]
		}
	}
	return nil
}

// find returns the locked packages matching ref. A ref without a version
// matches every locked version of the name.
func (l *Lock) find(ref PackageRef) []*LockedPackage {
	var out []*LockedPackage
	for i := range l.Packages {
		p := &l.Packages[i]
		if p.Name != ref.Name {
			continue
		}
		if ref.Version != "" && p.Version != ref.Version {
			continue
		}
		out = append(out, p)
	}
	return out
}
