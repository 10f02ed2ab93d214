// SPDX-License-Identifier: MPL-2.0

package depset

import (
	"cmp"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"
)

const (
	// ManifestFile is the project manifest name.
	ManifestFile = "pyproject.toml"
	// LockFile is the uv lock file name.
	LockFile = "uv.lock"
)

var (
	// ErrManifestNotFound is returned when the source tree has no pyproject.toml.
	ErrManifestNotFound = errors.New("dependency manifest not found")
	// ErrLockNotFound is returned when the source tree has no uv.lock.
	ErrLockNotFound = errors.New("lock file not found")
	// ErrLockStale is returned when the lock does not match the manifest.
	ErrLockStale = errors.New("lock file is out of date with the manifest")
	// ErrUnresolved is returned when a lock dependency edge has no package entry.
	ErrUnresolved = errors.New("unresolved locked dependency")
)

type (
	// Package is one resolved name@version.
	Package struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		// Source is the registry URL, VCS URL or local path the lock pins.
		Source string `json:"source,omitempty"`
	}

	// Set is the exact dependency set a locked sync installs.
	Set struct {
		// Project is the normalized project name from the manifest.
		Project string `json:"project"`
		// Declared are the manifest's direct requirements in declaration order.
		Declared []Requirement `json:"declared"`
		// Groups are the dependency groups included in the sync.
		Groups []string `json:"groups,omitempty"`
		// Packages is the transitive closure sorted by name then version.
		Packages []Package `json:"packages"`
		// Fingerprint identifies Packages; equal sets have equal fingerprints.
		Fingerprint string `json:"fingerprint"`
	}
)

// String renders "name@version".
func (p Package) String() string { return p.Name + "@" + p.Version }

// Load reads ManifestFile and LockFile from dir and resolves them.
func Load(dir string) (*Set, error) {
	manifestData, err := readFile(filepath.Join(dir, ManifestFile), ErrManifestNotFound)
	if err != nil {
		return nil, err
	}
	lockData, err := readFile(filepath.Join(dir, LockFile), ErrLockNotFound)
	if err != nil {
		return nil, err
	}

	m, err := ParseManifest(manifestData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ManifestFile, err)
	}
	l, err := ParseLock(lockData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", LockFile, err)
	}
	return Resolve(m, l)
}

// Resolve computes the packages a locked sync installs on the image: the
// manifest's requirements plus the default dependency groups, followed
// through the lock. Edges whose marker cannot hold on Linux are skipped.
// Every declared requirement must be locked, and when the lock records the
// project's own requirement list it must name exactly the declared
// dependencies.
func Resolve(m *Manifest, l *Lock) (*Set, error) {
	if err := checkFresh(m, l); err != nil {
		return nil, err
	}

	visited := make(map[*LockedPackage]bool)
	queue := make([]*LockedPackage, 0, len(m.Dependencies))
	for _, req := range m.Dependencies {
		ok, err := MarkerHolds(req.Marker, ImageEnvironment)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ManifestFile, err)
		}
		if !ok {
			continue
		}
		found := l.find(PackageRef{Name: req.Name})
		if len(found) == 0 {
			return nil, fmt.Errorf("%w: %q is declared in %s but missing from %s", ErrLockStale, req.Name, ManifestFile, LockFile)
		}
		queue = append(queue, found...)
	}

	var groups []string
	if root := l.project(m.Name); root != nil {
		groups = syncedGroups(m, root)
		for _, g := range groups {
			for _, ref := range root.DevDependencies[g] {
				found, err := l.follow(root, ref)
				if err != nil {
					return nil, err
				}
				queue = append(queue, found...)
			}
		}
	}

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if visited[p] {
			continue
		}
		visited[p] = true
		for _, ref := range p.Dependencies {
			found, err := l.follow(p, ref)
			if err != nil {
				return nil, err
			}
			queue = append(queue, found...)
		}
	}

	s := &Set{
		Project:  m.Name,
		Declared: slices.Clone(m.Dependencies),
		Groups:   groups,
		Packages: make([]Package, 0, len(visited)),
	}
	for p := range visited {
		if p.Source.IsProject() || p.Name == m.Name {
			continue
		}
		s.Packages = append(s.Packages, Package{Name: p.Name, Version: p.Version, Source: p.Source.location()})
	}
	slices.SortFunc(s.Packages, func(a, b Package) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.Version, b.Version)
	})
	s.Fingerprint = Fingerprint(s.Packages)
	return s, nil
}

// Fingerprint hashes a sorted package list. Each field is length-prefixed
// so that no two distinct lists share an encoding.
func Fingerprint(pkgs []Package) string {
	h := sha256.New()
	var n [8]byte
	write := func(s string) {
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	binary.BigEndian.PutUint64(n[:], uint64(len(pkgs)))
	h.Write(n[:])
	for _, p := range pkgs {
		write(p.Name)
		write(p.Version)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Names returns the resolved "name@version" strings.
func (s *Set) Names() []string {
	out := make([]string, len(s.Packages))
	for i, p := range s.Packages {
		out[i] = p.String()
	}
	return out
}

// ShortFingerprint returns the first 12 hex digits of the fingerprint.
func (s *Set) ShortFingerprint() string {
	if len(s.Fingerprint) < 12 {
		return s.Fingerprint
	}
	return s.Fingerprint[:12]
}

// follow returns the packages an edge of p leads to, or nil when the edge
// does not apply on the image.
func (l *Lock) follow(p *LockedPackage, ref PackageRef) ([]*LockedPackage, error) {
	ok, err := ref.Installed()
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", LockFile, p.Name, err)
	}
	if !ok {
		return nil, nil
	}
	found := l.find(ref)
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s requires %q", ErrUnresolved, p.Name, ref.Name)
	}
	return found, nil
}

// syncedGroups returns the locked dependency groups a plain sync installs,
// sorted.
func syncedGroups(m *Manifest, root *LockedPackage) []string {
	var groups []string
	if m.AllGroups {
		for g := range root.DevDependencies {
			groups = append(groups, g)
		}
	} else {
		for _, g := range m.DefaultGroups {
			if _, ok := root.DevDependencies[g]; ok {
				groups = append(groups, g)
			}
		}
	}
	slices.Sort(groups)
	return slices.Compact(groups)
}

func checkFresh(m *Manifest, l *Lock) error {
	root := l.project(m.Name)
	if root == nil || (len(root.Metadata.RequiresDist) == 0 && len(m.Dependencies) == 0) {
		return nil
	}

	locked := make([]string, 0, len(root.Metadata.RequiresDist))
	for _, r := range root.Metadata.RequiresDist {
		if r.IsOptional() {
			continue
		}
		locked = append(locked, r.Name)
	}
	declared := make([]string, 0, len(m.Dependencies))
	for _, r := range m.Dependencies {
		declared = append(declared, r.Name)
	}
	slices.Sort(locked)
	slices.Sort(declared)
	locked = slices.Compact(locked)

	if !slices.Equal(locked, declared) {
		return fmt.Errorf("%w: %s declares [%s], %s was generated for [%s]; run `uv lock`",
			ErrLockStale, ManifestFile, strings.Join(declared, ", "), LockFile, strings.Join(locked, ", "))
	}
	return nil
}

func (s PackageSource) location() string {
	for _, v := range []string{s.Registry, s.Git, s.URL, s.Directory, s.Editable, s.Virtual} {
		if v != "" {
			return v
		}
	}
	return ""
}

func readFile(path string, notFound error) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", notFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return data, nil
}
