// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"cmp"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/launchpad/launchpad/pkg/types"

	"golang.org/x/exp/slices"
)

const (
	// EnvModulePath is the module search path variable; it always equals WorkDir.
	EnvModulePath = "PYTHONPATH"
	// EnvUnbuffered disables interpreter output buffering.
	EnvUnbuffered = "PYTHONUNBUFFERED"

	// ManagerUV is the uv project manager.
	ManagerUV ManagerName = "uv"

	// DefaultBaseImage is the pinned runtime of the reference service.
	DefaultBaseImage BaseImage = "python:3.12.5"
	// DefaultWorkDir is the reference working directory.
	DefaultWorkDir types.ContainerPath = "/app"
	// DefaultPort is the reference service port.
	DefaultPort types.NetworkPort = 8080
	// DefaultEntryPoint is the reference server script.
	DefaultEntryPoint = "server.py"
	// DefaultFileName is the recipe file looked up in the project directory.
	DefaultFileName = "launchpad.cue"
)

type (
	// ManagerName identifies a supported dependency manager.
	ManagerName string

	// PackageName is an OS package, optionally pinned as "name=version".
	PackageName string

	// Manager is the dependency manager installed into the base image.
	Manager struct {
		Name    ManagerName `json:"name"`
		Version string      `json:"version,omitempty"`
	}

	// Runtime lists what the entry-point needs at launch but must never be
	// baked into the image.
	Runtime struct {
		// RequiredEnv must be present in the launch environment.
		RequiredEnv []string `json:"required_env"`
		// PassthroughEnv is forwarded from the host when set.
		PassthroughEnv []string `json:"passthrough_env"`
		// EnvFile is an optional dotenv file relative to the source tree.
		EnvFile string `json:"env_file"`
	}

	// Recipe is the complete, fixed input of one image build.
	Recipe struct {
		Description       string              `json:"description,omitempty"`
		BaseImage         BaseImage           `json:"base_image"`
		WorkDir           types.ContainerPath `json:"workdir"`
		SystemPackages    []PackageName       `json:"system_packages"`
		DependencyManager Manager             `json:"dependency_manager"`
		SourceDir         string              `json:"source_dir"`
		Port              types.NetworkPort   `json:"port"`
		Env               map[string]string   `json:"env"`
		EntryPoint        string              `json:"entrypoint"`
		Runtime           Runtime             `json:"runtime"`

		// Exclude lists base-name globs left out of the copied source tree.
		// The whole tree is copied when empty.
		Exclude []string `json:"exclude,omitempty"`

		// dir is the directory of the recipe file; SourceDir resolves against it.
		dir string
	}

	// EnvVar is one name=value pair in rendering order.
	EnvVar struct {
		Name  string
		Value string
	}

	// ManagerCommands are the shell words of the manager's fixed verbs.
	ManagerCommands struct {
		// Install installs the manager itself into the base image.
		Install []string
		// Sync installs the locked dependency set.
		Sync []string
		// Run launches a script inside the synchronized environment.
		Run []string
		// Manifest and Lock are the file names Sync reads.
		Manifest string
		Lock     string
	}
)

// Default returns the reference recipe.
func Default() *Recipe {
	return &Recipe{
		BaseImage:         DefaultBaseImage,
		WorkDir:           DefaultWorkDir,
		SystemPackages:    []PackageName{"git", "curl"},
		DependencyManager: Manager{Name: ManagerUV},
		SourceDir:         ".",
		Port:              DefaultPort,
		Env:               map[string]string{},
		EntryPoint:        DefaultEntryPoint,
		Runtime: Runtime{
			RequiredEnv:    []string{"TAVILY_API_KEY"},
			PassthroughEnv: []string{"AWS_REGION", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "DYNAMODB_ENDPOINT"},
			EnvFile:        ".env",
		},
	}
}

// Dir returns the directory the recipe was loaded from ("" for in-memory recipes).
func (r *Recipe) Dir() string { return r.dir }

// SetDir sets the directory SourceDir resolves against.
func (r *Recipe) SetDir(dir string) { r.dir = dir }

// SourcePath returns the host path of the project source tree.
func (r *Recipe) SourcePath() string {
	src := r.SourceDir
	if src == "" {
		src = "."
	}
	if filepath.IsAbs(src) {
		return filepath.Clean(src)
	}
	return filepath.Join(r.dir, filepath.FromSlash(src))
}

// Packages returns the system packages sorted and deduplicated so the
// rendered install layer does not depend on declaration order.
func (r *Recipe) Packages() []PackageName {
	out := slices.Clone(r.SystemPackages)
	slices.SortFunc(out, func(a, b PackageName) int { return cmp.Compare(a, b) })
	return slices.Compact(out)
}

// Environment returns the image environment: PYTHONPATH and PYTHONUNBUFFERED
// first, then the extra variables sorted by name.
func (r *Recipe) Environment() []EnvVar {
	vars := []EnvVar{
		{Name: EnvModulePath, Value: string(r.WorkDir)},
		{Name: EnvUnbuffered, Value: "1"},
	}
	names := make([]string, 0, len(r.Env))
	for name := range r.Env {
		if name == EnvModulePath || name == EnvUnbuffered {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		vars = append(vars, EnvVar{Name: name, Value: r.Env[name]})
	}
	return vars
}

// EntryPointPath is the script location inside the image.
func (r *Recipe) EntryPointPath() string {
	return path.Join(string(r.WorkDir), r.EntryPoint)
}

// Commands returns the manager's fixed verbs.
func (r *Recipe) Commands() ManagerCommands {
	// Only uv is accepted by Validate.
	spec := string(r.DependencyManager.Name)
	if r.DependencyManager.Version != "" {
		spec += "==" + r.DependencyManager.Version
	}
	return ManagerCommands{
		Install:  []string{"pip", "install", "--no-cache-dir", spec},
		Sync:     []string{"uv", "sync", "--locked"},
		Run:      []string{"uv", "run", r.EntryPoint},
		Manifest: "pyproject.toml",
		Lock:     "uv.lock",
	}
}

// String renders "name=value".
func (v EnvVar) String() string { return v.Name + "=" + v.Value }

// String returns the package spec.
func (p PackageName) String() string { return string(p) }

// Name returns the package name without a version pin.
func (p PackageName) Name() string {
	name, _, _ := strings.Cut(string(p), "=")
	return name
}

// String returns the manager name.
func (m ManagerName) String() string { return string(m) }

// String renders the manager as "name" or "name==version".
func (m Manager) String() string {
	if m.Version == "" {
		return string(m.Name)
	}
	return fmt.Sprintf("%s==%s", m.Name, m.Version)
}
