// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/launchpad/launchpad/pkg/cueutil"
)

// ErrRecipeNotFound is returned by Load when no recipe file exists.
var ErrRecipeNotFound = errors.New("recipe not found")

//go:embed recipe_schema.cue
var schema []byte

// Parse validates CUE recipe data against #Recipe, applies defaults, and runs
// Validate on the result.
func Parse(data []byte, filename string) (*Recipe, error) {
	r, err := cueutil.ParseAndDecode[Recipe](schema, data, "#Recipe", cueutil.WithFilename(filename))
	if err != nil {
		return nil, err
	}
	if r.Env == nil {
		r.Env = map[string]string{}
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return r, nil
}

// Load reads a recipe from path. A directory path resolves to
// <dir>/launchpad.cue. The recipe's source_dir resolves against the
// directory containing the file.
func Load(path string) (*Recipe, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultFileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRecipeNotFound, path)
		}
		return nil, fmt.Errorf("read recipe: %w", err)
	}

	r, err := Parse(data, path)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve recipe directory: %w", err)
	}
	r.dir = abs
	return r, nil
}

// GenerateCUE renders r as a recipe file that Parse reads back to an equal recipe.
func GenerateCUE(r *Recipe) string {
	var sb strings.Builder

	sb.WriteString("// launchpad recipe\n\n")
	if r.Description != "" {
		fmt.Fprintf(&sb, "description: %q\n", r.Description)
	}
	fmt.Fprintf(&sb, "base_image: %q\n", r.BaseImage)
	fmt.Fprintf(&sb, "workdir:    %q\n", r.WorkDir)

	sb.WriteString("system_packages: [")
	for i, p := range r.SystemPackages {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%q", p)
	}
	sb.WriteString("]\n")

	sb.WriteString("dependency_manager: {\n")
	fmt.Fprintf(&sb, "\tname: %q\n", r.DependencyManager.Name)
	if r.DependencyManager.Version != "" {
		fmt.Fprintf(&sb, "\tversion: %q\n", r.DependencyManager.Version)
	}
	sb.WriteString("}\n")

	fmt.Fprintf(&sb, "source_dir: %q\n", r.SourceDir)
	if len(r.Exclude) > 0 {
		fmt.Fprintf(&sb, "exclude:    %s\n", cueStringList(r.Exclude))
	}
	fmt.Fprintf(&sb, "port:       %d\n", r.Port)
	fmt.Fprintf(&sb, "entrypoint: %q\n", r.EntryPoint)

	extra := r.Environment()[2:]
	if len(extra) > 0 {
		sb.WriteString("env: {\n")
		for _, v := range extra {
			fmt.Fprintf(&sb, "\t%q: %q\n", v.Name, v.Value)
		}
		sb.WriteString("}\n")
	}

	sb.WriteString("runtime: {\n")
	fmt.Fprintf(&sb, "\trequired_env: %s\n", cueStringList(r.Runtime.RequiredEnv))
	fmt.Fprintf(&sb, "\tpassthrough_env: %s\n", cueStringList(r.Runtime.PassthroughEnv))
	fmt.Fprintf(&sb, "\tenv_file: %q\n", r.Runtime.EnvFile)
	sb.WriteString("}\n")

	return sb.String()
}

func cueStringList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
