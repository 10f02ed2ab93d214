// SPDX-License-Identifier: MPL-2.0

package benchmark

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/launchpad/launchpad/internal/config"
	"github.com/launchpad/launchpad/internal/container"
	"github.com/launchpad/launchpad/internal/depset"
	"github.com/launchpad/launchpad/internal/provision"
	"github.com/launchpad/launchpad/internal/runtime"
	"github.com/launchpad/launchpad/internal/sequencer"
	"github.com/launchpad/launchpad/internal/testutil"
	"github.com/launchpad/launchpad/pkg/recipe"
)

// largeLock returns a manifest declaring n direct dependencies and a lock
// where each of them pulls one transitive package.
func largeLock(n int) (manifest, lock []byte) {
	var m, l strings.Builder
	m.WriteString("[project]\nname = \"bench\"\nversion = \"0.1.0\"\ndependencies = [")
	l.WriteString("version = 1\n\n[[package]]\nname = \"bench\"\nversion = \"0.1.0\"\nsource = { virtual = \".\" }\ndependencies = [")
	for i := range n {
		fmt.Fprintf(&m, "%q, ", fmt.Sprintf("pkg%d>=1.0", i))
		fmt.Fprintf(&l, "{ name = \"pkg%d\" }, ", i)
	}
	m.WriteString("]\n")
	l.WriteString("]\n")
	for i := range n {
		fmt.Fprintf(&l, "\n[[package]]\nname = \"pkg%d\"\nversion = \"1.%d.0\"\nsource = { registry = \"https://pypi.org/simple\" }\ndependencies = [{ name = \"dep%d\" }]\n", i, i, i)
		fmt.Fprintf(&l, "\n[[package]]\nname = \"dep%d\"\nversion = \"2.0.%d\"\nsource = { registry = \"https://pypi.org/simple\" }\n", i, i)
	}
	return []byte(m.String()), []byte(l.String())
}

// BenchmarkRecipeParsing benchmarks CUE schema compilation and validation.
// This exercises the hot path in pkg/cueutil/parse.go.
func BenchmarkRecipeParsing(b *testing.B) {
	data := []byte(recipe.GenerateCUE(recipe.Default()))

	b.ResetTimer()
	for b.Loop() {
		if _, err := recipe.Parse(data, "launchpad.cue"); err != nil {
			b.Fatalf("Parse failed: %v", err)
		}
	}
}

// BenchmarkDependencyResolution benchmarks the transitive closure and
// fingerprint over a lock with 200 packages.
func BenchmarkDependencyResolution(b *testing.B) {
	manifestData, lockData := largeLock(100)
	m, err := depset.ParseManifest(manifestData)
	if err != nil {
		b.Fatalf("ParseManifest failed: %v", err)
	}
	l, err := depset.ParseLock(lockData)
	if err != nil {
		b.Fatalf("ParseLock failed: %v", err)
	}

	b.ResetTimer()
	for b.Loop() {
		if _, err := depset.Resolve(m, l); err != nil {
			b.Fatalf("Resolve failed: %v", err)
		}
	}
}

// BenchmarkLockParsing benchmarks TOML decoding of a large lock file.
func BenchmarkLockParsing(b *testing.B) {
	_, lockData := largeLock(100)

	b.ResetTimer()
	for b.Loop() {
		if _, err := depset.ParseLock(lockData); err != nil {
			b.Fatalf("ParseLock failed: %v", err)
		}
	}
}

// BenchmarkRender benchmarks Dockerfile rendering including shell
// validation of every RUN instruction.
func BenchmarkRender(b *testing.B) {
	r := recipe.Default()
	r.SetDir(testutil.WriteProject(b, testutil.ServiceProject()))
	s, err := sequencer.New(r, sequencer.Options{Engine: container.NewPodmanEngine()})
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}

	b.ResetTimer()
	for b.Loop() {
		if _, err := s.Render(); err != nil {
			b.Fatalf("Render failed: %v", err)
		}
	}
}

// BenchmarkImageTag benchmarks the content-addressed tag over a source tree.
func BenchmarkImageTag(b *testing.B) {
	files := testutil.ServiceProject()
	for i := range 50 {
		files[fmt.Sprintf("pkg/module%d.py", i)] = strings.Repeat("x = 1\n", 200)
	}
	dir := testutil.WriteProject(b, files)

	df := provision.NewDockerfile().From(string(recipe.DefaultBaseImage)).Workdir("/app")
	p := provision.NewImageProvisioner(container.NewPodmanEngine(), provision.DefaultConfig())
	req := &provision.Request{Dockerfile: df, SourceDir: dir}

	b.ResetTimer()
	for b.Loop() {
		if _, err := p.Tag(req); err != nil {
			b.Fatalf("Tag failed: %v", err)
		}
	}
}

// BenchmarkEnvBuilding benchmarks launch environment building with a
// dotenv file and flag values.
func BenchmarkEnvBuilding(b *testing.B) {
	dir := testutil.WriteProject(b, testutil.WithFiles(testutil.ServiceProject(), map[string]string{
		".env": "TAVILY_API_KEY=bench\nAWS_REGION=eu-west-1\n# comment\nexport DYNAMODB_ENDPOINT=\"http://localhost:8000\"\n",
	}))
	r := recipe.Default()
	r.SetDir(dir)

	envBuilder := runtime.NewDefaultEnvBuilder()
	envBuilder.Environ = func() []string { return []string{"AWS_ACCESS_KEY_ID=id", "HOME=/root"} }
	req := &runtime.EnvRequest{
		Recipe: r,
		Vars:   map[string]string{"LOG_LEVEL": "debug"},
		Cwd:    dir,
	}

	b.ResetTimer()
	for b.Loop() {
		if _, err := envBuilder.Build(req); err != nil {
			b.Fatalf("Build failed: %v", err)
		}
	}
}

// BenchmarkConfigLoad benchmarks viper plus CUE configuration loading.
func BenchmarkConfigLoad(b *testing.B) {
	dir := testutil.WriteProject(b, map[string]string{"config.cue": config.GenerateCUE(config.DefaultConfig())})
	provider := config.NewProvider()
	opts := config.LoadOptions{
		ConfigFilePath: filepath.Join(dir, "config.cue"),
		ConfigDirPath:  dir,
		LookupEnv:      func(string) (string, bool) { return "", false },
	}

	b.ResetTimer()
	for b.Loop() {
		if _, _, err := provider.Load(b.Context(), opts); err != nil {
			b.Fatalf("Load failed: %v", err)
		}
	}
}
