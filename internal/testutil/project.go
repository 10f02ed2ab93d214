// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"maps"
	"os"
	"path/filepath"
	"testing"
)

// ServerScript is an entry-point that serves HTTP on port 8080 with the
// interpreter's standard library only.
const ServerScript = `import http.server
import socketserver

with socketserver.TCPServer(("", 8080), http.server.SimpleHTTPRequestHandler) as httpd:
    print("serving on 8080")
    httpd.serve_forever()
`

const (
	bareManifest = `[project]
name = "hello-service"
version = "0.1.0"
requires-python = ">=3.12"
dependencies = []
`

	bareLock = `version = 1
requires-python = ">=3.12"

[[package]]
name = "hello-service"
version = "0.1.0"
source = { virtual = "." }
`

	serviceManifest = `[project]
name = "hello-service"
version = "0.1.0"
requires-python = ">=3.12"
dependencies = ["idna>=3.7"]
`

	serviceLock = `version = 1
requires-python = ">=3.12"

[[package]]
name = "hello-service"
version = "0.1.0"
source = { virtual = "." }
dependencies = [
    { name = "idna" },
]

[package.metadata]
requires-dist = [{ name = "idna", specifier = ">=3.7" }]

[[package]]
name = "idna"
version = "3.8"
source = { registry = "https://pypi.org/simple" }
`
)

// ServiceProject returns the files of a service with one locked
// dependency (idna 3.8) and a server.py entry-point.
func ServiceProject() map[string]string {
	return map[string]string{
		"pyproject.toml": serviceManifest,
		"uv.lock":        serviceLock,
		"server.py":      ServerScript,
	}
}

// BareProject returns the files of a service without dependencies, so a
// locked sync needs no package index.
func BareProject() map[string]string {
	return map[string]string{
		"pyproject.toml": bareManifest,
		"uv.lock":        bareLock,
		"server.py":      ServerScript,
	}
}

// WithFiles returns a copy of project with files added or replaced. An
// empty content removes the file from the copy.
func WithFiles(project map[string]string, files map[string]string) map[string]string {
	out := maps.Clone(project)
	for name, content := range files {
		if content == "" {
			delete(out, name)
			continue
		}
		out[name] = content
	}
	return out
}

// WriteProject writes files (slash-separated relative paths) into a new
// temporary directory and returns it.
func WriteProject(t testing.TB, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	WriteFiles(t, dir, files)
	return dir
}

// WriteFiles writes files (slash-separated relative paths) under dir,
// replacing existing content.
func WriteFiles(t testing.TB, dir string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		MustMkdirAll(t, filepath.Dir(path), 0o755)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
}
