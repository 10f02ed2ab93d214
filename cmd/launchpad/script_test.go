// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"path/filepath"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

// TestMain lets the scripts run the test binary as the launchpad command.
func TestMain(m *testing.M) {
	testscript.Main(m, map[string]func(){
		"launchpad": Execute,
	})
}

// TestCLI runs the scripts in testdata/scripts against the real command
// tree. The scripts cover commands that never call a container engine.
func TestCLI(t *testing.T) {
	t.Parallel()

	testscript.Run(t, testscript.Params{
		Dir: filepath.Join("testdata", "scripts"),
		Setup: func(env *testscript.Env) error {
			env.Setenv("XDG_CONFIG_HOME", filepath.Join(env.WorkDir, ".config"))
			env.Setenv("NO_COLOR", "1")
			return nil
		},
		// Continue running all scripts even if one fails
		ContinueOnError: true,
	})
}
