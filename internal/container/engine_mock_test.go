// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"testing"
)

type (
	// MockCommandRecorder captures the arguments passed to the engine binary
	// and answers through TestHelperProcess.
	MockCommandRecorder struct {
		mu          sync.Mutex
		Invocations []MockInvocation
		// ExitCode is the exit code to return (0 = success).
		ExitCode int
		Stdout   string
		Stderr   string
		// FailOnCommand makes invocations whose first arg matches exit 1.
		FailOnCommand string
	}

	// MockInvocation is one recorded command.
	MockInvocation struct {
		Name string
		Args []string
	}
)

func NewMockCommandRecorder() *MockCommandRecorder {
	return &MockCommandRecorder{}
}

// ContextCommandFunc returns an ExecCommandFunc that records and re-executes
// the test binary as TestHelperProcess.
func (m *MockCommandRecorder) ContextCommandFunc(t *testing.T) ExecCommandFunc {
	t.Helper()
	return func(_ context.Context, name string, args ...string) *exec.Cmd {
		m.mu.Lock()
		defer m.mu.Unlock()

		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.Command(os.Args[0], cs...) //nolint:gosec,noctx // test helper process
		exitCode := m.ExitCode
		if m.FailOnCommand != "" && len(args) > 0 && args[0] == m.FailOnCommand {
			exitCode = 1
		}
		cmd.Env = []string{
			"GO_WANT_HELPER_PROCESS=1",
			fmt.Sprintf("GO_HELPER_EXIT_CODE=%d", exitCode),
			"GO_HELPER_STDOUT=" + m.Stdout,
			"GO_HELPER_STDERR=" + m.Stderr,
		}
		m.Invocations = append(m.Invocations, MockInvocation{Name: name, Args: args})
		return cmd
	}
}

// LastArgs returns the arguments from the most recent invocation.
func (m *MockCommandRecorder) LastArgs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Invocations) == 0 {
		return nil
	}
	return m.Invocations[len(m.Invocations)-1].Args
}

// AssertInvocationCount verifies the number of command invocations.
func (m *MockCommandRecorder) AssertInvocationCount(t *testing.T, expected int) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Invocations) != expected {
		t.Errorf("expected %d invocations, got %d", expected, len(m.Invocations))
	}
}

// AssertFirstArg verifies the subcommand of the last invocation.
func (m *MockCommandRecorder) AssertFirstArg(t *testing.T, expected string) {
	t.Helper()
	args := m.LastArgs()
	if len(args) == 0 || args[0] != expected {
		t.Errorf("expected first arg %q, got %v", expected, args)
	}
}

// AssertArgsContain verifies the last invocation's args contain expected.
func (m *MockCommandRecorder) AssertArgsContain(t *testing.T, expected string) {
	t.Helper()
	args := m.LastArgs()
	if !strings.Contains(strings.Join(args, " "), expected) {
		t.Errorf("expected args to contain %q, got: %v", expected, args)
	}
}

// HasArgPair checks for a flag-value pair in the last invocation.
func (m *MockCommandRecorder) HasArgPair(flag, value string) bool {
	args := m.LastArgs()
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

// HasArg checks for a single argument in the last invocation.
func (m *MockCommandRecorder) HasArg(arg string) bool {
	return slices.Contains(m.LastArgs(), arg)
}

// TestHelperProcess is not a real test: it is the process the mock recorder
// executes in place of the engine binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	if stdout := os.Getenv("GO_HELPER_STDOUT"); stdout != "" {
		fmt.Fprint(os.Stdout, stdout)
	}
	if stderr := os.Getenv("GO_HELPER_STDERR"); stderr != "" {
		fmt.Fprint(os.Stderr, stderr)
	}
	if os.Getenv("BUILDKIT_PROGRESS") != "" {
		fmt.Fprint(os.Stderr, "BUILDKIT_PROGRESS="+os.Getenv("BUILDKIT_PROGRESS"))
	}

	exitCode := 0
	if code := os.Getenv("GO_HELPER_EXIT_CODE"); code != "" {
		fmt.Sscanf(code, "%d", &exitCode)
	}
	os.Exit(exitCode)
}

func newMockEngine(t *testing.T, recorder *MockCommandRecorder, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	t.Helper()
	allOpts := append([]BaseCLIEngineOption{WithName("docker"), WithExecCommand(recorder.ContextCommandFunc(t))}, opts...)
	return NewBaseCLIEngine("/usr/bin/docker", allOpts...)
}
