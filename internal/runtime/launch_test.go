// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"errors"
	"testing"

	"github.com/launchpad/launchpad/internal/container"
	"github.com/launchpad/launchpad/pkg/recipe"

	"github.com/google/go-cmp/cmp"
)

func TestLaunchOptions_RunOptions(t *testing.T) {
	t.Parallel()

	env := ImageEnvironment(recipe.Default())
	env.Launch["TAVILY_API_KEY"] = "k"

	got, err := LaunchOptions{
		Image:       "launchpad:0123456789ab",
		Port:        8080,
		Env:         env,
		Interactive: true,
	}.RunOptions()
	if err != nil {
		t.Fatalf("RunOptions() error = %v", err)
	}

	want := container.RunOptions{
		Image:       "launchpad:0123456789ab",
		Env:         map[string]string{"TAVILY_API_KEY": "k"},
		Ports:       []container.PortMapping{{HostPort: 8080, ContainerPort: 8080, Protocol: container.PortProtocolTCP}},
		Remove:      true,
		Interactive: true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RunOptions() mismatch (-want +got):\n%s", diff)
	}
}

func TestLaunchOptions_HostPortAndDetach(t *testing.T) {
	t.Parallel()

	o := LaunchOptions{
		Image:       "launchpad:0123456789ab",
		Port:        8080,
		HostPort:    18080,
		HostIP:      "127.0.0.1",
		Detach:      true,
		Interactive: true,
		Env:         ImageEnvironment(recipe.Default()),
	}
	if o.PublishedPort() != 18080 {
		t.Errorf("PublishedPort() = %d", o.PublishedPort())
	}

	got, err := o.RunOptions()
	if err != nil {
		t.Fatalf("RunOptions() error = %v", err)
	}
	if got.Interactive {
		t.Error("detached launches must not be interactive")
	}
	if p := got.Ports[0].String(); p != "127.0.0.1:18080:8080" {
		t.Errorf("port mapping = %q", p)
	}
}

func TestLaunchOptions_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := (LaunchOptions{Image: "x:1", Port: 8080}).RunOptions(); err == nil {
		t.Error("missing environment should fail")
	}

	_, err := LaunchOptions{Image: "", Port: 8080, Env: ImageEnvironment(recipe.Default())}.RunOptions()
	if !errors.Is(err, container.ErrInvalidRunOptions) {
		t.Errorf("RunOptions() = %v, want ErrInvalidRunOptions", err)
	}
}
