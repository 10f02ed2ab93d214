// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/launchpad/launchpad/internal/sequencer"
	"github.com/launchpad/launchpad/pkg/types"
)

// ErrInvalidEnvFlag is returned for an --env value without '='.
var ErrInvalidEnvFlag = errors.New("invalid --env value")

type launchFlags struct {
	build        buildFlags
	detach       bool
	wait         bool
	interactive  bool
	hostPort     uint16
	hostIP       string
	name         string
	readyTimeout time.Duration
	envFiles     []string
	envVars      []string
}

// parseEnvVars turns KEY=VALUE flag values into a map. Later values win.
func parseEnvVars(values []string) (map[string]string, error) {
	vars := make(map[string]string, len(values))
	for _, kv := range values {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w %q: expected KEY=VALUE", ErrInvalidEnvFlag, kv)
		}
		vars[key] = value
	}
	return vars, nil
}

func (f *launchFlags) request(cmd *cobra.Command, app *App) (sequencer.LaunchRequest, error) {
	vars, err := parseEnvVars(f.envVars)
	if err != nil {
		return sequencer.LaunchRequest{}, err
	}

	hostPort := app.settings.Launch.HostPort
	if cmd.Flags().Changed("host-port") {
		hostPort = types.NetworkPort(f.hostPort)
		if err := hostPort.Validate(); err != nil {
			return sequencer.LaunchRequest{}, err
		}
	}
	timeout := app.settings.Launch.ReadyTimeout
	if cmd.Flags().Changed("ready-timeout") {
		timeout = f.readyTimeout
	}

	cwd, err := os.Getwd()
	if err != nil {
		return sequencer.LaunchRequest{}, fmt.Errorf("get working directory: %w", err)
	}

	req := sequencer.LaunchRequest{
		HostPort:     hostPort,
		HostIP:       f.hostIP,
		Name:         f.name,
		Detach:       f.detach,
		Wait:         f.wait,
		ReadyTimeout: timeout,
		EnvFiles:     f.envFiles,
		Vars:         vars,
		Cwd:          cwd,
		Interactive:  f.interactive,
		Stdout:       app.stdout,
		Stderr:       app.stderr,
	}
	if f.interactive {
		req.Stdin = cmd.InOrStdin()
	}
	return req, nil
}

func newLaunchCommand(app *App) *cobra.Command {
	var flags launchFlags

	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Build the image and start the service",
		Long: `Build the image and start the service.

launch runs the whole sequence. The container gets the recipe environment
plus any variables from --env-file and --env; PYTHONPATH and
PYTHONUNBUFFERED cannot be overridden. In the foreground the service output
is streamed and the exit code of the entry-point becomes the exit code of
launchpad. With --wait the container is detached and launchpad returns once
the published port accepts connections.`,
		Example: `  launchpad launch
  launchpad launch --wait --host-port 9090
  launchpad launch --env-file .env --env DATABASE_URL=postgres://db/app`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.request(cmd, app)
			if err != nil {
				return err
			}

			s, res, err := buildImage(cmd.Context(), app, flags.build.settings(cmd, app))
			if err != nil {
				if printErr := printResult(app, res, flags.build.asJSON); printErr != nil {
					app.logger.Warn("failed to print result", "err", printErr)
				}
				return err
			}

			res, err = s.Launch(cmd.Context(), req)
			if err != nil || req.Detach || req.Wait {
				if printErr := printResult(app, res, flags.build.asJSON); printErr != nil && err == nil {
					err = printErr
				}
				return err
			}
			if flags.build.asJSON {
				if printErr := printResult(app, res, true); printErr != nil {
					return printErr
				}
			}
			if res.ExitCode != 0 {
				return &ExitError{Code: res.ExitCode}
			}
			return nil
		},
	}

	flags.build.bind(cmd)
	f := cmd.Flags()
	f.BoolVarP(&flags.detach, "detach", "d", false, "start the container in the background")
	f.BoolVar(&flags.wait, "wait", false, "detach and wait until the service port accepts connections")
	f.BoolVarP(&flags.interactive, "interactive", "i", false, "attach stdin to the service")
	f.Uint16Var(&flags.hostPort, "host-port", 0, "publish the service port on this host port (default from launch.host_port)")
	f.StringVar(&flags.hostIP, "host-ip", "", "bind the published port to this host address")
	f.StringVar(&flags.name, "name", "", "container name")
	f.DurationVar(&flags.readyTimeout, "ready-timeout", 0, "bound for --wait (default from launch.ready_timeout)")
	f.StringArrayVar(&flags.envFiles, "env-file", nil, "load variables from a dotenv file (repeatable)")
	f.StringArrayVarP(&flags.envVars, "env", "e", nil, "set a variable as KEY=VALUE (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("wait", "interactive")
	return cmd
}
