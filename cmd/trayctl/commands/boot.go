package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/openrack/trayctl/pkg/device"
)

func newBootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boot",
		Short: "Supervise device boot",
		Long: `Supervise device boot through the management controller.

The wait subcommand powers the unit on and polls boot progress until a
target state is reached, optionally capturing the serial console to a
log file from before power is applied. The status subcommand polls the
vendor boot-status register instead.`,
	}

	cmd.AddCommand(newBootWaitCommand())
	cmd.AddCommand(newBootStatusCommand())

	return cmd
}

func newBootWaitCommand() *cobra.Command {
	var (
		targetStates []string
		consoleLog   string
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait for the device to reach a boot state",
		Example: `  # Wait for the OS with console capture
  trayctl boot wait -d tray-01 --console-log /var/log/tray-01-console.log

  # Wait for setup entry
  trayctl boot wait -d tray-01 --state SetupEntered`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			runErr := app.runOperation(cmd.Context(), "wait_for_boot", "", func(ctx context.Context) (bool, error) {
				return app.controller.WaitForBoot(ctx, device.BootOptions{
					TargetStates:   targetStates,
					ConsoleLogPath: consoleLog,
					Timeout:        timeout,
				})
			})
			app.close(cmd.Context(), runErr)
			return runErr
		},
	}

	cmd.Flags().StringSliceVar(&targetStates, "state", nil, "boot states that count as booted (default OSRunning)")
	cmd.Flags().StringVar(&consoleLog, "console-log", "", "capture the serial console to this file")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "boot timeout (0 uses the fleet default)")

	return cmd
}

func newBootStatusCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Poll the boot-status register until it reports booted",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			runErr := app.runOperation(cmd.Context(), "check_boot_status", "", func(ctx context.Context) (bool, error) {
				return app.controller.CheckBootStatus(ctx, timeout, 0)
			})
			app.close(cmd.Context(), runErr)
			return runErr
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "poll timeout (0 uses the fleet default)")
	return cmd
}
