package commands

import (
	"context"

	"github.com/spf13/cobra"
)

func newPowerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "power",
		Short: "Control device power",
		Long: `Control device power through the management controller.

Power-on and power-off poll the system resource until the requested
state is reached. AC-cycle and BMC reboot are one-shot actions followed
by a fixed settle delay.`,
	}

	cmd.AddCommand(newPowerOnCommand())
	cmd.AddCommand(newPowerOffCommand())
	cmd.AddCommand(newPowerACCycleCommand())
	cmd.AddCommand(newPowerRebootBMCCommand())
	cmd.AddCommand(newPowerResetHMCCommand())
	cmd.AddCommand(newPowerStatusCommand())

	return cmd
}

func newPowerOnCommand() *cobra.Command {
	var volatileOnly bool

	cmd := &cobra.Command{
		Use:   "on",
		Short: "Power the device on",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			runErr := app.runOperation(cmd.Context(), "power_on", "", func(ctx context.Context) (bool, error) {
				return app.controller.PowerOn(ctx, volatileOnly)
			})
			app.close(cmd.Context(), runErr)
			return runErr
		},
	}
	cmd.Flags().BoolVar(&volatileOnly, "volatile-only", false, "only act while a volatile ownership key is active")
	return cmd
}

func newPowerOffCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "off",
		Short: "Power the device off",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			runErr := app.runOperation(cmd.Context(), "power_off", "", func(ctx context.Context) (bool, error) {
				return app.controller.PowerOff(ctx, force)
			})
			app.close(cmd.Context(), runErr)
			return runErr
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "force power off instead of graceful shutdown")
	return cmd
}

func newPowerACCycleCommand() *cobra.Command {
	var volatileOnly bool

	cmd := &cobra.Command{
		Use:   "ac-cycle",
		Short: "Drop and restore standby power",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			runErr := app.runOperation(cmd.Context(), "ac_cycle", "", func(ctx context.Context) (bool, error) {
				return app.controller.ACCycle(ctx, volatileOnly)
			})
			app.close(cmd.Context(), runErr)
			return runErr
		},
	}
	cmd.Flags().BoolVar(&volatileOnly, "volatile-only", false, "only act while a volatile ownership key is active")
	return cmd
}

func newPowerRebootBMCCommand() *cobra.Command {
	var volatileOnly bool

	cmd := &cobra.Command{
		Use:   "reboot-bmc",
		Short: "Restart the primary management controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			runErr := app.runOperation(cmd.Context(), "reboot_bmc", "", func(ctx context.Context) (bool, error) {
				return app.controller.RebootBMC(ctx, volatileOnly)
			})
			app.close(cmd.Context(), runErr)
			return runErr
		},
	}
	cmd.Flags().BoolVar(&volatileOnly, "volatile-only", false, "only act while a volatile ownership key is active")
	return cmd
}

func newPowerResetHMCCommand() *cobra.Command {
	var volatileOnly bool

	cmd := &cobra.Command{
		Use:   "reset-hmc",
		Short: "Factory-reset the secondary management controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			runErr := app.runOperation(cmd.Context(), "factory_reset_hmc", "", func(ctx context.Context) (bool, error) {
				return app.controller.FactoryResetHMC(ctx, volatileOnly)
			})
			app.close(cmd.Context(), runErr)
			return runErr
		},
	}
	cmd.Flags().BoolVar(&volatileOnly, "volatile-only", false, "only act while a volatile ownership key is active")
	return cmd
}

func newPowerStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Read the current power state",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			runErr := app.runOperation(cmd.Context(), "power_status", "", func(ctx context.Context) (bool, error) {
				state, ok := app.controller.PowerState(ctx)
				if ok {
					cmd.Printf("%s: %s\n", app.controller.Name(), state)
				}
				return ok, nil
			})
			app.close(cmd.Context(), runErr)
			return runErr
		},
	}
}
