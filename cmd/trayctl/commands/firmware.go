package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/openrack/trayctl/pkg/device"
)

func newFirmwareCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "firmware",
		Short: "Manage device firmware",
		Long: `Manage device firmware through the management controllers.

Updates push a bundle over the multipart update endpoint and supervise
the resulting task until completion. Secondary-controller updates stage
the bundle on the host OS first.`,
	}

	cmd.AddCommand(newFirmwareUpdateCommand())
	cmd.AddCommand(newFirmwareInventoryCommand())

	return cmd
}

func newFirmwareUpdateCommand() *cobra.Command {
	var (
		bundle     string
		target     string
		components []string
		force      bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Push a firmware bundle and supervise the update task",
		Example: `  # Update the primary controller
  trayctl firmware update -d tray-01 --bundle bmc_fw_2.10.tar.gz

  # Force-update one component on the secondary controller
  trayctl firmware update -d tray-01 --bundle hmc_fw.tar.gz \
    --target secondary --component HMC --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			runErr := app.runOperation(cmd.Context(), "update_firmware", bundle, func(ctx context.Context) (bool, error) {
				return app.controller.UpdateFirmware(ctx, bundle, device.UpdateOptions{
					Target:     device.Target(target),
					Components: components,
					Force:      force,
					Timeout:    timeout,
				})
			})
			app.close(cmd.Context(), runErr)
			return runErr
		},
	}

	cmd.Flags().StringVar(&bundle, "bundle", "", "firmware bundle path")
	cmd.Flags().StringVar(&target, "target", string(device.TargetPrimary), "management controller (primary, secondary)")
	cmd.Flags().StringSliceVar(&components, "component", nil, "restrict the update to specific components")
	cmd.Flags().BoolVar(&force, "force", false, "apply the bundle even when versions match")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "task supervision timeout (0 uses the fleet default)")
	_ = cmd.MarkFlagRequired("bundle")

	return cmd
}

func newFirmwareInventoryCommand() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "List firmware components",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			runErr := app.runOperation(cmd.Context(), "firmware_inventory", "", func(ctx context.Context) (bool, error) {
				names, ok, err := app.controller.FirmwareInventory(ctx, device.Target(target))
				if err != nil || !ok {
					return ok, err
				}
				for _, name := range names {
					cmd.Println(name)
				}
				return true, nil
			})
			app.close(cmd.Context(), runErr)
			return runErr
		},
	}

	cmd.Flags().StringVar(&target, "target", string(device.TargetPrimary), "management controller (primary, secondary)")
	return cmd
}
