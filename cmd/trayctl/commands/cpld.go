package commands

import (
	"context"

	"github.com/spf13/cobra"
)

func newCPLDCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cpld",
		Short: "Install CPLD images",
		Long: `Install CPLD images from a vendor package.

The package is unpacked locally, the best programming artifact is
selected (refresh images first, then plain images), staged on the host
OS, and installed with the vendor update tool.`,
	}

	cmd.AddCommand(newCPLDInstallCommand())
	return cmd
}

func newCPLDInstallCommand() *cobra.Command {
	var pkg string

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install a CPLD package",
		Example: `  trayctl cpld install -d tray-01 --package cpld_bundle.fwpkg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			runErr := app.runOperation(cmd.Context(), "install_cpld", pkg, func(ctx context.Context) (bool, error) {
				return app.controller.InstallCPLD(ctx, pkg)
			})
			app.close(cmd.Context(), runErr)
			return runErr
		},
	}

	cmd.Flags().StringVar(&pkg, "package", "", "CPLD package path")
	_ = cmd.MarkFlagRequired("package")

	return cmd
}
