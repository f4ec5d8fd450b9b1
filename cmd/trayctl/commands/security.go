package commands

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newSecurityCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "security",
		Short: "Manage device ownership-transfer keys",
		Long: `Manage device ownership-transfer (DOT) keys.

All security operations are gated by the device's security mode from the
fleet file. Under the disabled mode every operation is a successful
no-op, so provisioning sequences stay identical across modes.`,
	}

	cmd.AddCommand(newSecurityInstallKeyCommand())
	cmd.AddCommand(newSecurityLockKeyCommand())
	cmd.AddCommand(newSecurityBootModeCommand())
	cmd.AddCommand(newSecurityProtectedCommand())

	return cmd
}

func newSecurityInstallKeyCommand() *cobra.Command {
	var keyFile, sigFile string

	cmd := &cobra.Command{
		Use:   "install-key",
		Short: "Install an ownership key",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			runErr := app.runOperation(cmd.Context(), "install_key", keyFile, func(ctx context.Context) (bool, error) {
				key, err := readKeyMaterial(keyFile)
				if err != nil {
					return false, err
				}
				sig, err := readKeyMaterial(sigFile)
				if err != nil {
					return false, err
				}
				return app.controller.InstallOwnershipKey(ctx, key, sig)
			})
			app.close(cmd.Context(), runErr)
			return runErr
		},
	}

	cmd.Flags().StringVar(&keyFile, "key", "", "ownership key file")
	cmd.Flags().StringVar(&sigFile, "signature", "", "key signature file")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("signature")

	return cmd
}

func newSecurityLockKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lock-key",
		Short: "Permanently lock the installed ownership key",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			runErr := app.runOperation(cmd.Context(), "lock_key", "", func(ctx context.Context) (bool, error) {
				return app.controller.LockOwnershipKey(ctx)
			})
			app.close(cmd.Context(), runErr)
			return runErr
		},
	}
}

func newSecurityBootModeCommand() *cobra.Command {
	var manual bool

	cmd := &cobra.Command{
		Use:   "boot-mode",
		Short: "Set the manual boot mode flag",
		Long: `Set the manual boot mode flag.

The security mode may override the requested value: a volatile key
forces manual boot on, a locking key forces it off.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			runErr := app.runOperation(cmd.Context(), "set_boot_mode", "", func(ctx context.Context) (bool, error) {
				return app.controller.SetManualBootMode(ctx, manual)
			})
			app.close(cmd.Context(), runErr)
			return runErr
		},
	}

	cmd.Flags().BoolVar(&manual, "manual", false, "request manual boot mode")
	return cmd
}

func newSecurityProtectedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "protected-command <command>",
		Short: "Run a protected-boot command on the host OS",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args, " ")

			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			runErr := app.runOperation(cmd.Context(), "protected_command", command, func(ctx context.Context) (bool, error) {
				return app.controller.ProtectedBootCommand(ctx, command)
			})
			app.close(cmd.Context(), runErr)
			return runErr
		},
	}
	return cmd
}

// readKeyMaterial reads a key or signature file as trimmed text.
func readKeyMaterial(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}
