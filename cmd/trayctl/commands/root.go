package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath    string
	deviceName    string
	logLevel      string
	logFormat     string
	dbPath        string
	metricsListen string
	traceExporter string
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "trayctl",
		Short: "trayctl - factory provisioning for rack tray hardware",
		Long: `trayctl drives rack tray hardware through factory provisioning:
firmware flashing, power control, boot supervision, ownership-transfer
key handling, and post-change version verification.

Every operation runs against one device from the fleet file and records
its outcome in the local audit store.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "fleet.yaml", "fleet file path")
	rootCmd.PersistentFlags().StringVarP(&deviceName, "device", "d", "", "device name from the fleet file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "trayctl.db", "audit store path")
	rootCmd.PersistentFlags().StringVar(&metricsListen, "metrics-listen", "", "metrics listen address (empty disables the listener)")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace-exporter", "", "trace exporter (otlp, stdout; empty disables tracing)")

	rootCmd.AddCommand(newPowerCommand())
	rootCmd.AddCommand(newFirmwareCommand())
	rootCmd.AddCommand(newBootCommand())
	rootCmd.AddCommand(newVerifyCommand())
	rootCmd.AddCommand(newSecurityCommand())
	rootCmd.AddCommand(newCPLDCommand())
	rootCmd.AddCommand(newRunsCommand())

	return rootCmd
}
