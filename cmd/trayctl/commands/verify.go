package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openrack/trayctl/pkg/device"
)

func newVerifyCommand() *cobra.Command {
	var (
		expectations []string
		operator     string
		target       string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify firmware component versions",
		Long: `Verify firmware component versions against expectations.

Each expectation is component=version; a bare component name is noted
but skipped, so expectation lists shared across hardware revisions can
carry components a given unit should not be checked for. All checked
components are read and every mismatch is reported before the command
fails.`,
		Example: `  # Exact match on two components
  trayctl verify -d tray-01 --expect BMC=2.10 --expect HostBIOS=1.44

  # Minimum versions
  trayctl verify -d tray-01 --operator '>=' --expect BMC=2.10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			expected, err := parseExpectations(expectations)
			if err != nil {
				return err
			}

			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			runErr := app.runOperation(cmd.Context(), "check_versions", strings.Join(expectations, ","), func(ctx context.Context) (bool, error) {
				return app.controller.CheckVersions(ctx, expected, operator, device.Target(target))
			})
			app.close(cmd.Context(), runErr)
			return runErr
		},
	}

	cmd.Flags().StringSliceVar(&expectations, "expect", nil, "component=version expectation (repeatable)")
	cmd.Flags().StringVar(&operator, "operator", "==", "comparison operator (==, !=, <, <=, >, >=)")
	cmd.Flags().StringVar(&target, "target", string(device.TargetPrimary), "management controller (primary, secondary)")
	_ = cmd.MarkFlagRequired("expect")

	return cmd
}

// parseExpectations turns component=version flags into the verifier map.
func parseExpectations(raw []string) (map[string]*string, error) {
	expected := make(map[string]*string, len(raw))
	for _, entry := range raw {
		component, version, found := strings.Cut(entry, "=")
		if component == "" {
			return nil, fmt.Errorf("invalid expectation %q", entry)
		}
		if !found {
			expected[component] = nil
			continue
		}
		v := version
		expected[component] = &v
	}
	return expected, nil
}
