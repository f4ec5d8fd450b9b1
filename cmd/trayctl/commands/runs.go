package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openrack/trayctl/pkg/stores"
)

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the provisioning audit log",
	}

	cmd.AddCommand(newRunsListCommand())
	cmd.AddCommand(newRunsShowCommand())

	return cmd
}

// openStore opens the audit store for read-only inspection commands,
// which need no device controller.
func openStore(ctx context.Context) (*stores.AuditStore, error) {
	store, err := stores.NewAuditStore(stores.Config{Path: dbPath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func newRunsListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List provisioning runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), deviceName, limit, 0)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDEVICE\tSTATUS\tSTARTED\tERROR")
			for _, run := range runs {
				errMsg := ""
				if run.Error != nil {
					errMsg = *run.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					run.ID, run.Device, run.Status,
					run.StartedAt.Format("2006-01-02 15:04:05"), errMsg)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}

func newRunsShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its operations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("run %s device=%s status=%s started=%s\n",
				run.ID, run.Device, run.Status, run.StartedAt.Format("2006-01-02 15:04:05"))

			records, err := store.ListOperations(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "OPERATION\tOK\tDURATION\tDETAIL")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%v\t%s\t%s\n",
					rec.Name, rec.OK, rec.FinishedAt.Sub(rec.StartedAt).Round(10*time.Millisecond), rec.Detail)
			}
			return w.Flush()
		},
	}
	return cmd
}
