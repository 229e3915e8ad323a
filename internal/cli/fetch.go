package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"smartmail/internal/app"
)

func newFetchCmd() *cobra.Command {
	var max int
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch recent inbox messages into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Ingest.Fetch(ctx, max)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if res.Fetched == 0 {
					fmt.Fprintln(out, "No emails fetched")
					return nil
				}
				fmt.Fprintf(out, "fetched=%d upserted=%d modified=%d total_stored=%d\n",
					res.Fetched, res.Upsert.UpsertedCount, res.Upsert.ModifiedCount, res.TotalStored)
				for _, e := range res.Emails {
					fmt.Fprintf(out, "%s\t%s\t%s\n", e.ID, e.From, e.Subject)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&max, "max", 10, "Maximum number of messages to fetch")
	return cmd
}
