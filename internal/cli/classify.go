package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"smartmail/internal/app"
)

func newClassifyCmd() *cobra.Command {
	var (
		limit int
		delay time.Duration
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify stored emails that have no category yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if !cmd.Flags().Changed("limit") {
					limit = a.Config.Classifier.DefaultLimit
				}
				if !cmd.Flags().Changed("delay") {
					delay = a.Config.Classifier.Delay
				}
				done, err := a.Classify.ClassifyBatch(ctx, limit, delay)
				out := cmd.OutOrStdout()
				for _, e := range done {
					fmt.Fprintf(out, "%s\t%s\t%.2f\t%s\n",
						e.ID, e.Classification.Category, e.Classification.Confidence, e.Subject)
				}
				fmt.Fprintf(out, "classified=%d\n", len(done))
				return err
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "Maximum number of emails to classify, negative for all")
	cmd.Flags().DurationVar(&delay, "delay", 6*time.Second, "Pause between LLM calls")
	return cmd
}
