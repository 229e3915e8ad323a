package cli

import (
	"context"

	"github.com/spf13/cobra"

	"smartmail/internal/app"
	"smartmail/internal/service/respond"
)

func newRespondCmd() *cobra.Command {
	var (
		draft string
		send  bool
	)
	cmd := &cobra.Command{
		Use:   "respond <email_id>",
		Short: "Draft a reply to a stored email, optionally sending it",
		Long: `Drafts a reply with the LLM and prints it. Nothing is sent without --send.
Pass --draft to replace the generated text with your own edited version.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := respond.Request{EmailID: args[0], Send: send}
			if cmd.Flags().Changed("draft") {
				req.HumanInput = &draft
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Respond.GenerateResponse(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&draft, "draft", "", "Reply text to use instead of the generated draft")
	cmd.Flags().BoolVar(&send, "send", false, "Send the reply through Gmail")
	return cmd
}
