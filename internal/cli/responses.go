package cli

import (
	"github.com/spf13/cobra"

	"smartmail/internal/app"
	"smartmail/pkg/logger"
)

// responses 只需要存储，不装配 Gmail 和 LLM
func newResponsesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "responses",
		Short: "List sent replies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logger.NewLogger(cfg.Env)
			defer log.Sync()

			store, closeStore, err := app.OpenStore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			responses, err := store.ListResponses(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), responses)
		},
	}
}
