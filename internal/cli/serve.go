package cli

import (
	"context"

	"github.com/spf13/cobra"

	"smartmail/internal/app"
	"smartmail/internal/httpserver"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if addr == "" {
					addr = a.Config.Server.Port
				}
				return httpserver.Serve(ctx, addr, a.Router().Engine, a.Logger)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to server.port)")
	return cmd
}
