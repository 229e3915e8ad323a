package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"smartmail/internal/app"
	"smartmail/internal/config"
	"smartmail/pkg/logger"
	"smartmail/pkg/trace"
)

// loadConfig 测试里可替换
var loadConfig = config.Load

// NewRoot builds the triage command tree.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "triage",
		Short: "Fetch, classify and answer Gmail messages with an LLM",
		Long: `triage pulls recent Gmail messages into a local store, labels them with a
Gemini-backed classifier and drafts or sends replies.

Run "triage serve" for the HTTP API, or drive each step from the command line.
A draft can be reviewed and re-submitted with "triage respond <id> --draft ... --send".`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newServeCmd(),
		newFetchCmd(),
		newClassifyCmd(),
		newRespondCmd(),
		newResponsesCmd(),
		newTokenCmd(),
	)
	return root
}

// Execute runs the root command until ctx is cancelled.
func Execute(ctx context.Context) error {
	return NewRoot().ExecuteContext(ctx)
}

// withApp 加载配置、装配依赖，执行 fn 后释放
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.NewLogger(cfg.Env)
	defer log.Sync()

	ctx, traceID := trace.Ensure(cmd.Context())
	log = log.With(zap.String("trace_id", traceID))
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("Initialization failed", zap.Error(err))
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
