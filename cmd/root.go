package cmd

import (
	"context"

	"github.com/spf13/cobra"
	configx "github.com/tanpawarit/query-router/pkg/config"
	logx "github.com/tanpawarit/query-router/pkg/logger"
)

func NewRootCommand() *cobra.Command {
	var (
		envPath string
		debug   bool
	)
	root := &cobra.Command{
		Use:           "query-router",
		Short:         "Plan a query into tool steps, run them as a DAG and compose one answer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configx.SetEnvFile(envPath)
			logCfg, err := configx.New[logx.Config]("LOG")
			if err != nil {
				return err
			}
			if debug {
				logCfg.Debug = true
			}
			logx.Init(*logCfg)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envPath, "env", "", "path to .env file (default ./.env when present)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(
		askCMD(),
		ingestCMD(),
		benchmarkCMD(),
		serveCMD(),
		traceCMD(),
	)
	return root
}

// Execute runs the root command. The returned error is the command's own, so
// callers can map it to an exit code.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func loadApp(ctx context.Context, opts AppOptions) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return NewApp(ctx, cfg, opts)
}
