package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	contractx "github.com/tanpawarit/query-router/agent/contract"
	tracex "github.com/tanpawarit/query-router/agent/trace"
)

var errRecentUnsupported = errors.New("trace backend cannot list recent records")

type recentLister interface {
	Recent(ctx context.Context, limit int) ([]contractx.ExecutionRecord, error)
}

func traceCMD() *cobra.Command {
	var recent int
	traceCmd := &cobra.Command{
		Use:   "trace [query-id]",
		Short: "Print a stored execution record as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && recent <= 0 {
				return errors.New("a query id or --recent is required")
			}
			ctx := cmd.Context()
			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			store, err := tracex.Open(ctx, cfg.Trace)
			if err != nil {
				return err
			}
			if c, ok := store.(interface{ Close() error }); ok {
				defer c.Close()
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if len(args) == 1 {
				rec, err := store.FindByQueryID(ctx, args[0])
				if err != nil {
					return fmt.Errorf("trace %s: %w", args[0], err)
				}
				return enc.Encode(rec)
			}

			lister, ok := store.(recentLister)
			if !ok {
				return fmt.Errorf("%w: %s", errRecentUnsupported, cfg.Trace.Backend)
			}
			recs, err := lister.Recent(ctx, recent)
			if err != nil {
				return err
			}
			return enc.Encode(recs)
		},
	}
	traceCmd.Flags().IntVar(&recent, "recent", 0, "list the N most recent records (sqlite backend)")
	return traceCmd
}
