package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	evalx "github.com/tanpawarit/query-router/agent/eval"
)

func benchmarkCMD() *cobra.Command {
	var (
		kind        string
		file        string
		limit       int
		concurrency int
		offline     bool
		asJSON      bool
	)
	bench := &cobra.Command{
		Use:   "benchmark",
		Short: "Run a benchmark file through the full pipeline and report accuracy",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := evalx.ParseKind(kind)
			if err != nil {
				return err
			}
			cases, err := evalx.LoadFile(k, file)
			if err != nil {
				return err
			}
			if limit > 0 && limit < len(cases) {
				cases = cases[:limit]
			}

			ctx := cmd.Context()
			app, err := loadApp(ctx, AppOptions{Offline: offline})
			if err != nil {
				return err
			}
			defer app.Close(context.WithoutCancel(ctx))

			runner, err := evalx.NewRunner(appAnswerer(app), evalx.WithConcurrency(concurrency))
			if err != nil {
				return err
			}
			report, err := runner.Run(ctx, k, cases)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	bench.Flags().StringVar(&kind, "kind", string(evalx.KindMixed), "benchmark kind: gsm8k, mixed or lama")
	bench.Flags().StringVar(&file, "file", "", "benchmark file (jsonl, or csv for lama)")
	bench.Flags().IntVar(&limit, "limit", 0, "only run the first N rows")
	bench.Flags().IntVar(&concurrency, "concurrency", 1, "questions answered in parallel")
	bench.Flags().BoolVar(&offline, "offline", false, "plan with the rule-based router and skip every model call")
	bench.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")
	_ = bench.MarkFlagRequired("file")
	return bench
}

func appAnswerer(app *App) evalx.Answerer {
	return evalx.AnswerFunc(func(ctx context.Context, question string) (evalx.Prediction, error) {
		res, err := app.AnswerWithID(ctx, "", question)
		if err != nil {
			return evalx.Prediction{}, err
		}
		return evalx.Prediction{QueryID: res.Query.ID, Text: res.Answer.Text}, nil
	})
}

func printReport(w io.Writer, report evalx.Report) {
	for _, o := range report.Outcomes {
		fmt.Fprintf(w, "Q: %s\n", o.Question)
		if o.Expected != "" {
			fmt.Fprintf(w, "Gold: %s\n", o.Expected)
		}
		if o.Error != "" {
			fmt.Fprintf(w, "Error: %s\n", o.Error)
		} else {
			fmt.Fprintf(w, "Pred: %s\n", o.Predicted)
		}
		fmt.Fprintf(w, "OK: %v (query %s)\n---\n", o.OK, o.QueryID)
	}
	fmt.Fprintf(w, "%s accuracy: %.2f%% (%d/%d)\n", report.Kind, 100*report.Accuracy(), report.Correct, report.Total)
}
