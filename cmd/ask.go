package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	orchestratorx "github.com/tanpawarit/query-router/agent/agents/orchestrator"
)

func askCMD() *cobra.Command {
	var (
		offline bool
		asJSON  bool
		queryID string
	)
	ask := &cobra.Command{
		Use:   "ask <query>",
		Short: "Answer one query and print the composed answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := loadApp(ctx, AppOptions{Offline: offline})
			if err != nil {
				return err
			}
			defer app.Close(context.WithoutCancel(ctx))

			res, err := app.AnswerWithID(ctx, queryID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(newQueryResponse(res))
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Answer.Text)
			return nil
		},
	}
	ask.Flags().BoolVar(&offline, "offline", false, "plan with the rule-based router and skip every model call")
	ask.Flags().BoolVar(&asJSON, "json", false, "print the answer with per-step outcomes as JSON")
	ask.Flags().StringVar(&queryID, "id", "", "query id to record the trace under (generated when empty)")
	return ask
}

type stepOutcome struct {
	Tool     string `json:"tool"`
	Status   string `json:"status"`
	Value    string `json:"value,omitempty"`
	Error    string `json:"error,omitempty"`
	Attempts int    `json:"attempts"`
	Wave     int    `json:"wave"`
}

type queryResponse struct {
	QueryID  string                 `json:"query_id"`
	Answer   string                 `json:"answer"`
	Outcomes map[string]stepOutcome `json:"outcomes"`
	Recorded bool                   `json:"recorded"`
}

func newQueryResponse(res orchestratorx.Result) queryResponse {
	out := queryResponse{
		QueryID:  res.Query.ID,
		Answer:   res.Answer.Text,
		Outcomes: make(map[string]stepOutcome, len(res.Results)),
		Recorded: res.Recorded,
	}
	for id, r := range res.Results {
		o := stepOutcome{
			Tool:     string(r.Tool),
			Status:   string(r.Status),
			Value:    r.Value,
			Attempts: r.Attempts,
			Wave:     r.Wave,
		}
		if r.Error != nil {
			o.Error = fmt.Sprintf("%s: %s", r.Error.Kind, r.Error.Message)
		}
		out.Outcomes[id] = o
	}
	return out
}
