package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/triageops/triage/internal/types"
)

var showCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show an issue's analysis state and solution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issueID := args[0]

		var issue types.Issue
		if err := getJSON(serverURL+"/issues/"+issueID, &issue); err != nil {
			return err
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== "+issue.Title+" ==="))
		fmt.Printf("  ID:      %s\n", issue.ID)
		fmt.Printf("  Status:  %s %s\n", statusGlyph(issue.Status), statusColor(issue.Status)(string(issue.Status)))
		fmt.Printf("  Source:  %s\n", issue.Source)
		if issue.CorrelationID != "" {
			fmt.Printf("  Correlation: %s\n", issue.CorrelationID)
		}
		fmt.Printf("  Created: %s\n", issue.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Println()
		fmt.Printf("  %s\n\n", issue.Description)

		var rec types.TrackingRecord
		if err := getJSON(serverURL+"/issues/"+issueID+"/tracking", &rec); err != nil {
			fmt.Printf("  %s\n\n", gray("No tracking record yet"))
			return nil
		}

		if rec.Claimed() {
			fmt.Printf("  Worker:  %s\n\n", rec.WorkerID)
		}
		if rec.CauseContext != nil {
			fmt.Printf("  Cause context: gathered\n")
		}
		if rec.HistoryContext != nil {
			fmt.Printf("  History context: gathered\n")
		}

		if rec.Solution != nil {
			fmt.Println()
			fmt.Println(rec.Solution.Markdown())
		} else if !rec.Status.IsTerminal() {
			fmt.Printf("\n  %s\n", gray("Analysis in progress, watch with 'triage watch "+issueID+"'"))
		}
		fmt.Println()
		return nil
	},
}

func statusGlyph(status types.Status) string {
	switch status {
	case types.StatusCompleted:
		return "●"
	case types.StatusFailed:
		return "✗"
	case types.StatusWaitingForInput:
		return "⚠"
	default:
		return "○"
	}
}

func statusColor(status types.Status) func(a ...interface{}) string {
	switch status {
	case types.StatusCompleted:
		return color.New(color.FgGreen).SprintFunc()
	case types.StatusFailed:
		return color.New(color.FgRed).SprintFunc()
	case types.StatusWaitingForInput:
		return color.New(color.FgYellow).SprintFunc()
	case types.StatusAnalyzing, types.StatusGeneratingSolution:
		return color.New(color.FgCyan).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}

// getJSON fetches one API resource
func getJSON(url string, v interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to reach triage service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("service returned %d: %s", resp.StatusCode, msg)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func init() {
	rootCmd.AddCommand(showCmd)
}
