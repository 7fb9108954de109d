package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/triageops/triage/internal/server"
)

var (
	serverURL         string
	createDescription string
	createCorrelation string
)

var createCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Report an issue to a running triage service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := server.CreateIssueRequest{
			Title:         args[0],
			Description:   createDescription,
			CorrelationID: createCorrelation,
		}
		body, err := json.Marshal(req)
		if err != nil {
			return err
		}

		resp, err := http.Post(serverURL+"/issues", "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to reach triage service: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("service returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
		}

		var created server.CreateIssueResponse
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}

		fmt.Printf("Issue created: %s\n", created.Issue.ID)
		fmt.Printf("Tracking:      %s\n", created.TrackingID)
		fmt.Printf("\nFollow along with 'triage watch %s'\n", created.Issue.ID)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVarP(&createDescription, "description", "d", "", "issue description (required)")
	createCmd.Flags().StringVar(&createCorrelation, "correlation", "", "correlation ID linking the issue to an external event")
	_ = createCmd.MarkFlagRequired("description")

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of the triage service")
	rootCmd.AddCommand(createCmd)
}
