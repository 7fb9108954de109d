package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/triageops/triage/internal/config"
	"github.com/triageops/triage/internal/storage"
)

var releaseCmd = &cobra.Command{
	Use:   "release <tracking-id>",
	Short: "Release a stuck tracking record claim",
	Long: `Clear the worker claim on a tracking record so another worker can
pick it up. Only needed when a worker died without releasing its claim;
a healthy worker always releases on exit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		trackingID := args[0]

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		ctx := context.Background()
		store, err := storage.NewStorage(ctx, &storage.Config{Path: cfg.Database.Path})
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer store.Close()

		rec, err := store.GetTracking(ctx, trackingID)
		if err != nil {
			return err
		}
		if !rec.Claimed() {
			fmt.Printf("Tracking record %s is not claimed.\n", trackingID)
			return nil
		}

		if err := store.ReleaseTracking(ctx, trackingID); err != nil {
			return fmt.Errorf("failed to release claim: %w", err)
		}
		fmt.Printf("Released claim held by %s on %s.\n", rec.WorkerID, trackingID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(releaseCmd)
}
