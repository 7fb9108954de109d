package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/triageops/triage/internal/ai"
	"github.com/triageops/triage/internal/config"
	"github.com/triageops/triage/internal/evidence"
	"github.com/triageops/triage/internal/hub"
	"github.com/triageops/triage/internal/storage"
	"github.com/triageops/triage/internal/worker"
)

var workCmd = &cobra.Command{
	Use:   "work <tracking-id>",
	Short: "Run one analysis to completion",
	Long: `Claim a single tracking record and drive its analysis in the
foreground. Useful for re-running a record whose worker died, or for
running analyses from a queue consumer instead of the HTTP front door.

The record must be unclaimed and non-terminal; a record still marked as
claimed by a dead worker can be released with 'triage release'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		trackingID := args[0]

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		store, err := storage.NewStorage(ctx, &storage.Config{Path: cfg.Database.Path})
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer store.Close()

		client, err := ai.NewAnthropicClient(&ai.ClientConfig{
			Model:              cfg.AI.Model,
			MaxTokens:          cfg.AI.MaxTokens,
			MaxConcurrentCalls: cfg.AI.MaxConcurrentCalls,
			RequestsPerSecond:  cfg.AI.RequestsPerSecond,
		})
		if err != nil {
			return fmt.Errorf("failed to create inference client: %w", err)
		}

		router, err := buildRouter(cfg)
		if err != nil {
			return err
		}
		provider := evidence.NewRouterProvider(router, nil)

		h := hub.New(logger)
		w, err := worker.New(&worker.Config{
			Store:     store,
			Hub:       h,
			Completer: ai.NewRetryingCompleter(client, ai.DefaultRetryConfig()),
			Assembler: evidence.NewAssembler(provider, store, h, logger),
			Logger:    logger,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Running analysis for tracking record %s...\n", trackingID)
		if err := w.Run(ctx, trackingID); err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
		fmt.Println("Analysis completed.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workCmd)
}
