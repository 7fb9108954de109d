package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/triageops/triage/internal/ai"
	"github.com/triageops/triage/internal/config"
	"github.com/triageops/triage/internal/evidence"
	"github.com/triageops/triage/internal/hub"
	"github.com/triageops/triage/internal/launcher"
	"github.com/triageops/triage/internal/server"
	"github.com/triageops/triage/internal/storage"
	"github.com/triageops/triage/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the triage service",
	Long: `Start the HTTP front door with the record store, notification hub,
and in-process analysis workers. Runs until interrupted, then drains
open connections and in-flight analyses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		store, err := storage.NewStorage(ctx, &storage.Config{Path: cfg.Database.Path})
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer store.Close()
		logger.Info("record store opened", "path", cfg.Database.Path)

		client, err := ai.NewAnthropicClient(&ai.ClientConfig{
			Model:              cfg.AI.Model,
			MaxTokens:          cfg.AI.MaxTokens,
			MaxConcurrentCalls: cfg.AI.MaxConcurrentCalls,
			RequestsPerSecond:  cfg.AI.RequestsPerSecond,
		})
		if err != nil {
			return fmt.Errorf("failed to create inference client: %w", err)
		}
		metrics := server.NewMetrics(nil)
		completer := metrics.WrapCompleter(ai.NewRetryingCompleter(client, ai.DefaultRetryConfig()))

		router, err := buildRouter(cfg)
		if err != nil {
			return err
		}
		provider := evidence.NewRouterProvider(router, nil)
		logger.Info("capability router ready", "capabilities", router.Capabilities())

		h := hub.New(logger)
		assembler := evidence.NewAssembler(provider, store, h, logger)

		factory := func() (*worker.Worker, error) {
			return worker.New(&worker.Config{
				Store:     store,
				Hub:       h,
				Completer: completer,
				Assembler: assembler,
				Logger:    logger,
			})
		}
		l := launcher.NewInProcess(ctx, factory, logger)
		l.OnFinish = func(issueID string, err error) { metrics.AnalysisFinished(err) }

		srv, err := server.New(&server.Config{
			Addr:     cfg.Server.Addr,
			Store:    store,
			Hub:      h,
			Launcher: l,
			Logger:   logger,
			Metrics:  metrics,
		})
		if err != nil {
			return err
		}

		err = srv.Start(ctx)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		logger.Info("waiting for in-flight analyses")
		l.Wait()
		logger.Info("shutdown complete")
		return nil
	},
}

// buildRouter binds the configured remote capability endpoints. Unbound
// capabilities stay unregistered; lookups for them fail without failing
// the analysis.
func buildRouter(cfg *config.Config) (*evidence.Router, error) {
	router := evidence.NewRouter()
	if cfg.Evidence.CauseURL != "" {
		err := router.Register(evidence.Endpoint{
			Capability: evidence.CapabilityCause,
			RemoteURL:  cfg.Evidence.CauseURL,
		})
		if err != nil {
			return nil, err
		}
	}
	if cfg.Evidence.HistoryURL != "" {
		err := router.Register(evidence.Endpoint{
			Capability: evidence.CapabilityHistory,
			RemoteURL:  cfg.Evidence.HistoryURL,
		})
		if err != nil {
			return nil, err
		}
	}
	return router, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
