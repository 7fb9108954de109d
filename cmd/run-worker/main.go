// Command run-worker claims one tracking record and drives its analysis to
// completion. It is the minimal headless entry point for queue consumers and
// cron-style re-runs; the triage CLI wraps the same path with configuration
// loading.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/triageops/triage/internal/ai"
	"github.com/triageops/triage/internal/evidence"
	"github.com/triageops/triage/internal/hub"
	"github.com/triageops/triage/internal/storage"
	"github.com/triageops/triage/internal/worker"
)

func main() {
	dbPath := flag.String("db", "", "SQLite database path (default: .triage/triage.db)")
	causeURL := flag.String("cause-url", os.Getenv("TRIAGE_CAUSE_URL"), "base URL of the cause capability service")
	historyURL := flag.String("history-url", os.Getenv("TRIAGE_HISTORY_URL"), "base URL of the history capability service")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: run-worker [flags] <tracking-id>\n")
		os.Exit(2)
	}
	trackingID := flag.Arg(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storeCfg := storage.DefaultConfig()
	if *dbPath != "" {
		storeCfg.Path = *dbPath
	}
	store, err := storage.NewStorage(ctx, storeCfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	fmt.Printf("Using database: %s\n", storeCfg.Path)

	client, err := ai.NewAnthropicClient(nil)
	if err != nil {
		log.Fatalf("Failed to create inference client: %v", err)
	}

	router := evidence.NewRouter()
	if *causeURL != "" {
		if err := router.Register(evidence.Endpoint{Capability: evidence.CapabilityCause, RemoteURL: *causeURL}); err != nil {
			log.Fatalf("Failed to register cause endpoint: %v", err)
		}
	}
	if *historyURL != "" {
		if err := router.Register(evidence.Endpoint{Capability: evidence.CapabilityHistory, RemoteURL: *historyURL}); err != nil {
			log.Fatalf("Failed to register history endpoint: %v", err)
		}
	}

	h := hub.New(nil)
	w, err := worker.New(&worker.Config{
		Store:     store,
		Hub:       h,
		Completer: ai.NewRetryingCompleter(client, ai.DefaultRetryConfig()),
		Assembler: evidence.NewAssembler(evidence.NewRouterProvider(router, nil), store, h, nil),
	})
	if err != nil {
		log.Fatalf("Failed to create worker: %v", err)
	}

	fmt.Printf("Running analysis for tracking record %s...\n", trackingID)
	if err := w.Run(ctx, trackingID); err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}
	fmt.Println("Analysis completed.")
}
