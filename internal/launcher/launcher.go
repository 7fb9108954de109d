// Package launcher dispatches analysis workers.
package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/triageops/triage/internal/worker"
)

// Request is the typed payload handed to a launcher: which tracking record
// to process, and the issue it belongs to.
type Request struct {
	IssueID    string
	TrackingID string
}

// Validate checks if the request has valid field values
func (r *Request) Validate() error {
	if r.IssueID == "" {
		return fmt.Errorf("issue_id is required")
	}
	if r.TrackingID == "" {
		return fmt.Errorf("tracking_id is required")
	}
	return nil
}

// Launcher starts analysis of a tracking record. Implementations decide
// where the worker runs; the claim on the record, not the launcher, is what
// guarantees at-most-once processing.
type Launcher interface {
	Launch(ctx context.Context, req Request) error
}

// WorkerFactory builds a fresh worker per launch
type WorkerFactory func() (*worker.Worker, error)

// InProcess runs each worker as a goroutine in the current process. Live
// workers are reachable by issue ID so the front door can resume a machine
// that is waiting for input.
type InProcess struct {
	base       context.Context
	newWorker  WorkerFactory
	logger     *slog.Logger
	mu         sync.Mutex
	running    map[string]*worker.Worker // issueID → live worker
	inFlightWG sync.WaitGroup

	// OnFinish, when set before the first Launch, is called after each
	// worker run with its outcome. Used for metrics.
	OnFinish func(issueID string, err error)
}

// NewInProcess creates an in-process launcher. Workers run under base, not
// under the launch caller's context, so an analysis outlives the HTTP
// request that started it.
func NewInProcess(base context.Context, newWorker WorkerFactory, logger *slog.Logger) *InProcess {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcess{
		base:      base,
		newWorker: newWorker,
		logger:    logger,
		running:   make(map[string]*worker.Worker),
	}
}

// Launch starts a goroutine processing the tracking record. A second launch
// for an issue whose worker is still running is rejected here before it
// would lose the claim race anyway.
func (l *InProcess) Launch(ctx context.Context, req Request) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid launch request: %w", err)
	}

	w, err := l.newWorker()
	if err != nil {
		return fmt.Errorf("failed to build worker: %w", err)
	}

	l.mu.Lock()
	if _, exists := l.running[req.IssueID]; exists {
		l.mu.Unlock()
		return fmt.Errorf("issue %s already has a running worker", req.IssueID)
	}
	l.running[req.IssueID] = w
	l.mu.Unlock()

	l.inFlightWG.Add(1)
	go func() {
		defer l.inFlightWG.Done()
		defer func() {
			l.mu.Lock()
			delete(l.running, req.IssueID)
			l.mu.Unlock()
		}()

		err := w.Run(l.base, req.TrackingID)
		if err != nil {
			l.logger.Error("worker run failed",
				"issue_id", req.IssueID, "tracking_id", req.TrackingID, "error", err)
		}
		if l.OnFinish != nil {
			l.OnFinish(req.IssueID, err)
		}
	}()

	return nil
}

// Get returns the live worker for an issue, if one is running
func (l *InProcess) Get(issueID string) (*worker.Worker, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.running[issueID]
	return w, ok
}

// Wait blocks until all launched workers have finished. Used on shutdown
// and in tests.
func (l *InProcess) Wait() {
	l.inFlightWG.Wait()
}
