// Package worker runs the per-issue analysis state machine.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/triageops/triage/internal/ai"
	"github.com/triageops/triage/internal/evidence"
	"github.com/triageops/triage/internal/hub"
	"github.com/triageops/triage/internal/storage"
	"github.com/triageops/triage/internal/types"
)

// inputBuffer bounds pending observer answers so SubmitUserInput never
// blocks the front door.
const inputBuffer = 16

// Config holds worker configuration
type Config struct {
	Store     storage.Storage
	Hub       *hub.Hub
	Completer ai.Completer
	Assembler *evidence.Assembler

	// WorkerID identifies this worker for claims (default: random UUID)
	WorkerID string

	// Predicate decides, per analysis round, whether the reporter must be
	// asked for more input (default: ai.DefaultBranchPredicate)
	Predicate ai.BranchPredicate

	Logger *slog.Logger
}

// Worker processes exactly one tracking record through the analysis
// lifecycle. It is the single writer for that record: it claims the record
// atomically before the first transition, and every transition is
// checkpointed before it is broadcast.
type Worker struct {
	store     storage.Storage
	hub       *hub.Hub
	completer ai.Completer
	assembler *evidence.Assembler
	workerID  string
	predicate ai.BranchPredicate
	logger    *slog.Logger

	input chan *types.Message
}

// New creates a worker
func New(cfg *Config) (*Worker, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Hub == nil {
		return nil, fmt.Errorf("hub is required")
	}
	if cfg.Completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if cfg.Assembler == nil {
		return nil, fmt.Errorf("assembler is required")
	}

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = uuid.New().String()
	}
	predicate := cfg.Predicate
	if predicate == nil {
		predicate = ai.DefaultBranchPredicate
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		store:     cfg.Store,
		hub:       cfg.Hub,
		completer: cfg.Completer,
		assembler: cfg.Assembler,
		workerID:  workerID,
		predicate: predicate,
		logger:    logger,
		input:     make(chan *types.Message, inputBuffer),
	}, nil
}

// WorkerID returns the claim identity of this worker
func (w *Worker) WorkerID() string {
	return w.workerID
}

// SubmitUserInput hands an observer's answer to a machine waiting for
// input. The message must already be persisted; the worker only attaches it
// to the in-memory conversation. Returns an error when the input buffer is
// full rather than blocking the caller.
func (w *Worker) SubmitUserInput(msg *types.Message) error {
	select {
	case w.input <- msg:
		return nil
	default:
		return fmt.Errorf("worker input buffer full for issue %s", msg.IssueID)
	}
}

// Run claims the tracking record and drives it to a terminal state. The
// returned error describes why the run failed; a completed analysis returns
// nil. The claim is released on return so a crashed record can be retried.
func (w *Worker) Run(ctx context.Context, trackingID string) error {
	rec, err := w.store.GetTracking(ctx, trackingID)
	if err != nil {
		return fmt.Errorf("failed to load tracking record: %w", err)
	}
	issue, err := w.store.GetIssue(ctx, rec.IssueID)
	if err != nil {
		return fmt.Errorf("failed to load issue: %w", err)
	}

	// Atomic claim: losing the race means another worker owns this record
	// and we must not produce any side effects.
	if err := w.store.ClaimTracking(ctx, trackingID, w.workerID); err != nil {
		return fmt.Errorf("failed to claim tracking record: %w", err)
	}
	defer func() {
		if err := w.store.ReleaseTracking(context.WithoutCancel(ctx), trackingID); err != nil {
			w.logger.Warn("failed to release tracking record", "tracking_id", trackingID, "error", err)
		}
	}()

	w.logger.Info("analysis started",
		"issue_id", issue.ID, "tracking_id", trackingID, "worker_id", w.workerID)

	status := rec.Status
	if err := w.run(ctx, issue, trackingID, &status); err != nil {
		w.fail(ctx, issue, trackingID, status, err)
		return err
	}
	return nil
}

// run executes the analysis; any returned error is fatal
func (w *Worker) run(ctx context.Context, issue *types.Issue, trackingID string, status *types.Status) error {
	// Recorder persists each transcript entry and broadcasts it afterwards,
	// so observers never see a message that isn't durable.
	recorder := func(ctx context.Context, msg *types.Message) error {
		if err := w.store.AppendMessage(ctx, msg); err != nil {
			return err
		}
		w.hub.Publish(issue.ID, hub.NewMessageEvent(msg))
		return nil
	}

	seed, err := w.store.ListMessages(ctx, issue.ID)
	if err != nil {
		return fmt.Errorf("failed to load transcript: %w", err)
	}
	conv := ai.NewConversation(issue.ID, w.completer, recorder, seed)

	say := func(ctx context.Context, content string) error {
		_, err := conv.Say(ctx, types.RoleSystem, content)
		return err
	}

	if err := w.setStatus(ctx, issue, trackingID, status, types.StatusAnalyzing); err != nil {
		return err
	}

	if err := say(ctx, fmt.Sprintf("Starting analysis of issue: %s", issue.Title)); err != nil {
		return err
	}

	cause, history, err := w.assembler.Gather(ctx, issue, trackingID, say)
	if err != nil {
		return err
	}

	instruction := buildAnalysisInstruction(issue, cause, history)
	for {
		if err := say(ctx, "Analyzing issue..."); err != nil {
			return err
		}
		completion, err := conv.Ask(ctx, instruction)
		if err != nil {
			return err
		}

		if !w.predicate(completion) {
			break
		}

		// The assistant's question is already in the transcript; park the
		// machine until an observer answers. Anything buffered at this point
		// was posted before the question existed and sits ahead of it in the
		// persisted transcript; it cannot be the answer.
		w.drainInput()
		if err := w.setStatus(ctx, issue, trackingID, status, types.StatusWaitingForInput); err != nil {
			return err
		}

		answer, err := w.waitForInput(ctx)
		if err != nil {
			return err
		}
		conv.Observe(answer)

		if err := w.setStatus(ctx, issue, trackingID, status, types.StatusAnalyzing); err != nil {
			return err
		}
		instruction = "Continue the analysis using the additional information provided above."
	}

	if err := w.setStatus(ctx, issue, trackingID, status, types.StatusGeneratingSolution); err != nil {
		return err
	}
	if err := say(ctx, "Generating solution..."); err != nil {
		return err
	}

	completion, err := conv.Ask(ctx, ai.SolutionInstruction)
	if err != nil {
		return err
	}
	solution := ai.ParseSolution(completion)
	if err := solution.Validate(); err != nil {
		return fmt.Errorf("failed to build solution: %w", err)
	}

	// Checkpoint solution and terminal status together, then broadcast.
	completed := types.StatusCompleted
	if !status.CanTransitionTo(completed) {
		return fmt.Errorf("invalid transition %s → %s", *status, completed)
	}
	update := &storage.TrackingUpdate{Status: &completed, Solution: solution}
	if err := w.store.UpdateTracking(ctx, trackingID, update); err != nil {
		return fmt.Errorf("failed to checkpoint solution: %w", err)
	}
	if err := w.store.UpdateIssueStatus(ctx, issue.ID, completed); err != nil {
		return fmt.Errorf("failed to update issue status: %w", err)
	}
	*status = completed

	w.hub.Publish(issue.ID, hub.NewSolutionEvent(issue.ID, solution))
	w.hub.Publish(issue.ID, hub.NewStatusEvent(issue.ID, completed))

	if err := say(ctx, solution.Markdown()); err != nil {
		return err
	}
	if err := say(ctx, "Analysis completed. Solution generated."); err != nil {
		return err
	}

	w.logger.Info("analysis completed", "issue_id", issue.ID, "tracking_id", trackingID)

	// Terminal events are flushed above; only now may observers be closed.
	w.hub.CloseIssue(issue.ID)
	return nil
}

// drainInput discards buffered observer messages. They are already
// persisted and broadcast; discarding only affects what the next park
// accepts as an answer.
func (w *Worker) drainInput() {
	for {
		select {
		case <-w.input:
		default:
			return
		}
	}
}

// waitForInput blocks until an observer answer arrives or the context ends
func (w *Worker) waitForInput(ctx context.Context) (*types.Message, error) {
	select {
	case msg := <-w.input:
		return msg, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("canceled while waiting for user input: %w", ctx.Err())
	}
}

// setStatus validates the transition, checkpoints it on the tracking record
// and the issue, and only then broadcasts it.
func (w *Worker) setStatus(ctx context.Context, issue *types.Issue, trackingID string, current *types.Status, next types.Status) error {
	// A re-claimed record can already be in the state a fresh run enters.
	// A same-status write is a checkpoint, not a transition.
	if next != *current && !current.CanTransitionTo(next) {
		return fmt.Errorf("invalid transition %s → %s", *current, next)
	}

	update := &storage.TrackingUpdate{Status: &next}
	if err := w.store.UpdateTracking(ctx, trackingID, update); err != nil {
		return fmt.Errorf("failed to checkpoint status %s: %w", next, err)
	}
	if err := w.store.UpdateIssueStatus(ctx, issue.ID, next); err != nil {
		return fmt.Errorf("failed to update issue status: %w", err)
	}
	*current = next

	w.hub.Publish(issue.ID, hub.NewStatusEvent(issue.ID, next))
	w.logger.Debug("status transition", "issue_id", issue.ID, "status", next)
	return nil
}

// fail drives the machine to the failed state with best-effort side
// effects. Called once, after which the run is over.
func (w *Worker) fail(ctx context.Context, issue *types.Issue, trackingID string, current types.Status, cause error) {
	// The original context may already be canceled or past its deadline.
	ctx = context.WithoutCancel(ctx)

	w.logger.Error("analysis failed",
		"issue_id", issue.ID, "tracking_id", trackingID, "error", cause)

	if current.IsTerminal() {
		// The record reached its terminal state before the failing side
		// effect; the stream still has to be closed for observers.
		w.hub.CloseIssue(issue.ID)
		return
	}

	failed := types.StatusFailed
	checkpointed := false
	if err := w.store.UpdateTracking(ctx, trackingID, &storage.TrackingUpdate{Status: &failed}); err != nil {
		w.logger.Error("failed to checkpoint failed status", "tracking_id", trackingID, "error", err)
	} else {
		checkpointed = true
	}
	if err := w.store.UpdateIssueStatus(ctx, issue.ID, failed); err != nil {
		w.logger.Error("failed to update issue status", "issue_id", issue.ID, "error", err)
	}

	errMsg := &types.Message{
		IssueID: issue.ID,
		Role:    types.RoleSystem,
		Content: fmt.Sprintf("Analysis failed: %v", cause),
	}
	if err := w.store.AppendMessage(ctx, errMsg); err != nil {
		w.logger.Error("failed to append failure message", "issue_id", issue.ID, "error", err)
	} else {
		w.hub.Publish(issue.ID, hub.NewMessageEvent(errMsg))
	}

	if checkpointed {
		w.hub.Publish(issue.ID, hub.NewStatusEvent(issue.ID, failed))
	}

	// Terminal event is flushed; close the stream.
	w.hub.CloseIssue(issue.ID)
}

// buildAnalysisInstruction composes the first analysis prompt from the
// issue and whatever evidence could be gathered.
func buildAnalysisInstruction(issue *types.Issue, cause *types.CauseContext, history *types.HistoryContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze the following issue and determine its root cause.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", issue.Title)
	fmt.Fprintf(&b, "Description: %s\n", issue.Description)

	if cause != nil {
		b.WriteString("\nCause evidence:\n")
		if cause.StackTrace != nil {
			fmt.Fprintf(&b, "Exception: %s: %s\n", cause.StackTrace.ExceptionType, cause.StackTrace.ExceptionMessage)
			for _, frame := range cause.StackTrace.Frames {
				fmt.Fprintf(&b, "  at %s (%s:%d)\n", frame.Function, frame.FilePath, frame.LineNumber)
			}
		}
		for _, req := range cause.HTTPRequests {
			fmt.Fprintf(&b, "HTTP request: %s %s\n", req.Method, req.URL)
		}
		for _, resp := range cause.HTTPResponses {
			fmt.Fprintf(&b, "HTTP response: %d\n", resp.StatusCode)
		}
		for _, qe := range cause.QueueEvents {
			fmt.Fprintf(&b, "Queue event: %s[%d]@%d\n", qe.Topic, qe.Partition, qe.Offset)
		}
		for _, dbe := range cause.DataStoreErrors {
			fmt.Fprintf(&b, "Data store error: %s: %s\n", dbe.ErrorCode, dbe.ErrorMessage)
		}
		for _, line := range cause.Logs {
			fmt.Fprintf(&b, "Log: %s\n", line)
		}
	}

	if history != nil {
		if len(history.SimilarIssues) > 0 {
			b.WriteString("\nSimilar past issues:\n")
			for _, sim := range history.SimilarIssues {
				fmt.Fprintf(&b, "- %s (similarity %.2f): %s\n", sim.Title, sim.SimilarityScore, sim.Resolution)
			}
		}
		if len(history.CodeChanges) > 0 {
			b.WriteString("\nRecent code changes:\n")
			for path, summary := range history.CodeChanges {
				fmt.Fprintf(&b, "- %s: %s\n", path, summary)
			}
		}
		if len(history.DeploymentEvents) > 0 {
			b.WriteString("\nRecent deployments:\n")
			for _, dep := range history.DeploymentEvents {
				fmt.Fprintf(&b, "- %s %s at %s\n", dep.Service, dep.Version, dep.DeployedAt.Format("2006-01-02 15:04"))
			}
		}
	}

	fmt.Fprintf(&b, "\nIf you cannot proceed without more information from the reporter, reply with %s: followed by a single question. Otherwise explain the most likely root cause.", ai.NeedMoreInfoMarker)
	return b.String()
}
