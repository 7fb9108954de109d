package evidence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/triageops/triage/internal/hub"
	"github.com/triageops/triage/internal/storage"
	"github.com/triageops/triage/internal/types"
)

// SayFunc appends a system-role transcript message. The assembler narrates
// its progress through it; persistence and broadcast of the message itself
// are the caller's concern.
type SayFunc func(ctx context.Context, content string) error

// Assembler gathers evidence for an issue and checkpoints it as it lands.
// Provider failures are non-fatal: the analysis proceeds with whatever
// context could be gathered. Store failures are fatal, because an observer
// must never see a broadcast for state that was not durably checkpointed.
type Assembler struct {
	provider Provider
	store    storage.Storage
	hub      *hub.Hub
	logger   *slog.Logger
}

// NewAssembler creates an assembler. A nil logger falls back to slog.Default().
func NewAssembler(provider Provider, store storage.Storage, h *hub.Hub, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{provider: provider, store: store, hub: h, logger: logger}
}

// Gather collects cause and history context for an issue, in that order.
// Cause is looked up only when the issue carries a correlation ID; history
// is always looked up. Each successful gather is checkpointed on the
// tracking record and then broadcast. Returns whatever was gathered; the
// error is non-nil only for fatal store failures.
func (a *Assembler) Gather(ctx context.Context, issue *types.Issue, trackingID string, say SayFunc) (*types.CauseContext, *types.HistoryContext, error) {
	if err := say(ctx, "Gathering context information..."); err != nil {
		return nil, nil, err
	}

	var cause *types.CauseContext
	if issue.CorrelationID != "" {
		if err := say(ctx, fmt.Sprintf("Getting cause context for correlation ID: %s", issue.CorrelationID)); err != nil {
			return nil, nil, err
		}

		cc, err := a.provider.GetCauseContext(ctx, issue.CorrelationID)
		if err != nil {
			a.logger.Warn("cause context lookup failed", "issue_id", issue.ID, "correlation_id", issue.CorrelationID, "error", err)
			if sayErr := say(ctx, fmt.Sprintf("Failed to gather cause context: %v", err)); sayErr != nil {
				return nil, nil, sayErr
			}
		} else {
			// Checkpoint before broadcast: observers only ever see durable state.
			if err := a.store.UpdateTracking(ctx, trackingID, &storage.TrackingUpdate{CauseContext: cc}); err != nil {
				return nil, nil, fmt.Errorf("failed to checkpoint cause context: %w", err)
			}
			a.hub.Publish(issue.ID, hub.NewCauseContextEvent(issue.ID, cc))
			if err := say(ctx, "Cause context gathered successfully."); err != nil {
				return cc, nil, err
			}
			cause = cc
		}
	}

	if err := say(ctx, "Getting history context for similar issues..."); err != nil {
		return cause, nil, err
	}

	var history *types.HistoryContext
	hc, err := a.provider.GetHistoryContext(ctx, issue)
	if err != nil {
		a.logger.Warn("history context lookup failed", "issue_id", issue.ID, "error", err)
		if sayErr := say(ctx, fmt.Sprintf("Failed to gather history context: %v", err)); sayErr != nil {
			return cause, nil, sayErr
		}
	} else {
		if err := a.store.UpdateTracking(ctx, trackingID, &storage.TrackingUpdate{HistoryContext: hc}); err != nil {
			return cause, nil, fmt.Errorf("failed to checkpoint history context: %w", err)
		}
		a.hub.Publish(issue.ID, hub.NewHistoryContextEvent(issue.ID, hc))
		if err := say(ctx, "History context gathered successfully."); err != nil {
			return cause, hc, err
		}
		history = hc
	}

	return cause, history, nil
}
