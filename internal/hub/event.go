package hub

import (
	"time"

	"github.com/google/uuid"
	"github.com/triageops/triage/internal/types"
)

// EventKind discriminates the event union
type EventKind string

const (
	EventMessage  EventKind = "message"  // transcript message appended
	EventStatus   EventKind = "status"   // analysis status changed
	EventContext  EventKind = "context"  // evidence bundle attached
	EventSolution EventKind = "solution" // solution generated
)

// ContextKind names which evidence bundle a context event carries
type ContextKind string

const (
	ContextCause   ContextKind = "cause"
	ContextHistory ContextKind = "history"
)

// Event is a tagged union published to issue subscribers. Exactly one of
// the payload fields is set, matching Kind. The same shape is serialized
// to WebSocket clients, so field names are part of the wire format.
type Event struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	IssueID   string    `json:"issue_id"`
	Timestamp time.Time `json:"timestamp"`

	Message        *types.Message        `json:"message,omitempty"`
	Status         types.Status          `json:"status,omitempty"`
	ContextKind    ContextKind           `json:"context_kind,omitempty"`
	CauseContext   *types.CauseContext   `json:"cause_context,omitempty"`
	HistoryContext *types.HistoryContext `json:"history_context,omitempty"`
	Solution       *types.Solution       `json:"solution,omitempty"`
}

// NewMessageEvent creates an event for an appended transcript message
func NewMessageEvent(msg *types.Message) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      EventMessage,
		IssueID:   msg.IssueID,
		Timestamp: time.Now(),
		Message:   msg,
	}
}

// NewStatusEvent creates an event for a status transition
func NewStatusEvent(issueID string, status types.Status) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      EventStatus,
		IssueID:   issueID,
		Timestamp: time.Now(),
		Status:    status,
	}
}

// NewCauseContextEvent creates an event for a gathered cause bundle
func NewCauseContextEvent(issueID string, cc *types.CauseContext) Event {
	return Event{
		ID:           uuid.New().String(),
		Kind:         EventContext,
		IssueID:      issueID,
		Timestamp:    time.Now(),
		ContextKind:  ContextCause,
		CauseContext: cc,
	}
}

// NewHistoryContextEvent creates an event for a gathered history bundle
func NewHistoryContextEvent(issueID string, hc *types.HistoryContext) Event {
	return Event{
		ID:             uuid.New().String(),
		Kind:           EventContext,
		IssueID:        issueID,
		Timestamp:      time.Now(),
		ContextKind:    ContextHistory,
		HistoryContext: hc,
	}
}

// NewSolutionEvent creates an event for a generated solution
func NewSolutionEvent(issueID string, sol *types.Solution) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      EventSolution,
		IssueID:   issueID,
		Timestamp: time.Now(),
		Solution:  sol,
	}
}
