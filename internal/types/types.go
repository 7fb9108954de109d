package types

import (
	"fmt"
	"time"
)

// Issue represents a reported problem to be analyzed.
type Issue struct {
	ID            string                 `json:"id"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	Status        Status                 `json:"status"`
	Source        Source                 `json:"source"`
	CorrelationID string                 `json:"correlation_id,omitempty"` // links to the external event that caused the issue
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// Validate checks if the issue has valid field values
func (i *Issue) Validate() error {
	if len(i.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(i.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(i.Title))
	}
	if len(i.Description) == 0 {
		return fmt.Errorf("description is required")
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", i.Status)
	}
	if !i.Source.IsValid() {
		return fmt.Errorf("invalid source: %s", i.Source)
	}
	return nil
}

// Status represents the analysis lifecycle state of an issue.
// The same enum is used on the issue row and on its tracking record;
// the two can diverge briefly while a transition is being persisted.
type Status string

const (
	StatusCreated            Status = "created"
	StatusAnalyzing          Status = "analyzing"
	StatusWaitingForInput    Status = "waiting_for_input"
	StatusGeneratingSolution Status = "generating_solution"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusAnalyzing, StatusWaitingForInput,
		StatusGeneratingSolution, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ValidTransitions defines the valid state transitions for the analysis state machine.
//
// State Machine Diagram:
//
//	created → analyzing → generating_solution → completed
//	              ⇅
//	      waiting_for_input
//
// Any non-terminal state may transition to failed (error escape hatch).
//
// Valid transitions:
//   - created → analyzing (worker claims the tracking record)
//   - analyzing → waiting_for_input (analysis round asked the reporter a question)
//   - waiting_for_input → analyzing (observer submitted an answer)
//   - analyzing → generating_solution (analysis round produced a synthesizable result)
//   - generating_solution → completed (solution built and persisted)
//   - generating_solution → analyzing (released record re-claimed after its worker died mid-synthesis)
//   - any non-terminal → failed (unrecoverable error)
func (s Status) ValidTransitions() []Status {
	switch s {
	case StatusCreated:
		return []Status{StatusAnalyzing, StatusFailed}
	case StatusAnalyzing:
		return []Status{StatusWaitingForInput, StatusGeneratingSolution, StatusFailed}
	case StatusWaitingForInput:
		return []Status{StatusAnalyzing, StatusFailed}
	case StatusGeneratingSolution:
		return []Status{StatusCompleted, StatusAnalyzing, StatusFailed}
	case StatusCompleted, StatusFailed:
		return []Status{} // Terminal states
	default:
		return []Status{}
	}
}

// CanTransitionTo checks if a transition from this state to the target state is valid
func (s Status) CanTransitionTo(target Status) bool {
	for _, valid := range s.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}

// Source categorizes where an issue report came from.
type Source string

const (
	SourceAPI       Source = "api"
	SourceSlack     Source = "slack"
	SourceWeb       Source = "web"
	SourceAutomated Source = "automated"
)

// IsValid checks if the source value is valid
func (s Source) IsValid() bool {
	switch s {
	case SourceAPI, SourceSlack, SourceWeb, SourceAutomated:
		return true
	}
	return false
}

// TrackingRecord is the analysis-lifecycle record bound 1:1 to an issue.
// It is the unit a worker claims and the row checkpointed after every
// phase transition so a crashed worker never corrupts the record.
type TrackingRecord struct {
	ID             string          `json:"id"`
	IssueID        string          `json:"issue_id"`
	Status         Status          `json:"status"`
	WorkerID       string          `json:"worker_id,omitempty"` // set once a worker claims the record
	CauseContext   *CauseContext   `json:"cause_context,omitempty"`
	HistoryContext *HistoryContext `json:"history_context,omitempty"`
	Solution       *Solution       `json:"solution,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Claimed reports whether a worker currently owns this record
func (t *TrackingRecord) Claimed() bool {
	return t.WorkerID != ""
}

// Validate checks if the tracking record has valid field values
func (t *TrackingRecord) Validate() error {
	if t.IssueID == "" {
		return fmt.Errorf("issue_id is required")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", t.Status)
	}
	return nil
}

// Role identifies who authored a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid checks if the role value is valid
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is one entry in an issue's transcript. The transcript is
// append-only and ordered by creation; it doubles as the conversation
// history fed to the inference provider.
type Message struct {
	ID        string    `json:"id"`
	IssueID   string    `json:"issue_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks if the message has valid field values
func (m *Message) Validate() error {
	if m.IssueID == "" {
		return fmt.Errorf("issue_id is required")
	}
	if !m.Role.IsValid() {
		return fmt.Errorf("invalid role: %s", m.Role)
	}
	if m.Content == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}
