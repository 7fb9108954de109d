package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/triageops/triage/internal/hub"
	"github.com/triageops/triage/internal/launcher"
	"github.com/triageops/triage/internal/types"
)

// CreateIssueRequest is the request body for POST /issues
type CreateIssueRequest struct {
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Source        types.Source           `json:"source,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// CreateIssueResponse is the response body for POST /issues
type CreateIssueResponse struct {
	Issue      *types.Issue `json:"issue"`
	TrackingID string       `json:"tracking_id"`
}

// handleCreateIssue creates an issue with its tracking record and
// dispatches an analysis worker.
func (s *Server) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	var req CreateIssueRequest
	if err := readJSON(w, r, &req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	source := req.Source
	if source == "" {
		source = types.SourceAPI
	}

	issue := &types.Issue{
		Title:         req.Title,
		Description:   req.Description,
		CorrelationID: req.CorrelationID,
		Source:        source,
		Metadata:      req.Metadata,
	}
	if err := s.createAndDispatch(r, issue, func(trackingID string) {
		writeJSON(w, http.StatusCreated, CreateIssueResponse{Issue: issue, TrackingID: trackingID})
	}); err != nil {
		s.logger.Error("issue creation failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

// createAndDispatch persists issue + tracking and launches a worker. The
// respond callback runs after everything succeeded.
func (s *Server) createAndDispatch(r *http.Request, issue *types.Issue, respond func(trackingID string)) error {
	ctx := r.Context()

	if err := s.store.CreateIssue(ctx, issue); err != nil {
		return fmt.Errorf("failed to create issue: %w", err)
	}

	tracking := &types.TrackingRecord{IssueID: issue.ID}
	if err := s.store.CreateTracking(ctx, tracking); err != nil {
		return fmt.Errorf("failed to create tracking record: %w", err)
	}

	if err := s.launcher.Launch(ctx, launcher.Request{IssueID: issue.ID, TrackingID: tracking.ID}); err != nil {
		return fmt.Errorf("failed to launch worker: %w", err)
	}

	s.metrics.IssueCreated(string(issue.Source))
	s.logger.Info("issue created",
		"issue_id", issue.ID, "tracking_id", tracking.ID, "source", issue.Source)

	respond(tracking.ID)
	return nil
}

// handleListIssues returns issues, newest first. ?limit=N caps the result.
func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	issues, err := s.store.ListIssues(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list issues", "error", err)
		http.Error(w, "failed to list issues", http.StatusInternalServerError)
		return
	}
	if issues == nil {
		issues = []*types.Issue{}
	}
	writeJSON(w, http.StatusOK, issues)
}

// handleGetIssue returns one issue by ID
func (s *Server) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.store.GetIssue(r.Context(), r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), httpStatusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// handleGetTracking returns the tracking record bound to an issue
func (s *Server) handleGetTracking(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetTrackingByIssue(r.Context(), r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), httpStatusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleListMessages returns an issue's transcript in append order
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	issueID := r.PathValue("id")
	if _, err := s.store.GetIssue(r.Context(), issueID); err != nil {
		http.Error(w, err.Error(), httpStatusForError(err))
		return
	}

	msgs, err := s.store.ListMessages(r.Context(), issueID)
	if err != nil {
		s.logger.Error("failed to list messages", "issue_id", issueID, "error", err)
		http.Error(w, "failed to list messages", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []*types.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// PostMessageRequest is the request body for POST /issues/{id}/messages
type PostMessageRequest struct {
	Content string `json:"content"`
}

// handlePostMessage appends an observer's message to the transcript,
// broadcasts it, and resumes a machine waiting for input.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	issueID := r.PathValue("id")

	var req PostMessageRequest
	if err := readJSON(w, r, &req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	msg, status, err := s.submitUserMessage(r, issueID, req.Content)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusAccepted, msg)
}

// submitUserMessage persists a user message, broadcasts it, and hands it to
// the live worker when one is waiting. Shared by the REST handler and the
// WebSocket read loop.
func (s *Server) submitUserMessage(r *http.Request, issueID, content string) (*types.Message, int, error) {
	ctx := r.Context()

	if _, err := s.store.GetIssue(ctx, issueID); err != nil {
		return nil, httpStatusForError(err), err
	}

	msg := &types.Message{
		IssueID: issueID,
		Role:    types.RoleUser,
		Content: content,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("failed to append message: %w", err)
	}
	s.hub.Publish(issueID, hub.NewMessageEvent(msg))

	// Resume a parked machine. The worker only sees the in-memory copy;
	// persistence already happened above.
	if worker, ok := s.launcher.Get(issueID); ok {
		if err := worker.SubmitUserInput(msg); err != nil {
			s.logger.Warn("failed to hand message to worker", "issue_id", issueID, "error", err)
		}
	}

	return msg, http.StatusAccepted, nil
}
