package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/triageops/triage/internal/hub"
	"github.com/triageops/triage/internal/types"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The front door trusts its deployment's ingress for origin policy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsInbound is a message an observer sends over the socket
type wsInbound struct {
	Content string `json:"content"`
}

// handleWebSocket subscribes an observer to an issue. On connect the full
// persisted history is replayed in order (all transcript messages, then
// current status, then evidence bundles, then solution if present) before
// live events flow. Subscribing to the hub happens before the replay reads,
// so nothing published in between is lost; an observer may at worst see an
// event twice across the replay/live boundary.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	issueID := r.PathValue("id")
	ctx := r.Context()

	issue, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		http.Error(w, err.Error(), httpStatusForError(err))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "issue_id", issueID, "error", err)
		return
	}
	defer conn.Close()

	s.metrics.WSConnected()
	defer s.metrics.WSDisconnected()

	sub := s.hub.Subscribe(issueID)
	defer s.hub.Unsubscribe(sub)

	send := func(event hub.Event) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(event)
	}

	if err := s.replay(r, issue, send); err != nil {
		s.logger.Warn("websocket replay failed", "issue_id", issueID, "error", err)
		return
	}

	// Inbound observer messages feed the same path as POST .../messages.
	go func() {
		for {
			var in wsInbound
			if err := conn.ReadJSON(&in); err != nil {
				return
			}
			if in.Content == "" {
				continue
			}
			if _, _, err := s.submitUserMessage(r, issueID, in.Content); err != nil {
				s.logger.Warn("websocket message rejected", "issue_id", issueID, "error", err)
			}
		}
	}()

	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				// Stream closed after a terminal event; say goodbye cleanly.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "analysis finished"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			if err := send(event); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// replay streams the persisted record to a fresh subscriber: transcript,
// status, evidence, solution, in that order.
func (s *Server) replay(r *http.Request, issue *types.Issue, send func(hub.Event) error) error {
	ctx := r.Context()

	msgs, err := s.store.ListMessages(ctx, issue.ID)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := send(hub.NewMessageEvent(msg)); err != nil {
			return err
		}
	}

	rec, err := s.store.GetTrackingByIssue(ctx, issue.ID)
	if err != nil {
		// An issue without a tracking record yet still replays its status.
		return send(hub.NewStatusEvent(issue.ID, issue.Status))
	}

	if err := send(hub.NewStatusEvent(issue.ID, rec.Status)); err != nil {
		return err
	}
	if rec.CauseContext != nil {
		if err := send(hub.NewCauseContextEvent(issue.ID, rec.CauseContext)); err != nil {
			return err
		}
	}
	if rec.HistoryContext != nil {
		if err := send(hub.NewHistoryContextEvent(issue.ID, rec.HistoryContext)); err != nil {
			return err
		}
	}
	if rec.Solution != nil {
		if err := send(hub.NewSolutionEvent(issue.ID, rec.Solution)); err != nil {
			return err
		}
	}
	return nil
}
