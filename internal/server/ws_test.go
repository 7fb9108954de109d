package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/triageops/triage/internal/hub"
	"github.com/triageops/triage/internal/storage"
	"github.com/triageops/triage/internal/types"
)

func (e *testEnv) dial(t *testing.T, issueID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/issues/" + issueID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) hub.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev hub.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	return ev
}

// A subscriber connecting after the fact gets the persisted record replayed
// in order: transcript, status, evidence, solution.
func TestWebSocketReplaysPersistedRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issue := &types.Issue{Title: "t", Description: "d", Source: types.SourceAPI}
	if err := env.store.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("failed to seed issue: %v", err)
	}
	tracking := &types.TrackingRecord{IssueID: issue.ID}
	if err := env.store.CreateTracking(ctx, tracking); err != nil {
		t.Fatalf("failed to seed tracking: %v", err)
	}
	for _, content := range []string{"Starting analysis of issue: t", "Gathering context information..."} {
		msg := &types.Message{IssueID: issue.ID, Role: types.RoleSystem, Content: content}
		if err := env.store.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("failed to seed message: %v", err)
		}
	}
	status := types.StatusCompleted
	update := &storage.TrackingUpdate{
		Status:       &status,
		CauseContext: &types.CauseContext{StackTrace: &types.StackTrace{ExceptionType: "NPE"}},
		Solution:     &types.Solution{RootCause: "nil request", Explanation: "retry path"},
	}
	if err := env.store.UpdateTracking(ctx, tracking.ID, update); err != nil {
		t.Fatalf("failed to seed tracking state: %v", err)
	}

	conn := env.dial(t, issue.ID)

	ev := readEvent(t, conn)
	if ev.Kind != hub.EventMessage || ev.Message.Content != "Starting analysis of issue: t" {
		t.Fatalf("expected first transcript message, got %+v", ev)
	}
	ev = readEvent(t, conn)
	if ev.Kind != hub.EventMessage || ev.Message.Content != "Gathering context information..." {
		t.Fatalf("expected second transcript message, got %+v", ev)
	}
	ev = readEvent(t, conn)
	if ev.Kind != hub.EventStatus || ev.Status != types.StatusCompleted {
		t.Fatalf("expected status event, got %+v", ev)
	}
	ev = readEvent(t, conn)
	if ev.Kind != hub.EventContext || ev.ContextKind != hub.ContextCause || ev.CauseContext == nil {
		t.Fatalf("expected cause context event, got %+v", ev)
	}
	ev = readEvent(t, conn)
	if ev.Kind != hub.EventSolution || ev.Solution.RootCause != "nil request" {
		t.Fatalf("expected solution event, got %+v", ev)
	}
}

// Events published after the replay flow live over the same socket.
func TestWebSocketStreamsLiveEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issue := &types.Issue{Title: "t", Description: "d", Source: types.SourceAPI}
	if err := env.store.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("failed to seed issue: %v", err)
	}

	conn := env.dial(t, issue.ID)

	// Replay for a bare issue is just its status.
	ev := readEvent(t, conn)
	if ev.Kind != hub.EventStatus || ev.Status != types.StatusCreated {
		t.Fatalf("expected created status, got %+v", ev)
	}

	msg := &types.Message{ID: "m1", IssueID: issue.ID, Role: types.RoleUser, Content: "live one"}
	env.hub.Publish(issue.ID, hub.NewMessageEvent(msg))

	ev = readEvent(t, conn)
	if ev.Kind != hub.EventMessage || ev.Message.Content != "live one" {
		t.Fatalf("expected live message, got %+v", ev)
	}
}

// A message written into the socket lands in the transcript like a POST.
func TestWebSocketInboundMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issue := &types.Issue{Title: "t", Description: "d", Source: types.SourceAPI}
	if err := env.store.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("failed to seed issue: %v", err)
	}

	conn := env.dial(t, issue.ID)
	readEvent(t, conn) // replayed status

	if err := conn.WriteJSON(wsInbound{Content: "does it happen under load?"}); err != nil {
		t.Fatalf("failed to write inbound message: %v", err)
	}

	// The connection's own subscription sees the broadcast.
	ev := readEvent(t, conn)
	if ev.Kind != hub.EventMessage || ev.Message.Content != "does it happen under load?" {
		t.Fatalf("expected echoed message event, got %+v", ev)
	}

	msgs, err := env.store.ListMessages(ctx, issue.ID)
	if err != nil {
		t.Fatalf("failed to list messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != types.RoleUser {
		t.Errorf("inbound message not persisted: %+v", msgs)
	}
}

func TestWebSocketUnknownIssue(t *testing.T) {
	env := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/issues/nonexistent/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Errorf("expected 404 handshake response, got %+v", resp)
	}
}

// A socket open while the analysis finishes gets a clean close after the
// terminal event.
func TestWebSocketClosesAfterTerminalEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issue := &types.Issue{Title: "t", Description: "d", Source: types.SourceAPI}
	if err := env.store.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("failed to seed issue: %v", err)
	}

	conn := env.dial(t, issue.ID)
	readEvent(t, conn) // replayed status

	env.hub.Publish(issue.ID, hub.NewStatusEvent(issue.ID, types.StatusCompleted))
	env.hub.CloseIssue(issue.ID)

	ev := readEvent(t, conn)
	if ev.Kind != hub.EventStatus || ev.Status != types.StatusCompleted {
		t.Fatalf("expected terminal status, got %+v", ev)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok || closeErr.Code != websocket.CloseNormalClosure {
		t.Errorf("expected normal closure, got %v", err)
	}
}
