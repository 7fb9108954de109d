package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/triageops/triage/internal/evidence"
	"github.com/triageops/triage/internal/hub"
	"github.com/triageops/triage/internal/launcher"
	"github.com/triageops/triage/internal/storage"
	"github.com/triageops/triage/internal/types"
	"github.com/triageops/triage/internal/worker"
)

type cannedCompleter struct{ completions []string }

func (c *cannedCompleter) Complete(ctx context.Context, transcript []*types.Message) (string, error) {
	next := c.completions[0]
	if len(c.completions) > 1 {
		c.completions = c.completions[1:]
	}
	return next, nil
}

type fixedProvider struct{}

func (fixedProvider) GetCauseContext(ctx context.Context, correlationID string) (*types.CauseContext, error) {
	return &types.CauseContext{
		StackTrace: &types.StackTrace{ExceptionType: "NullPointerException"},
	}, nil
}

func (fixedProvider) GetHistoryContext(ctx context.Context, issue *types.Issue) (*types.HistoryContext, error) {
	return &types.HistoryContext{}, nil
}

const testSolutionJSON = `{"root_cause": "nil request", "explanation": "retry path", "steps": [{"step_number": 1, "description": "add a nil check"}]}`

type testEnv struct {
	ts       *httptest.Server
	store    storage.Storage
	hub      *hub.Hub
	launcher *launcher.InProcess
}

// newTestEnv stands up the full front door over a real store. Launched
// workers run against a canned completer that goes straight to a solution.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewStorage(ctx, &storage.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	h := hub.New(nil)
	factory := func() (*worker.Worker, error) {
		return worker.New(&worker.Config{
			Store:     store,
			Hub:       h,
			Completer: &cannedCompleter{completions: []string{"analysis done", testSolutionJSON}},
			Assembler: evidence.NewAssembler(fixedProvider{}, store, h, nil),
		})
	}
	l := launcher.NewInProcess(context.Background(), factory, nil)

	srv, err := New(&Config{Store: store, Hub: h, Launcher: l})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ts.Close()
		l.Wait()
		_ = store.Close()
	})
	return &testEnv{ts: ts, store: store, hub: h, launcher: l}
}

func (e *testEnv) postJSON(t *testing.T, path string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(e.ts.URL+path, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestCreateIssueRunsAnalysis(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/issues", `{
		"title": "NPE in UserService",
		"description": "users get 500 on lookup",
		"correlation_id": "corr-42"
	}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created CreateIssueResponse
	decodeBody(t, resp, &created)
	if created.Issue.ID == "" || created.TrackingID == "" {
		t.Fatalf("response missing IDs: %+v", created)
	}
	if created.Issue.Source != types.SourceAPI {
		t.Errorf("default source should be api, got %s", created.Issue.Source)
	}

	env.launcher.Wait()

	resp = env.get(t, "/issues/"+created.Issue.ID+"/tracking")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var rec types.TrackingRecord
	decodeBody(t, resp, &rec)
	if rec.Status != types.StatusCompleted {
		t.Errorf("expected completed, got %s", rec.Status)
	}
	if rec.Solution == nil || rec.Solution.RootCause != "nil request" {
		t.Errorf("expected persisted solution, got %+v", rec.Solution)
	}
	if rec.CauseContext == nil {
		t.Error("expected cause context for a correlated issue")
	}

	// The transcript is readable over the API.
	resp = env.get(t, "/issues/"+created.Issue.ID+"/messages")
	var msgs []*types.Message
	decodeBody(t, resp, &msgs)
	if len(msgs) < 6 {
		t.Errorf("expected a full transcript, got %d messages", len(msgs))
	}
}

func TestCreateIssueRejectsBadBodies(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{not json`},
		{"missing title", `{"description": "d"}`},
		{"missing description", `{"title": "t"}`},
		{"unknown field", `{"title": "t", "description": "d", "bogus": 1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.postJSON(t, "/issues", tc.body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestGetIssueNotFound(t *testing.T) {
	env := newTestEnv(t)
	resp := env.get(t, "/issues/nonexistent")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestListIssuesLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		issue := &types.Issue{Title: fmt.Sprintf("issue %d", i), Description: "d", Source: types.SourceAPI}
		if err := env.store.CreateIssue(ctx, issue); err != nil {
			t.Fatalf("failed to seed issue: %v", err)
		}
	}

	resp := env.get(t, "/issues?limit=2")
	var issues []*types.Issue
	decodeBody(t, resp, &issues)
	if len(issues) != 2 {
		t.Errorf("expected 2 issues, got %d", len(issues))
	}

	resp = env.get(t, "/issues?limit=bogus")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", resp.StatusCode)
	}
}

func TestPostMessagePersistsAndBroadcasts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issue := &types.Issue{Title: "t", Description: "d", Source: types.SourceAPI}
	if err := env.store.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("failed to seed issue: %v", err)
	}

	sub := env.hub.Subscribe(issue.ID)
	defer env.hub.Unsubscribe(sub)

	resp := env.postJSON(t, "/issues/"+issue.ID+"/messages", `{"content": "it happens under load"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var msg types.Message
	decodeBody(t, resp, &msg)
	if msg.Role != types.RoleUser || msg.Content != "it happens under load" {
		t.Errorf("unexpected message: %+v", msg)
	}

	msgs, err := env.store.ListMessages(ctx, issue.ID)
	if err != nil {
		t.Fatalf("failed to list messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "it happens under load" {
		t.Errorf("message not persisted: %+v", msgs)
	}

	ev := <-sub.Events
	if ev.Kind != hub.EventMessage || ev.Message.Content != "it happens under load" {
		t.Errorf("unexpected broadcast: %+v", ev)
	}
}

func TestPostMessageValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issue := &types.Issue{Title: "t", Description: "d", Source: types.SourceAPI}
	if err := env.store.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("failed to seed issue: %v", err)
	}

	resp := env.postJSON(t, "/issues/nonexistent/messages", `{"content": "hi"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown issue, got %d", resp.StatusCode)
	}

	resp = env.postJSON(t, "/issues/"+issue.ID+"/messages", `{"content": ""}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty content, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp := env.get(t, "/healthz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestMetricsExposition(t *testing.T) {
	env := newTestEnv(t)

	// Generate one instrumented request first.
	env.get(t, "/issues").Body.Close()

	resp := env.get(t, "/metrics")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read metrics: %v", err)
	}
	if !strings.Contains(string(body), "triage_http_requests_total") {
		t.Error("request counter missing from exposition")
	}
}
