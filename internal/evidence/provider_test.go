package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/triageops/triage/internal/types"
)

func TestRouterRegisterAndResolve(t *testing.T) {
	router := NewRouter()
	handler := func(ctx context.Context, req json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}

	if err := router.Register(Endpoint{Capability: CapabilityCause, Local: handler}); err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	endpoint, err := router.Resolve(CapabilityCause)
	if err != nil {
		t.Fatalf("failed to resolve: %v", err)
	}
	if endpoint.Local == nil {
		t.Error("expected local handler")
	}

	if _, err := router.Resolve(CapabilityHistory); err == nil {
		t.Error("expected error for unbound capability")
	}
}

func TestRouterRejectsDuplicates(t *testing.T) {
	router := NewRouter()
	if err := router.Register(Endpoint{Capability: CapabilityCause, RemoteURL: "http://a"}); err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	if err := router.Register(Endpoint{Capability: CapabilityCause, RemoteURL: "http://b"}); err == nil {
		t.Error("expected error for duplicate capability")
	}
}

func TestEndpointValidate(t *testing.T) {
	handler := func(ctx context.Context, req json.RawMessage) (json.RawMessage, error) { return nil, nil }

	tests := []struct {
		name    string
		ep      Endpoint
		wantErr bool
	}{
		{"local only", Endpoint{Capability: CapabilityCause, Local: handler}, false},
		{"remote only", Endpoint{Capability: CapabilityCause, RemoteURL: "http://x"}, false},
		{"neither", Endpoint{Capability: CapabilityCause}, true},
		{"both", Endpoint{Capability: CapabilityCause, Local: handler, RemoteURL: "http://x"}, true},
		{"no capability", Endpoint{RemoteURL: "http://x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ep.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("got err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestRouterProviderLocal(t *testing.T) {
	router := NewRouter()
	err := router.Register(Endpoint{
		Capability: CapabilityCause,
		Local: func(ctx context.Context, req json.RawMessage) (json.RawMessage, error) {
			var cr causeRequest
			if err := json.Unmarshal(req, &cr); err != nil {
				return nil, err
			}
			if cr.CorrelationID != "java-001" {
				return nil, errors.New("unknown correlation ID")
			}
			return json.Marshal(types.CauseContext{
				StackTrace: &types.StackTrace{ExceptionType: "NullPointerException"},
			})
		},
	})
	if err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	provider := NewRouterProvider(router, nil)
	cc, err := provider.GetCauseContext(context.Background(), "java-001")
	if err != nil {
		t.Fatalf("cause lookup failed: %v", err)
	}
	if cc.StackTrace == nil || cc.StackTrace.ExceptionType != "NullPointerException" {
		t.Errorf("unexpected cause context: %+v", cc)
	}

	if _, err := provider.GetCauseContext(context.Background(), "bogus"); err == nil {
		t.Error("expected error for unknown correlation ID")
	}
}

func TestRouterProviderRemote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/history" {
			http.NotFound(w, r)
			return
		}
		var hr historyRequest
		if err := json.NewDecoder(r.Body).Decode(&hr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(types.HistoryContext{
			SimilarIssues: []types.SimilarIssue{{IssueID: "iss-9", Title: "old " + hr.Title, SimilarityScore: 0.8}},
		})
	}))
	defer server.Close()

	router := NewRouter()
	if err := router.Register(Endpoint{Capability: CapabilityHistory, RemoteURL: server.URL}); err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	provider := NewRouterProvider(router, nil)
	hc, err := provider.GetHistoryContext(context.Background(), &types.Issue{ID: "iss-1", Title: "NPE"})
	if err != nil {
		t.Fatalf("history lookup failed: %v", err)
	}
	if len(hc.SimilarIssues) != 1 || hc.SimilarIssues[0].Title != "old NPE" {
		t.Errorf("unexpected history context: %+v", hc)
	}
}

func TestRouterProviderRemoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "lookup backend down", http.StatusBadGateway)
	}))
	defer server.Close()

	router := NewRouter()
	if err := router.Register(Endpoint{Capability: CapabilityCause, RemoteURL: server.URL}); err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	provider := NewRouterProvider(router, nil)
	if _, err := provider.GetCauseContext(context.Background(), "x"); err == nil {
		t.Error("expected error for 502 response")
	}
}
