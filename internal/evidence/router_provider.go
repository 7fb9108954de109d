package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/triageops/triage/internal/types"
)

// causeRequest is the wire shape of a cause lookup
type causeRequest struct {
	CorrelationID string `json:"correlation_id"`
}

// historyRequest is the wire shape of a history lookup
type historyRequest struct {
	IssueID     string `json:"issue_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// RouterProvider is a Provider that dispatches lookups through a capability
// router. Local endpoints are invoked in-process; remote endpoints receive a
// JSON POST at <base URL>/<capability>.
type RouterProvider struct {
	router *Router
	client *http.Client
}

// NewRouterProvider creates a provider over the given router. A nil client
// gets a 30 second timeout default.
func NewRouterProvider(router *Router, client *http.Client) *RouterProvider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RouterProvider{router: router, client: client}
}

// GetCauseContext resolves the cause capability and invokes it
func (p *RouterProvider) GetCauseContext(ctx context.Context, correlationID string) (*types.CauseContext, error) {
	request, err := json.Marshal(causeRequest{CorrelationID: correlationID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cause request: %w", err)
	}

	response, err := p.invoke(ctx, CapabilityCause, request)
	if err != nil {
		return nil, err
	}

	var cc types.CauseContext
	if err := json.Unmarshal(response, &cc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cause context: %w", err)
	}
	return &cc, nil
}

// GetHistoryContext resolves the history capability and invokes it
func (p *RouterProvider) GetHistoryContext(ctx context.Context, issue *types.Issue) (*types.HistoryContext, error) {
	request, err := json.Marshal(historyRequest{
		IssueID:     issue.ID,
		Title:       issue.Title,
		Description: issue.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history request: %w", err)
	}

	response, err := p.invoke(ctx, CapabilityHistory, request)
	if err != nil {
		return nil, err
	}

	var hc types.HistoryContext
	if err := json.Unmarshal(response, &hc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history context: %w", err)
	}
	return &hc, nil
}

// invoke dispatches a request to whatever serves the capability
func (p *RouterProvider) invoke(ctx context.Context, capability Capability, request json.RawMessage) (json.RawMessage, error) {
	endpoint, err := p.router.Resolve(capability)
	if err != nil {
		return nil, err
	}

	if endpoint.Local != nil {
		response, err := endpoint.Local(ctx, request)
		if err != nil {
			return nil, fmt.Errorf("local %s lookup failed: %w", capability, err)
		}
		return response, nil
	}

	url := endpoint.RemoteURL + "/" + string(capability)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(request))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", capability, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote %s lookup failed: %w", capability, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", capability, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote %s lookup returned %d: %s", capability, resp.StatusCode, truncateBody(body))
	}
	return body, nil
}

func truncateBody(body []byte) string {
	const max = 200
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
