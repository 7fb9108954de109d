// Package evidence gathers the structured context an analysis runs on.
package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/triageops/triage/internal/types"
)

// Provider looks up evidence bundles for an issue. Implementations may be
// in-process or backed by remote capability services; either way a lookup
// failure is non-fatal to the analysis that requested it.
type Provider interface {
	// GetCauseContext fetches the causative evidence for a correlation ID
	GetCauseContext(ctx context.Context, correlationID string) (*types.CauseContext, error)

	// GetHistoryContext fetches similar past issues and related changes
	GetHistoryContext(ctx context.Context, issue *types.Issue) (*types.HistoryContext, error)
}

// Capability names the evidence lookups a router can serve
type Capability string

const (
	CapabilityCause   Capability = "cause"
	CapabilityHistory Capability = "history"
)

// LocalHandler serves a capability in-process. The request and response
// payloads use the same JSON shapes as the remote transport.
type LocalHandler func(ctx context.Context, request json.RawMessage) (json.RawMessage, error)

// Endpoint binds a capability to either a local handler or a remote base
// URL. Exactly one of Local and RemoteURL is set.
type Endpoint struct {
	Capability Capability
	Local      LocalHandler
	RemoteURL  string
}

// Validate checks that the endpoint names exactly one target
func (e *Endpoint) Validate() error {
	if e.Capability == "" {
		return fmt.Errorf("capability is required")
	}
	if e.Local == nil && e.RemoteURL == "" {
		return fmt.Errorf("endpoint for %s has no local handler and no remote URL", e.Capability)
	}
	if e.Local != nil && e.RemoteURL != "" {
		return fmt.Errorf("endpoint for %s has both a local handler and a remote URL", e.Capability)
	}
	return nil
}

// Router maps capabilities to endpoints. Bindings are explicit: the router
// is constructed at startup with everything it will ever serve and injected
// where lookups happen. Resolving an unbound capability is an error, never
// a fallthrough to some ambient default.
type Router struct {
	mu        sync.RWMutex
	endpoints map[Capability]Endpoint
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{endpoints: make(map[Capability]Endpoint)}
}

// Register binds a capability to an endpoint. Re-registering a capability
// is an error; bindings never change after startup.
func (r *Router) Register(endpoint Endpoint) error {
	if err := endpoint.Validate(); err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.endpoints[endpoint.Capability]; exists {
		return fmt.Errorf("capability %s already registered", endpoint.Capability)
	}
	r.endpoints[endpoint.Capability] = endpoint
	return nil
}

// Resolve returns the endpoint bound to a capability
func (r *Router) Resolve(capability Capability) (Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	endpoint, ok := r.endpoints[capability]
	if !ok {
		return Endpoint{}, fmt.Errorf("no endpoint registered for capability %s", capability)
	}
	return endpoint, nil
}

// Capabilities returns the registered capability names
func (r *Router) Capabilities() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps := make([]Capability, 0, len(r.endpoints))
	for c := range r.endpoints {
		caps = append(caps, c)
	}
	return caps
}
