// Package hub fans analysis progress events out to live observers.
//
// Publishers (the analysis worker, the front door) push events for an issue;
// every subscriber of that issue receives them. Delivery is at-most-once and
// never blocks the publisher: a subscriber that stops draining its channel is
// dropped like a broken connection. Missed history is the subscriber's
// problem to replay from storage before going live.
package hub

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber this
// far behind a live analysis is treated as broken.
const subscriberBuffer = 64

// Subscriber is one live observer of an issue's events
type Subscriber struct {
	ID      string
	IssueID string
	Events  chan Event

	closeOnce sync.Once
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.Events) })
}

// Hub is an in-process event broadcaster keyed by issue ID
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[string]*Subscriber // issueID → subscriberID → subscriber
	logger *slog.Logger
}

// New creates a hub. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[string]*Subscriber),
		logger: logger,
	}
}

// Subscribe registers a new observer for an issue. The caller must drain
// the Events channel; it is closed on Unsubscribe, on drop, or when the
// issue's stream is closed after a terminal event.
func (h *Hub) Subscribe(issueID string) *Subscriber {
	sub := &Subscriber{
		ID:      uuid.New().String(),
		IssueID: issueID,
		Events:  make(chan Event, subscriberBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[issueID] == nil {
		h.subs[issueID] = make(map[string]*Subscriber)
	}
	h.subs[issueID][sub.ID] = sub

	h.logger.Debug("subscriber added", "issue_id", issueID, "subscriber_id", sub.ID)
	return sub
}

// Unsubscribe removes an observer and closes its channel. Safe to call for
// a subscriber that was already dropped.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[sub.IssueID]; ok {
		delete(set, sub.ID)
		if len(set) == 0 {
			delete(h.subs, sub.IssueID)
		}
	}
	h.mu.Unlock()

	sub.close()
}

// Publish delivers an event to every subscriber of the issue. Subscribers
// with full buffers are dropped; other subscribers are unaffected. Publish
// never blocks.
func (h *Hub) Publish(issueID string, event Event) {
	h.mu.RLock()
	set := h.subs[issueID]
	targets := make([]*Subscriber, 0, len(set))
	for _, sub := range set {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	var dropped []*Subscriber
	for _, sub := range targets {
		select {
		case sub.Events <- event:
		default:
			dropped = append(dropped, sub)
		}
	}

	for _, sub := range dropped {
		h.logger.Warn("dropping slow subscriber", "issue_id", issueID, "subscriber_id", sub.ID)
		h.Unsubscribe(sub)
	}
}

// CloseIssue closes every subscriber of an issue. Called after the terminal
// event has been published so observers see completion before the stream ends.
func (h *Hub) CloseIssue(issueID string) {
	h.mu.Lock()
	set := h.subs[issueID]
	delete(h.subs, issueID)
	h.mu.Unlock()

	for _, sub := range set {
		sub.close()
	}
}

// SubscriberCount reports the number of live subscribers for an issue
func (h *Hub) SubscriberCount(issueID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[issueID])
}
