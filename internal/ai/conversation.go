package ai

import (
	"context"
	"fmt"

	"github.com/triageops/triage/internal/types"
)

// Recorder is called for every message the conversation adds to its
// transcript. The analysis worker uses it to persist and broadcast each
// entry; a nil recorder keeps the conversation purely in-memory.
type Recorder func(ctx context.Context, msg *types.Message) error

// Conversation is an ordered role-tagged transcript bound to one issue.
// Entries are append-only; the whole transcript is sent on every inference
// call, never truncated.
type Conversation struct {
	issueID    string
	completer  Completer
	recorder   Recorder
	transcript []*types.Message
}

// NewConversation creates a conversation for an issue. The seed transcript
// (replayed from storage) may be nil.
func NewConversation(issueID string, completer Completer, recorder Recorder, seed []*types.Message) *Conversation {
	transcript := make([]*types.Message, len(seed))
	copy(transcript, seed)
	return &Conversation{
		issueID:    issueID,
		completer:  completer,
		recorder:   recorder,
		transcript: transcript,
	}
}

// Transcript returns the current transcript in append order
func (c *Conversation) Transcript() []*types.Message {
	return c.transcript
}

// Last returns the most recent entry, or nil for an empty transcript
func (c *Conversation) Last() *types.Message {
	if len(c.transcript) == 0 {
		return nil
	}
	return c.transcript[len(c.transcript)-1]
}

// Say appends a message to the transcript without calling the model
func (c *Conversation) Say(ctx context.Context, role types.Role, content string) (*types.Message, error) {
	msg := &types.Message{
		IssueID: c.issueID,
		Role:    role,
		Content: content,
	}
	if c.recorder != nil {
		if err := c.recorder(ctx, msg); err != nil {
			return nil, fmt.Errorf("failed to record message: %w", err)
		}
	}
	c.transcript = append(c.transcript, msg)
	return msg, nil
}

// Observe appends an externally created message (one already persisted by
// someone else, like an observer's answer) to the in-memory transcript only.
func (c *Conversation) Observe(msg *types.Message) {
	c.transcript = append(c.transcript, msg)
}

// Ask appends an instruction as a user turn, runs inference over the full
// transcript, appends the completion as an assistant turn, and returns the
// completion text.
func (c *Conversation) Ask(ctx context.Context, instruction string) (string, error) {
	if _, err := c.Say(ctx, types.RoleUser, instruction); err != nil {
		return "", err
	}

	completion, err := c.completer.Complete(ctx, c.transcript)
	if err != nil {
		return "", err
	}

	if _, err := c.Say(ctx, types.RoleAssistant, completion); err != nil {
		return "", err
	}
	return completion, nil
}
