// Package ai drives model conversations for issue analysis.
package ai

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/triageops/triage/internal/types"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ModelDefault is the model used when none is configured
const ModelDefault = "claude-sonnet-4-5-20250929"

// GetDefaultModel returns the default model, checking TRIAGE_MODEL env var first
func GetDefaultModel() string {
	if model := os.Getenv("TRIAGE_MODEL"); model != "" {
		return model
	}
	return ModelDefault
}

// Completer produces one completion for an ordered transcript. The transcript
// carries three roles; the implementation decides how they map onto the
// provider's wire roles.
type Completer interface {
	Complete(ctx context.Context, transcript []*types.Message) (string, error)
}

// ClientConfig holds Anthropic client configuration
type ClientConfig struct {
	APIKey             string  // if empty, reads from ANTHROPIC_API_KEY env var
	Model              string  // default: claude-sonnet-4-5-20250929
	MaxTokens          int64   // default: 4096
	MaxConcurrentCalls int     // max in-flight API calls (default: 3, 0 = unlimited)
	RequestsPerSecond  float64 // client-side rate limit (default: 2, 0 = unlimited)
}

// AnthropicClient is a Completer backed by the Anthropic Messages API
type AnthropicClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	sem       *semaphore.Weighted
	limiter   *rate.Limiter
}

// NewAnthropicClient creates a Messages API backed completer
func NewAnthropicClient(cfg *ClientConfig) (*AnthropicClient, error) {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = GetDefaultModel()
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	var sem *semaphore.Weighted
	maxConcurrent := cfg.MaxConcurrentCalls
	if maxConcurrent == 0 {
		maxConcurrent = 3
	}
	if maxConcurrent > 0 {
		sem = semaphore.NewWeighted(int64(maxConcurrent))
	}

	var limiter *rate.Limiter
	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = 2
	}
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	return &AnthropicClient{
		client:    &client,
		model:     model,
		maxTokens: maxTokens,
		sem:       sem,
		limiter:   limiter,
	}, nil
}

// Complete sends the full transcript to the Messages API and returns the
// completion text. Transcript roles fold onto the two wire roles: system and
// user entries both become "user" turns, assistant entries become
// "assistant" turns. The system prompt slot is deliberately unused so the
// transcript order stays the single source of truth.
func (c *AnthropicClient) Complete(ctx context.Context, transcript []*types.Message) (string, error) {
	if len(transcript) == 0 {
		return "", &InferenceError{Operation: "completion", Err: fmt.Errorf("empty transcript")}
	}

	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return "", &InferenceError{Operation: "completion", Err: fmt.Errorf("failed to acquire concurrency slot: %w", err)}
		}
		defer c.sem.Release(1)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &InferenceError{Operation: "completion", Err: fmt.Errorf("rate limit wait canceled: %w", err)}
		}
	}

	messages := make([]anthropic.MessageParam, 0, len(transcript))
	for _, msg := range transcript {
		switch msg.Role {
		case types.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	response, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  messages,
	})
	if err != nil {
		return "", &InferenceError{Operation: "completion", Err: err}
	}

	var responseText string
	for _, block := range response.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}
	if responseText == "" {
		return "", &InferenceError{Operation: "completion", Err: fmt.Errorf("response contained no text blocks")}
	}

	return responseText, nil
}
