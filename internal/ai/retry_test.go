package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/triageops/triage/internal/types"
)

// flakyCompleter fails a fixed number of times before succeeding
type flakyCompleter struct {
	failures int
	errText  string
	calls    int
}

func (f *flakyCompleter) Complete(ctx context.Context, transcript []*types.Message) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New(f.errText)
	}
	return "recovered", nil
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:            3,
		InitialBackoff:        time.Millisecond,
		MaxBackoff:            5 * time.Millisecond,
		BackoffMultiplier:     2.0,
		Timeout:               time.Second,
		CircuitBreakerEnabled: false,
	}
}

func TestRetryingCompleterRecoversFromTransientErrors(t *testing.T) {
	inner := &flakyCompleter{failures: 2, errText: "503 service unavailable"}
	rc := NewRetryingCompleter(inner, fastRetryConfig())

	transcript := []*types.Message{{IssueID: "iss-1", Role: types.RoleUser, Content: "x"}}
	result, err := rc.Complete(context.Background(), transcript)
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingCompleterStopsOnNonRetriable(t *testing.T) {
	inner := &flakyCompleter{failures: 10, errText: "401 unauthorized"}
	rc := NewRetryingCompleter(inner, fastRetryConfig())

	_, err := rc.Complete(context.Background(), []*types.Message{{Role: types.RoleUser, Content: "x"}})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls, "non-retriable errors must not be retried")

	var infErr *InferenceError
	assert.True(t, errors.As(err, &infErr), "errors must surface as InferenceError")
}

func TestRetryingCompleterExhaustsRetries(t *testing.T) {
	inner := &flakyCompleter{failures: 10, errText: "rate limit exceeded"}
	rc := NewRetryingCompleter(inner, fastRetryConfig())

	_, err := rc.Complete(context.Background(), []*types.Message{{Role: types.RoleUser, Content: "x"}})
	require.Error(t, err)
	assert.Equal(t, 4, inner.calls, "expected initial attempt plus 3 retries")
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		err       error
		retriable bool
	}{
		{nil, false},
		{context.DeadlineExceeded, true},
		{errors.New("429 too many requests"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("502 bad gateway"), true},
		{errors.New("connection refused"), true},
		{errors.New("400 bad request"), false},
		{errors.New("401 unauthorized"), false},
		{errors.New("invalid model name"), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.retriable, isRetriableError(tt.err), "err: %v", tt.err)
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, 2, 50*time.Millisecond)
	require.Equal(t, CircuitClosed, cb.GetState())

	for i := 0; i < 3; i++ {
		require.NoError(t, cb.Allow())
		cb.RecordFailure()
	}
	assert.Equal(t, CircuitOpen, cb.GetState())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, 10*time.Millisecond)
	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.GetState())

	time.Sleep(15 * time.Millisecond)
	require.NoError(t, cb.Allow(), "open circuit should probe after timeout")
	assert.Equal(t, CircuitHalfOpen, cb.GetState())

	cb.RecordSuccess()
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.GetState())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, 10*time.Millisecond)
	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	require.NoError(t, cb.Allow())
	require.Equal(t, CircuitHalfOpen, cb.GetState())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.GetState())
}

func TestRetryingCompleterCircuitBreakerFailsFast(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.CircuitBreakerEnabled = true
	cfg.FailureThreshold = 2
	cfg.SuccessThreshold = 1
	cfg.OpenTimeout = time.Minute

	inner := &flakyCompleter{failures: 100, errText: "503 service unavailable"}
	rc := NewRetryingCompleter(inner, cfg)

	transcript := []*types.Message{{Role: types.RoleUser, Content: "x"}}
	_, err := rc.Complete(context.Background(), transcript)
	require.Error(t, err)

	// The circuit opened during the first call's retries; later calls fail fast.
	callsAfterFirst := inner.calls
	_, err = rc.Complete(context.Background(), transcript)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, callsAfterFirst, inner.calls, "open circuit must not reach the completer")
}
