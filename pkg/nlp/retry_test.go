package nlp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/episodic/pkg/types"
)

// mockClient fails the first failUntilCall calls with errorToReturn.
type mockClient struct {
	callCount     int
	failUntilCall int
	errorToReturn error
	closed        bool
}

func (m *mockClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	m.callCount++
	if m.callCount <= m.failUntilCall {
		return nil, m.errorToReturn
	}
	return &types.Response{Content: "success", Model: "mock", TokensUsed: &types.TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}}, nil
}

func (m *mockClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	m.callCount++
	if m.callCount <= m.failUntilCall {
		return nil, m.errorToReturn
	}
	return &types.Response{Content: `{"entities": []}`}, nil
}

func (m *mockClient) Close() error {
	m.closed = true
	return nil
}

func fastRetry(retries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries:        retries,
		InitialDelay:      10 * time.Millisecond,
		MaxDelay:          100 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

var userMessages = []types.Message{{Role: RoleUser, Content: "test"}}

func TestRetryClientSucceedsFirstAttempt(t *testing.T) {
	mock := &mockClient{}
	resp, err := NewRetryClient(mock, fastRetry(3), nil).Chat(context.Background(), userMessages)
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Content)
	assert.Equal(t, 1, mock.callCount)
}

func TestRetryClientSucceedsAfterRetries(t *testing.T) {
	mock := &mockClient{failUntilCall: 2, errorToReturn: errors.New("500 internal server error")}

	start := time.Now()
	resp, err := NewRetryClient(mock, fastRetry(3), nil).Chat(context.Background(), userMessages)
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Content)
	assert.Equal(t, 3, mock.callCount)
	// 10ms + 20ms of backoff
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRetryClientGivesUpAfterMaxRetries(t *testing.T) {
	cause := errors.New("503 service unavailable")
	mock := &mockClient{failUntilCall: 10, errorToReturn: cause}

	_, err := NewRetryClient(mock, fastRetry(3), nil).Chat(context.Background(), userMessages)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 4, mock.callCount)
}

func TestRetryClientStopsOnNonRetryableError(t *testing.T) {
	mock := &mockClient{failUntilCall: 10, errorToReturn: errors.New("400 bad request")}

	_, err := NewRetryClient(mock, fastRetry(3), nil).Chat(context.Background(), userMessages)
	require.Error(t, err)
	assert.Equal(t, 1, mock.callCount)
}

func TestRetryClientRetriesRateLimit(t *testing.T) {
	mock := &mockClient{failUntilCall: 2, errorToReturn: NewRateLimitError("slow down")}

	resp, err := NewRetryClient(mock, fastRetry(3), nil).ChatWithStructuredOutput(context.Background(), userMessages, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"entities": []}`, resp.Content)
	assert.Equal(t, 3, mock.callCount)
}

func TestRetryClientHonoursContext(t *testing.T) {
	mock := &mockClient{failUntilCall: 10, errorToReturn: errors.New("500 internal server error")}
	cfg := &RetryConfig{MaxRetries: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffMultiplier: 2}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewRetryClient(mock, cfg, nil).Chat(ctx, userMessages)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, mock.callCount, 6)
}

func TestRetryClientExponentialBackoff(t *testing.T) {
	cfg := &RetryConfig{MaxRetries: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffMultiplier: 2}
	rc := NewRetryClient(nil, cfg, nil)

	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
	}
	for i, want := range expected {
		assert.Equal(t, want, rc.calculateDelay(i+1), "attempt %d", i+1)
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.InitialDelay)
	assert.Equal(t, 60*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.BackoffMultiplier)
}

// httpError implements httpErrorWithStatusCode for testing
type httpError struct {
	statusCode int
	message    string
}

func (e httpError) Error() string {
	return fmt.Sprintf("%d: %s", e.statusCode, e.message)
}

func (e httpError) HTTPStatusCode() int {
	return e.statusCode
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil error", nil, false},
		{"500 error", errors.New("500 internal server error"), true},
		{"502 error", errors.New("502 bad gateway"), true},
		{"504 error", errors.New("504 gateway timeout"), true},
		{"timeout", errors.New("connection timeout"), true},
		{"429 error", errors.New("429 too many requests"), true},
		{"400 error", errors.New("400 bad request"), false},
		{"404 error", errors.New("404 not found"), false},
		{"rate limit error type", NewRateLimitError(), true},
		{"wrapped rate limit", fmt.Errorf("extract: %w", NewRateLimitError()), true},
		{"refusal error", NewRefusalError("refused"), false},
		{"circuit open", fmt.Errorf("%w: openai", ErrCircuitOpen), false},
		{"connection reset", errors.New("connection reset by peer"), true},
		{"status 503", httpError{statusCode: 503, message: "unavailable"}, true},
		{"status 429", httpError{statusCode: 429, message: "slow down"}, true},
		{"status 401", httpError{statusCode: 401, message: "unauthorized"}, false},
		{"status error wrapped", &StatusError{StatusCode: 502, Err: errors.New("upstream")}, true},
		{"status error client side", &StatusError{StatusCode: 400, Err: errors.New("bad")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, isRetryableError(tt.err))
		})
	}
}
