package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = RetryConfig{
	MaxAttempts: 3,
	InitialWait: time.Millisecond,
	MaxWait:     10 * time.Millisecond,
	Multiplier:  2,
}

func unavailable() MockResponse {
	return MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("503")}}
}

func okResponse() MockResponse { return MockResponse{Text: `{"ok":true}`} }

func TestRetryProvider(t *testing.T) {
	tests := []struct {
		name      string
		responses []MockResponse
		wantCalls int
		wantErr   bool
	}{
		{"first attempt", []MockResponse{okResponse()}, 1, false},
		{"transient then success", []MockResponse{unavailable(), okResponse()}, 2, false},
		{"exhausted", []MockResponse{unavailable(), unavailable(), unavailable(), okResponse()}, 3, true},
		{"rate limit hint", []MockResponse{{Err: &ErrRateLimit{RetryAfter: time.Millisecond, Err: errors.New("429")}}, okResponse()}, 2, false},
		{"heuristic transient", []MockResponse{{Err: errors.New("recvmsg: connection reset by peer")}, okResponse()}, 2, false},
		{"truncated output", []MockResponse{{Err: &ErrMaxTokensExceeded{Content: "{"}}, okResponse()}, 1, true},
		{"invalid output", []MockResponse{{Err: &ErrInvalidResponse{Err: errors.New("bad json")}}, okResponse()}, 1, true},
		{"client error", []MockResponse{{Err: &ErrUpstream{StatusCode: 403, Err: errors.New("quota")}}, okResponse()}, 1, true},
		{"unsupported", []MockResponse{{Err: fmt.Errorf("media: %w", ErrUnsupported)}, okResponse()}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockProvider(tt.responses...)
			resp, err := WithRetry(mock, fastRetry).Generate(context.Background(), Request{})
			assert.Equal(t, tt.wantCalls, mock.CallCount())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, `{"ok":true}`, resp.Text)
		})
	}
}

func TestRetryProvider_KeepsErrorType(t *testing.T) {
	mock := NewMockProvider(MockResponse{Err: &ErrMaxTokensExceeded{Content: `{"a":`}})
	_, err := WithRetry(mock, fastRetry).Generate(context.Background(), Request{})
	var mt *ErrMaxTokensExceeded
	assert.ErrorAs(t, err, &mt)
}

func TestRetryProvider_StopsOnCancel(t *testing.T) {
	slow := fastRetry
	slow.InitialWait = time.Hour
	slow.MaxWait = time.Hour
	mock := NewMockProvider(unavailable(), okResponse())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := WithRetry(mock, slow).Generate(ctx, Request{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, mock.CallCount())
}

func TestRetryProvider_ModelID(t *testing.T) {
	assert.Equal(t, "mock", WithRetry(NewMockProvider(), fastRetry).ModelID())
}

func TestClassifyTransient(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		basis     string
	}{
		{"nil", nil, false, BasisNone},
		{"rate limit", &ErrRateLimit{Err: errors.New("429")}, true, BasisStructured},
		{"unavailable", &ErrProviderUnavailable{Err: errors.New("503")}, true, BasisStructured},
		{"client error mentioning unavailable", &ErrUpstream{StatusCode: 401, Err: errors.New("Service Unavailable")}, false, BasisStructured},
		{"invalid response", &ErrInvalidResponse{Err: errors.New("bad json")}, false, BasisStructured},
		{"canceled", context.Canceled, false, BasisStructured},
		{"unavailable text", errors.New("503 UNAVAILABLE"), true, BasisHeuristic},
		{"recvmsg text", errors.New("recvmsg: connection reset"), true, BasisHeuristic},
		{"address text", errors.New("cannot assign requested Address"), true, BasisHeuristic},
		{"permanent text", errors.New("permission denied"), false, BasisHeuristic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transient, basis := ClassifyTransient(tt.err)
			assert.Equal(t, tt.transient, transient)
			assert.Equal(t, tt.basis, basis)
		})
	}
}

func TestErrInvalidResponse_TruncatesRaw(t *testing.T) {
	err := &ErrInvalidResponse{Content: strings.Repeat("x", 900), Err: errors.New("invalid JSON")}
	msg := err.Error()
	assert.NotContains(t, msg, strings.Repeat("x", 501))
	assert.Contains(t, msg, strings.Repeat("x", 500)+"...")
}

func TestRetryConfig_Backoff(t *testing.T) {
	cfg := RetryConfig{InitialWait: time.Second, MaxWait: 5 * time.Second, Multiplier: 2}
	for attempt, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second} {
		assert.Equal(t, want, cfg.Backoff(attempt), "attempt %d", attempt)
	}
	assert.Equal(t, time.Second, RetryConfig{InitialWait: time.Second}.Backoff(3))
}
