package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/coursepilot/internal/logger"
	"github.com/abhisek/coursepilot/internal/store"
)

type recordingRepo struct {
	store.EventRepo
	events []store.LLMRequestEventData
	err    error
}

func (r *recordingRepo) AppendLLMRequest(_ context.Context, data store.LLMRequestEventData) error {
	r.events = append(r.events, data)
	return r.err
}

func TestLoggingProvider_RecordsEvent(t *testing.T) {
	repo := &recordingRepo{}
	mock := NewMockProvider(MockResponse{Text: `{"ok":true}`, Usage: Usage{InputTokens: 12, OutputTokens: 3}})
	p := WithLogging(mock, "gemini", repo, logger.Nop())

	ctx := WithPurpose(context.Background(), PurposeQuiz)
	_, err := p.Generate(ctx, Request{
		System:    "sys",
		Messages:  []Message{{Role: RoleUser, Content: "make a quiz"}},
		Schema:    &Schema{Name: "quiz"},
		MaxTokens: 900,
	})
	require.NoError(t, err)
	require.Len(t, repo.events, 1)

	e := repo.events[0]
	assert.Equal(t, "gemini", e.Provider)
	assert.Equal(t, "mock", e.Model)
	assert.Equal(t, PurposeQuiz, e.Purpose)
	assert.True(t, e.Success)
	assert.Equal(t, 12, e.InputTokens)
	assert.Equal(t, `{"ok":true}`, e.ResponseBody)

	var req requestTranscript
	require.NoError(t, json.Unmarshal([]byte(e.RequestBody), &req))
	assert.Equal(t, "sys", req.System)
	assert.Equal(t, "quiz", req.Schema)
	assert.Equal(t, 900, req.MaxTokens)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "make a quiz", req.Messages[0].Content)
}

func TestLoggingProvider_RecordsFailureAndIgnoresRepoError(t *testing.T) {
	repo := &recordingRepo{err: errors.New("disk full")}
	mock := NewMockProvider(MockResponse{Err: &ErrUpstream{StatusCode: 401, Err: errors.New("bad key")}})
	p := WithLogging(mock, "", repo, nil)

	_, err := p.Generate(context.Background(), Request{})
	assert.True(t, IsUpstream(err), "upstream error should pass through, got %v", err)
	require.Len(t, repo.events, 1)
	assert.False(t, repo.events[0].Success)
	assert.NotEmpty(t, repo.events[0].ErrorMessage)
	assert.Equal(t, "mock", repo.events[0].Provider)
	assert.Equal(t, "unknown", repo.events[0].Purpose)
}

func TestLoggingProvider_NilRepo(t *testing.T) {
	p := WithLogging(NewMockProvider(MockResponse{Text: "{}"}), "mock", nil, nil)
	_, err := p.Generate(context.Background(), Request{})
	assert.NoError(t, err)
}
