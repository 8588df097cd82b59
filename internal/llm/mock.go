package llm

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
)

// errQueueDrained is returned by the mocks once their script runs out.
var errQueueDrained = &ErrProviderUnavailable{Err: errors.New("mock: no scripted response left")}

// MockResponse is one scripted result for MockProvider.
type MockResponse struct {
	Text  string
	Usage Usage
	Err   error
}

// MockProvider replays MockResponses in order and keeps every Request it
// was given in Calls.
type MockProvider struct {
	mu        sync.Mutex
	responses []MockResponse
	Calls     []Request
}

func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{responses: responses}
}

func (m *MockProvider) Generate(_ context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)

	next, ok := shift(&m.responses)
	switch {
	case !ok:
		return nil, errQueueDrained
	case next.Err != nil:
		return nil, next.Err
	}
	return &Response{Text: next.Text, Usage: next.Usage, Model: "mock", StopReason: "end"}, nil
}

func (m *MockProvider) ModelID() string { return "mock" }

// AddResponse scripts one more result.
func (m *MockProvider) AddResponse(resp MockResponse) {
	m.mu.Lock()
	m.responses = append(m.responses, resp)
	m.mu.Unlock()
}

// CallCount is the number of Generate calls so far.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// shift pops the head of q.
func shift[T any](q *[]T) (T, bool) {
	var zero T
	if len(*q) == 0 {
		return zero, false
	}
	head := (*q)[0]
	*q = (*q)[1:]
	return head, true
}

// MockTurn is a canned reply to one chat turn. When Chunks is set the turn
// is only valid for SendStream.
type MockTurn struct {
	Reply  *ChatReply
	Chunks []string
	Err    error
}

// MockChatProvider hands out MockChatSessions that share one FIFO queue of
// turns, so tests can script a whole conversation up front.
type MockChatProvider struct {
	mu       sync.Mutex
	turns    []MockTurn
	Configs  []ChatConfig
	Sent     []string
	sessions int
}

// NewMockChatProvider creates a MockChatProvider with the given turns.
func NewMockChatProvider(turns ...MockTurn) *MockChatProvider {
	return &MockChatProvider{turns: turns}
}

func (m *MockChatProvider) StartChat(_ context.Context, cfg ChatConfig) (ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Configs = append(m.Configs, cfg)
	m.sessions++
	return &mockChatSession{provider: m}, nil
}

func (m *MockChatProvider) ModelID() string { return "mock" }

// AddTurn appends a canned turn to the queue.
func (m *MockChatProvider) AddTurn(turn MockTurn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turn)
}

// SessionCount returns how many sessions StartChat has opened.
func (m *MockChatProvider) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions
}

// StartedConfigs returns a copy of the configs passed to StartChat.
func (m *MockChatProvider) StartedConfigs() []ChatConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.Configs)
}

// SendCount returns how many turns were sent across all sessions.
func (m *MockChatProvider) SendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

func (m *MockChatProvider) next(text string) MockTurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, text)
	t, ok := shift(&m.turns)
	if !ok {
		return MockTurn{Err: errQueueDrained}
	}
	return t
}

type mockChatSession struct {
	provider *MockChatProvider
}

func (s *mockChatSession) Send(_ context.Context, text string) (*ChatReply, error) {
	t := s.provider.next(text)
	if t.Err != nil {
		return nil, t.Err
	}
	if t.Reply == nil {
		return &ChatReply{Kind: KindText}, nil
	}
	return t.Reply, nil
}

func (s *mockChatSession) SendStream(_ context.Context, text string) iter.Seq2[string, error] {
	t := s.provider.next(text)
	return func(yield func(string, error) bool) {
		if t.Err != nil {
			yield("", t.Err)
			return
		}
		for _, c := range t.Chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}
