package chat

import (
	"context"
	"fmt"

	"github.com/abhisek/coursepilot/internal/llm"
)

// SessionStore lazily opens one chat session per conversation id. A store
// belongs to a single connection and is used from one goroutine, so it
// does no locking.
type SessionStore struct {
	provider llm.ChatProvider
	cfg      llm.ChatConfig
	sessions map[string]llm.ChatSession
}

func NewSessionStore(provider llm.ChatProvider, cfg llm.ChatConfig) *SessionStore {
	return &SessionStore{
		provider: provider,
		cfg:      cfg,
		sessions: make(map[string]llm.ChatSession),
	}
}

// Get returns the session for conversationID, starting one on first use.
func (s *SessionStore) Get(ctx context.Context, conversationID string) (llm.ChatSession, error) {
	if sess, ok := s.sessions[conversationID]; ok {
		return sess, nil
	}
	sess, err := s.provider.StartChat(ctx, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("start chat session: %w", err)
	}
	s.sessions[conversationID] = sess
	return sess, nil
}

// Len returns the number of open sessions.
func (s *SessionStore) Len() int { return len(s.sessions) }

// Reset drops every session.
func (s *SessionStore) Reset() {
	clear(s.sessions)
}
