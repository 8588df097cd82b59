package store

import (
	"context"
	"time"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit   int       // max results (0 = unlimited)
	After   int64     // sequence > After
	Before  int64     // sequence < Before
	From    time.Time // timestamp >= From
	To      time.Time // timestamp <= To
	Purpose string    // exact purpose match when non-empty
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMEventRecord is a stored LLM request event.
type LLMEventRecord struct {
	ID        int
	Sequence  int64
	Timestamp time.Time
	LLMRequestEventData
}

// PurposeUsage aggregates token usage for one purpose label.
type PurposeUsage struct {
	Purpose      string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// ModelUsage aggregates token usage for one model ID.
type ModelUsage struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
}

// EventRepo provides append and query access to LLM request events.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// QueryLLMEvents returns events newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEventRecord, error)

	// GetLLMEvent returns the event with the given ID, or nil if none exists.
	GetLLMEvent(ctx context.Context, id int) (*LLMEventRecord, error)

	LLMUsageByPurpose(ctx context.Context) ([]PurposeUsage, error)
	LLMUsageByModel(ctx context.Context) ([]ModelUsage, error)
}

// User is a local account mirrored from the identity provider.
type User struct {
	ID          int
	ExternalID  string
	Email       string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserData is the identity-provider view of a user used for upserts.
type UserData struct {
	ExternalID  string
	Email       string
	DisplayName string
}

// UserRepo resolves identity-provider subjects to local users.
type UserRepo interface {
	// Upsert creates the user on first sight and refreshes email and display
	// name afterwards.
	Upsert(ctx context.Context, data UserData) (*User, error)
	GetByExternalID(ctx context.Context, externalID string) (*User, error)
}

// Course is the ownership record the course-management socket checks.
type Course struct {
	ID          string
	OwnerID     int
	Title       string
	Description string
	CreatedAt   time.Time
}

// CourseRepo stores course ownership.
type CourseRepo interface {
	Create(ctx context.Context, c Course) error

	// Get returns the course, or nil if it does not exist.
	Get(ctx context.Context, id string) (*Course, error)
}

// ConversationMessage is one stored conversation turn.
type ConversationMessage struct {
	ID             int
	Sequence       int64
	Timestamp      time.Time
	ConversationID string
	UserID         int
	CourseID       string
	Role           string
	Content        string
}

// ConversationRepo persists conversation history.
type ConversationRepo interface {
	Append(ctx context.Context, msg ConversationMessage) error

	// History returns the conversation oldest first. A positive limit keeps
	// only the most recent turns.
	History(ctx context.Context, conversationID string, limit int) ([]ConversationMessage, error)
}
