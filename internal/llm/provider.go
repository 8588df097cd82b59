package llm

import (
	"context"
	"iter"
	"strings"
)

// Provider is the core abstraction for single-shot LLM interaction.
type Provider interface {
	// Generate sends a prompt to the LLM and returns its output.
	// When the request's Schema field is set the provider uses its native
	// structured output mechanism and validates the result against it.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// ChatProvider opens multi-turn conversations in which the model keeps
// track of prior turns and may answer with a function call instead of text.
type ChatProvider interface {
	StartChat(ctx context.Context, cfg ChatConfig) (ChatSession, error)
	ModelID() string
}

// ChatSession is a live conversation. Sessions are not safe for concurrent
// use; callers serialize turns.
type ChatSession interface {
	// Send delivers one user turn and waits for the complete reply.
	Send(ctx context.Context, text string) (*ChatReply, error)

	// SendStream delivers one user turn and yields the reply as text chunks.
	// The sequence is finite and cannot be restarted.
	SendStream(ctx context.Context, text string) iter.Seq2[string, error]
}

// Request describes what to send to the LLM.
type Request struct {
	// System is the system instruction.
	System string

	// Messages is the conversation history. For single-shot generation this
	// holds one user message.
	Messages []Message

	// Schema, when set, asks the provider for JSON conforming to it.
	// When nil, the response Text is the raw model output.
	Schema *Schema

	// Media attaches non-text inputs (e.g. a video URL) to the last user
	// message. Only providers with media understanding accept it.
	Media []MediaPart

	// MaxTokens is the maximum number of tokens in the response.
	// Zero leaves the provider default in place.
	MaxTokens int

	// Temperature controls randomness. Range: 0.0 - 1.0.
	Temperature float64
}

// Message represents a single message in the conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MediaPart references remote media by URI.
type MediaPart struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mime_type,omitempty"`
}

// Schema defines the JSON structure expected from the LLM.
type Schema struct {
	// Name identifies this schema. Kebab-case, e.g. "course-detail".
	Name string

	// Description is a human-readable description of what this schema
	// represents. Sent to the LLM to guide generation.
	Description string

	// Definition is the JSON Schema definition as a map.
	Definition map[string]any
}

// Response holds the LLM's output.
type Response struct {
	// Text is the generated output. When a Schema was provided in the
	// request this is validated JSON.
	Text string

	// Usage reports token consumption for this request.
	Usage Usage

	// Model is the actual model that served the request.
	Model string

	// StopReason indicates why generation stopped.
	// Normalized to: "end", "max_tokens", "error"
	StopReason string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ChatConfig configures a new chat session.
type ChatConfig struct {
	System      string
	Temperature float64
	MaxTokens   int

	// Tools are functions the model may call instead of replying with text.
	Tools []FunctionDeclaration
}

// FunctionDeclaration describes a function the model may invoke.
type FunctionDeclaration struct {
	Name        string
	Description string
	Parameters  *Schema
}

// ResponseKind tells callers what a chat reply carries.
type ResponseKind int

const (
	KindText ResponseKind = iota
	KindFunctionCall
)

func (k ResponseKind) String() string {
	if k == KindFunctionCall {
		return "function_call"
	}
	return "text"
}

// FunctionCall is a model request to invoke a declared function.
type FunctionCall struct {
	Name string
	Args map[string]any
}

// StringArg returns the named argument as a trimmed string, or "" when it
// is absent or not a string.
func (fc FunctionCall) StringArg(name string) string {
	if fc.Args == nil {
		return ""
	}
	s, _ := fc.Args[name].(string)
	return strings.TrimSpace(s)
}

// ChatReply is the normalized reply to one chat turn. When Kind is
// KindFunctionCall, FunctionCalls is non-empty; Text may still carry any
// text the model emitted alongside the call.
type ChatReply struct {
	Kind          ResponseKind
	Text          string
	FunctionCalls []FunctionCall
	Usage         Usage
}
