// Package chat hosts the conversational course builder: the websocket
// protocol, per-connection chat sessions and the turn orchestrator that
// routes model function calls to the content generators.
package chat

// Client to server message types.
const (
	TypeAuth       = "auth"
	TypeMessage    = "message"
	TypeRefinement = "refinement"
	TypeSave       = "save"
)

// Server to client message types. Plain text replies reuse TypeMessage.
const (
	TypeConnected                   = "connected"
	TypeAuthSuccess                 = "auth_success"
	TypeError                       = "error"
	TypeFunctionCall                = "function_call"
	TypeCourseGenerated             = "course_generated"
	TypeCourseIntroductionGenerated = "course_introduction_generated"
	TypeLessonGenerated             = "lesson_generated"
	TypeAssignmentGenerated         = "assignment_generated"
	TypeQuizGenerated               = "quiz_generated"
	TypeStreaming                   = "streaming"
	TypeComplete                    = "complete"
	TypeSaveSuccess                 = "save_success"
)

// Close codes sent before the server drops a connection.
const (
	CloseAuthFailed     = 4001
	CloseForbidden      = 4003
	CloseInvalidCourse  = 4004
	closePolicyViolated = 1008
)

// Inbound is a client message.
type Inbound struct {
	Type           string `json:"type"`
	Token          string `json:"token,omitempty"`
	Content        string `json:"content,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	// Context carries page state such as the course or lesson being edited.
	// Its string values fill function arguments the model left out.
	Context map[string]any `json:"context,omitempty"`
}

// Outbound is a server message. Only the fields relevant to Type are set.
type Outbound struct {
	Type           string         `json:"type"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Message        string         `json:"message,omitempty"`
	Content        string         `json:"content,omitempty"`
	Function       string         `json:"function,omitempty"`
	Args           map[string]any `json:"args,omitempty"`
	Data           any            `json:"data,omitempty"`
	User           *UserInfo      `json:"user,omitempty"`
	CourseID       string         `json:"course_id,omitempty"`
}

// UserInfo is the authenticated user echoed in auth_success.
type UserInfo struct {
	ID    int    `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Sink receives the messages produced while handling one inbound message.
type Sink interface {
	Send(Outbound) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Outbound) error

func (f SinkFunc) Send(m Outbound) error { return f(m) }
