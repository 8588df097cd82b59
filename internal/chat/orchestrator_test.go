package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/coursepilot/internal/contentgen"
	"github.com/abhisek/coursepilot/internal/llm"
	"github.com/abhisek/coursepilot/internal/schemas"
	"github.com/abhisek/coursepilot/internal/store"
	"github.com/abhisek/coursepilot/internal/structured"
)

type memoryHistory struct {
	mu   sync.Mutex
	msgs []store.ConversationMessage
}

func (h *memoryHistory) Append(_ context.Context, m store.ConversationMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, m)
	return nil
}

func (h *memoryHistory) byRole(role string) []store.ConversationMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []store.ConversationMessage
	for _, m := range h.msgs {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

type recordingSink struct {
	msgs []Outbound
}

func (s *recordingSink) Send(m Outbound) error {
	s.msgs = append(s.msgs, m)
	return nil
}

func (s *recordingSink) ofType(typ string) []Outbound {
	var out []Outbound
	for _, m := range s.msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (s *recordingSink) types() []string {
	out := make([]string, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = m.Type
	}
	return out
}

type fixture struct {
	orch    *Orchestrator
	chat    *llm.MockChatProvider
	gen     *llm.MockProvider
	history *memoryHistory
	scope   *Scope
}

func newFixture(genResponses ...llm.MockResponse) *fixture {
	gen := llm.NewMockProvider(genResponses...)
	chat := llm.NewMockChatProvider()
	history := &memoryHistory{}
	svc := contentgen.New(structured.New(gen, nil), nil)
	return &fixture{
		orch:    NewOrchestrator(svc, history, Config{MaxRetries: 3, RetryBase: time.Millisecond}, nil),
		chat:    chat,
		gen:     gen,
		history: history,
		scope: &Scope{
			UserID:   7,
			Sessions: NewSessionStore(chat, llm.ChatConfig{System: BuilderSystem, Tools: schemas.BuilderFunctions()}),
		},
	}
}

func functionCall(name string, args map[string]any) llm.MockTurn {
	return llm.MockTurn{Reply: &llm.ChatReply{
		Kind:          llm.KindFunctionCall,
		FunctionCalls: []llm.FunctionCall{{Name: name, Args: args}},
	}}
}

const roboticsCourseJSON = `{
	"title": "Intro to Robotics",
	"short_description": "Build and program simple robots.",
	"long_description": "Sensors, actuators and control loops, step by step.",
	"category": "Engineering",
	"difficulty_level": "beginner",
	"learning_objectives": ["Wire a sensor"],
	"tags": ["robotics"]
}`

func TestHandle_GenerateCourseFunctionCall(t *testing.T) {
	f := newFixture(llm.MockResponse{Text: roboticsCourseJSON})
	f.chat.AddTurn(functionCall(schemas.FnGenerateCourse, map[string]any{"user_request": "a course on robotics"}))

	sink := &recordingSink{}
	err := f.orch.Handle(context.Background(), f.scope, Inbound{
		Type:           TypeMessage,
		Content:        "Make me a robotics course",
		ConversationID: "conv-1",
	}, sink)
	require.NoError(t, err)

	assert.Equal(t, []string{TypeFunctionCall, TypeCourseGenerated, TypeComplete}, sink.types())
	require.Len(t, sink.ofType(TypeCourseGenerated), 1)
	require.Len(t, sink.ofType(TypeComplete), 1)

	course, ok := sink.ofType(TypeCourseGenerated)[0].Data.(*contentgen.CourseDetail)
	require.True(t, ok, "course payload has type %T", sink.ofType(TypeCourseGenerated)[0].Data)
	assert.Equal(t, "Intro to Robotics", course.Title)

	assistant := f.history.byRole(RoleAssistant)
	require.Len(t, assistant, 1)
	assert.Contains(t, assistant[0].Content, "Intro to Robotics")
	assert.Equal(t, "conv-1", assistant[0].ConversationID)
	assert.Len(t, f.history.byRole(RoleUser), 1)

	// The generator saw the model's argument, and no follow-up turn was sent.
	require.Equal(t, 1, f.gen.CallCount())
	assert.Contains(t, f.gen.Calls[0].Messages[0].Content, "a course on robotics")
	assert.Equal(t, 1, f.chat.SendCount())
}

func TestHandle_PlainText(t *testing.T) {
	f := newFixture()
	f.chat.AddTurn(llm.MockTurn{Reply: &llm.ChatReply{Kind: llm.KindText, Text: "What level are your students?"}})

	sink := &recordingSink{}
	require.NoError(t, f.orch.Handle(context.Background(), f.scope, Inbound{Type: TypeMessage, Content: "help"}, sink))

	assert.Equal(t, []string{TypeMessage, TypeComplete}, sink.types())
	assert.Equal(t, "What level are your students?", sink.msgs[0].Content)
	assert.NotEmpty(t, sink.msgs[0].ConversationID, "a conversation id is assigned")
	assert.Equal(t, sink.msgs[0].ConversationID, sink.msgs[1].ConversationID)
	assert.Len(t, f.history.byRole(RoleAssistant), 1)
	assert.Equal(t, 0, f.gen.CallCount())
}

func TestHandle_EmptyReplyFallsBackToStream(t *testing.T) {
	f := newFixture()
	f.chat.AddTurn(llm.MockTurn{Reply: &llm.ChatReply{Kind: llm.KindText}})
	f.chat.AddTurn(llm.MockTurn{Chunks: []string{"Hello", ", ", "teacher"}})

	sink := &recordingSink{}
	require.NoError(t, f.orch.Handle(context.Background(), f.scope, Inbound{Type: TypeRefinement, Content: "hi"}, sink))

	assert.Equal(t, []string{TypeStreaming, TypeStreaming, TypeStreaming, TypeComplete}, sink.types())
	assert.Equal(t, "Hello, teacher", sink.ofType(TypeComplete)[0].Content)
	assistant := f.history.byRole(RoleAssistant)
	require.Len(t, assistant, 1)
	assert.Equal(t, "Hello, teacher", assistant[0].Content)
}

func TestHandle_ReusesSessionPerConversation(t *testing.T) {
	f := newFixture()
	for range 3 {
		f.chat.AddTurn(llm.MockTurn{Reply: &llm.ChatReply{Text: "ok"}})
	}
	ctx := context.Background()
	sink := &recordingSink{}
	require.NoError(t, f.orch.Handle(ctx, f.scope, Inbound{Type: TypeMessage, Content: "one", ConversationID: "a"}, sink))
	require.NoError(t, f.orch.Handle(ctx, f.scope, Inbound{Type: TypeMessage, Content: "two", ConversationID: "a"}, sink))
	require.NoError(t, f.orch.Handle(ctx, f.scope, Inbound{Type: TypeMessage, Content: "three", ConversationID: "b"}, sink))

	assert.Equal(t, 2, f.chat.SessionCount())
	assert.Equal(t, 2, f.scope.Sessions.Len())
	require.Len(t, f.chat.Configs, 2)
	assert.Len(t, f.chat.Configs[0].Tools, 5)
}

func TestHandle_RetriesTransientErrors(t *testing.T) {
	f := newFixture()
	f.chat.AddTurn(llm.MockTurn{Err: errors.New("rpc error: service unavailable")})
	f.chat.AddTurn(llm.MockTurn{Err: errors.New("read tcp: recvmsg: connection reset")})
	f.chat.AddTurn(llm.MockTurn{Reply: &llm.ChatReply{Text: "back online"}})

	sink := &recordingSink{}
	require.NoError(t, f.orch.Handle(context.Background(), f.scope, Inbound{Type: TypeMessage, Content: "hi"}, sink))

	assert.Equal(t, 3, f.chat.SendCount())
	assert.Equal(t, []string{TypeMessage, TypeComplete}, sink.types())
}

func TestHandle_GivesUpAfterMaxRetries(t *testing.T) {
	f := newFixture()
	for range 4 {
		f.chat.AddTurn(llm.MockTurn{Err: &llm.ErrProviderUnavailable{}})
	}

	sink := &recordingSink{}
	require.NoError(t, f.orch.Handle(context.Background(), f.scope, Inbound{Type: TypeMessage, Content: "hi"}, sink))

	assert.Equal(t, 4, f.chat.SendCount(), "one attempt plus three retries")
	assert.Equal(t, []string{TypeError}, sink.types())
}

func TestHandle_DoesNotRetryPermanentErrors(t *testing.T) {
	f := newFixture()
	f.chat.AddTurn(llm.MockTurn{Err: &llm.ErrUpstream{StatusCode: 401, Err: errors.New("bad key")}})

	sink := &recordingSink{}
	require.NoError(t, f.orch.Handle(context.Background(), f.scope, Inbound{Type: TypeMessage, Content: "hi"}, sink))

	assert.Equal(t, 1, f.chat.SendCount())
	require.Equal(t, []string{TypeError}, sink.types())
	assert.Contains(t, sink.msgs[0].Message, "model request failed")
}

func TestHandle_UnknownFunction(t *testing.T) {
	f := newFixture()
	f.chat.AddTurn(functionCall("delete_course", nil))

	sink := &recordingSink{}
	require.NoError(t, f.orch.Handle(context.Background(), f.scope, Inbound{Type: TypeMessage, Content: "drop it"}, sink))

	assert.Equal(t, []string{TypeFunctionCall, TypeError}, sink.types())
	assert.Contains(t, sink.msgs[1].Message, "delete_course")
	assert.Empty(t, f.history.byRole(RoleAssistant))
}

func TestHandle_QuizFallsBackToUserTextAndDefaultCount(t *testing.T) {
	quiz := `{"title": "Photosynthesis Quiz", "questions": [
		{"question_text": "Where does photosynthesis happen?", "type": "multiple_choice",
		 "content": {"options": ["Chloroplast", "Nucleus"]}}
	]}`
	f := newFixture(llm.MockResponse{Text: quiz})
	f.chat.AddTurn(functionCall(schemas.FnGenerateQuiz, map[string]any{}))

	sink := &recordingSink{}
	require.NoError(t, f.orch.Handle(context.Background(), f.scope, Inbound{
		Type:    TypeMessage,
		Content: "Photosynthesis basics",
	}, sink))

	assert.Equal(t, []string{TypeFunctionCall, TypeQuizGenerated, TypeComplete}, sink.types())
	prompt := f.gen.Calls[0].Messages[0].Content
	assert.Contains(t, prompt, "Photosynthesis basics")
	assert.Contains(t, prompt, "Exactly 5 multiple-choice question(s)")
}

func TestHandle_LessonsUseContextAndCourseScope(t *testing.T) {
	lessons := `{"lessons": [{"title": "Sensors", "description": "What sensors measure."}]}`
	f := newFixture(llm.MockResponse{Text: lessons})
	f.scope.CourseTitle = "Intro to Robotics"
	f.chat.AddTurn(functionCall(schemas.FnGenerateLesson, map[string]any{"number_of_lessons": float64(4)}))

	sink := &recordingSink{}
	require.NoError(t, f.orch.Handle(context.Background(), f.scope, Inbound{
		Type:    TypeMessage,
		Content: "plan the lessons",
		Context: map[string]any{"course_description": "Hands-on robotics"},
	}, sink))

	assert.Equal(t, []string{TypeFunctionCall, TypeLessonGenerated, TypeComplete}, sink.types())
	prompt := f.gen.Calls[0].Messages[0].Content
	assert.Contains(t, prompt, "Intro to Robotics")
	assert.Contains(t, prompt, "Hands-on robotics")
}

func TestHandle_GeneratorFailureKeepsTurnRecoverable(t *testing.T) {
	f := newFixture(llm.MockResponse{Text: "not json at all"})
	f.chat.AddTurn(functionCall(schemas.FnGenerateCourse, map[string]any{"user_request": "robots"}))

	sink := &recordingSink{}
	require.NoError(t, f.orch.Handle(context.Background(), f.scope, Inbound{Type: TypeMessage, Content: "robots"}, sink))

	require.Equal(t, []string{TypeFunctionCall, TypeError}, sink.types())
	assert.NotContains(t, sink.msgs[1].Message, "not json at all")
}

func TestHandle_SaveAcknowledgesOnly(t *testing.T) {
	f := newFixture()
	sink := &recordingSink{}
	require.NoError(t, f.orch.Handle(context.Background(), f.scope, Inbound{Type: TypeSave, ConversationID: "c"}, sink))

	assert.Equal(t, []string{TypeSaveSuccess}, sink.types())
	assert.Equal(t, 0, f.chat.SendCount())
	assert.Empty(t, f.history.msgs)
}

func TestHandle_EmptyContent(t *testing.T) {
	f := newFixture()
	sink := &recordingSink{}
	require.NoError(t, f.orch.Handle(context.Background(), f.scope, Inbound{Type: TypeMessage, Content: "  "}, sink))
	assert.Equal(t, []string{TypeError}, sink.types())
	assert.Equal(t, 0, f.chat.SendCount())
}

func TestHandle_SinkFailureStopsTurn(t *testing.T) {
	f := newFixture()
	f.chat.AddTurn(llm.MockTurn{Reply: &llm.ChatReply{Text: "hello"}})
	gone := errors.New("connection closed")

	err := f.orch.Handle(context.Background(), f.scope, Inbound{Type: TypeMessage, Content: "hi"},
		SinkFunc(func(Outbound) error { return gone }))
	assert.ErrorIs(t, err, gone)
}

func TestCourseSystem(t *testing.T) {
	s := CourseSystem("Intro to Robotics", "Hands-on robotics")
	assert.True(t, strings.HasPrefix(s, BuilderSystem))
	assert.Contains(t, s, "Course title: Intro to Robotics")
	assert.Contains(t, s, "Course description: Hands-on robotics")
}
