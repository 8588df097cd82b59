package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/coursepilot/internal/contentgen"
	"github.com/abhisek/coursepilot/internal/llm"
	"github.com/abhisek/coursepilot/internal/logger"
	"github.com/abhisek/coursepilot/internal/metrics"
	"github.com/abhisek/coursepilot/internal/schemas"
	"github.com/abhisek/coursepilot/internal/store"
)

// Conversation roles stored in history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const defaultQuestionCount = 5

// Generators is the subset of contentgen.Service the builder calls.
type Generators interface {
	GenerateCourseDetail(ctx context.Context, in contentgen.CourseDetailInput) (*contentgen.CourseDetail, error)
	GenerateCourseIntroduction(ctx context.Context, in contentgen.CourseIntroductionInput) (*contentgen.CourseIntroduction, error)
	GenerateLessons(ctx context.Context, in contentgen.LessonsInput) (*contentgen.LessonPlan, error)
	GenerateQuiz(ctx context.Context, in contentgen.QuizInput) (*contentgen.Quiz, error)
	GenerateAssignment(ctx context.Context, in contentgen.AssignmentInput) (*contentgen.Assignment, error)
}

// History records conversation turns.
type History interface {
	Append(ctx context.Context, msg store.ConversationMessage) error
}

// Scope is the per-connection state a turn runs in.
type Scope struct {
	UserID            int
	CourseID          string
	CourseTitle       string
	CourseDescription string
	Sessions          *SessionStore
}

// Config tunes the send retry policy.
type Config struct {
	// MaxRetries is the number of retries after the first failed send.
	MaxRetries int
	// RetryBase is the first backoff; each retry doubles it.
	RetryBase time.Duration
}

// DefaultConfig retries three times after 2s, 4s and 8s.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, RetryBase: 2 * time.Second}
}

// Orchestrator runs chat turns: it sends user text to the model, then either
// forwards the reply or executes the function the model asked for.
type Orchestrator struct {
	gen     Generators
	history History
	cfg     Config
	log     *logger.Logger
}

// NewOrchestrator creates an Orchestrator. history may be nil.
func NewOrchestrator(gen Generators, history History, cfg Config, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultConfig().RetryBase
	}
	return &Orchestrator{gen: gen, history: history, cfg: cfg, log: log}
}

// Handle processes one authenticated message. Failures of the turn itself
// are reported to sink as error messages; the returned error is non-nil only
// when sink rejects a write, which means the connection is gone.
func (o *Orchestrator) Handle(ctx context.Context, sc *Scope, in Inbound, sink Sink) error {
	switch in.Type {
	case TypeSave:
		return sink.Send(Outbound{
			Type:           TypeSaveSuccess,
			ConversationID: in.ConversationID,
			Message:        "Saved",
		})
	case TypeMessage, TypeRefinement:
		return o.turn(ctx, sc, in, sink)
	default:
		return sink.Send(Outbound{Type: TypeError, Message: fmt.Sprintf("unknown message type %q", in.Type)})
	}
}

func (o *Orchestrator) turn(ctx context.Context, sc *Scope, in Inbound, sink Sink) error {
	text := strings.TrimSpace(in.Content)
	convID := in.ConversationID
	if convID == "" {
		convID = uuid.NewString()
	}
	fail := func(msg string, err error) error {
		o.log.Warn(msg, "conversation_id", convID, "error", err)
		return sink.Send(Outbound{
			Type:           TypeError,
			ConversationID: convID,
			Message:        fmt.Sprintf("%s: %v", msg, err),
		})
	}

	if text == "" {
		return sink.Send(Outbound{Type: TypeError, ConversationID: convID, Message: "message content is required"})
	}
	o.remember(ctx, sc, convID, RoleUser, text)

	session, err := sc.Sessions.Get(ctx, convID)
	if err != nil {
		return fail("could not start conversation", err)
	}

	reply, err := o.send(ctx, session, text)
	if err != nil {
		return fail("model request failed", err)
	}

	if reply.Kind == llm.KindFunctionCall && len(reply.FunctionCalls) > 0 {
		if len(reply.FunctionCalls) > 1 {
			o.log.Warn("model requested several functions, running the first",
				"conversation_id", convID, "count", len(reply.FunctionCalls))
		}
		return o.dispatch(ctx, sc, convID, in, reply.FunctionCalls[0], sink)
	}

	if reply.Text != "" {
		if err := sink.Send(Outbound{Type: TypeMessage, ConversationID: convID, Content: reply.Text}); err != nil {
			return err
		}
		o.remember(ctx, sc, convID, RoleAssistant, reply.Text)
		return sink.Send(Outbound{Type: TypeComplete, ConversationID: convID, Content: reply.Text})
	}

	// No text and no call: ask again with streaming and relay the chunks.
	var full strings.Builder
	for chunk, err := range session.SendStream(ctx, text) {
		if err != nil {
			return fail("model stream failed", err)
		}
		if chunk == "" {
			continue
		}
		full.WriteString(chunk)
		if err := sink.Send(Outbound{Type: TypeStreaming, ConversationID: convID, Content: chunk}); err != nil {
			return err
		}
	}
	o.remember(ctx, sc, convID, RoleAssistant, full.String())
	return sink.Send(Outbound{Type: TypeComplete, ConversationID: convID, Content: full.String()})
}

// send delivers text with exponential backoff on transient failures.
func (o *Orchestrator) send(ctx context.Context, session llm.ChatSession, text string) (*llm.ChatReply, error) {
	wait := o.cfg.RetryBase
	for attempt := 0; ; attempt++ {
		reply, err := session.Send(ctx, text)
		if err == nil {
			return reply, nil
		}

		transient, basis := llm.ClassifyTransient(err)
		if !transient || attempt >= o.cfg.MaxRetries {
			return nil, err
		}
		if basis == llm.BasisHeuristic {
			o.log.Info("retrying on error text match", "error", err)
		}
		metrics.LLMRetriesTotal.WithLabelValues("chat", basis).Inc()
		o.log.Warn("chat send failed, retrying", "attempt", attempt+1, "wait", wait.String(), "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
}

// dispatch runs the generator behind fc and reports the result. The turn
// ends there; the result is not fed back to the model.
func (o *Orchestrator) dispatch(ctx context.Context, sc *Scope, convID string, in Inbound, fc llm.FunctionCall, sink Sink) error {
	if err := sink.Send(Outbound{
		Type:           TypeFunctionCall,
		ConversationID: convID,
		Function:       fc.Name,
		Args:           fc.Args,
	}); err != nil {
		return err
	}

	a := args{call: fc, in: in, scope: sc, text: strings.TrimSpace(in.Content)}
	var (
		kind    string
		data    any
		summary string
		err     error
	)

	switch fc.Name {
	case schemas.FnGenerateCourse:
		var d *contentgen.CourseDetail
		d, err = o.gen.GenerateCourseDetail(ctx, contentgen.CourseDetailInput{
			SystemInstruction: contentgen.SystemCourseDetail,
			UserRequest:       a.primary("user_request"),
		})
		if err == nil {
			kind, data, summary = TypeCourseGenerated, d, "Generated course: "+d.Title
		}

	case schemas.FnGenerateCourseIntroduction:
		var d *contentgen.CourseIntroduction
		d, err = o.gen.GenerateCourseIntroduction(ctx, contentgen.CourseIntroductionInput{
			SystemInstruction: contentgen.SystemCourseIntroduction,
			CourseTitle:       a.courseTitle(),
			CourseDescription: a.courseDescription(),
			UserRequest:       a.primary("user_request"),
		})
		if err == nil {
			kind, data, summary = TypeCourseIntroductionGenerated, d, "Generated course introduction for "+a.courseTitle()
		}

	case schemas.FnGenerateLesson:
		var d *contentgen.LessonPlan
		d, err = o.gen.GenerateLessons(ctx, contentgen.LessonsInput{
			SystemInstruction: contentgen.SystemLessons,
			CourseTitle:       a.courseTitle(),
			CourseDescription: a.courseDescription(),
			UserRequest:       a.primary("user_request"),
			NumberOfLessons:   a.integer("number_of_lessons", 0),
		})
		if err == nil {
			kind, data, summary = TypeLessonGenerated, d, fmt.Sprintf("Generated %d lessons for %s", len(d.Lessons), a.courseTitle())
		}

	case schemas.FnGenerateAssignment:
		n := a.integer("number_of_questions", defaultQuestionCount)
		var d *contentgen.Assignment
		d, err = o.gen.GenerateAssignment(ctx, contentgen.AssignmentInput{
			SystemInstruction: contentgen.SystemAssignment,
			LessonTitle:       a.lessonTitle(),
			LessonDescription: a.lookup("lesson_description"),
			UserRequest:       a.primary("user_request"),
			TotalQuestions:    n,
			QuestionCounts:    contentgen.QuestionCounts{ShortAnswer: n - n/3, Essay: n / 3},
		})
		if err == nil {
			kind, data, summary = TypeAssignmentGenerated, d, "Generated assignment: "+d.Title
		}

	case schemas.FnGenerateQuiz:
		n := a.integer("number_of_questions", defaultQuestionCount)
		var d *contentgen.Quiz
		d, err = o.gen.GenerateQuiz(ctx, contentgen.QuizInput{
			SystemInstruction: contentgen.SystemQuiz,
			LessonTitle:       a.lessonTitle(),
			LessonDescription: a.lookup("lesson_description"),
			UserRequest:       a.primary("user_request"),
			TotalQuestions:    n,
		})
		if err == nil {
			kind, data, summary = TypeQuizGenerated, d, "Generated quiz: "+d.Title
		}

	default:
		o.log.Warn("model called an unknown function", "function", fc.Name, "conversation_id", convID)
		return sink.Send(Outbound{
			Type:           TypeError,
			ConversationID: convID,
			Message:        fmt.Sprintf("unknown function %q", fc.Name),
		})
	}

	if err != nil {
		o.log.Warn("function call failed", "function", fc.Name, "conversation_id", convID, "error", err)
		return sink.Send(Outbound{
			Type:           TypeError,
			ConversationID: convID,
			Message:        fmt.Sprintf("%s failed: %v", fc.Name, userMessage(err)),
		})
	}

	if err := sink.Send(Outbound{Type: kind, ConversationID: convID, Data: data}); err != nil {
		return err
	}
	o.remember(ctx, sc, convID, RoleAssistant, summary)
	return sink.Send(Outbound{Type: TypeComplete, ConversationID: convID, Message: summary})
}

// remember appends a turn to history. History failures are logged only.
func (o *Orchestrator) remember(ctx context.Context, sc *Scope, convID, role, content string) {
	if o.history == nil {
		return
	}
	err := o.history.Append(ctx, store.ConversationMessage{
		ConversationID: convID,
		UserID:         sc.UserID,
		CourseID:       sc.CourseID,
		Role:           role,
		Content:        content,
	})
	if err != nil {
		o.log.Warn("failed to store conversation turn", "conversation_id", convID, "role", role, "error", err)
	}
}

// userMessage keeps raw model output out of client-facing errors.
func userMessage(err error) error {
	var inv *llm.ErrInvalidResponse
	if errors.As(err, &inv) {
		return errors.New("the AI returned an unreadable response")
	}
	return err
}

// args resolves function arguments: the model's own value first, then the
// client's page context, then the connection scope, then the user's text.
type args struct {
	call  llm.FunctionCall
	in    Inbound
	scope *Scope
	text  string
}

func (a args) lookup(name string) string {
	if v := a.call.StringArg(name); v != "" {
		return v
	}
	if s, ok := a.in.Context[name].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func (a args) primary(name string) string {
	if v := a.lookup(name); v != "" {
		return v
	}
	return a.text
}

func (a args) courseTitle() string {
	if v := a.lookup("course_title"); v != "" {
		return v
	}
	if a.scope.CourseTitle != "" {
		return a.scope.CourseTitle
	}
	return a.text
}

func (a args) courseDescription() string {
	if v := a.lookup("course_description"); v != "" {
		return v
	}
	return a.scope.CourseDescription
}

func (a args) lessonTitle() string {
	return a.primary("lesson_title")
}

// integer reads a numeric argument. JSON numbers arrive as float64 and some
// models send digits as strings.
func (a args) integer(name string, def int) int {
	v, ok := a.call.Args[name]
	if !ok {
		v, ok = a.in.Context[name]
	}
	if !ok {
		return def
	}
	var n int
	switch t := v.(type) {
	case float64:
		n = int(t)
	case int:
		n = t
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return def
		}
		n = parsed
	default:
		return def
	}
	if n <= 0 {
		return def
	}
	return n
}
