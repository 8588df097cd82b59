package llm

import "context"

type contextKey string

const purposeKey contextKey = "llm_purpose"

// Purpose labels attached to model calls. They show up in recorded events,
// metrics and `coursepilot llm stats`.
const (
	PurposeCourseDetail       = "course-detail"
	PurposeCourseIntroduction = "course-introduction"
	PurposeLessons            = "lessons"
	PurposeQuiz               = "quiz"
	PurposeAssignment         = "assignment"
	PurposeTest               = "test"
	PurposeGrading            = "grading"
	PurposeTranscription      = "transcription"
)

// WithPurpose attaches a purpose label to the context for event logging.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	if purpose == "" {
		return ctx
	}
	return context.WithValue(ctx, purposeKey, purpose)
}

// PurposeFrom extracts the purpose label from the context.
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey).(string); ok {
		return v
	}
	return "unknown"
}
