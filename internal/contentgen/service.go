// Package contentgen generates course content: catalogue details,
// introductions, lesson plans and assessments. Each generator validates its
// inputs, builds a prompt, runs a structured generation and then repairs the
// parsed output so callers always receive complete values.
package contentgen

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/abhisek/coursepilot/internal/llm"
	"github.com/abhisek/coursepilot/internal/logger"
	"github.com/abhisek/coursepilot/internal/metrics"
	"github.com/abhisek/coursepilot/internal/schemas"
	"github.com/abhisek/coursepilot/internal/structured"
)

// Service runs the domain generators.
type Service struct {
	gen structured.Generator
	log *logger.Logger
}

// New creates a Service on top of a structured generator.
func New(gen structured.Generator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{gen: gen, log: log}
}

func (s *Service) run(ctx context.Context, purpose, system, prompt string, schema *llm.Schema, opts Options) (map[string]any, error) {
	res, err := s.gen.Generate(ctx, structured.Call{
		System:      system,
		Prompt:      prompt,
		Schema:      schema,
		Temperature: opts.temperature(),
		MaxTokens:   opts.MaxTokens,
		Purpose:     purpose,
	})
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", purpose, err)
	}
	return res.Parsed, nil
}

func record(kind string, err error) {
	metrics.GenerationsTotal.WithLabelValues(kind, metrics.Status(err)).Inc()
}

// GenerateCourseDetail produces the catalogue entry for a course.
func (s *Service) GenerateCourseDetail(ctx context.Context, in CourseDetailInput) (out *CourseDetail, err error) {
	defer func() { record(llm.PurposeCourseDetail, err) }()

	if err := requireFields("system_instruction", in.SystemInstruction, "user_request", in.UserRequest); err != nil {
		return nil, err
	}

	parsed, err := s.run(ctx, llm.PurposeCourseDetail, in.SystemInstruction,
		buildCourseDetailPrompt(in), schemas.CourseDetail, in.Options)
	if err != nil {
		return nil, err
	}

	out = &CourseDetail{
		Title:                  stringOf(parsed["title"]),
		ShortDescription:       stringOf(parsed["short_description"]),
		LongDescription:        stringOf(parsed["long_description"]),
		Category:               stringOf(parsed["category"]),
		DifficultyLevel:        s.difficulty(parsed["difficulty_level"]),
		LearningObjectives:     stringsOf(parsed["learning_objectives"]),
		Prerequisites:          stringsOf(parsed["prerequisites"]),
		EstimatedDurationWeeks: max(intOf(parsed["estimated_duration_weeks"], 0), 0),
		Tags:                   stringsOf(parsed["tags"]),
	}
	for _, f := range []struct{ name, value string }{
		{"title", out.Title},
		{"short_description", out.ShortDescription},
		{"long_description", out.LongDescription},
		{"category", out.Category},
	} {
		if f.value == "" {
			return nil, &ErrEmptyGeneration{Kind: "course detail", Field: f.name}
		}
	}
	return out, nil
}

// difficulty coerces a model value onto the three supported levels.
func (s *Service) difficulty(v any) string {
	level := strings.ToLower(stringOf(v))
	for _, d := range schemas.DifficultyLevels {
		if level == d {
			return d
		}
	}
	s.log.Warn("unrecognized difficulty level, using beginner", "difficulty_level", v)
	return "beginner"
}

// GenerateCourseIntroduction writes the introduction section of a course.
func (s *Service) GenerateCourseIntroduction(ctx context.Context, in CourseIntroductionInput) (out *CourseIntroduction, err error) {
	defer func() { record(llm.PurposeCourseIntroduction, err) }()

	if err := requireFields("system_instruction", in.SystemInstruction, "course_title", in.CourseTitle); err != nil {
		return nil, err
	}

	parsed, err := s.run(ctx, llm.PurposeCourseIntroduction, in.SystemInstruction,
		buildCourseIntroductionPrompt(in), schemas.CourseIntroduction, in.Options)
	if err != nil {
		return nil, err
	}

	out = &CourseIntroduction{
		Overview:           stringOf(parsed["overview"]),
		LearningObjectives: stringsOf(parsed["learning_objectives"]),
		TargetAudience:     stringOf(parsed["target_audience"]),
		Prerequisites:      stringsOf(parsed["prerequisites"]),
		CourseStructure:    stringOf(parsed["course_structure"]),
		KeyTopics:          stringsOf(parsed["key_topics"]),
		EstimatedHours:     max(intOf(parsed["estimated_hours"], 0), 0),
	}
	if out.Overview == "" {
		return nil, &ErrEmptyGeneration{Kind: "course introduction", Field: "overview"}
	}
	return out, nil
}

const (
	defaultLessonType     = "live_class"
	defaultLessonDuration = 45
)

// GenerateLessons plans the lessons of a course. Lessons come back sorted
// by order.
func (s *Service) GenerateLessons(ctx context.Context, in LessonsInput) (out *LessonPlan, err error) {
	defer func() { record(llm.PurposeLessons, err) }()

	if err := requireFields("system_instruction", in.SystemInstruction, "course_title", in.CourseTitle); err != nil {
		return nil, err
	}

	parsed, err := s.run(ctx, llm.PurposeLessons, in.SystemInstruction,
		buildLessonsPrompt(in), schemas.LessonList, in.Options)
	if err != nil {
		return nil, err
	}

	items, _ := parsed["lessons"].([]any)
	out = &LessonPlan{Lessons: make([]Lesson, 0, len(items))}
	for i, item := range items {
		raw := objectOf(item)
		if raw == nil {
			s.log.Warn("skipping malformed lesson", "index", i)
			continue
		}
		l := Lesson{
			Title:              stringOf(raw["title"]),
			Description:        stringOf(raw["description"]),
			Type:               strings.ToLower(stringOf(raw["type"])),
			Duration:           intOf(raw["duration"], 0),
			Order:              intOf(raw["order"], 0),
			LearningObjectives: stringsOf(raw["learning_objectives"]),
		}
		if l.Type == "" {
			l.Type = defaultLessonType
		}
		if l.Duration <= 0 {
			l.Duration = defaultLessonDuration
		}
		if l.Order <= 0 {
			l.Order = i + 1
		}
		if l.Title == "" {
			l.Title = fmt.Sprintf("Lesson %d", l.Order)
		}
		out.Lessons = append(out.Lessons, l)
	}
	if len(out.Lessons) == 0 {
		return nil, &ErrEmptyGeneration{Kind: "lesson plan", Field: "lessons"}
	}
	sort.SliceStable(out.Lessons, func(i, j int) bool { return out.Lessons[i].Order < out.Lessons[j].Order })
	return out, nil
}

const defaultPassingScore = 70

// questionPlan resolves the total and per-type counts for an assessment.
func questionPlan(total int, counts QuestionCounts) (int, QuestionCounts, error) {
	if total <= 0 {
		total = 0
		for _, n := range counts.slice() {
			total += min(max(n, 0), MaxQuestions+1)
		}
	}
	final, err := Rebalance(total, counts)
	if err != nil {
		return 0, QuestionCounts{}, err
	}
	return total, final, nil
}

// GenerateQuiz writes a quiz for a lesson.
func (s *Service) GenerateQuiz(ctx context.Context, in QuizInput) (out *Quiz, err error) {
	defer func() { record(llm.PurposeQuiz, err) }()

	if err := requireFields("system_instruction", in.SystemInstruction, "lesson_title", in.LessonTitle); err != nil {
		return nil, err
	}
	total, counts, err := questionPlan(in.TotalQuestions, in.QuestionCounts)
	if err != nil {
		return nil, err
	}

	parsed, err := s.run(ctx, llm.PurposeQuiz, in.SystemInstruction,
		buildQuizPrompt(in, counts, total, "quiz"), schemas.Quiz, in.Options)
	if err != nil {
		return nil, err
	}

	questions := s.normalizeQuestions(parsed["questions"], QuestionRules{}, total)
	if len(questions) == 0 {
		return nil, &ErrEmptyGeneration{Kind: "quiz", Field: "questions"}
	}
	out = &Quiz{
		Title:            orDefault(stringOf(parsed["title"]), in.LessonTitle+" Quiz"),
		Description:      stringOf(parsed["description"]),
		TimeLimitMinutes: max(intOf(parsed["time_limit_minutes"], 0), 0),
		PassingScore:     passingScore(parsed["passing_score"]),
		TotalPoints:      totalPoints(questions),
		Questions:        questions,
	}
	return out, nil
}

// GenerateAssignment writes an assignment for a lesson. Essay rubrics are
// stripped; the model answer stays in the explanation.
func (s *Service) GenerateAssignment(ctx context.Context, in AssignmentInput) (out *Assignment, err error) {
	defer func() { record(llm.PurposeAssignment, err) }()

	if err := requireFields("system_instruction", in.SystemInstruction, "lesson_title", in.LessonTitle); err != nil {
		return nil, err
	}
	total, counts, err := questionPlan(in.TotalQuestions, in.QuestionCounts)
	if err != nil {
		return nil, err
	}

	parsed, err := s.run(ctx, llm.PurposeAssignment, in.SystemInstruction,
		buildQuizPrompt(in, counts, total, "assignment"), schemas.Assignment, in.Options)
	if err != nil {
		return nil, err
	}

	questions := s.normalizeQuestions(parsed["questions"], QuestionRules{StripEssayRubric: true}, total)
	if len(questions) == 0 {
		return nil, &ErrEmptyGeneration{Kind: "assignment", Field: "questions"}
	}
	out = &Assignment{
		Title:        orDefault(stringOf(parsed["title"]), in.LessonTitle+" Assignment"),
		Description:  stringOf(parsed["description"]),
		Instructions: stringOf(parsed["instructions"]),
		TotalPoints:  totalPoints(questions),
		Questions:    questions,
	}
	return out, nil
}

// GenerateTestOrExam writes a test or exam spanning several lessons.
func (s *Service) GenerateTestOrExam(ctx context.Context, in TestInput) (out *Test, err error) {
	defer func() { record(llm.PurposeTest, err) }()

	if err := requireFields("system_instruction", in.SystemInstruction, "course_title", in.CourseTitle); err != nil {
		return nil, err
	}
	lessons := sortLessons(in.Lessons)
	if len(lessons) == 0 {
		return nil, &ErrMissingField{Field: "lessons"}
	}
	switch strings.ToLower(strings.TrimSpace(in.Kind)) {
	case KindExam:
		in.Kind = KindExam
	default:
		in.Kind = KindTest
	}
	total, counts, err := questionPlan(in.TotalQuestions, in.QuestionCounts)
	if err != nil {
		return nil, err
	}

	parsed, err := s.run(ctx, llm.PurposeTest, in.SystemInstruction,
		buildTestPrompt(in, lessons, counts, total), schemas.TestExam, in.Options)
	if err != nil {
		return nil, err
	}

	questions := s.normalizeQuestions(parsed["questions"], QuestionRules{}, total)
	if len(questions) == 0 {
		return nil, &ErrEmptyGeneration{Kind: in.Kind, Field: "questions"}
	}
	title := orDefault(in.Title, in.CourseTitle+" "+strings.ToUpper(in.Kind[:1])+in.Kind[1:])
	out = &Test{
		Kind:            in.Kind,
		Title:           orDefault(stringOf(parsed["title"]), title),
		Description:     stringOf(parsed["description"]),
		DurationMinutes: max(intOf(parsed["duration_minutes"], 0), 0),
		PassingScore:    passingScore(parsed["passing_score"]),
		TotalPoints:     totalPoints(questions),
		Questions:       questions,
	}
	return out, nil
}

// normalizeQuestions repairs every question and drops the ones without text.
func (s *Service) normalizeQuestions(v any, rules QuestionRules, want int) []Question {
	items, _ := v.([]any)
	out := make([]Question, 0, len(items))
	for i, item := range items {
		raw := objectOf(item)
		if raw == nil {
			s.log.Warn("skipping malformed question", "index", i)
			continue
		}
		q, repairs := NormalizeQuestion(raw, rules)
		if reason := q.defect(); reason != "" {
			s.log.Warn("dropping unusable question", "index", i, "type", q.Type, "reason", reason, "fields", repairs)
			continue
		}
		if len(repairs) > 0 {
			metrics.QuestionsRepairedTotal.WithLabelValues(q.Type).Inc()
			s.log.Debug("repaired question", "index", i, "type", q.Type, "fields", repairs)
		}
		out = append(out, q)
	}
	if len(out) != want {
		s.log.Warn("question count differs from request", "requested", want, "generated", len(out))
	}
	return out
}

func passingScore(v any) int {
	n := intOf(v, 0)
	if n <= 0 || n > 100 {
		return defaultPassingScore
	}
	return n
}

func totalPoints(qs []Question) int {
	sum := 0
	for _, q := range qs {
		sum += q.Points
	}
	return sum
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
