package contentgen

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/abhisek/coursepilot/internal/llm"
	"github.com/abhisek/coursepilot/internal/schemas"
	"github.com/abhisek/coursepilot/internal/structured"
)

func newTestService(responses ...llm.MockResponse) (*Service, *llm.MockProvider) {
	mock := llm.NewMockProvider(responses...)
	return New(structured.New(mock, nil), nil), mock
}

func lastPrompt(t *testing.T, mock *llm.MockProvider) string {
	t.Helper()
	if len(mock.Calls) == 0 {
		t.Fatal("provider was not called")
	}
	return mock.Calls[len(mock.Calls)-1].Messages[0].Content
}

const loopsQuizJSON = `{
	"title": "Loops Quiz",
	"questions": [
		{"question_text": "Which keyword loops in Go?", "type": "multiple_choice", "points": 1,
		 "content": {"options": ["for", "while", "repeat"], "correct_answer": "for"}, "explanation": "Go only has for."},
		{"question_text": "What does break do?", "type": "multiple_choice", "points": 1,
		 "content": {"options": ["exits the loop", "skips an iteration"]}, "explanation": "It exits."},
		{"question_text": "Which runs at least once?", "type": "multiple_choice",
		 "content": {"options": ["none", "do-while"], "correct_answer": "none"}, "explanation": "Go has no do-while."},
		{"question_text": "A for loop can omit its condition.", "type": "true_false",
		 "content": {"correct_answer": "True"}, "explanation": "for {} loops forever."},
		{"question_text": "continue ends the function.", "type": "true_false",
		 "content": {"correct_answer": "FALSE"}, "explanation": "It skips to the next iteration."}
	]
}`

func TestGenerateQuiz_EndToEnd(t *testing.T) {
	svc, mock := newTestService(llm.MockResponse{Text: loopsQuizJSON})

	quiz, err := svc.GenerateQuiz(context.Background(), QuizInput{
		SystemInstruction: SystemQuiz,
		LessonTitle:       "Loops",
		Content:           "for loops, break and continue",
		TotalQuestions:    5,
		QuestionCounts:    QuestionCounts{MultipleChoice: 3, TrueFalse: 2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(quiz.Questions) != 5 {
		t.Fatalf("expected 5 questions, got %d", len(quiz.Questions))
	}
	byType := map[string]int{}
	for _, q := range quiz.Questions {
		byType[q.Type]++
		if q.QuestionText == "" {
			t.Errorf("empty question text: %+v", q)
		}
		if ans, _ := q.Content["correct_answer"].(string); ans == "" {
			t.Errorf("empty correct answer: %+v", q)
		}
	}
	if byType[schemas.TypeMultipleChoice] != 3 || byType[schemas.TypeTrueFalse] != 2 {
		t.Errorf("unexpected type mix: %v", byType)
	}
	if quiz.PassingScore != 70 || quiz.TotalPoints != 5 {
		t.Errorf("unexpected metadata: passing=%d total=%d", quiz.PassingScore, quiz.TotalPoints)
	}

	prompt := lastPrompt(t, mock)
	for _, want := range []string{
		"Lesson title: Loops",
		"Exactly 3 multiple-choice question(s)",
		"Exactly 2 true/false question(s)",
		"for loops, break and continue",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if got := mock.Calls[0].Temperature; got != 0.7 {
		t.Errorf("expected default temperature 0.7, got %v", got)
	}
}

func TestGenerateQuiz_RebalancesCounts(t *testing.T) {
	svc, mock := newTestService(llm.MockResponse{Text: loopsQuizJSON})

	_, err := svc.GenerateQuiz(context.Background(), QuizInput{
		SystemInstruction: SystemQuiz,
		LessonTitle:       "Loops",
		TotalQuestions:    10,
		QuestionCounts:    QuestionCounts{MultipleChoice: 7, TrueFalse: 5},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prompt := lastPrompt(t, mock)
	if !strings.Contains(prompt, "exactly 10 question(s)") ||
		!strings.Contains(prompt, "Exactly 5 multiple-choice") ||
		!strings.Contains(prompt, "Exactly 5 true/false") {
		t.Errorf("prompt does not carry rebalanced counts:\n%s", prompt)
	}
}

func TestGenerateQuiz_MissingFields(t *testing.T) {
	svc, mock := newTestService()

	tests := []struct {
		in    QuizInput
		field string
	}{
		{QuizInput{LessonTitle: "Loops", TotalQuestions: 3}, "system_instruction"},
		{QuizInput{SystemInstruction: SystemQuiz, LessonTitle: "  ", TotalQuestions: 3}, "lesson_title"},
		{QuizInput{SystemInstruction: SystemQuiz, LessonTitle: "Loops"}, "total_questions"},
	}
	for _, tt := range tests {
		_, err := svc.GenerateQuiz(context.Background(), tt.in)
		var missing *ErrMissingField
		if !errors.As(err, &missing) || missing.Field != tt.field {
			t.Errorf("expected missing %s, got %v", tt.field, err)
		}
	}
	if mock.CallCount() != 0 {
		t.Errorf("provider should not be called on invalid input")
	}
}

func TestGenerateQuiz_DropsUnusableQuestions(t *testing.T) {
	svc, _ := newTestService(llm.MockResponse{Text: `{"title": "T", "questions": [
		{"question_text": "", "type": "essay"},
		"not an object",
		{"question_text": "Which loop?", "type": "multiple_choice", "content": {}},
		{"question_text": "Only one?", "type": "multiple_choice", "content": {"options": ["for"], "correct_answer": "for"}},
		{"question_text": "Kept", "type": "short_answer", "content": {"correct_answer": "x"}}
	]}`})

	quiz, err := svc.GenerateQuiz(context.Background(), QuizInput{
		SystemInstruction: SystemQuiz, LessonTitle: "L", TotalQuestions: 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(quiz.Questions) != 1 || quiz.Questions[0].QuestionText != "Kept" {
		t.Fatalf("unexpected questions: %+v", quiz.Questions)
	}
}

func TestGenerateQuiz_InvalidAIResponse(t *testing.T) {
	svc, _ := newTestService(llm.MockResponse{Text: "Sure! Here is your quiz."})

	_, err := svc.GenerateQuiz(context.Background(), QuizInput{
		SystemInstruction: SystemQuiz, LessonTitle: "L", TotalQuestions: 1,
	})
	var invalid *llm.ErrInvalidResponse
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestGenerateAssignment_StripsEssayRubric(t *testing.T) {
	svc, _ := newTestService(llm.MockResponse{Text: `{
		"title": "Concurrency",
		"instructions": "Submit a PDF",
		"questions": [
			{"question_text": "Explain channels", "type": "essay", "points": 10,
			 "content": {"instructions": "Use examples", "rubric": "clarity 5, accuracy 5"},
			 "explanation": "Channels pass values between goroutines."}
		]
	}`})

	a, err := svc.GenerateAssignment(context.Background(), AssignmentInput{
		SystemInstruction: SystemAssignment,
		LessonTitle:       "Goroutines",
		TotalQuestions:    1,
		QuestionCounts:    QuestionCounts{Essay: 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := a.Questions[0]
	if _, ok := q.Content["rubric"]; ok {
		t.Errorf("rubric should be stripped: %+v", q.Content)
	}
	if q.Explanation != "Channels pass values between goroutines." {
		t.Errorf("explanation changed: %q", q.Explanation)
	}
	if a.TotalPoints != 10 || a.Instructions != "Submit a PDF" {
		t.Errorf("unexpected assignment: %+v", a)
	}
}

func TestGenerateCourseDetail(t *testing.T) {
	svc, _ := newTestService(llm.MockResponse{Text: `{
		"title": "Robotics 101",
		"short_description": "Build robots.",
		"long_description": "A long description.",
		"category": "Engineering",
		"difficulty_level": "Expert",
		"tags": ["robots", ""]
	}`})

	d, err := svc.GenerateCourseDetail(context.Background(), CourseDetailInput{
		SystemInstruction: SystemCourseDetail,
		UserRequest:       "a course on robotics",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.DifficultyLevel != "beginner" {
		t.Errorf("expected coerced beginner, got %q", d.DifficultyLevel)
	}
	if len(d.Tags) != 1 || d.Tags[0] != "robots" {
		t.Errorf("unexpected tags: %v", d.Tags)
	}
}

func TestGenerateCourseDetail_DifficultyCaseInsensitive(t *testing.T) {
	svc, _ := newTestService(llm.MockResponse{Text: `{"title": "T", "short_description": "S",
		"long_description": "L", "category": "C", "difficulty_level": "Advanced"}`})

	d, err := svc.GenerateCourseDetail(context.Background(), CourseDetailInput{
		SystemInstruction: SystemCourseDetail, UserRequest: "x",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.DifficultyLevel != "advanced" {
		t.Errorf("expected advanced, got %q", d.DifficultyLevel)
	}
}

func TestGenerateCourseDetail_EmptyGeneration(t *testing.T) {
	svc, _ := newTestService(llm.MockResponse{Text: `{"title": "T", "short_description": "S",
		"long_description": "L", "category": "  ", "difficulty_level": "beginner"}`})

	_, err := svc.GenerateCourseDetail(context.Background(), CourseDetailInput{
		SystemInstruction: SystemCourseDetail, UserRequest: "x",
	})
	var empty *ErrEmptyGeneration
	if !errors.As(err, &empty) || empty.Field != "category" {
		t.Fatalf("expected empty category, got %v", err)
	}
}

func TestGenerateCourseIntroduction(t *testing.T) {
	svc, mock := newTestService(llm.MockResponse{Text: `{
		"overview": "Welcome to Go.",
		"learning_objectives": ["write loops"],
		"target_audience": "new programmers",
		"estimated_hours": 12
	}`})

	intro, err := svc.GenerateCourseIntroduction(context.Background(), CourseIntroductionInput{
		SystemInstruction: SystemCourseIntroduction,
		CourseTitle:       "Go Basics",
		CourseDescription: "Learn Go",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if intro.Overview != "Welcome to Go." || intro.EstimatedHours != 12 || len(intro.KeyTopics) != 0 {
		t.Errorf("unexpected introduction: %+v", intro)
	}
	if !strings.Contains(lastPrompt(t, mock), "Course title: Go Basics") {
		t.Errorf("prompt missing course title")
	}

	_, err = svc.GenerateCourseIntroduction(context.Background(), CourseIntroductionInput{SystemInstruction: "s"})
	var missing *ErrMissingField
	if !errors.As(err, &missing) || missing.Field != "course_title" {
		t.Errorf("expected missing course_title, got %v", err)
	}
}

func TestGenerateLessons_DefaultsAndOrder(t *testing.T) {
	svc, _ := newTestService(llm.MockResponse{Text: `{"lessons": [
		{"title": "Third", "description": "c", "order": 3, "type": "video", "duration": 30},
		{"title": "First", "description": "a", "order": 1},
		{"title": "Second", "description": "b", "order": 2}
	]}`})

	plan, err := svc.GenerateLessons(context.Background(), LessonsInput{
		SystemInstruction: SystemLessons,
		CourseTitle:       "Go Basics",
		NumberOfLessons:   3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var titles []string
	for _, l := range plan.Lessons {
		titles = append(titles, l.Title)
	}
	if strings.Join(titles, ",") != "First,Second,Third" {
		t.Fatalf("lessons not sorted by order: %v", titles)
	}
	first := plan.Lessons[0]
	if first.Type != "live_class" || first.Duration != 45 {
		t.Errorf("defaults not applied: %+v", first)
	}
	if third := plan.Lessons[2]; third.Type != "video" || third.Duration != 30 {
		t.Errorf("model values overwritten: %+v", third)
	}
}

func TestGenerateLessons_MissingOrderUsesPosition(t *testing.T) {
	svc, _ := newTestService(llm.MockResponse{Text: `{"lessons": [
		{"title": "A"}, {"title": "B", "order": 1}
	]}`})

	plan, err := svc.GenerateLessons(context.Background(), LessonsInput{
		SystemInstruction: SystemLessons, CourseTitle: "C",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A defaults to order 1 and keeps its place ahead of B in a stable sort.
	if plan.Lessons[0].Title != "A" || plan.Lessons[1].Title != "B" {
		t.Errorf("unexpected order: %+v", plan.Lessons)
	}
}

func TestGenerateTestOrExam_CoveragePrompt(t *testing.T) {
	svc, mock := newTestService(llm.MockResponse{Text: `{"title": "Final", "questions": [
		{"question_text": "Q1", "type": "short_answer", "lesson_title": "Intro"}
	]}`})

	exam, err := svc.GenerateTestOrExam(context.Background(), TestInput{
		SystemInstruction: SystemTest,
		Kind:              "EXAM",
		CourseTitle:       "Go Basics",
		Lessons: []LessonRef{
			{Title: "Loops", Order: 2},
			{Title: "Intro", Order: 1},
			{Title: "Functions", Order: 3},
		},
		TotalQuestions: 5,
		QuestionCounts: QuestionCounts{ShortAnswer: 5},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exam.Kind != KindExam || exam.Title != "Final" {
		t.Errorf("unexpected exam: %+v", exam)
	}

	prompt := lastPrompt(t, mock)
	for _, want := range []string{
		"Write the exam for this course.",
		"1. Intro\n2. Loops\n3. Functions\n",
		"at least one question for every lesson",
		"- Intro: 1\n- Loops: 2\n- Functions: 2\n",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestGenerateTestOrExam_RequiresLessons(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.GenerateTestOrExam(context.Background(), TestInput{
		SystemInstruction: SystemTest, CourseTitle: "C", TotalQuestions: 2,
	})
	var missing *ErrMissingField
	if !errors.As(err, &missing) || missing.Field != "lessons" {
		t.Fatalf("expected missing lessons, got %v", err)
	}
}

func TestAllocateCoverage(t *testing.T) {
	lessons := []LessonRef{{Title: "a"}, {Title: "b"}, {Title: "c"}}
	tests := []struct {
		total int
		want  []int
	}{
		{0, []int{0, 0, 0}},
		{2, []int{0, 1, 1}},
		{3, []int{1, 1, 1}},
		{4, []int{1, 1, 2}},
		{8, []int{2, 3, 3}},
		{1_000_000, []int{333333, 333333, 333334}},
	}
	for _, tt := range tests {
		got := allocateCoverage(lessons, tt.total)
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("allocateCoverage(%d) = %v, want %v", tt.total, got, tt.want)
				break
			}
		}
	}
}
