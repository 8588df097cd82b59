package contentgen

// Options tune a single generation call.
type Options struct {
	// Temperature defaults to 0.7 when zero.
	Temperature float64 `json:"temperature,omitempty"`
	// MaxTokens is passed through when positive.
	MaxTokens int `json:"max_tokens,omitempty"`
}

const defaultTemperature = 0.7

func (o Options) temperature() float64 {
	if o.Temperature <= 0 {
		return defaultTemperature
	}
	return o.Temperature
}

// CourseDetailInput is a teacher's free-text request for a new course.
type CourseDetailInput struct {
	SystemInstruction string `json:"system_instruction"`
	UserRequest       string `json:"user_request"`
	Options
}

// CourseDetail is a generated course outline with its metadata.
type CourseDetail struct {
	Title                  string   `json:"title"`
	ShortDescription       string   `json:"short_description"`
	LongDescription        string   `json:"long_description"`
	Category               string   `json:"category"`
	DifficultyLevel        string   `json:"difficulty_level"`
	LearningObjectives     []string `json:"learning_objectives"`
	Prerequisites          []string `json:"prerequisites"`
	EstimatedDurationWeeks int      `json:"estimated_duration_weeks,omitempty"`
	Tags                   []string `json:"tags"`
}

// CourseIntroductionInput describes the course an introduction is written for.
type CourseIntroductionInput struct {
	SystemInstruction string `json:"system_instruction"`
	CourseTitle       string `json:"course_title"`
	CourseDescription string `json:"course_description"`
	UserRequest       string `json:"user_request"`
	Options
}

// CourseIntroduction is the generated welcome text for a course.
type CourseIntroduction struct {
	Overview           string   `json:"overview"`
	LearningObjectives []string `json:"learning_objectives"`
	TargetAudience     string   `json:"target_audience"`
	Prerequisites      []string `json:"prerequisites"`
	CourseStructure    string   `json:"course_structure"`
	KeyTopics          []string `json:"key_topics"`
	EstimatedHours     int      `json:"estimated_hours,omitempty"`
}

// LessonsInput describes the course whose lessons are generated.
type LessonsInput struct {
	SystemInstruction string `json:"system_instruction"`
	CourseTitle       string `json:"course_title"`
	CourseDescription string `json:"course_description"`
	UserRequest       string `json:"user_request"`
	// NumberOfLessons is a target; zero lets the model decide.
	NumberOfLessons int `json:"number_of_lessons"`
	Options
}

// Lesson is one generated lesson in course order.
type Lesson struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Type               string   `json:"type"`
	Duration           int      `json:"duration"`
	Order              int      `json:"order"`
	LearningObjectives []string `json:"learning_objectives"`
}

// LessonPlan is the ordered set of lessons for a course.
type LessonPlan struct {
	Lessons []Lesson `json:"lessons"`
}

// QuizInput also serves assignments.
type QuizInput struct {
	SystemInstruction string `json:"system_instruction"`
	LessonTitle       string `json:"lesson_title"`
	LessonDescription string `json:"lesson_description"`
	// Content is the lesson material the questions draw on.
	Content     string `json:"content"`
	UserRequest string `json:"user_request"`
	// TotalQuestions defaults to the sum of Counts.
	TotalQuestions int `json:"total_questions"`
	QuestionCounts
	Options
}

// AssignmentInput is the input of GenerateAssignment.
type AssignmentInput = QuizInput

// Quiz is a generated lesson quiz.
type Quiz struct {
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	TimeLimitMinutes int        `json:"time_limit_minutes,omitempty"`
	PassingScore     int        `json:"passing_score"`
	TotalPoints      int        `json:"total_points"`
	Questions        []Question `json:"questions"`
}

// Assignment is a generated assignment of applied questions.
type Assignment struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Instructions string     `json:"instructions"`
	TotalPoints  int        `json:"total_points"`
	Questions    []Question `json:"questions"`
}

// Assessment kinds for GenerateTestOrExam.
const (
	KindTest = "test"
	KindExam = "exam"
)

// LessonRef is a lesson an assessment covers.
type LessonRef struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Order       int    `json:"order"`
}

// TestInput describes a test or exam spanning several lessons.
type TestInput struct {
	SystemInstruction string      `json:"system_instruction"`
	Kind              string      `json:"kind"`
	CourseTitle       string      `json:"course_title"`
	Title             string      `json:"title"`
	Lessons           []LessonRef `json:"lessons"`
	UserRequest       string      `json:"user_request"`
	TotalQuestions    int         `json:"total_questions"`
	QuestionCounts
	Options
}

// Test is a generated test or exam.
type Test struct {
	Kind            string     `json:"kind"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
	PassingScore    int        `json:"passing_score"`
	TotalPoints     int        `json:"total_points"`
	Questions       []Question `json:"questions"`
}
