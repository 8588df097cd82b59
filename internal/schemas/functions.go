package schemas

import "github.com/abhisek/coursepilot/internal/llm"

// Function names the conversational builder declares to the model.
const (
	FnGenerateCourse             = "generate_course"
	FnGenerateCourseIntroduction = "generate_course_introduction"
	FnGenerateLesson             = "generate_lesson"
	FnGenerateAssignment         = "generate_assignment"
	FnGenerateQuiz               = "generate_quiz"
)

var GenerateCourseArgs = register(&llm.Schema{
	Name:        "generate-course-args",
	Description: "Arguments for generate_course",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_request": str("The learner-facing course the user asked for, in their words"),
		},
		"required": required("user_request"),
	},
})

var GenerateCourseIntroductionArgs = register(&llm.Schema{
	Name:        "generate-course-introduction-args",
	Description: "Arguments for generate_course_introduction",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"course_title":       str("Title of the course being introduced"),
			"course_description": str("Description of the course"),
			"user_request":       str("Any extra guidance from the user"),
		},
		"required": required("course_title"),
	},
})

var GenerateLessonArgs = register(&llm.Schema{
	Name:        "generate-lesson-args",
	Description: "Arguments for generate_lesson",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"course_title":       str("Title of the course"),
			"course_description": str("Description of the course"),
			"user_request":       str("What the lessons should cover"),
			"number_of_lessons":  integer("How many lessons to produce"),
		},
		"required": required("user_request"),
	},
})

var GenerateAssignmentArgs = register(&llm.Schema{
	Name:        "generate-assignment-args",
	Description: "Arguments for generate_assignment",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"lesson_title":        str("Lesson the assignment belongs to"),
			"lesson_description":  str("What the lesson covers"),
			"user_request":        str("What the assignment should practise"),
			"number_of_questions": integer("How many questions to include"),
		},
		"required": required("lesson_title"),
	},
})

var GenerateQuizArgs = register(&llm.Schema{
	Name:        "generate-quiz-args",
	Description: "Arguments for generate_quiz",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"lesson_title":        str("Lesson the quiz belongs to"),
			"lesson_description":  str("What the lesson covers"),
			"user_request":        str("What the quiz should check"),
			"number_of_questions": integer("How many questions to include"),
		},
		"required": required("lesson_title"),
	},
})

// BuilderFunctions returns the function declarations offered to the model
// in the conversational course builder.
func BuilderFunctions() []llm.FunctionDeclaration {
	return []llm.FunctionDeclaration{
		{
			Name:        FnGenerateCourse,
			Description: "Generate a complete course outline (title, descriptions, category, difficulty) when the user asks to create a course.",
			Parameters:  GenerateCourseArgs,
		},
		{
			Name:        FnGenerateCourseIntroduction,
			Description: "Write the introduction section for a course.",
			Parameters:  GenerateCourseIntroductionArgs,
		},
		{
			Name:        FnGenerateLesson,
			Description: "Produce an ordered list of lessons for a course.",
			Parameters:  GenerateLessonArgs,
		},
		{
			Name:        FnGenerateAssignment,
			Description: "Create an assignment for a lesson.",
			Parameters:  GenerateAssignmentArgs,
		},
		{
			Name:        FnGenerateQuiz,
			Description: "Create a quiz for a lesson.",
			Parameters:  GenerateQuizArgs,
		},
	}
}
