package schemas

import "github.com/abhisek/coursepilot/internal/llm"

// questionItem returns a fresh definition for one assessment question. Each
// caller gets its own map so schemas never share mutable state.
func questionItem() map[string]any {
	option := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":          str("Option identifier, e.g. a, b, c"),
			"text":        str("Option text"),
			"isCorrect":   map[string]any{"type": "boolean"},
			"explanation": str("Why this option is right or wrong"),
		},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question_text": str("The question shown to the learner"),
			"type":          enum("Question type", QuestionTypes),
			"points":        map[string]any{"type": "integer", "minimum": 1, "description": "Points awarded for a fully correct answer"},
			"content": map[string]any{
				"type":        "object",
				"description": "Type-specific payload",
				"properties": map[string]any{
					"options":        stringList("multiple_choice: the answer options"),
					"correct_answer": str("multiple_choice: one of options; true_false: \"true\" or \"false\"; short_answer: model answer"),
					"full_options": map[string]any{
						"type":        "object",
						"description": "multiple_choice: {options: [...]}; true_false: {trueOption, falseOption}",
						"properties": map[string]any{
							"options":     map[string]any{"type": "array", "items": option},
							"trueOption":  option,
							"falseOption": option,
						},
					},
					"blanks":            stringList("fill_blank: blank identifiers in order"),
					"correct_answers":   map[string]any{"type": "object", "description": "fill_blank: blank identifier to accepted answer"},
					"accept_variations": map[string]any{"type": "boolean", "description": "short_answer: accept equivalent wording"},
					"instructions":      str("essay: guidance for the learner"),
				},
			},
			"explanation":  str("Explanation of the correct answer; for essays, a model answer"),
			"lesson_title": str("Lesson the question draws on, when several lessons are covered"),
		},
		"required": required("question_text", "type", "points", "content", "explanation"),
	}
}

func questionList() map[string]any {
	return map[string]any{
		"type":  "array",
		"items": questionItem(),
	}
}

// Quiz is a short lesson quiz.
var Quiz = register(&llm.Schema{
	Name:        "quiz",
	Description: "A lesson quiz with typed questions",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":              str("Quiz title"),
			"description":        str("What the quiz checks"),
			"time_limit_minutes": integer("Suggested time limit"),
			"passing_score":      integer("Percentage needed to pass"),
			"questions":          questionList(),
		},
		"required": required("title", "questions"),
	},
})

// Assignment is take-home work attached to a lesson.
var Assignment = register(&llm.Schema{
	Name:        "assignment",
	Description: "A lesson assignment with typed questions; essay model answers live in explanation",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":        str("Assignment title"),
			"description":  str("What the assignment practises"),
			"instructions": str("Submission instructions for learners"),
			"questions":    questionList(),
		},
		"required": required("title", "questions"),
	},
})

// TestExam is a test or exam spanning one or more lessons.
var TestExam = register(&llm.Schema{
	Name:        "test-exam",
	Description: "A test or exam covering several lessons",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":            str("Test or exam title"),
			"description":      str("Scope of the assessment"),
			"duration_minutes": integer("Time allowed"),
			"passing_score":    integer("Percentage needed to pass"),
			"questions":        questionList(),
		},
		"required": required("title", "questions"),
	},
})

// Grading is the result of grading one answer.
var Grading = register(&llm.Schema{
	Name:        "grading",
	Description: "Grade for a single student answer",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"points_earned":  map[string]any{"type": "number", "description": "Points awarded, between 0 and the points possible"},
			"feedback":       str("Feedback addressed to the student"),
			"correct_answer": str("A correct answer for the question"),
			"confidence":     map[string]any{"type": "number", "minimum": 0, "maximum": 1, "description": "Confidence in the grade"},
		},
		"required": required("points_earned", "feedback", "correct_answer"),
	},
})
