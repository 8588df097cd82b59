package schemas

import "github.com/abhisek/coursepilot/internal/llm"

// CourseDetail is the catalogue entry for a new course.
var CourseDetail = register(&llm.Schema{
	Name:        "course-detail",
	Description: "Catalogue details for a course: title, descriptions, category and difficulty",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":                    str("Concise course title"),
			"short_description":        str("One or two sentence summary for course cards"),
			"long_description":         str("Full course description in several paragraphs"),
			"category":                 str("Subject area, e.g. Programming, Mathematics, Design"),
			"difficulty_level":         enum("Intended learner level", DifficultyLevels),
			"learning_objectives":      stringList("What a learner can do after the course"),
			"prerequisites":            stringList("Knowledge expected before starting"),
			"estimated_duration_weeks": integer("Expected length of the course in weeks"),
			"tags":                     stringList("Short keywords for search"),
		},
		"required": required("title", "short_description", "long_description", "category", "difficulty_level"),
	},
})

// CourseIntroduction is the welcome section shown at the start of a course.
var CourseIntroduction = register(&llm.Schema{
	Name:        "course-introduction",
	Description: "Introduction for a course: overview, objectives, audience and structure",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"overview":            str("Welcoming overview of the course, two to four paragraphs"),
			"learning_objectives": stringList("Measurable learning objectives"),
			"target_audience":     str("Who the course is for"),
			"prerequisites":       stringList("Knowledge or tools learners need beforehand"),
			"course_structure":    str("How the course is organised and paced"),
			"key_topics":          stringList("Main topics covered"),
			"estimated_hours":     integer("Total expected study hours"),
		},
		"required": required("overview", "learning_objectives", "target_audience"),
	},
})

// LessonList is an ordered lesson plan for a course.
var LessonList = register(&llm.Schema{
	Name:        "lesson-list",
	Description: "Ordered list of lessons that make up a course",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"lessons": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":               str("Lesson title"),
						"description":         str("What the lesson covers"),
						"type":                enum("Delivery format", LessonTypes),
						"duration":            integer("Length in minutes"),
						"order":               integer("1-based position in the course"),
						"learning_objectives": stringList("Objectives for this lesson"),
					},
					"required": required("title", "description", "order"),
				},
			},
		},
		"required": required("lessons"),
	},
})
