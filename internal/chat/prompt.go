package chat

import (
	"fmt"
	"strings"
)

// BuilderSystem is the system instruction for the course builder chat.
const BuilderSystem = `You are a course-building assistant for teachers on an online learning platform.
Help the teacher design a course through conversation. Ask short clarifying questions when the request is vague.

When the teacher asks you to create content, call the matching function instead of writing the content yourself:
- generate_course for a new course outline and catalogue details
- generate_course_introduction for the introduction section of a course
- generate_lesson for the list of lessons of a course
- generate_assignment for an assignment attached to a lesson
- generate_quiz for a quiz attached to a lesson

Pass the teacher's own words as user_request. For everything else reply in plain, friendly text.`

// CourseSystem extends BuilderSystem with the course being edited.
func CourseSystem(title, description string) string {
	var b strings.Builder
	b.WriteString(BuilderSystem)
	b.WriteString("\n\nThe teacher is working on an existing course.\n")
	fmt.Fprintf(&b, "Course title: %s\n", title)
	if description = strings.TrimSpace(description); description != "" {
		fmt.Fprintf(&b, "Course description: %s\n", description)
	}
	b.WriteString("Use this course as the default course_title and course_description when calling functions.")
	return b.String()
}
