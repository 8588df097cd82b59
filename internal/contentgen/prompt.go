package contentgen

import (
	"fmt"
	"sort"
	"strings"
)

// Default system instructions. Callers may supply their own; these are what
// the HTTP layer, the CLI and the conversational builder use.
const (
	SystemCourseDetail = `You are an experienced instructional designer helping teachers create online courses.
Write clear, accurate, learner-facing copy. Pick the difficulty level that fits the intended audience.`

	SystemCourseIntroduction = `You are an experienced instructional designer writing the introduction section of an online course.
Be welcoming and concrete: say what learners will be able to do, who the course is for and how it is organised.`

	SystemLessons = `You are an experienced instructional designer planning the lessons of an online course.
Lessons must build on each other in a sensible order. Each lesson needs a specific, descriptive title.`

	SystemQuiz = `You are an experienced teacher writing quiz questions.
Questions must be answerable from the lesson material, unambiguous and free of trick wording.
For multiple choice give plausible distractors based on common misconceptions.`

	SystemAssignment = `You are an experienced teacher writing an assignment that asks learners to apply what they studied.
For essay questions put a model answer in the explanation field. Do not include a grading rubric.`

	SystemTest = `You are an experienced teacher writing a summative assessment that spans several lessons.
Balance the questions across the lessons covered and vary their difficulty.`
)

func writeField(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.TrimSpace(value))
}

func buildCourseDetailPrompt(in CourseDetailInput) string {
	var b strings.Builder
	b.WriteString("Create the catalogue details for a new course.\n\n")
	writeField(&b, "Request", in.UserRequest)
	b.WriteString("\nRequirements:\n")
	b.WriteString("- difficulty_level must be one of: beginner, intermediate, advanced\n")
	b.WriteString("- short_description is one or two sentences; long_description is several paragraphs\n")
	b.WriteString("- category is a single broad subject area\n")
	return b.String()
}

func buildCourseIntroductionPrompt(in CourseIntroductionInput) string {
	var b strings.Builder
	b.WriteString("Write the introduction for this course.\n\n")
	writeField(&b, "Course title", in.CourseTitle)
	writeField(&b, "Course description", in.CourseDescription)
	writeField(&b, "Additional guidance", in.UserRequest)
	return b.String()
}

func buildLessonsPrompt(in LessonsInput) string {
	var b strings.Builder
	b.WriteString("Plan the lessons for this course.\n\n")
	writeField(&b, "Course title", in.CourseTitle)
	writeField(&b, "Course description", in.CourseDescription)
	writeField(&b, "Request", in.UserRequest)
	b.WriteString("\nRequirements:\n")
	if in.NumberOfLessons > 0 {
		fmt.Fprintf(&b, "- Exactly %d lesson(s)\n", in.NumberOfLessons)
	}
	b.WriteString("- order starts at 1 and increases by one per lesson\n")
	b.WriteString("- duration is in minutes\n")
	return b.String()
}

func buildQuizPrompt(in QuizInput, counts QuestionCounts, total int, what string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a %s for this lesson.\n\n", what)
	writeField(&b, "Lesson title", in.LessonTitle)
	writeField(&b, "Lesson description", in.LessonDescription)
	if c := strings.TrimSpace(in.Content); c != "" {
		b.WriteString("\nLesson content:\n")
		b.WriteString(c)
		b.WriteString("\n")
	}
	if r := strings.TrimSpace(in.UserRequest); r != "" {
		b.WriteString("\n")
		writeField(&b, "Additional guidance", r)
	}
	fmt.Fprintf(&b, "\nInclude exactly %d question(s) in total:\n", total)
	b.WriteString(countLines(counts))
	b.WriteString(questionTypeGuide)
	return b.String()
}

func buildTestPrompt(in TestInput, lessons []LessonRef, counts QuestionCounts, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the %s for this course.\n\n", in.Kind)
	writeField(&b, "Course title", in.CourseTitle)
	writeField(&b, "Title", in.Title)
	writeField(&b, "Additional guidance", in.UserRequest)

	b.WriteString("\nLessons covered:\n")
	for _, l := range lessons {
		fmt.Fprintf(&b, "%d. %s", l.Order, l.Title)
		if d := strings.TrimSpace(l.Description); d != "" {
			fmt.Fprintf(&b, ": %s", d)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nInclude exactly %d question(s) in total:\n", total)
	b.WriteString(countLines(counts))

	b.WriteString("\nCoverage rules:\n")
	b.WriteString("- Write at least one question for every lesson before any lesson gets a second question.\n")
	b.WriteString("- When there are more questions than lessons, give the extra questions to the most recent lessons first.\n")
	b.WriteString("- When there are fewer questions than lessons, cover the most recent lessons.\n")
	b.WriteString("- Set lesson_title on every question.\n")
	b.WriteString("Questions per lesson:\n")
	for i, n := range allocateCoverage(lessons, total) {
		if n > 0 {
			fmt.Fprintf(&b, "- %s: %d\n", lessons[i].Title, n)
		}
	}
	b.WriteString(questionTypeGuide)
	return b.String()
}

const questionTypeGuide = `
Question format:
- multiple_choice: content.options lists at least 2 options; content.correct_answer is exactly one of them
- true_false: content.correct_answer is "true" or "false"
- fill_blank: content.blanks names each blank; content.correct_answers maps each blank to its answer
- short_answer: content.correct_answer holds a model answer; set content.accept_variations
- essay: content.instructions guides the learner; the model answer goes in explanation
- points is a whole number of at least 1
`

// sortLessons orders lessons by Order, assigning positions to lessons
// without one.
func sortLessons(in []LessonRef) []LessonRef {
	out := make([]LessonRef, 0, len(in))
	for i, l := range in {
		if strings.TrimSpace(l.Title) == "" {
			continue
		}
		if l.Order <= 0 {
			l.Order = i + 1
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// allocateCoverage spreads total questions over ordered lessons: one each
// before any lesson gets a second, extras going to the latest lessons
// first. With fewer questions than lessons the latest lessons are covered.
// The result is indexed like lessons.
func allocateCoverage(lessons []LessonRef, total int) []int {
	alloc := make([]int, len(lessons))
	if len(lessons) == 0 {
		return alloc
	}
	total = max(total, 0)
	each, extra := total/len(lessons), total%len(lessons)
	for i := range alloc {
		alloc[i] = each
		if i >= len(lessons)-extra {
			alloc[i]++
		}
	}
	return alloc
}
