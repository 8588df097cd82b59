package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/coursepilot/internal/contentgen"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate course content once and print it as JSON",
}

var generateCourseCmd = &cobra.Command{
	Use:   "course <request...>",
	Short: "Generate catalogue details for a new course",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerate(cmd, func(ctx context.Context, svc *services) (any, error) {
			return svc.generators.GenerateCourseDetail(ctx, contentgen.CourseDetailInput{
				SystemInstruction: contentgen.SystemCourseDetail,
				UserRequest:       strings.Join(args, " "),
				Options:           generateOptions(cmd),
			})
		})
	},
}

var generateIntroCmd = &cobra.Command{
	Use:   "intro [guidance...]",
	Short: "Generate the introduction section of a course",
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		return runGenerate(cmd, func(ctx context.Context, svc *services) (any, error) {
			return svc.generators.GenerateCourseIntroduction(ctx, contentgen.CourseIntroductionInput{
				SystemInstruction: contentgen.SystemCourseIntroduction,
				CourseTitle:       title,
				CourseDescription: description,
				UserRequest:       strings.Join(args, " "),
				Options:           generateOptions(cmd),
			})
		})
	},
}

var generateLessonsCmd = &cobra.Command{
	Use:   "lessons [guidance...]",
	Short: "Plan the lessons of a course",
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		count, _ := cmd.Flags().GetInt("count")
		return runGenerate(cmd, func(ctx context.Context, svc *services) (any, error) {
			return svc.generators.GenerateLessons(ctx, contentgen.LessonsInput{
				SystemInstruction: contentgen.SystemLessons,
				CourseTitle:       title,
				CourseDescription: description,
				UserRequest:       strings.Join(args, " "),
				NumberOfLessons:   count,
				Options:           generateOptions(cmd),
			})
		})
	},
}

var generateQuizCmd = &cobra.Command{
	Use:   "quiz [guidance...]",
	Short: "Write a quiz for a lesson",
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := lessonQuestionsInput(cmd, args, contentgen.SystemQuiz)
		if err != nil {
			return err
		}
		return runGenerate(cmd, func(ctx context.Context, svc *services) (any, error) {
			return svc.generators.GenerateQuiz(ctx, in)
		})
	},
}

var generateAssignmentCmd = &cobra.Command{
	Use:   "assignment [guidance...]",
	Short: "Write an assignment for a lesson",
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := lessonQuestionsInput(cmd, args, contentgen.SystemAssignment)
		if err != nil {
			return err
		}
		return runGenerate(cmd, func(ctx context.Context, svc *services) (any, error) {
			return svc.generators.GenerateAssignment(ctx, in)
		})
	},
}

var generateTestCmd = &cobra.Command{
	Use:   "test [guidance...]",
	Short: "Write a test or exam covering several lessons",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		kind, _ := f.GetString("kind")
		course, _ := f.GetString("course")
		title, _ := f.GetString("title")
		lessons, _ := f.GetStringArray("lesson")
		total, counts := questionCounts(cmd)

		in := contentgen.TestInput{
			SystemInstruction: contentgen.SystemTest,
			Kind:              kind,
			CourseTitle:       course,
			Title:             title,
			UserRequest:       strings.Join(args, " "),
			TotalQuestions:    total,
			QuestionCounts:    counts,
			Options:           generateOptions(cmd),
		}
		for i, l := range lessons {
			ref := contentgen.LessonRef{Title: l, Order: i + 1}
			if t, d, ok := strings.Cut(l, ":"); ok {
				ref.Title, ref.Description = strings.TrimSpace(t), strings.TrimSpace(d)
			}
			in.Lessons = append(in.Lessons, ref)
		}
		return runGenerate(cmd, func(ctx context.Context, svc *services) (any, error) {
			return svc.generators.GenerateTestOrExam(ctx, in)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{generateCourseCmd, generateIntroCmd, generateLessonsCmd, generateQuizCmd, generateAssignmentCmd, generateTestCmd} {
		c.Flags().Float64("temperature", 0, "Sampling temperature (default 0.7)")
		c.Flags().Int("max-tokens", 0, "Output token ceiling")
		generateCmd.AddCommand(c)
	}

	for _, c := range []*cobra.Command{generateIntroCmd, generateLessonsCmd} {
		c.Flags().String("title", "", "Course title")
		c.Flags().String("description", "", "Course description")
		_ = c.MarkFlagRequired("title")
	}
	generateLessonsCmd.Flags().Int("count", 0, "Number of lessons (0 lets the model decide)")

	for _, c := range []*cobra.Command{generateQuizCmd, generateAssignmentCmd, generateTestCmd} {
		f := c.Flags()
		f.Int("questions", 0, "Total number of questions (default: sum of the per-type counts)")
		f.Int("multiple-choice", 0, "Multiple-choice questions")
		f.Int("true-false", 0, "True/false questions")
		f.Int("fill-blank", 0, "Fill-in-the-blank questions")
		f.Int("short-answer", 0, "Short-answer questions")
		f.Int("essay", 0, "Essay questions")
	}

	for _, c := range []*cobra.Command{generateQuizCmd, generateAssignmentCmd} {
		f := c.Flags()
		f.String("lesson", "", "Lesson title")
		f.String("description", "", "Lesson description")
		f.String("content-file", "", "File with the lesson material")
		_ = c.MarkFlagRequired("lesson")
	}

	tf := generateTestCmd.Flags()
	tf.String("kind", contentgen.KindTest, "Assessment kind: test or exam")
	tf.String("course", "", "Course title")
	tf.String("title", "", "Assessment title")
	tf.StringArray("lesson", nil, `Covered lesson as "Title" or "Title: description" (repeatable)`)
	_ = generateTestCmd.MarkFlagRequired("lesson")
}

func generateOptions(cmd *cobra.Command) contentgen.Options {
	temp, _ := cmd.Flags().GetFloat64("temperature")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")
	return contentgen.Options{Temperature: temp, MaxTokens: maxTokens}
}

func lessonQuestionsInput(cmd *cobra.Command, args []string, system string) (contentgen.QuizInput, error) {
	f := cmd.Flags()
	lesson, _ := f.GetString("lesson")
	description, _ := f.GetString("description")
	contentFile, _ := f.GetString("content-file")
	total, counts := questionCounts(cmd)

	var content string
	if contentFile != "" {
		data, err := os.ReadFile(contentFile)
		if err != nil {
			return contentgen.QuizInput{}, fmt.Errorf("read lesson content: %w", err)
		}
		content = string(data)
	}

	return contentgen.QuizInput{
		SystemInstruction: system,
		LessonTitle:       lesson,
		LessonDescription: description,
		Content:           content,
		UserRequest:       strings.Join(args, " "),
		TotalQuestions:    total,
		QuestionCounts:    counts,
		Options:           generateOptions(cmd),
	}, nil
}

// questionCounts reads the count flags. With nothing requested it asks for
// five questions and lets the generator pick the mix.
func questionCounts(cmd *cobra.Command) (int, contentgen.QuestionCounts) {
	f := cmd.Flags()
	total, _ := f.GetInt("questions")

	var counts contentgen.QuestionCounts
	counts.MultipleChoice, _ = f.GetInt("multiple-choice")
	counts.TrueFalse, _ = f.GetInt("true-false")
	counts.FillBlank, _ = f.GetInt("fill-blank")
	counts.ShortAnswer, _ = f.GetInt("short-answer")
	counts.Essay, _ = f.GetInt("essay")
	if total == 0 && counts.Sum() == 0 {
		total = 5
	}
	return total, counts
}

// runGenerate builds the services, runs fn and prints its result.
func runGenerate(cmd *cobra.Command, fn func(context.Context, *services) (any, error)) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.LLM.Timeout)
	defer cancel()

	svc, err := buildServices(ctx, cfg, st, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	out, err := fn(ctx, svc)
	if err != nil {
		return err
	}
	return printJSON(cmd, out)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
