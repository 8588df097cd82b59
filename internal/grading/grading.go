// Package grading grades student answers with a language model. Grading is
// fail-soft: any failure yields a zero grade flagged for manual review
// instead of an error.
package grading

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/template"

	"golang.org/x/sync/errgroup"

	"github.com/abhisek/coursepilot/internal/llm"
	"github.com/abhisek/coursepilot/internal/logger"
	"github.com/abhisek/coursepilot/internal/metrics"
	"github.com/abhisek/coursepilot/internal/schemas"
	"github.com/abhisek/coursepilot/internal/structured"
)

const (
	defaultConfidence = 0.8
	defaultFeedback   = "We could not grade this answer automatically. It has been flagged for review by your instructor."
)

// Config controls the grading service.
type Config struct {
	// SystemTemplate is a path to a text/template file for the system
	// instruction. Empty uses the built-in template.
	SystemTemplate string
	Temperature    float64
	MaxTokens      int

	// Concurrency bounds how many answers of a batch are graded at once.
	// Values below 1 grade sequentially.
	Concurrency int
}

// DefaultConfig returns the recommended grading settings.
func DefaultConfig() Config {
	return Config{Temperature: 0.3, MaxTokens: 2048, Concurrency: 4}
}

// Context is optional material the grader may consult.
type Context struct {
	Passage            string   `json:"passage,omitempty"`
	LessonContent      string   `json:"lesson_content,omitempty"`
	LearningObjectives []string `json:"learning_objectives,omitempty"`
}

// QuestionInput is one answer to grade.
type QuestionInput struct {
	QuestionID     string   `json:"question_id,omitempty"`
	QuestionText   string   `json:"question_text"`
	QuestionType   string   `json:"question_type"`
	StudentAnswer  any      `json:"student_answer"`
	PointsPossible float64  `json:"points_possible"`
	Explanation    string   `json:"explanation,omitempty"`
	Rubric         string   `json:"rubric,omitempty"`
	Context        *Context `json:"context,omitempty"`
}

// Result is the grade for one answer. Error is set only on degraded results.
type Result struct {
	QuestionID    string  `json:"question_id,omitempty"`
	PointsEarned  float64 `json:"points_earned"`
	Feedback      string  `json:"feedback"`
	CorrectAnswer string  `json:"correct_answer"`
	Confidence    float64 `json:"confidence"`
	Error         string  `json:"error,omitempty"`
}

// Degraded reports whether the result is a fallback.
func (r Result) Degraded() bool { return r.Error != "" }

// BatchResult aggregates a batch of grades.
type BatchResult struct {
	Grades        []Result `json:"grades"`
	TotalScore    float64  `json:"total_score"`
	TotalPossible float64  `json:"total_possible"`
}

// Service grades answers.
type Service struct {
	gen    structured.Generator
	cfg    Config
	system *template.Template
	log    *logger.Logger
}

// New creates a Service. A template that cannot be loaded is logged and the
// built-in one is used.
func New(gen structured.Generator, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	tmpl, err := LoadSystemTemplate(cfg.SystemTemplate)
	if err != nil {
		log.Warn("using built-in grading template", "path", cfg.SystemTemplate, "error", err)
		tmpl, _ = LoadSystemTemplate("")
	}
	return &Service{gen: gen, cfg: cfg, system: tmpl, log: log}
}

// GradeQuestion grades a single answer. It never returns an error; failures
// produce a degraded Result.
func (s *Service) GradeQuestion(ctx context.Context, q QuestionInput) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = s.degraded(q, fmt.Errorf("panic while grading: %v", r))
		}
		status := metrics.StatusOK
		if res.Degraded() {
			status = metrics.StatusDegraded
		}
		metrics.GradingTotal.WithLabelValues(typeLabel(q.QuestionType), status).Inc()
	}()

	graded, err := s.grade(ctx, q)
	if err != nil {
		return s.degraded(q, err)
	}
	graded.QuestionID = q.QuestionID
	return graded
}

func (s *Service) grade(ctx context.Context, q QuestionInput) (Result, error) {
	if strings.TrimSpace(q.QuestionText) == "" {
		return Result{}, errors.New("question_text is required")
	}
	if q.PointsPossible < 0 || math.IsNaN(q.PointsPossible) {
		q.PointsPossible = 0
	}

	system, err := renderSystem(s.system, q)
	if err != nil {
		return Result{}, err
	}
	prompt, err := buildPrompt(q, q.Context)
	if err != nil {
		return Result{}, err
	}

	out, err := s.gen.Generate(ctx, structured.Call{
		System:      system,
		Prompt:      prompt,
		Schema:      schemas.Grading,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
		Purpose:     llm.PurposeGrading,
	})
	if err != nil {
		return Result{}, err
	}
	return postProcess(out.Parsed, q.PointsPossible)
}

// postProcess clamps the score, cleans the feedback and defaults confidence.
func postProcess(parsed map[string]any, possible float64) (Result, error) {
	earned, ok := number(parsed["points_earned"])
	if !ok {
		return Result{}, fmt.Errorf("grading response has no numeric points_earned: %v", parsed["points_earned"])
	}
	feedback, ok := parsed["feedback"].(string)
	if !ok {
		return Result{}, errors.New("grading response has no feedback")
	}
	correct, _ := parsed["correct_answer"].(string)

	confidence, ok := number(parsed["confidence"])
	if !ok {
		confidence = defaultConfidence
	}

	return Result{
		PointsEarned:  Clamp(earned, 0, possible),
		Feedback:      StripFeedbackPrefixes(feedback),
		CorrectAnswer: strings.TrimSpace(correct),
		Confidence:    Clamp(confidence, 0, 1),
	}, nil
}

func (s *Service) degraded(q QuestionInput, err error) Result {
	s.log.Warn("grading failed, returning degraded result",
		"question_id", q.QuestionID, "question_type", q.QuestionType, "error", err)
	return Result{
		QuestionID:   q.QuestionID,
		PointsEarned: 0,
		Feedback:     defaultFeedback,
		Confidence:   0,
		Error:        err.Error(),
	}
}

// GradeBatch grades every question, up to Concurrency at a time, and
// returns the grades in input order. Questions without their own context
// use shared. A failing item degrades alone.
func (s *Service) GradeBatch(ctx context.Context, questions []QuestionInput, shared *Context) BatchResult {
	grades := make([]Result, len(questions))
	var g errgroup.Group
	g.SetLimit(max(s.cfg.Concurrency, 1))
	for i, q := range questions {
		if q.Context == nil {
			q.Context = shared
		}
		g.Go(func() error {
			grades[i] = s.GradeQuestion(ctx, q)
			return nil
		})
	}
	g.Wait()

	out := BatchResult{Grades: grades}
	for i, r := range grades {
		out.TotalScore += r.PointsEarned
		if p := questions[i].PointsPossible; p > 0 {
			out.TotalPossible += p
		}
	}
	return out
}

// Clamp bounds v to [lo, hi]. NaN becomes lo.
func Clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	switch {
	case math.IsNaN(v), v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

var feedbackPrefixes = []string{"reasoning:", "feedback:"}

// StripFeedbackPrefixes removes leading "Reasoning:" and "Feedback:" labels,
// in any case and any number of times.
func StripFeedbackPrefixes(s string) string {
	s = strings.TrimSpace(s)
	for {
		stripped := false
		for _, p := range feedbackPrefixes {
			if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
				s = strings.TrimSpace(s[len(p):])
				stripped = true
			}
		}
		if !stripped {
			return s
		}
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func typeLabel(t string) string {
	for _, known := range schemas.QuestionTypes {
		if t == known {
			return t
		}
	}
	return "other"
}
