package server

import (
	"net/http"
	"strings"

	"github.com/abhisek/coursepilot/internal/contentgen"
	"github.com/abhisek/coursepilot/internal/grading"
)

func orSystem(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func (s *Server) handleCourseDetail(w http.ResponseWriter, r *http.Request) {
	var in contentgen.CourseDetailInput
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.SystemInstruction = orSystem(in.SystemInstruction, contentgen.SystemCourseDetail)

	out, err := s.deps.Generators.GenerateCourseDetail(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCourseIntroduction(w http.ResponseWriter, r *http.Request) {
	var in contentgen.CourseIntroductionInput
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.SystemInstruction = orSystem(in.SystemInstruction, contentgen.SystemCourseIntroduction)

	out, err := s.deps.Generators.GenerateCourseIntroduction(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLessons(w http.ResponseWriter, r *http.Request) {
	var in contentgen.LessonsInput
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.SystemInstruction = orSystem(in.SystemInstruction, contentgen.SystemLessons)

	out, err := s.deps.Generators.GenerateLessons(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	var in contentgen.QuizInput
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.SystemInstruction = orSystem(in.SystemInstruction, contentgen.SystemQuiz)

	out, err := s.deps.Generators.GenerateQuiz(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAssignment(w http.ResponseWriter, r *http.Request) {
	var in contentgen.AssignmentInput
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.SystemInstruction = orSystem(in.SystemInstruction, contentgen.SystemAssignment)

	out, err := s.deps.Generators.GenerateAssignment(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	var in contentgen.TestInput
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.SystemInstruction = orSystem(in.SystemInstruction, contentgen.SystemTest)

	out, err := s.deps.Generators.GenerateTestOrExam(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGrade always answers 200; a failed grade comes back degraded.
func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	var in grading.QuestionInput
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Grader.GradeQuestion(r.Context(), in))
}

type gradeBatchRequest struct {
	Questions []grading.QuestionInput `json:"questions"`
	Context   *grading.Context        `json:"context,omitempty"`
}

func (s *Server) handleGradeBatch(w http.ResponseWriter, r *http.Request) {
	var in gradeBatchRequest
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(in.Questions) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "questions must not be empty", Field: "questions"})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Grader.GradeBatch(r.Context(), in.Questions, in.Context))
}

type transcribeRequest struct {
	VideoURL  string   `json:"video_url"`
	Languages []string `json:"languages,omitempty"`
}

// handleTranscribe reports model failures in the body with success=false.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var in transcribeRequest
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.VideoURL) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "video_url is required", Field: "video_url"})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Transcriber.Transcribe(r.Context(), in.VideoURL, in.Languages))
}
