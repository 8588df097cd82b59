// Package server exposes the generators, grader and transcriber over HTTP
// and mounts the course builder websockets.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abhisek/coursepilot/internal/auth"
	"github.com/abhisek/coursepilot/internal/contentgen"
	"github.com/abhisek/coursepilot/internal/grading"
	"github.com/abhisek/coursepilot/internal/logger"
	"github.com/abhisek/coursepilot/internal/transcribe"
)

// Generators produces course content.
type Generators interface {
	GenerateCourseDetail(ctx context.Context, in contentgen.CourseDetailInput) (*contentgen.CourseDetail, error)
	GenerateCourseIntroduction(ctx context.Context, in contentgen.CourseIntroductionInput) (*contentgen.CourseIntroduction, error)
	GenerateLessons(ctx context.Context, in contentgen.LessonsInput) (*contentgen.LessonPlan, error)
	GenerateQuiz(ctx context.Context, in contentgen.QuizInput) (*contentgen.Quiz, error)
	GenerateAssignment(ctx context.Context, in contentgen.AssignmentInput) (*contentgen.Assignment, error)
	GenerateTestOrExam(ctx context.Context, in contentgen.TestInput) (*contentgen.Test, error)
}

// Grader grades answers. It never fails; degraded grades carry an error.
type Grader interface {
	GradeQuestion(ctx context.Context, q grading.QuestionInput) grading.Result
	GradeBatch(ctx context.Context, questions []grading.QuestionInput, shared *grading.Context) grading.BatchResult
}

// Transcriber turns a video URL into text.
type Transcriber interface {
	Transcribe(ctx context.Context, videoURL string, languages []string) transcribe.Result
}

// Deps are the services the server routes to. The sockets are optional.
type Deps struct {
	Generators  Generators
	Grader      Grader
	Transcriber Transcriber
	Verifier    auth.Verifier

	BuilderSocket http.Handler
	CourseSocket  http.Handler

	Log *logger.Logger
}

// Server is the HTTP front of coursepilot.
type Server struct {
	deps   Deps
	router chi.Router
	log    *logger.Logger
}

// CourseIDParam reads the course id of the course socket route.
func CourseIDParam(r *http.Request) string {
	return chi.URLParam(r, "courseID")
}

func New(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{deps: deps, log: log}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/ai", func(r chi.Router) {
		r.Use(auth.Middleware(s.deps.Verifier))
		r.Post("/course-detail", s.handleCourseDetail)
		r.Post("/course-introduction", s.handleCourseIntroduction)
		r.Post("/lessons", s.handleLessons)
		r.Post("/quiz", s.handleQuiz)
		r.Post("/assignment", s.handleAssignment)
		r.Post("/test", s.handleTest)
		r.Post("/grade", s.handleGrade)
		r.Post("/grade-batch", s.handleGradeBatch)
		r.Post("/transcribe", s.handleTranscribe)
	})

	if s.deps.BuilderSocket != nil {
		r.Get("/ws/course-builder", s.deps.BuilderSocket.ServeHTTP)
	}
	if s.deps.CourseSocket != nil {
		r.Get("/ws/courses/{courseID}", s.deps.CourseSocket.ServeHTTP)
	}
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests
// for up to shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, readTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
