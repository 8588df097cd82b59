package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abhisek/coursepilot/internal/auth"
	"github.com/abhisek/coursepilot/internal/chat"
	"github.com/abhisek/coursepilot/internal/llm"
	"github.com/abhisek/coursepilot/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and course builder websockets",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().String("redis", "", "Redis address for the transcript cache (empty disables it)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (set COURSEPILOT_AUTH_JWT_SECRET)")
	}
	verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	svc, err := buildServices(ctx, cfg, st, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	deps := server.Deps{
		Generators:  svc.generators,
		Grader:      svc.grader,
		Transcriber: svc.transcriber,
		Verifier:    verifier,
		Log:         log,
	}

	if cfg.LLM.SupportsChat() {
		chatProvider, err := llm.NewChatProvider(ctx, cfg.LLM)
		if err != nil {
			return err
		}
		orch := chat.NewOrchestrator(svc.generators, st.ConversationRepo(), chat.Config{
			MaxRetries: cfg.Chat.MaxRetries,
			RetryBase:  cfg.Chat.RetryBase,
		}, log.With("component", "chat"))
		chatDeps := chat.Deps{
			Verifier:       verifier,
			Users:          st.UserRepo(),
			Courses:        st.CourseRepo(),
			Provider:       chatProvider,
			Orchestrator:   orch,
			Temperature:    cfg.Chat.Temperature,
			MaxTokens:      cfg.Chat.MaxTokens,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Log:            log,
		}
		deps.BuilderSocket = chat.NewBuilderHandler(chatDeps)
		deps.CourseSocket = chat.NewCourseHandler(chatDeps, server.CourseIDParam)
	} else {
		log.Warn("course builder disabled: provider has no chat support", "provider", cfg.LLM.Provider)
	}

	return server.New(deps).Run(ctx, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.ShutdownTimeout)
}
