package cmd

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/abhisek/coursepilot/internal/config"
	"github.com/abhisek/coursepilot/internal/contentgen"
	"github.com/abhisek/coursepilot/internal/grading"
	"github.com/abhisek/coursepilot/internal/llm"
	"github.com/abhisek/coursepilot/internal/logger"
	"github.com/abhisek/coursepilot/internal/store"
	"github.com/abhisek/coursepilot/internal/structured"
	"github.com/abhisek/coursepilot/internal/transcribe"
)

// services bundles everything built on top of the model provider.
type services struct {
	provider    llm.Provider
	generators  *contentgen.Service
	grader      *grading.Service
	transcriber *transcribe.Service
	redis       *redis.Client
}

// Close releases the redis connection, if any.
func (s *services) Close() {
	if s.redis != nil {
		s.redis.Close()
	}
}

// buildServices wires the provider and the generation services. The store
// records every model call; it may be nil.
func buildServices(ctx context.Context, cfg config.Config, st *store.Store, log *logger.Logger) (*services, error) {
	if err := cfg.LLM.Validate(); err != nil {
		return nil, fmt.Errorf("LLM provider not configured: %w", err)
	}

	var events store.EventRepo
	if st != nil {
		events = st.EventRepo()
	}
	provider, err := llm.NewProvider(ctx, cfg.LLM, events, log)
	if err != nil {
		return nil, err
	}

	gen := structured.New(provider, log)
	svc := &services{
		provider:   provider,
		generators: contentgen.New(gen, log),
		grader:     grading.New(gen, cfg.Grading, log),
	}

	opts := []transcribe.Option{transcribe.WithLogger(log), transcribe.WithLanguages(cfg.Transcribe.Languages)}
	if cfg.Redis.Addr != "" {
		rdb, err := transcribe.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			// Transcripts are still produced without the cache.
			log.Warn("transcript cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			svc.redis = rdb
			opts = append(opts, transcribe.WithCache(transcribe.NewRedisCache(rdb, cfg.Redis.TTL)))
		}
	}
	captions := transcribe.NewTimedTextFetcher(cfg.Transcribe.CaptionsURL, cfg.Transcribe.Timeout)
	svc.transcriber = transcribe.New(captions, provider, opts...)

	log.Info("llm provider ready", "provider", cfg.LLM.Provider, "model", provider.ModelID())
	return svc, nil
}
