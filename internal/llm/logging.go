package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/abhisek/coursepilot/internal/logger"
	"github.com/abhisek/coursepilot/internal/metrics"
	"github.com/abhisek/coursepilot/internal/store"
)

// LoggingProvider records every call it forwards: a stored event with the
// full prompt and output, a log line and Prometheus samples.
type LoggingProvider struct {
	inner    Provider
	provider string
	events   store.EventRepo
	log      *logger.Logger
}

// WithLogging wraps p. provider names the backend ("gemini", "openai", ...)
// for the stored events. events may be nil, in which case only metrics and
// log lines are emitted.
func WithLogging(p Provider, provider string, events store.EventRepo, log *logger.Logger) Provider {
	if log == nil {
		log = logger.Nop()
	}
	return &LoggingProvider{inner: p, provider: provider, events: events, log: log}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)
	elapsed := time.Since(start)

	ev := l.event(PurposeFrom(ctx), req, resp, err, elapsed)
	l.observe(ev, err, elapsed)

	// A failed write must not fail the model call.
	if l.events != nil {
		if werr := l.events.AppendLLMRequest(ctx, ev); werr != nil {
			l.log.Warn("record model call", "purpose", ev.Purpose, "error", werr)
		}
	}
	return resp, err
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}

func (l *LoggingProvider) event(purpose string, req Request, resp *Response, err error, elapsed time.Duration) store.LLMRequestEventData {
	ev := store.LLMRequestEventData{
		Provider:    l.provider,
		Model:       l.inner.ModelID(),
		Purpose:     purpose,
		LatencyMs:   elapsed.Milliseconds(),
		Success:     err == nil,
		RequestBody: transcript(req),
	}
	if ev.Provider == "" {
		ev.Provider = ev.Model
	}
	if resp != nil {
		if resp.Model != "" {
			ev.Model = resp.Model
		}
		ev.InputTokens = resp.Usage.InputTokens
		ev.OutputTokens = resp.Usage.OutputTokens
		ev.ResponseBody = resp.Text
	}
	if err != nil {
		ev.ErrorMessage = err.Error()
	}
	return ev
}

func (l *LoggingProvider) observe(ev store.LLMRequestEventData, err error, elapsed time.Duration) {
	fields := []any{"provider", ev.Provider, "model", ev.Model, "purpose", ev.Purpose, "latency_ms", ev.LatencyMs}
	if err != nil {
		l.log.Warn("model call failed", append(fields, "error", err)...)
	} else {
		l.log.Debug("model call", append(fields, "input_tokens", ev.InputTokens, "output_tokens", ev.OutputTokens)...)
	}

	metrics.LLMRequestsTotal.WithLabelValues(ev.Model, ev.Purpose, metrics.Status(err)).Inc()
	metrics.LLMRequestDuration.WithLabelValues(ev.Model, ev.Purpose).Observe(elapsed.Seconds())
	metrics.LLMTokensTotal.WithLabelValues(ev.Model, "input").Add(float64(ev.InputTokens))
	metrics.LLMTokensTotal.WithLabelValues(ev.Model, "output").Add(float64(ev.OutputTokens))
}

type requestTranscript struct {
	System      string      `json:"system,omitempty"`
	Messages    []Message   `json:"messages,omitempty"`
	Media       []MediaPart `json:"media,omitempty"`
	Schema      string      `json:"schema,omitempty"`
	Temperature float64     `json:"temperature,omitempty"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
}

// transcript renders req as indented JSON for `coursepilot llm view`.
// Schemas are recorded by name; their definitions live in the schemas
// package.
func transcript(req Request) string {
	t := requestTranscript{
		System:      req.System,
		Messages:    req.Messages,
		Media:       req.Media,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.Schema != nil {
		t.Schema = req.Schema.Name
	}
	out, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(out)
}
