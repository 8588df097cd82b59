// Package transcribe turns a video URL into a transcript. Published
// captions are preferred; without them the model watches the video.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/abhisek/coursepilot/internal/llm"
	"github.com/abhisek/coursepilot/internal/logger"
	"github.com/abhisek/coursepilot/internal/metrics"
)

// Transcription methods.
const (
	MethodCaptions = "captions_api"
	MethodModel    = "model_fallback"
)

// DefaultLanguages is the caption language priority.
var DefaultLanguages = []string{"en", "en-US", "es", "fr", "de", "it", "pt"}

const (
	fallbackTemperature = 0.1
	fallbackMaxTokens   = 8192
)

const transcriptionSystem = `You are a precise transcriptionist. You produce verbatim transcripts of video audio.`

const transcriptionPrompt = `Transcribe all speech in this video verbatim, in the language it is spoken.
Return only the transcript text. Do not add timestamps, speaker labels, summaries or commentary.
If the video has no speech, describe that in one sentence.`

// Result is the outcome of a transcription. Failures are reported through
// Success and Error, never as a Go error.
type Result struct {
	Transcript string `json:"transcript"`
	Method     string `json:"method"`
	Language   string `json:"language,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// Service transcribes videos.
type Service struct {
	captions CaptionFetcher
	provider llm.Provider
	cache    Cache
	log      *logger.Logger
	langs    []string
	group    singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables transcript caching.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithLanguages replaces DefaultLanguages as the caption priority used when
// a call passes none.
func WithLanguages(langs []string) Option {
	return func(s *Service) {
		if len(langs) > 0 {
			s.langs = langs
		}
	}
}

// New creates a Service. captions may be nil to always use the model.
func New(captions CaptionFetcher, provider llm.Provider, opts ...Option) *Service {
	s := &Service{captions: captions, provider: provider, log: logger.Nop(), langs: DefaultLanguages}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Transcribe returns the transcript of videoURL. Empty languages uses
// the service languages. Concurrent calls for the same URL share one run.
func (s *Service) Transcribe(ctx context.Context, videoURL string, languages []string) Result {
	videoURL = strings.TrimSpace(videoURL)
	if videoURL == "" {
		return Result{Error: "video_url is required"}
	}
	if len(languages) == 0 {
		languages = s.langs
	}

	key := videoURL + "|" + strings.Join(languages, ",")
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn("transcript cache read failed", "error", err)
		} else if ok {
			s.log.Debug("transcript cache hit", "video_url", videoURL)
			return *cached
		}
	}

	v, _, _ := s.group.Do(key, func() (any, error) {
		return s.transcribe(ctx, videoURL, languages), nil
	})
	res := v.(Result)

	metrics.TranscriptionsTotal.WithLabelValues(res.Method, successLabel(res.Success)).Inc()

	if res.Success && s.cache != nil {
		if err := s.cache.Set(ctx, key, res); err != nil {
			s.log.Warn("transcript cache write failed", "error", err)
		}
	}
	return res
}

func (s *Service) transcribe(ctx context.Context, videoURL string, languages []string) Result {
	if id, ok := ExtractYouTubeID(videoURL); ok && s.captions != nil {
		if res, ok := s.fromCaptions(ctx, id, languages); ok {
			return res
		}
	}
	return s.fromModel(ctx, videoURL)
}

func (s *Service) fromCaptions(ctx context.Context, videoID string, languages []string) (Result, bool) {
	for _, lang := range languages {
		text, err := s.captions.Fetch(ctx, videoID, lang)
		if err == nil && strings.TrimSpace(text) != "" {
			return Result{Transcript: text, Method: MethodCaptions, Language: lang, Success: true}, true
		}
		if err != nil && !errors.Is(err, ErrNoCaptions) {
			s.log.Debug("caption fetch failed", "video_id", videoID, "lang", lang, "error", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	s.log.Info("no captions found, falling back to model", "video_id", videoID)
	return Result{}, false
}

func (s *Service) fromModel(ctx context.Context, videoURL string) Result {
	res := Result{Method: MethodModel}
	if s.provider == nil {
		res.Error = "no model configured for video transcription"
		return res
	}

	ctx = llm.WithPurpose(ctx, llm.PurposeTranscription)
	resp, err := s.provider.Generate(ctx, llm.Request{
		System:      transcriptionSystem,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: transcriptionPrompt}},
		Media:       []llm.MediaPart{{URI: videoURL, MIMEType: videoMIMEType(videoURL)}},
		Temperature: fallbackTemperature,
		MaxTokens:   fallbackMaxTokens,
	})
	if err != nil {
		s.log.Warn("model transcription failed", "video_url", videoURL, "error", err)
		res.Error = fmt.Sprintf("model transcription failed: %v", err)
		return res
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		res.Error = "model returned an empty transcript"
		return res
	}
	res.Transcript = text
	res.Success = true
	return res
}

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
}

// videoMIMEType guesses a video MIME type from the URL path.
func videoMIMEType(videoURL string) string {
	if u, err := url.Parse(videoURL); err == nil {
		if t, ok := videoTypes[strings.ToLower(path.Ext(u.Path))]; ok {
			return t
		}
	}
	return "video/mp4"
}

func successLabel(ok bool) string {
	if ok {
		return metrics.StatusOK
	}
	return metrics.StatusError
}
