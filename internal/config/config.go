// Package config loads coursepilot settings from flags, COURSEPILOT_*
// environment variables and an optional coursepilot.yaml.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/abhisek/coursepilot/internal/grading"
	"github.com/abhisek/coursepilot/internal/llm"
	"github.com/abhisek/coursepilot/internal/transcribe"
)

const envPrefix = "COURSEPILOT"

type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Log        LogConfig
	LLM        llm.Config
	Chat       ChatConfig
	Grading    grading.Config
	Redis      transcribe.RedisConfig
	Auth       AuthConfig
	Transcribe TranscribeConfig
}

type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	// AllowedOrigins restricts websocket upgrades. Empty allows any origin.
	AllowedOrigins []string
}

type DBConfig struct {
	// Path to the sqlite file. Empty uses the default data directory.
	Path string
}

type LogConfig struct {
	Mode  string
	Level string
}

// ChatConfig tunes the conversational course builder.
type ChatConfig struct {
	Temperature float64
	MaxTokens   int
	MaxRetries  int
	RetryBase   time.Duration
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

type TranscribeConfig struct {
	CaptionsURL string
	Timeout     time.Duration
	Languages   []string
}

// SetDefaults registers every key with its default so environment
// variables bind even when no config file sets them.
func SetDefaults(v *viper.Viper) {
	llmDef := llm.DefaultConfig()
	gradingDef := grading.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("db.path", "")

	v.SetDefault("log.mode", "dev")
	v.SetDefault("log.level", "")

	// llm.provider has no default so an unset provider can fall back to
	// key discovery.
	v.SetDefault("llm.timeout", llmDef.Timeout)
	v.SetDefault("llm.gemini.api_key", "")
	v.SetDefault("llm.gemini.model", llmDef.Gemini.Model)
	v.SetDefault("llm.gemini.base_url", "")
	v.SetDefault("llm.openai.api_key", "")
	v.SetDefault("llm.openai.model", llmDef.OpenAI.Model)
	v.SetDefault("llm.openai.base_url", "")
	v.SetDefault("llm.anthropic.api_key", "")
	v.SetDefault("llm.anthropic.model", llmDef.Anthropic.Model)
	v.SetDefault("llm.openrouter.api_key", "")
	v.SetDefault("llm.openrouter.model", llmDef.OpenRouter.Model)
	v.SetDefault("llm.openrouter.base_url", "")
	v.SetDefault("llm.retry.max_attempts", llmDef.Retry.MaxAttempts)
	v.SetDefault("llm.retry.initial_wait", llmDef.Retry.InitialWait)
	v.SetDefault("llm.retry.max_wait", llmDef.Retry.MaxWait)
	v.SetDefault("llm.retry.multiplier", llmDef.Retry.Multiplier)

	v.SetDefault("chat.temperature", 0.7)
	v.SetDefault("chat.max_tokens", 0)
	v.SetDefault("chat.max_retries", 3)
	v.SetDefault("chat.retry_base", 2*time.Second)

	v.SetDefault("grading.system_template", "")
	v.SetDefault("grading.temperature", gradingDef.Temperature)
	v.SetDefault("grading.max_tokens", gradingDef.MaxTokens)
	v.SetDefault("grading.concurrency", gradingDef.Concurrency)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 7*24*time.Hour)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")

	v.SetDefault("transcribe.captions_url", transcribe.DefaultTimedTextURL)
	v.SetDefault("transcribe.timeout", 15*time.Second)
	v.SetDefault("transcribe.languages", transcribe.DefaultLanguages)
}

// NewViper returns a viper instance wired to the environment and config
// file search path. flags may be nil; flag names are bound through
// flagKeys.
func NewViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for flag, key := range flagKeys {
			if f := flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
		}
	}

	if v.ConfigFileUsed() == "" {
		v.SetConfigName("coursepilot")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/coursepilot")
		v.AddConfigPath("/etc/coursepilot")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"addr":      "server.addr",
	"db":        "db.path",
	"log-mode":  "log.mode",
	"log-level": "log.level",
	"provider":  "llm.provider",
	"model":     "llm.model",
	"redis":     "redis.addr",
}

// Load reads a Config from v.
func Load(v *viper.Viper) (Config, error) {
	provider := strings.ToLower(v.GetString("llm.provider"))
	explicit := provider != ""
	if !explicit {
		provider = llm.DefaultConfig().Provider
	}

	cfg := Config{
		Server: ServerConfig{
			Addr:            v.GetString("server.addr"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			AllowedOrigins:  v.GetStringSlice("server.allowed_origins"),
		},
		DB:  DBConfig{Path: v.GetString("db.path")},
		Log: LogConfig{Mode: v.GetString("log.mode"), Level: v.GetString("log.level")},
		LLM: llm.Config{
			Provider: provider,
			Timeout:  v.GetDuration("llm.timeout"),
			Gemini: llm.GeminiConfig{
				APIKey:  v.GetString("llm.gemini.api_key"),
				Model:   v.GetString("llm.gemini.model"),
				BaseURL: v.GetString("llm.gemini.base_url"),
			},
			OpenAI: llm.OpenAIConfig{
				APIKey:  v.GetString("llm.openai.api_key"),
				Model:   v.GetString("llm.openai.model"),
				BaseURL: v.GetString("llm.openai.base_url"),
			},
			Anthropic: llm.AnthropicConfig{
				APIKey: v.GetString("llm.anthropic.api_key"),
				Model:  v.GetString("llm.anthropic.model"),
			},
			OpenRouter: llm.OpenRouterConfig{
				APIKey:  v.GetString("llm.openrouter.api_key"),
				Model:   v.GetString("llm.openrouter.model"),
				BaseURL: v.GetString("llm.openrouter.base_url"),
			},
			Retry: llm.RetryConfig{
				MaxAttempts: v.GetInt("llm.retry.max_attempts"),
				InitialWait: v.GetDuration("llm.retry.initial_wait"),
				MaxWait:     v.GetDuration("llm.retry.max_wait"),
				Multiplier:  v.GetFloat64("llm.retry.multiplier"),
			},
		},
		Chat: ChatConfig{
			Temperature: v.GetFloat64("chat.temperature"),
			MaxTokens:   v.GetInt("chat.max_tokens"),
			MaxRetries:  v.GetInt("chat.max_retries"),
			RetryBase:   v.GetDuration("chat.retry_base"),
		},
		Grading: grading.Config{
			SystemTemplate: v.GetString("grading.system_template"),
			Temperature:    v.GetFloat64("grading.temperature"),
			MaxTokens:      v.GetInt("grading.max_tokens"),
			Concurrency:    v.GetInt("grading.concurrency"),
		},
		Redis: transcribe.RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			TTL:      v.GetDuration("redis.ttl"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
			Issuer:    v.GetString("auth.issuer"),
			Audience:  v.GetString("auth.audience"),
		},
		Transcribe: TranscribeConfig{
			CaptionsURL: v.GetString("transcribe.captions_url"),
			Timeout:     v.GetDuration("transcribe.timeout"),
			Languages:   v.GetStringSlice("transcribe.languages"),
		},
	}

	// Without an explicit provider or key, use whichever well-known API
	// key variable is present.
	if cfg.LLM.Validate() != nil && !explicit {
		if found, ok := llm.DiscoverConfig(); ok {
			found.Timeout = cfg.LLM.Timeout
			found.Retry = cfg.LLM.Retry
			cfg.LLM = found
		}
	}

	// --model applies to whichever provider is selected.
	if m := v.GetString("llm.model"); m != "" {
		cfg.LLM.SetModel(m)
	}

	if cfg.Chat.MaxRetries < 0 {
		return Config{}, fmt.Errorf("chat.max_retries must not be negative")
	}
	return cfg, nil
}
