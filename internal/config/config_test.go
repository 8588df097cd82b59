package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearKeys(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENROUTER_API_KEY"} {
		t.Setenv(k, "")
	}
	// Keep the search path away from any real coursepilot.yaml.
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearKeys(t)

	v, err := NewViper(nil)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 120*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.Chat.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Chat.RetryBase)
	assert.Equal(t, 0.3, cfg.Grading.Temperature)
	assert.Equal(t, 2048, cfg.Grading.MaxTokens)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, []string{"en", "en-US", "es", "fr", "de", "it", "pt"}, cfg.Transcribe.Languages)
}

func TestLoad_Environment(t *testing.T) {
	clearKeys(t)
	t.Setenv("COURSEPILOT_LLM_PROVIDER", "OpenAI")
	t.Setenv("COURSEPILOT_LLM_OPENAI_API_KEY", "sk-test")
	t.Setenv("COURSEPILOT_CHAT_RETRY_BASE", "10ms")
	t.Setenv("COURSEPILOT_REDIS_ADDR", "localhost:6379")
	t.Setenv("COURSEPILOT_AUTH_JWT_SECRET", "s3cret")

	v, err := NewViper(nil)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.OpenAI.APIKey)
	assert.Equal(t, 10*time.Millisecond, cfg.Chat.RetryBase)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestLoad_DiscoversProviderKey(t *testing.T) {
	clearKeys(t)
	t.Setenv("ANTHROPIC_API_KEY", "ak")

	v, err := NewViper(nil)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "ak", cfg.LLM.Anthropic.APIKey)
}

func TestLoad_ExplicitProviderSkipsDiscovery(t *testing.T) {
	clearKeys(t)
	t.Setenv("ANTHROPIC_API_KEY", "ak")
	t.Setenv("COURSEPILOT_LLM_PROVIDER", "gemini")

	v, err := NewViper(nil)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Error(t, cfg.LLM.Validate())
}

func TestLoad_FlagsAndConfigFile(t *testing.T) {
	clearKeys(t)

	path := filepath.Join(t.TempDir(), "coursepilot.yaml")
	yaml := `
server:
  addr: ":9000"
llm:
  provider: mock
grading:
  temperature: 0.1
transcribe:
  languages: [de, en]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "")
	flags.String("addr", ":8080", "")
	flags.String("model", "", "")
	require.NoError(t, flags.Parse([]string{"--config", path, "--addr", ":7000"}))

	v, err := NewViper(flags)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr, "a changed flag wins over the file")
	assert.Equal(t, "mock", cfg.LLM.Provider)
	assert.Equal(t, 0.1, cfg.Grading.Temperature)
	assert.Equal(t, []string{"de", "en"}, cfg.Transcribe.Languages)
}

func TestLoad_ModelOverride(t *testing.T) {
	clearKeys(t)
	t.Setenv("COURSEPILOT_LLM_PROVIDER", "openrouter")
	t.Setenv("COURSEPILOT_LLM_MODEL", "meta/llama")

	v, err := NewViper(nil)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "meta/llama", cfg.LLM.OpenRouter.Model)
}

func TestNewViper_MissingExplicitFile(t *testing.T) {
	clearKeys(t)
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "")
	require.NoError(t, flags.Parse([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}))

	_, err := NewViper(flags)
	assert.Error(t, err)
}
