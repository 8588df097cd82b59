package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/coursepilot/internal/config"
	"github.com/abhisek/coursepilot/internal/logger"
	"github.com/abhisek/coursepilot/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "coursepilot",
	Short: "AI course content generation and grading",
	Long: "coursepilot generates course outlines, lessons, quizzes and exams with a language model,\n" +
		"grades free-text answers and hosts a conversational course builder over websockets.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to a config file (default: coursepilot.yaml in ., ~/.config/coursepilot, /etc/coursepilot)")
	pf.String("db", "", "Path to SQLite database file (overrides COURSEPILOT_DB env var)")
	pf.String("log-mode", "dev", "Log format: dev or prod")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("provider", "", "LLM provider: gemini, openai, anthropic, openrouter or mock")
	pf.String("model", "", "Model name for the selected provider")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves flags, environment and config file for cmd.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(v)
}

func newLogger(cfg config.Config) (*logger.Logger, error) {
	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log, nil
}

// resolveDBPath returns the configured database path (--db flag or
// db.path), then COURSEPILOT_DB, then the default XDG path.
func resolveDBPath(cfg config.Config) (string, error) {
	if p := cfg.DB.Path; p != "" {
		return p, store.EnsureDir(p)
	}
	return store.DefaultDBPath()
}

func openStore(cfg config.Config) (*store.Store, error) {
	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}
