package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LLM provider identifiers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderBedrock   = "bedrock"
)

// Default council composition. Three drafter models, one chair.
var DefaultModels = []string{
	"gpt-4o-mini",
	"claude-3-5-haiku-latest",
	"llama3.1",
}

// DefaultChairModel synthesizes drafts and critiques into the final output.
const DefaultChairModel = "gpt-4o-mini"

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// LLM generation
	LLMProvider     string
	Models          []string
	ChairModel      string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Workspace for pre-commit artifacts
	WorkspaceRoot string

	// TargetRoot is the git working tree approved outputs are committed into
	TargetRoot string

	// Editor for approve-with-edit (falls back to $EDITOR, then vi)
	Editor string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "council"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "runs"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider:     getEnv("COUNCIL_LLM_PROVIDER", ProviderOpenAI),
		Models:          parseModels(getEnv("COUNCIL_MODELS", "")),
		ChairModel:      getEnv("COUNCIL_CHAIR_MODEL", DefaultChairModel),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),

		WorkspaceRoot: getEnv("COUNCIL_WORKSPACE", defaultWorkspace()),
		TargetRoot:    getEnv("COUNCIL_TARGET_ROOT", "."),
		Editor:        getEnv("COUNCIL_EDITOR", ""),

		LogFile:  getEnv("COUNCIL_LOG_FILE", "/tmp/council.log"),
		LogLevel: parseLogLevel(getEnv("COUNCIL_LOG_LEVEL", "INFO")),
	}
}

func defaultWorkspace() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".council/workspace"
	}
	return filepath.Join(home, ".council", "workspace")
}

func parseModels(csv string) []string {
	if csv == "" {
		return append([]string(nil), DefaultModels...)
	}
	var models []string
	for _, m := range strings.Split(csv, ",") {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	if len(models) == 0 {
		return append([]string(nil), DefaultModels...)
	}
	return models
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
