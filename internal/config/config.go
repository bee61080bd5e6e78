package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the conversational RAG service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// Conversation state retention in the session store.
	ConversationTTL time.Duration
	// Number of recent turns injected into the generation prompt.
	HistoryWindow int
	// Number of retrieved snippets per question.
	RetrievalTopK int

	LLMMode     string
	LLMURL      string
	LLMAPIKey   string
	LLMModel    string
	LLMTimeout  time.Duration
	RedisURL    string
	DatabaseURL string

	RetrieverMode    string
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string
	EmbedderURL      string
	EmbedderAPIKey   string
	EmbedderModel    string

	CorpusPath string
}

// Load reads environment variables and applies safe defaults. A .env file in
// the working directory is honored when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "historia"),
		AllowAnyOrigin:   false,
		ShutdownTimeout:  15 * time.Second,
		ConversationTTL:  7 * 24 * time.Hour,
		HistoryWindow:    6,
		RetrievalTopK:    3,
		LLMMode:          envOrDefault("LLM_MODE", "auto"),
		LLMURL:           trimmedEnv("LLM_URL"),
		LLMAPIKey:        trimmedEnv("LLM_API_KEY"),
		LLMModel:         envOrDefault("LLM_MODEL", "claude-3-haiku"),
		LLMTimeout:       60 * time.Second,
		RedisURL:         trimmedEnv("REDIS_URL"),
		DatabaseURL:      trimmedEnv("DATABASE_URL"),
		RetrieverMode:    envOrDefault("RETRIEVER_MODE", "memory"),
		QdrantURL:        trimmedEnv("QDRANT_URL"),
		QdrantAPIKey:     trimmedEnv("QDRANT_API_KEY"),
		QdrantCollection: envOrDefault("QDRANT_COLLECTION", "historia_docs"),
		EmbedderURL:      envOrDefault("EMBEDDER_URL", "https://api.openai.com/v1"),
		EmbedderAPIKey:   trimmedEnv("EMBEDDER_API_KEY"),
		EmbedderModel:    envOrDefault("EMBEDDER_MODEL", "text-embedding-3-small"),
		CorpusPath:       trimmedEnv("CORPUS_PATH"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ConversationTTL, err = durationFromEnv("CONVERSATION_TTL", cfg.ConversationTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTimeout, err = durationFromEnv("LLM_TIMEOUT", cfg.LLMTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryWindow, err = intFromEnv("CHAT_HISTORY_WINDOW", cfg.HistoryWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.RetrievalTopK, err = intFromEnv("RETRIEVAL_TOP_K", cfg.RetrievalTopK)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.ConversationTTL < time.Minute {
		return Config{}, fmt.Errorf("CONVERSATION_TTL must be at least 1m")
	}
	if cfg.HistoryWindow <= 0 {
		return Config{}, fmt.Errorf("CHAT_HISTORY_WINDOW must be positive")
	}
	if cfg.RetrievalTopK <= 0 {
		return Config{}, fmt.Errorf("RETRIEVAL_TOP_K must be positive")
	}
	if mode := strings.ToLower(strings.TrimSpace(cfg.RetrieverMode)); mode == "qdrant" && cfg.QdrantURL == "" {
		return Config{}, fmt.Errorf("RETRIEVER_MODE=qdrant requires QDRANT_URL")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
