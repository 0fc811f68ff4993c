package main

import (
	"time"

	"github.com/jaekop/ContextLens/internal/env"
	"github.com/jaekop/ContextLens/internal/processor"
)

type config struct {
	port string

	engine          string
	fallbackEngine  string
	ollamaURL       string
	ollamaModel     string
	anthropicAPIKey string
	anthropicURL    string
	anthropicModel  string
	geminiAPIKey    string
	geminiModel     string
	maxTokens       int
	llmPoolSize     int

	sttURL        string
	sttHealthURL  string
	storeDSN      string
	sinkURL       string
	maxConcurrent int

	minInterval    time.Duration
	minCharsDelta  int
	visionInterval time.Duration
	visionBackoff  time.Duration
	windowChars    int
	summaryTimeout time.Duration
}

func loadConfig() config {
	return config{
		port: env.Str("PORT", "8000"),

		engine:          env.Str("LLM_ENGINE", "ollama"),
		fallbackEngine:  env.Str("LLM_FALLBACK_ENGINE", ""),
		ollamaURL:       env.Str("OLLAMA_URL", "http://localhost:11434"),
		ollamaModel:     env.Str("OLLAMA_MODEL", "llama3.2:3b"),
		anthropicAPIKey: env.Str("ANTHROPIC_API_KEY", ""),
		anthropicURL:    env.Str("ANTHROPIC_URL", "https://api.anthropic.com"),
		anthropicModel:  env.Str("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		geminiAPIKey:    env.Str("GEMINI_API_KEY", ""),
		geminiModel:     env.Str("GEMINI_MODEL", "gemini-2.0-flash"),
		maxTokens:       env.Int("LLM_MAX_TOKENS", 400),
		llmPoolSize:     env.Int("LLM_POOL_SIZE", 50),

		sttURL:        env.Str("STT_URL", ""),
		sttHealthURL:  env.Str("STT_HEALTH_URL", ""),
		storeDSN:      env.Str("STORE_DSN", ""),
		sinkURL:       env.Str("METRICS_SINK_URL", ""),
		maxConcurrent: env.Int("MAX_CONCURRENT_SESSIONS", 100),

		minInterval:    env.Dur("SUMMARY_MIN_INTERVAL", processor.DefaultMinInterval),
		minCharsDelta:  env.Int("SUMMARY_MIN_CHARS_DELTA", processor.DefaultMinCharsDelta),
		visionInterval: env.Dur("VISION_INTERVAL", processor.DefaultVisionInterval),
		visionBackoff:  env.Dur("VISION_BACKOFF", processor.DefaultVisionBackoff),
		windowChars:    env.Int("SUMMARY_WINDOW_CHARS", processor.DefaultWindowChars),
		summaryTimeout: env.Dur("SUMMARY_TIMEOUT", processor.DefaultSummaryTimeout),
	}
}
