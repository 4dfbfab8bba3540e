package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Storage
	DatabaseURL  string
	RedisURL     string
	TextCacheTTL time.Duration

	// Auth
	TacivoAPIKey string

	// Claude
	AnthropicAPIKey string
	AnthropicModel  string

	// Email (Resend)
	ResendAPIKey  string
	EmailFrom     string
	EmailFromName string
	AppBaseURL    string

	// Speech (ElevenLabs)
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsModel   string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Job and invitation state
	JobTTL        time.Duration
	InvitationTTL time.Duration

	// Flattening and prompt budgets
	FlattenMaxDepth       int
	FlattenMaxBlocks      int
	PlaybookContextTokens int

	// PDF
	PDFFallbackPdftotext bool
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		TextCacheTTL: envDuration("TEXT_CACHE_TTL", 24*time.Hour),

		TacivoAPIKey: os.Getenv("TACIVO_API_KEY"),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),

		ResendAPIKey:  os.Getenv("RESEND_API_KEY"),
		EmailFrom:     envOr("EMAIL_FROM", "noreply@tacivo.com"),
		EmailFromName: envOr("EMAIL_FROM_NAME", "Tacivo"),
		AppBaseURL:    envOr("APP_BASE_URL", "http://localhost:3000"),

		ElevenLabsAPIKey:  os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),
		ElevenLabsModel:   os.Getenv("ELEVENLABS_MODEL"),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 50),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 20971520), // 20MB

		JobTTL:        envDuration("JOB_TTL", 1*time.Hour),
		InvitationTTL: envDuration("INVITATION_TTL", 14*24*time.Hour),

		FlattenMaxDepth:       envInt("FLATTEN_MAX_DEPTH", 256),
		FlattenMaxBlocks:      envInt("FLATTEN_MAX_BLOCKS", 100000),
		PlaybookContextTokens: envInt("PLAYBOOK_CONTEXT_TOKENS", 120000),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 50
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20971520
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.InvitationTTL <= 0 {
		cfg.InvitationTTL = 14 * 24 * time.Hour
	}
	if cfg.TextCacheTTL <= 0 {
		cfg.TextCacheTTL = 24 * time.Hour
	}
	if cfg.FlattenMaxDepth <= 0 {
		cfg.FlattenMaxDepth = 256
	}
	if cfg.FlattenMaxBlocks <= 0 {
		cfg.FlattenMaxBlocks = 100000
	}
	if cfg.PlaybookContextTokens <= 0 {
		cfg.PlaybookContextTokens = 120000
	}

	return cfg
}

func (c Config) Validate() error {
	if c.TacivoAPIKey == "" {
		return fmt.Errorf("TACIVO_API_KEY is required")
	}
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
