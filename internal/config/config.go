package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Redis (run/resume dispatch queue)
	RedisURL string

	// OpenAI (Whisper transcription)
	OpenAIKey string

	// Gemini (keyword extraction; empty = heuristic extractor)
	GeminiKey   string
	GeminiModel string

	// Openverse (meme image search)
	OpenverseURL string

	// ElevenLabs (preferred TTS provider for synthesized-script mode)
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	// Cartesia (legacy TTS provider — used when ElevenLabs key is not set)
	CartesiaKey     string
	CartesiaURL     string
	CartesiaVoiceID string

	// Retrieval
	YtDlpPath           string
	RetrievalMaxRetries int

	// Rendering
	BrowserHeadless bool

	// Timeline
	MaxSlotSeconds float64
	MinSlotSeconds float64

	// Jobs
	WorkDir           string // scratch root for per-job audio/images/slides/output
	JobTimeoutMinutes int    // wall-clock budget per job
	JobTTLMinutes     int    // how long terminal jobs stay queryable

	// Worker
	MaxConcurrentJobs int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:             getEnv("API_PORT", "8080"),
		WorkerEnabled:       getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:       getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:  getEnv("CORS_ALLOWED_ORIGINS", ""),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379"),
		OpenAIKey:           getEnv("OPENAI_API_KEY", ""),
		GeminiKey:           getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenverseURL:        getEnv("OPENVERSE_API_URL", "https://api.openverse.org"),
		ElevenLabsKey:       getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:   getEnv("ELEVENLABS_VOICE_ID", ""),
		CartesiaKey:         getEnv("CARTESIA_API_KEY", ""),
		CartesiaURL:         getEnv("CARTESIA_API_URL", "https://api.cartesia.ai"),
		CartesiaVoiceID:     getEnv("CARTESIA_VOICE_ID", ""),
		YtDlpPath:           getEnv("YTDLP_PATH", "yt-dlp"),
		RetrievalMaxRetries: getEnvInt("RETRIEVAL_MAX_RETRIES", 3),
		BrowserHeadless:     getEnvBool("BROWSER_HEADLESS", true),
		MaxSlotSeconds:      getEnvFloat("MAX_SLOT_SECONDS", 5.0),
		MinSlotSeconds:      getEnvFloat("MIN_SLOT_SECONDS", 3.0),
		WorkDir:             getEnv("WORK_DIR", filepath.Join(os.TempDir(), "memesync")),
		JobTimeoutMinutes:   getEnvInt("JOB_TIMEOUT_MINUTES", 10),
		JobTTLMinutes:       getEnvInt("JOB_TTL_MINUTES", 60),
		MaxConcurrentJobs:   getEnvInt("MAX_CONCURRENT_JOBS", 4),
	}

	// Validate required fields
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	if cfg.MaxSlotSeconds <= 0 || cfg.MinSlotSeconds <= 0 || cfg.MinSlotSeconds > cfg.MaxSlotSeconds {
		return nil, fmt.Errorf("slot durations must satisfy 0 < MIN_SLOT_SECONDS <= MAX_SLOT_SECONDS (got min=%.2f max=%.2f)",
			cfg.MinSlotSeconds, cfg.MaxSlotSeconds)
	}

	if cfg.JobTimeoutMinutes <= 0 {
		return nil, fmt.Errorf("JOB_TIMEOUT_MINUTES must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}
