package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI    string
	DBName      string
	Port        string
	GinMode     string
	CORSOrigins []string

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Provider credentials. At least one must be set.
	GeminiAPIKey    string
	OpenAIAPIKey    string
	OpenAIAPIURL    string
	AnthropicAPIKey string
	AnthropicAPIURL string
	OllamaURL       string
	DefaultProvider string

	// Embeddings
	EmbeddingModel string
	VectorDim      int

	// Vector store
	VectorCollection string
	VectorIndexName  string
	SearchLimit      int
	SearchThreshold  float64

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Sessions
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	SessionHistoryCap    int
	SessionStore         string // "memory" or "redis"

	// Chat
	ContextHistoryWindow int
	MaxMessageLength     int
	AnswerLanguage       string

	// Ingestion
	MaxFileSize         int64
	SyncProcessingLimit int64

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/docrag"),
		DBName:      getEnv("DB_NAME", "docrag"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIAPIURL:    getEnv("OPENAI_API_URL", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicAPIURL: getEnv("ANTHROPIC_API_URL", ""),
		OllamaURL:       getEnv("OLLAMA_URL", ""),
		DefaultProvider: getEnv("DEFAULT_PROVIDER", "auto"),

		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		VectorDim:      getEnvInt("VECTOR_DIM", 768),

		VectorCollection: getEnv("VECTOR_COLLECTION", "chunks"),
		VectorIndexName:  getEnv("VECTOR_INDEX_NAME", "chunks_vector"),
		SearchLimit:      getEnvInt("SEARCH_LIMIT", 5),
		SearchThreshold:  getEnvFloat64("SEARCH_THRESHOLD", 0.7),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),

		SessionTTL:           getEnvDuration("SESSION_TTL", time.Hour),
		SessionSweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		SessionHistoryCap:    getEnvInt("SESSION_HISTORY_CAP", 10),
		SessionStore:         getEnv("SESSION_STORE", "memory"),

		ContextHistoryWindow: getEnvInt("CONTEXT_HISTORY_WINDOW", 6),
		MaxMessageLength:     getEnvInt("MAX_MESSAGE_LENGTH", 2000),
		AnswerLanguage:       getEnv("ANSWER_LANGUAGE", "English"),

		MaxFileSize:         getEnvInt64("MAX_FILE_SIZE", 104857600),       // 100MB upload cap
		SyncProcessingLimit: getEnvInt64("SYNC_PROCESSING_LIMIT", 1048576), // 1MB; above it ingestion goes async

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),
	}

	// Validate required fields
	if cfg.GeminiAPIKey == "" && cfg.OpenAIAPIKey == "" && cfg.AnthropicAPIKey == "" && cfg.OllamaURL == "" {
		return nil, fmt.Errorf("no generation provider configured - set at least one of GEMINI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY, OLLAMA_URL")
	}

	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}

	if cfg.SessionStore != "memory" && cfg.SessionStore != "redis" {
		return nil, fmt.Errorf("SESSION_STORE must be \"memory\" or \"redis\", got %q", cfg.SessionStore)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
